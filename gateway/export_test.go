package gateway

import (
	"context"
	"net/http"
)

// FetchSDLForTest exports fetchSDL for white-box testing.
func FetchSDLForTest(ctx context.Context, host string, httpClient *http.Client, retry RetryOption) (string, error) {
	return fetchSDL(ctx, host, httpClient, retry)
}

// BuildEngineForTest exports buildEngine for white-box testing.
func BuildEngineForTest(sdls, hosts map[string]string, httpClient *http.Client) (*engine, error) {
	return buildEngine(sdls, hosts, httpClient)
}
