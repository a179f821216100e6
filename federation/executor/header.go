package executor

import (
	"context"
	"net/http"
)

type requestHeaderKey struct{}

// hop-by-hop and body describing headers are never forwarded to subgraphs.
var skippedHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
	"Content-Type":        true,
	"Accept-Encoding":     true,
	"Host":                true,
}

// SetRequestHeaderToContext stores the inbound request header so that every
// subgraph request made for it carries the same headers.
func SetRequestHeaderToContext(ctx context.Context, header http.Header) context.Context {
	return context.WithValue(ctx, requestHeaderKey{}, header.Clone())
}

// RequestHeaderFromContext returns the header stored by SetRequestHeaderToContext.
func RequestHeaderFromContext(ctx context.Context) (http.Header, bool) {
	h, ok := ctx.Value(requestHeaderKey{}).(http.Header)
	return h, ok
}

func copyRequestHeader(ctx context.Context, dst http.Header) {
	src, ok := RequestHeaderFromContext(ctx)
	if !ok {
		return
	}
	for k, values := range src {
		if skippedHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
