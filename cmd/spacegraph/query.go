package main

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	graphql "github.com/hasura/go-graphql-client"
	"github.com/spf13/cobra"
)

func newQueryCmd() *cobra.Command {
	var (
		url     string
		vars    []string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "query QUERY",
		Short: "Send a GraphQL query and print the data as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variables, err := parseVars(vars)
			if err != nil {
				return err
			}

			client := graphql.NewClient(url, &http.Client{Timeout: timeout})
			data, queryErr := client.ExecRaw(cmd.Context(), args[0], variables)

			if len(data) > 0 {
				var out bytes.Buffer
				if err := json.Indent(&out, data, "", "  "); err != nil {
					return fmt.Errorf("failed to format response: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), out.String())
			}
			return queryErr
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:4000/", "GraphQL endpoint")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "query variable as name=value, repeatable")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	return cmd
}

// parseVars turns name=value pairs into query variables. Values are strings.
func parseVars(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q, want name=value", pair)
		}
		vars[name] = value
	}
	return vars, nil
}
