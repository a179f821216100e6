package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/n9te9/spacegraph/config"
	"github.com/n9te9/spacegraph/datasource"
	"github.com/n9te9/spacegraph/gateway"
	"github.com/n9te9/spacegraph/logging"
	"github.com/n9te9/spacegraph/metrics"
	"github.com/n9te9/spacegraph/mockapi"
	"github.com/n9te9/spacegraph/restapi"
	"github.com/n9te9/spacegraph/server"
	"github.com/n9te9/spacegraph/standalone"
	"github.com/n9te9/spacegraph/subgraph"
	"github.com/n9te9/spacegraph/subgraph/astronauts"
	"github.com/n9te9/spacegraph/subgraph/missions"
	"github.com/n9te9/spacegraph/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var components = []string{
	"mock",
	"astronauts",
	"missions",
	"gateway",
	"standalone",
	"astronauts-only",
	"rest",
	"combined",
	"all",
}

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "serve <" + strings.Join(components, "|") + ">",
		Short:     "Start a spacegraph server",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: components,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			component := args[0]

			shutdown, err := telemetry.Setup(ctx, "spacegraph-"+component, cfg.Opentelemetry.Tracing)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Warn("failed to shut down tracer provider", zap.Error(err))
				}
			}()

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}

			if component == "all" {
				return a.serveAll(ctx)
			}
			return a.serve(ctx, component, opts.port)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "listen port, overriding the config file")

	return cmd
}

type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	client      *datasource.Client
	subgraphOpt subgraph.Options
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	timeout, err := cfg.DatasourceTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid datasource.timeout: %w", err)
	}

	tracing := cfg.Opentelemetry.Tracing
	return &app{
		cfg:         cfg,
		logger:      logger,
		client:      datasource.New(cfg.Datasource.URL, telemetry.NewHTTPClient(timeout, tracing), logger),
		subgraphOpt: subgraph.Options{Tracing: tracing},
	}, nil
}

// handler builds the server of component and returns it with its configured
// port. The gateway fetches subgraph SDLs here, so the subgraphs must be up.
func (a *app) handler(ctx context.Context, component string) (http.Handler, int, error) {
	tracing := a.cfg.Opentelemetry.Tracing

	switch component {
	case "mock":
		f, err := mockapi.LoadFixture(a.cfg.Mock.Fixture)
		if err != nil {
			return nil, 0, err
		}
		h := mockapi.NewHandler(f, a.logger.With(zap.String("server", component)))
		return telemetry.WrapHandler(h, component, tracing), a.cfg.Mock.Port, nil

	case "astronauts":
		schema, err := astronauts.NewSchema(a.client, a.logger, a.subgraphOpt)
		if err != nil {
			return nil, 0, err
		}
		return subgraph.Handler(component, schema, a.logger, a.subgraphOpt), a.cfg.Subgraphs.Astronauts.Port, nil

	case "missions":
		schema, err := missions.NewSchema(a.client, a.logger, a.subgraphOpt)
		if err != nil {
			return nil, 0, err
		}
		return subgraph.Handler(component, schema, a.logger, a.subgraphOpt), a.cfg.Subgraphs.Missions.Port, nil

	case "standalone":
		schema, err := standalone.NewSchema(a.client, a.logger, a.subgraphOpt)
		if err != nil {
			return nil, 0, err
		}
		return subgraph.Handler(component, schema, a.logger, a.subgraphOpt), a.cfg.Standalone.Port, nil

	case "astronauts-only":
		schema, err := standalone.NewAstronautSchema(a.client, a.logger, a.subgraphOpt)
		if err != nil {
			return nil, 0, err
		}
		return subgraph.Handler(component, schema, a.logger, a.subgraphOpt), a.cfg.Standalone.Port, nil

	case "rest":
		h := restapi.NewHandler(a.client, a.logger.With(zap.String("server", component)))
		return telemetry.WrapHandler(h, component, tracing), a.cfg.Rest.Port, nil

	case "combined":
		schema, err := standalone.NewSchema(a.client, a.logger, a.subgraphOpt)
		if err != nil {
			return nil, 0, err
		}
		h := restapi.NewCombinedHandler(schema, a.client, a.logger.With(zap.String("server", component)))
		return telemetry.WrapHandler(h, component, tracing), a.cfg.Rest.Port, nil

	case "gateway":
		timeout, err := a.cfg.Gateway.Timeout()
		if err != nil {
			return nil, 0, fmt.Errorf("invalid gateway.timeout_duration: %w", err)
		}
		logger := a.logger.With(zap.String("server", a.cfg.Gateway.ServiceName))

		g, err := gateway.New(ctx, a.cfg.Gateway, logger, telemetry.NewHTTPClient(timeout, tracing))
		if err != nil {
			return nil, 0, err
		}
		go func() {
			if err := g.Poll(ctx); err != nil {
				logger.Warn("schema polling disabled", zap.Error(err))
			}
		}()
		return telemetry.WrapHandler(g, component, tracing), a.cfg.Gateway.Port, nil
	}

	return nil, 0, fmt.Errorf("unknown component %q", component)
}

// withMetrics serves /metrics next to h when metrics are enabled.
func (a *app) withMetrics(h http.Handler) http.Handler {
	if !a.cfg.Metrics.Enable {
		return h
	}
	mux := http.NewServeMux()
	mux.Handle("/", h)
	metrics.Mount(mux, true)
	return mux
}

func (a *app) serve(ctx context.Context, component string, port int) error {
	h, configured, err := a.handler(ctx, component)
	if err != nil {
		return err
	}
	if port == 0 {
		port = configured
	}
	return server.Run(ctx, component, server.Addr(port), a.withMetrics(h), a.logger)
}

// serveAll runs the mock data source, both subgraphs and the gateway in one
// process. The gateway starts once the subgraphs are listening.
func (a *app) serveAll(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	var listeners []net.Listener
	closeAll := func() {
		for _, ln := range listeners {
			ln.Close()
		}
	}

	for _, component := range []string{"mock", "astronauts", "missions"} {
		h, port, err := a.handler(ctx, component)
		if err != nil {
			closeAll()
			return err
		}
		ln, err := net.Listen("tcp", server.Addr(port))
		if err != nil {
			closeAll()
			return fmt.Errorf("%s: failed to listen: %w", component, err)
		}
		listeners = append(listeners, ln)

		eg.Go(func() error {
			return server.Serve(ctx, component, ln, a.withMetrics(h), a.logger)
		})
	}

	eg.Go(func() error {
		h, port, err := a.handler(ctx, "gateway")
		if err != nil {
			return err
		}
		return server.Run(ctx, "gateway", server.Addr(port), a.withMetrics(h), a.logger)
	})

	return eg.Wait()
}
