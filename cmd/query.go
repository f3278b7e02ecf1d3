package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kychandar/gqlwsc/config"
	"github.com/kychandar/gqlwsc/services"
	"github.com/kychandar/gqlwsc/services/client"
	metricsregistry "github.com/kychandar/gqlwsc/services/metricsRegistry"
	"github.com/kychandar/gqlwsc/services/transport/wstransport"
	"github.com/spf13/cobra"
	slogctx "github.com/veqryn/slog-context"
)

var (
	queryVariables string

	queryCmd = &cobra.Command{
		Use:   "query <graphql-query>",
		Short: "Execute one query or mutation and print the response payload",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(cfgFile, env)
			if err != nil {
				log.Fatalf("failed to load config: %v", err)
			}
			runQuery(cfg, args[0], queryVariables)
		},
	}
)

func init() {
	queryCmd.Flags().StringVar(&queryVariables, "variables", "", "query variables as a JSON object")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cfg *config.Config, query, variablesJSON string) {
	logger, cleanup := SetupLogger()
	defer cleanup()
	ctx := slogctx.NewCtx(context.Background(), logger)

	variables, err := parseVariables(variablesJSON)
	if err != nil {
		log.Fatalf("invalid variables: %v", err)
	}

	gqlClient, err := newClient(cfg)
	if err != nil {
		log.Fatalf("failed to build client: %v", err)
	}

	if err := gqlClient.ConnectAndInit(ctx, false); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer gqlClient.Finalize(ctx)

	payload, err := gqlClient.Execute(ctx, query, variables)
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		log.Fatalf("failed to render payload: %v", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
}

func parseVariables(variablesJSON string) (map[string]any, error) {
	if variablesJSON == "" {
		return nil, nil
	}
	variables := map[string]any{}
	if err := json.Unmarshal([]byte(variablesJSON), &variables); err != nil {
		return nil, err
	}
	return variables, nil
}

func newClient(cfg *config.Config) (services.GraphQLWsClient, error) {
	opts := wstransport.Options{
		URL:            cfg.Endpoint.URL,
		Origin:         cfg.Endpoint.Origin,
		Headers:        cfg.Endpoint.Headers,
		Subprotocol:    cfg.Endpoint.Subprotocol,
		ConnectTimeout: time.Duration(cfg.Timeouts.Connect) * time.Second,
		ReceiveTimeout: time.Duration(cfg.Timeouts.Receive) * time.Second,
		WriteTimeout:   time.Duration(cfg.Timeouts.Write) * time.Second,
	}
	if cfg.Endpoint.TLS.Enabled {
		tlsCfg, err := wstransport.BuildTLSConfig(
			cfg.Endpoint.TLS.CertFile,
			cfg.Endpoint.TLS.KeyFile,
			cfg.Endpoint.TLS.CAFile,
			cfg.Endpoint.TLS.InsecureSkipVerify,
		)
		if err != nil {
			return nil, err
		}
		opts.TLSConfig = tlsCfg
	}

	hostName, err := os.Hostname()
	if err != nil {
		hostName = "unknown"
	}

	transport := wstransport.New(opts)
	registry := metricsregistry.New(hostName)
	return client.New(transport, registry), nil
}
