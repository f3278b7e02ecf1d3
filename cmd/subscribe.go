package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/kychandar/gqlwsc/common"
	"github.com/kychandar/gqlwsc/config"
	"github.com/kychandar/gqlwsc/services"
	"github.com/spf13/cobra"
	slogctx "github.com/veqryn/slog-context"
)

var (
	subscribeVariables string
	subscribeCount     int

	subscribeCmd = &cobra.Command{
		Use:   "subscribe <graphql-subscription>",
		Short: "Start a subscription and stream incoming data messages",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(cfgFile, env)
			if err != nil {
				log.Fatalf("failed to load config: %v", err)
			}
			runSubscribe(cfg, args[0], subscribeVariables, subscribeCount)
		},
	}
)

func init() {
	subscribeCmd.Flags().StringVar(&subscribeVariables, "variables", "", "subscription variables as a JSON object")
	subscribeCmd.Flags().IntVar(&subscribeCount, "count", 0, "stop after this many data messages (0 = until interrupted)")
	rootCmd.AddCommand(subscribeCmd)
}

func runSubscribe(cfg *config.Config, query, variablesJSON string, count int) {
	logger, cleanup := SetupLogger()
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = slogctx.NewCtx(ctx, logger)

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

	id, err := gqlClient.Subscribe(ctx, query, variables, false)
	if err != nil {
		log.Fatalf("subscribe failed: %v", err)
	}
	logger.Info("subscription started", "id", id)

	received := 0
	for count == 0 || received < count {
		if ctx.Err() != nil {
			break
		}

		raw, err := gqlClient.ReceiveRaw(ctx, services.ReceiveOpts{WaitID: id})
		if err != nil {
			if common.IsTimeout(err) {
				continue
			}
			log.Fatalf("receive failed: %v", err)
		}
		if raw.GetType() == common.MsgTypeComplete {
			logger.Info("subscription completed by server", "id", id)
			return
		}

		out, err := json.Marshal(raw.Payload)
		if err != nil {
			log.Fatalf("failed to render payload: %v", err)
		}
		fmt.Fprintf(os.Stdout, "%s %s\n", time.Now().Format(time.RFC3339), string(out))
		received++
	}

	if err := gqlClient.Stop(ctx, id); err != nil {
		logger.Warn("failed to stop subscription", "id", id, "err", err)
	}
}
