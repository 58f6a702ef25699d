package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/phiscrub/internal/auditstore"
	"github.com/dshills/phiscrub/internal/server"
)

var flagAddr string

func runServe() {
	cfg, err := loadConfig()
	if err != nil {
		fail(err)
		return
	}
	logger, err := newLogger(cfg)
	if err != nil {
		fail(err)
		return
	}
	ctx, stop := signalContext()
	defer stop()

	eng, cleanup, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		fail(err)
		return
	}
	defer cleanup()

	opts := server.Options{Addr: cfg.Server.Addr, BodyLimit: cfg.Server.BodyLimit}
	if cfg.Audit.DatabaseURL != "" {
		store, err := auditstore.Open(ctx, cfg.Audit.DatabaseURL, cfg.Audit.Table)
		if err != nil {
			fail(fmt.Errorf("opening audit store: %w", err))
			return
		}
		defer store.Close()
		opts.Sink = store
	}

	logger.Info().
		Str("classifier", eng.ClassifierName()).
		Str("version", version).
		Msg("starting phiscrub server")
	if err := server.New(eng, logger, opts).Start(ctx); err != nil {
		fail(err)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the de-identification API over HTTP",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	addClassifierFlags(serveCmd)
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default :8080)")
	serveCmd.Flags().StringVar(&flagPolicy, "policy", "", "Policy file adding skipped resource types and structural keys")
	serveCmd.Flags().StringVar(&flagAuditDB, "audit-db", "", "PostgreSQL URL to store audit rows in")
}
