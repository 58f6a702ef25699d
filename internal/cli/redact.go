package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/phiscrub/internal/auditstore"
	"github.com/dshills/phiscrub/internal/cache"
	"github.com/dshills/phiscrub/internal/config"
	"github.com/dshills/phiscrub/internal/deid"
	"github.com/dshills/phiscrub/internal/fhirdoc"
	"github.com/dshills/phiscrub/internal/logging"
	"github.com/dshills/phiscrub/internal/output"
	"github.com/dshills/phiscrub/internal/providers"
)

// Shared flags
var (
	flagOut      string
	flagAudit    string
	flagFormat   string
	flagPolicy   string
	flagProvider string
	flagModel    string
	flagURL      string
	flagNoModel  bool
	flagFailOn   string
	flagAuditDB  string
	flagLogLevel string
)

func addClassifierFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagProvider, "provider", "", "Classifier provider ("+strings.Join(providers.Names(), ", ")+")")
	cmd.Flags().StringVar(&flagModel, "model", "", "Classifier model name")
	cmd.Flags().StringVar(&flagURL, "url", "", "Classifier service URL")
	cmd.Flags().BoolVar(&flagNoModel, "no-model", false, "Skip the model; use keypath and regex rules only")
	cmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

func addScrubFlags(cmd *cobra.Command) {
	addClassifierFlags(cmd)
	cmd.Flags().StringVar(&flagFormat, "format", "", "Audit format ("+strings.Join(output.Formats(), ", ")+")")
	cmd.Flags().StringVar(&flagPolicy, "policy", "", "Policy file adding skipped resource types and structural keys")
	cmd.Flags().StringVar(&flagFailOn, "fail-on", "", "Exit 1 when a redaction has this label or higher (none, any, NAME, CONTACT, ...)")
	cmd.Flags().StringVar(&flagAuditDB, "audit-db", "", "PostgreSQL URL to store audit rows in")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagProvider != "" {
		m["classifier.provider"] = flagProvider
	}
	if flagNoModel {
		m["classifier.provider"] = "none"
	}
	if flagModel != "" {
		m["classifier.model"] = flagModel
	}
	if flagURL != "" {
		m["classifier.url"] = flagURL
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagFailOn != "" {
		m["failOn"] = flagFailOn
	}
	if flagPolicy != "" {
		m["policy.file"] = flagPolicy
	}
	if flagAuditDB != "" {
		m["audit.databaseURL"] = flagAuditDB
	}
	if flagAddr != "" {
		m["server.addr"] = flagAddr
	}
	if flagLogLevel != "" {
		m["log.level"] = flagLogLevel
	}
	return m
}

// loadConfig loads the effective config and rejects values that would only
// fail later.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(buildOverrides())
	if err != nil {
		return config.Config{}, usagef("%v", err)
	}
	if _, err := output.GetWriter(cfg.Format); err != nil {
		return config.Config{}, usagef("%v", err)
	}
	if !deid.ValidThreshold(cfg.FailOn) {
		return config.Config{}, usagef("invalid fail-on value: %s", cfg.FailOn)
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (zerolog.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return zerolog.Nop(), usagef("%v", err)
	}
	return logger, nil
}

func newClassifier(cfg config.Config) (providers.Classifier, error) {
	return providers.New(cfg.Classifier.Provider, providers.Options{
		URL:     cfg.Classifier.URL,
		Model:   cfg.Classifier.Model,
		APIKey:  cfg.Classifier.Token,
		Timeout: time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second,
	})
}

// buildEngine wires classifier, cache and policy into an Engine. The
// returned func releases the cache backend.
func buildEngine(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*deid.Engine, func(), error) {
	clf, err := newClassifier(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating classifier: %w", err)
	}

	cleanup := func() {}
	if clf.Name() != "none" {
		store, err := cache.Open(ctx, cache.Options{
			Enabled:    cfg.Cache.Enabled,
			Backend:    cfg.Cache.Backend,
			Dir:        cfg.Cache.Dir,
			RedisURL:   cfg.Cache.RedisURL,
			TTLSeconds: cfg.Cache.TTLSeconds,
		})
		if err != nil {
			logger.Warn().Err(err).Str("backend", cfg.Cache.Backend).Msg("classification cache unavailable")
		} else {
			clf = providers.NewCached(clf, store, cfg.Classifier.Model)
			if c, ok := store.(io.Closer); ok {
				cleanup = func() { _ = c.Close() }
			}
		}
	}

	filePolicy, err := deid.LoadPolicy(cfg.Policy.File)
	if err != nil {
		cleanup()
		return nil, nil, usagef("loading policy: %v", err)
	}
	policy := (&deid.Policy{
		SkipResourceTypes: cfg.Policy.SkipResourceTypes,
		StructuralKeys:    cfg.Policy.StructuralKeys,
	}).Merge(filePolicy)

	eng := deid.New(clf,
		deid.WithPolicy(policy),
		deid.WithLogger(logger),
		deid.WithBatch(cfg.Classifier.Batch),
		deid.WithVersion(version),
	)
	return eng, cleanup, nil
}

// readInput reads a bundle from path, or stdin for "" and "-". Files ending
// in .yaml or .yml are YAML; anything else is sniffed.
func readInput(path string) (*fhirdoc.Node, string, error) {
	var (
		data []byte
		err  error
		name = path
	)
	if path == "" || path == "-" {
		name = "stdin"
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, name, fmt.Errorf("reading input: %w", err)
	}

	var doc *fhirdoc.Node
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		doc, err = fhirdoc.ParseYAML(data)
	case ".json":
		doc, err = fhirdoc.Parse(data)
	default:
		doc, err = fhirdoc.Decode(data)
	}
	if err != nil {
		return nil, name, fmt.Errorf("%s: %w", name, err)
	}
	return doc, name, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// scrub runs the engine over the input named by args and stores audit rows
// when a database is configured.
func scrub(ctx context.Context, cfg config.Config, args []string) (*deid.Report, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	var path string
	if len(args) > 0 {
		path = args[0]
	}
	doc, name, err := readInput(path)
	if err != nil {
		return nil, err
	}

	eng, cleanup, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	report, err := eng.Run(ctx, doc)
	if err != nil {
		return nil, err
	}
	report.Input.Name = name

	if cfg.Audit.DatabaseURL != "" {
		store, err := auditstore.Open(ctx, cfg.Audit.DatabaseURL, cfg.Audit.Table)
		if err != nil {
			return nil, fmt.Errorf("opening audit store: %w", err)
		}
		defer store.Close()
		if err := store.Save(ctx, report.RunID, report.Entities); err != nil {
			return nil, err
		}
		logger.Info().Str("runId", report.RunID).Str("table", store.Table()).Int("rows", len(report.Entities)).Msg("audit rows stored")
	}
	return report, nil
}

func checkThreshold(report *deid.Report, failOn string) {
	if report.Findings(failOn) {
		exitCode = ExitFindings
	}
}

func runRedact(args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fail(err)
		return
	}
	ctx, stop := signalContext()
	defer stop()

	report, err := scrub(ctx, cfg, args)
	if err != nil {
		fail(err)
		return
	}

	if err := output.WriteDocument(report.Document, flagOut); err != nil {
		fail(err)
		return
	}
	if flagAudit != "" {
		if err := output.WriteReport(report, cfg.Format, flagAudit); err != nil {
			fail(fmt.Errorf("writing audit: %w", err))
			return
		}
	}
	fmt.Fprintf(os.Stderr, "Redacted %d value(s) in %d resource(s); %d skipped (run %s)\n",
		report.Summary.Total, report.Summary.ResourcesScanned, report.Summary.ResourcesSkipped, report.RunID)

	checkThreshold(report, cfg.FailOn)
}

func runScan(args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fail(err)
		return
	}
	ctx, stop := signalContext()
	defer stop()

	report, err := scrub(ctx, cfg, args)
	if err != nil {
		fail(err)
		return
	}
	if err := output.WriteReport(report, cfg.Format, flagOut); err != nil {
		fail(fmt.Errorf("writing output: %w", err))
		return
	}
	checkThreshold(report, cfg.FailOn)
}

var redactCmd = &cobra.Command{
	Use:   "redact [file|-]",
	Short: "Redact PHI in a FHIR bundle",
	Long: "Redact reads a FHIR bundle (JSON or YAML; stdin when no file or \"-\" is given), replaces PHI " +
		"with [LABEL] tokens and writes the redacted bundle as JSON. Use --audit to write the audit table.",
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runRedact(args)
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan [file|-]",
	Short: "Report PHI in a FHIR bundle without writing it",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runScan(args)
	},
}

func init() {
	addScrubFlags(redactCmd)
	redactCmd.Flags().StringVar(&flagOut, "out", "", "Redacted bundle path (default: stdout)")
	redactCmd.Flags().StringVar(&flagAudit, "audit", "", "Audit report path")

	addScrubFlags(scanCmd)
	scanCmd.Flags().StringVar(&flagOut, "out", "", "Audit report path (default: stdout)")
}
