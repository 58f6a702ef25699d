package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/phiscrub/internal/fhirdoc"
	"github.com/dshills/phiscrub/internal/providers"
)

const version = "0.3.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitFindings     = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

var rootCmd = &cobra.Command{
	Use:   "phiscrub",
	Short: "FHIR PHI de-identification CLI",
	Long: "phiscrub finds protected health information in FHIR bundles using a token-classification " +
		"model, keypath heuristics and regex safeguards, and rewrites it to [LABEL] tokens with an audit trail.",
}

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.AddCommand(redactCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(classifiersCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// fail reports err on stderr and records the exit code it maps to.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	exitCode = exitCodeFor(err)
}

func exitCodeFor(err error) int {
	var usage *usageError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &usage), fhirdoc.IsParseError(err):
		return ExitUsageError
	case providers.IsAuthError(err):
		return ExitAuthError
	default:
		return ExitRuntimeError
	}
}

// usageError marks bad flags or configuration values.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print phiscrub version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "phiscrub version %s\n", version)
	},
}
