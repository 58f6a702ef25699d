package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/phiscrub/internal/providers"
	"github.com/dshills/phiscrub/internal/redact"
)

var classifierDescriptions = map[string]string{
	"http":        "token-classification sidecar (PHISCRUB_CLASSIFIER_URL)",
	"huggingface": "Hugging Face Inference API (HF_TOKEN)",
	"none":        "no model; keypath and regex rules only",
}

const doctorSample = "Jon Smith called from 555-123-4567."

var classifiersCmd = &cobra.Command{
	Use:   "classifiers",
	Short: "List and check classifier providers",
}

var classifiersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported classifier providers",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range providers.Names() {
			fmt.Fprintf(os.Stdout, "%-12s %s\n", name, classifierDescriptions[name])
		}
	},
}

var classifiersDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Classify a sample sentence with the configured provider",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fail(err)
			return
		}
		clf, err := newClassifier(cfg)
		if err != nil {
			fail(usagef("%v", err))
			return
		}

		ctx, cancel := context.WithTimeout(commandContext(cmd), 30*time.Second)
		defer cancel()
		start := time.Now()
		spans, err := clf.Classify(ctx, doctorSample)
		if err != nil {
			fail(fmt.Errorf("%s: %w", clf.Name(), err))
			return
		}

		fmt.Fprintf(os.Stdout, "%s: ok (%d spans, %s)\n", clf.Name(), len(spans), time.Since(start).Round(time.Millisecond))
		for _, c := range redact.ModelCandidates(spans) {
			fmt.Fprintf(os.Stdout, "  %-10s %q %.3f\n", c.Label, c.Text, c.Confidence)
		}
	},
}

func init() {
	addClassifierFlags(classifiersDoctorCmd)
	classifiersCmd.AddCommand(classifiersListCmd)
	classifiersCmd.AddCommand(classifiersDoctorCmd)
}
