package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appscans "github.com/bryanwahyu/iaccessible/internal/application/scans"
	"github.com/bryanwahyu/iaccessible/internal/infra/engine"
)

var scanFlags struct {
	summaryOnly bool
}

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Scan a page locally and print the report",
	Long: `Render the page in headless Chrome, evaluate the accessibility rules and
print the JSON report. Nothing is stored and no credits are charged.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&scanFlags.summaryOnly, "summary", false, "print only the summary counts")
}

func runScan(cmd *cobra.Command, args []string) error {
	target := args[0]
	ctx := cmd.Context()
	if cfg.Engine.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Engine.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	checker := engine.NewChecker(engineOptions())
	defer func() {
		if cerr := checker.Close(); cerr != nil {
			logger.Warn("closing accessibility engine", zap.Error(cerr))
		}
	}()

	report, err := checker.GetCompliance(ctx, target, appscans.ScanLabel(time.Now(), target))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if scanFlags.summaryOnly {
		return enc.Encode(report.Summary)
	}
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
