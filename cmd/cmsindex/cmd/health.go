package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/cmsindex/internal/diagnostics"
	cmserrors "github.com/Aman-CERP/cmsindex/internal/errors"
	"github.com/Aman-CERP/cmsindex/internal/output"
	"github.com/Aman-CERP/cmsindex/internal/preflight"
)

// healthReport is the JSON form of the health command.
type healthReport struct {
	Status  string                    `json:"status"`
	Checks  []preflight.CheckResult   `json:"checks"`
	Indexes []diagnostics.IndexReport `json:"indexes"`
}

func newHealthCmd(global *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check every index and exit non-zero if any is degraded",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealth(cmd.Context(), cmd, global, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runHealth(ctx context.Context, cmd *cobra.Command, global *globalOptions, format string) error {
	// System checks run before the indexes are opened so lock checks see
	// markers of other processes only.
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	descs, err := cfg.Descriptors()
	if err != nil {
		return err
	}
	checks := preflight.New().RunAll(ctx, cfg.Storage.Root, descs)
	if preflight.HasCriticalFailures(checks) {
		if format == "json" {
			if err := writeHealthJSON(cmd, healthReport{Status: preflight.SummaryStatus(checks), Checks: checks}); err != nil {
				return err
			}
		} else {
			printChecks(output.New(cmd.OutOrStdout()), checks)
		}
		return cmserrors.New(cmserrors.ErrCodeStoreUnavailable, "system checks failed", nil).
			WithSuggestion("Free disk space or fix permissions on " + cfg.Storage.Root)
	}

	a, err := openApp(ctx, global)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	reports, err := diagnostics.Report(ctx, a.reg, a.metrics)
	if err != nil {
		return err
	}

	degraded := 0
	for _, r := range reports {
		if !r.Healthy {
			degraded++
		}
	}

	if format == "json" {
		status := preflight.SummaryStatus(checks)
		if degraded > 0 {
			status = "degraded"
		}
		if err := writeHealthJSON(cmd, healthReport{Status: status, Checks: checks, Indexes: reports}); err != nil {
			return err
		}
	} else {
		out := output.New(cmd.OutOrStdout())
		printChecks(out, checks)
		out.Newline()
		out.Header("Indexes")
		for _, r := range reports {
			if r.Healthy {
				out.Successf("%s: %d documents, %d fields", r.Name, r.Documents, r.Fields)
			} else {
				out.Errorf("%s: %s", r.Name, r.Reason)
			}
		}
	}

	if degraded > 0 {
		return cmserrors.New(cmserrors.ErrCodeStoreUnavailable,
			fmt.Sprintf("%d of %d indexes degraded", degraded, len(reports)), nil).
			WithSuggestion("Run 'cmsindex unlock <index>' if an index is locked by a dead process")
	}
	return nil
}

func writeHealthJSON(cmd *cobra.Command, rep healthReport) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func printChecks(out *output.Writer, checks []preflight.CheckResult) {
	out.Header("System")
	for _, c := range checks {
		switch c.Status {
		case preflight.StatusPass:
			out.Successf("%s: %s", c.Name, c.Message)
		case preflight.StatusWarn:
			out.Warningf("%s: %s", c.Name, c.Message)
		default:
			out.Errorf("%s: %s", c.Name, c.Message)
		}
		if c.Details != "" {
			out.Status("", c.Details)
		}
	}
}
