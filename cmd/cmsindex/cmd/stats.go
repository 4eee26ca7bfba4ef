package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/cmsindex/internal/diagnostics"
	"github.com/Aman-CERP/cmsindex/internal/output"
	"github.com/Aman-CERP/cmsindex/internal/profiling"
)

// indexStats extends the diagnostic report with on-disk size.
type indexStats struct {
	diagnostics.IndexReport
	DiskBytes uint64 `json:"disk_bytes"`
}

type statsReport struct {
	Indexes   []indexStats      `json:"indexes"`
	HeapInUse uint64            `json:"heap_in_use"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

func newStatsCmd(global *globalOptions) *cobra.Command {
	var format string
	var withMetrics bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show document counts, fields and sizes per index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, global, format, withMetrics)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "Include the collected prometheus metrics")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, global *globalOptions, format string, withMetrics bool) error {
	a, err := openApp(ctx, global)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	reports, err := diagnostics.Report(ctx, a.reg, a.metrics)
	if err != nil {
		return err
	}

	rep := statsReport{HeapInUse: profiling.HeapInUse()}
	for _, r := range reports {
		st := indexStats{IndexReport: r}
		if idx, err := a.reg.Lookup(r.Name); err == nil && !idx.Descriptor().InMemory {
			st.DiskBytes = dirSize(idx.Descriptor().IndexPath())
		}
		rep.Indexes = append(rep.Indexes, st)
	}
	if withMetrics {
		rep.Metrics, err = gatherMetrics(a)
		if err != nil {
			return err
		}
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	out := output.New(cmd.OutOrStdout())
	rows := make([][]string, 0, len(rep.Indexes))
	for _, st := range rep.Indexes {
		state := "ok"
		if !st.Healthy {
			state = "degraded"
		}
		rows = append(rows, []string{
			st.Name,
			state,
			fmt.Sprint(st.Documents),
			fmt.Sprint(st.Fields),
			fmt.Sprint(st.Generation),
			profiling.FormatBytes(st.DiskBytes),
		})
	}
	out.Table([]string{"INDEX", "STATE", "DOCS", "FIELDS", "GENERATION", "DISK"}, rows)
	out.Newline()
	out.KeyValue("heap in use", profiling.FormatBytes(rep.HeapInUse))

	if len(rep.Metrics) > 0 {
		out.Newline()
		out.Header("Metrics")
		names := make([]string, 0, len(rep.Metrics))
		for name := range rep.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out.KeyValue(name, rep.Metrics[name])
		}
	}
	return nil
}

// gatherMetrics flattens counters and gauges into "name{labels}" keys.
func gatherMetrics(a *app) (map[string]string, error) {
	families, err := a.gatherer.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			key := mf.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = fmt.Sprint(m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				out[key] = fmt.Sprint(m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				out[key] = fmt.Sprintf("count=%d sum=%g", h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
	return out, nil
}

func dirSize(root string) uint64 {
	var total uint64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}
