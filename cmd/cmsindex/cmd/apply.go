package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	cmserrors "github.com/Aman-CERP/cmsindex/internal/errors"
	"github.com/Aman-CERP/cmsindex/internal/events"
	"github.com/Aman-CERP/cmsindex/internal/output"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
	"github.com/Aman-CERP/cmsindex/internal/writer"
)

// batchFile is the input of apply. Events go through the dispatcher;
// operations target one index directly.
type batchFile struct {
	Events     []events.Event `json:"events,omitempty"`
	Operations []indexOps     `json:"operations,omitempty"`
}

type indexOps struct {
	Index  string               `json:"index"`
	Upsert []*valueset.ValueSet `json:"upsert,omitempty"`
	Delete []string             `json:"delete,omitempty"`
}

func (o indexOps) operations() []valueset.IndexOperation {
	ops := valueset.Upsert(o.Upsert...)
	if len(o.Delete) > 0 {
		ops = append(ops, valueset.Delete(o.Delete...))
	}
	return ops
}

type applyOptions struct {
	retries int
	delay   time.Duration
	format  string
}

func newApplyCmd(global *globalOptions) *cobra.Command {
	var opts applyOptions

	cmd := &cobra.Command{
		Use:   "apply <batch.json|->",
		Short: "Apply lifecycle events or index operations",
		Long: `Apply a JSON batch of lifecycle events and/or direct index operations.

Each event or operation group commits as one batch per index. A batch that
fails with a retryable error is resubmitted up to --retries times.

Example batch:
  {"events": [{"kind": "published", "category": "content",
               "items": [{"id": "1050", "path": "-1,1050", "itemType": "page",
                          "published": true,
                          "values": [{"name": "nodeName", "values": ["Home"]}]}]}],
   "operations": [{"index": "MembersIndex", "delete": ["2001"]}]}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), cmd, global, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.retries, "retries", 3, "Retry attempts for retryable write failures")
	cmd.Flags().DurationVar(&opts.delay, "retry-delay", 500*time.Millisecond, "Initial delay between retries")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func readBatch(cmd *cobra.Command, path string) (*batchFile, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, cmserrors.New(cmserrors.ErrCodeInvalidInput, fmt.Sprintf("cannot read batch %s", path), err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var b batchFile
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&b); err != nil {
		return nil, cmserrors.ValidationError("malformed batch file", err)
	}
	normalizeNumbers(&b)
	return &b, nil
}

// normalizeNumbers turns json.Number field values into int64 or float64.
func normalizeNumbers(b *batchFile) {
	fix := func(vs valueset.Values) {
		for i := range vs {
			for j, v := range vs[i].Values {
				n, ok := v.(json.Number)
				if !ok {
					continue
				}
				if iv, err := n.Int64(); err == nil {
					vs[i].Values[j] = iv
				} else if fv, err := n.Float64(); err == nil {
					vs[i].Values[j] = fv
				} else {
					vs[i].Values[j] = n.String()
				}
			}
		}
	}
	for i := range b.Events {
		for j := range b.Events[i].Items {
			it := &b.Events[i].Items[j]
			fix(it.Values)
			for _, cv := range it.CultureValues {
				fix(cv)
			}
		}
	}
	for _, o := range b.Operations {
		for _, vs := range o.Upsert {
			if vs != nil {
				fix(vs.Values)
			}
		}
	}
}

// applyResult is one committed (or failed) unit of the batch.
type applyResult struct {
	Source   string                           `json:"source"`
	Receipts map[string]*writer.CommitReceipt `json:"receipts,omitempty"`
	Error    string                           `json:"error,omitempty"`
	Failed   []string                         `json:"failed_ids,omitempty"`
}

func runApply(ctx context.Context, cmd *cobra.Command, global *globalOptions, path string, opts applyOptions) error {
	batch, err := readBatch(cmd, path)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, global)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.watch(ctx); err != nil {
		a.log.Warn("monitor_unavailable", slog.String("error", err.Error()))
	}

	retry := cmserrors.DefaultRetryConfig()
	retry.MaxRetries = opts.retries
	retry.InitialDelay = opts.delay

	var results []applyResult
	failures := 0

	for i, e := range batch.Events {
		res := applyResult{Source: fmt.Sprintf("event[%d] %s", i, e.Kind)}
		err := cmserrors.Retry(ctx, retry, func(attempt int) error {
			if attempt > 0 {
				a.log.Info("apply_retry", slog.String("source", res.Source), slog.Int("attempt", attempt))
			}
			receipts, err := a.dispatcher.Handle(ctx, e)
			res.Receipts = receipts
			return err
		})
		if err != nil {
			failures++
			res.Error = err.Error()
			res.Failed = cmserrors.FailedIDs(err)
		}
		results = append(results, res)
	}

	for i, o := range batch.Operations {
		res := applyResult{Source: fmt.Sprintf("operations[%d] %s", i, o.Index)}
		err := cmserrors.Retry(ctx, retry, func(int) error {
			idx, err := a.reg.Get(o.Index)
			if err != nil {
				return err
			}
			r, err := idx.Writer.Apply(ctx, o.operations())
			if err != nil {
				return err
			}
			res.Receipts = map[string]*writer.CommitReceipt{o.Index: r}
			return nil
		})
		if err != nil {
			failures++
			res.Error = err.Error()
			res.Failed = cmserrors.FailedIDs(err)
		}
		results = append(results, res)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printApplyResults(output.New(cmd.OutOrStdout()), results)
	}

	if failures > 0 {
		return cmserrors.New(cmserrors.ErrCodeWriteFailed,
			fmt.Sprintf("%d of %d batch entries failed", failures, len(results)), nil)
	}
	return nil
}

func printApplyResults(out *output.Writer, results []applyResult) {
	for _, r := range results {
		if r.Error != "" {
			out.Errorf("%s: %s", r.Source, r.Error)
			continue
		}
		names := make([]string, 0, len(r.Receipts))
		for name := range r.Receipts {
			names = append(names, name)
		}
		sort.Strings(names)
		out.Successf("%s", r.Source)
		for _, name := range names {
			rc := r.Receipts[name]
			out.Statusf("", "%s: %d upserted, %d deleted, %d skipped (generation %d)",
				name, rc.Upserted, rc.Deleted, rc.Skipped, rc.Generation)
		}
	}
}
