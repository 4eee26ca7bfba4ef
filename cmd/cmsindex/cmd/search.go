package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/cmsindex/internal/output"
	"github.com/Aman-CERP/cmsindex/internal/query"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	entityType       string
	startNode        string
	roots            []string
	ignoreStartNodes bool
	page             int
	pageSize         int
	format           string
	showQuery        bool
}

func newSearchCmd(global *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Run an administrative search",
		Long: `Search the index configured for an entity type.

Quoted text matches as a phrase. Unquoted words must all match, with
exact item-name matches ranked first. A bare GUID matches the item key.

Examples:
  cmsindex search "about us"
  cmsindex search invoice --type media
  cmsindex search news --start-node 1050
  cmsindex search report --roots 1050,1060 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, global, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.entityType, "type", "t", "document", "Entity type: document, media, member")
	cmd.Flags().StringVar(&opts.startNode, "start-node", "", "Only return items at or below this node id")
	cmd.Flags().StringSliceVar(&opts.roots, "roots", nil, "Start nodes the searching user may see (repeatable)")
	cmd.Flags().BoolVar(&opts.ignoreStartNodes, "ignore-start-nodes", false, "Lift the --roots restriction")
	cmd.Flags().IntVarP(&opts.page, "page", "p", 0, "Zero-based page index")
	cmd.Flags().IntVarP(&opts.pageSize, "page-size", "n", 0, "Results per page (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.showQuery, "show-query", false, "Print the structured query")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, global *globalOptions, text string, opts searchOptions) error {
	et, err := valueset.ParseEntityType(opts.entityType)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, global)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	pageSize := opts.pageSize
	if pageSize <= 0 {
		pageSize = a.cfg.Search.PageSize
	}

	// No --roots and no --ignore-start-nodes means an unrestricted CLI user.
	ignore := opts.ignoreStartNodes || len(opts.roots) == 0

	req := query.Request{
		Text:       text,
		EntityType: et,
		Scope: query.Scope{
			StartNodeID:          opts.startNode,
			IgnoreUserStartNodes: ignore,
			PermittedRoots:       opts.roots,
		},
		PageSize:  pageSize,
		PageIndex: opts.page,
	}

	slog.Debug("search_started", slog.String("text", text), slog.String("entity_type", string(et)))
	res, err := a.searcher.Search(ctx, req)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	out := output.New(cmd.OutOrStdout())
	if opts.showQuery && res.Query != "" {
		out.KeyValue("query", res.Query)
	}
	if len(res.Hits) == 0 {
		out.Warningf("No results for %q", text)
		return nil
	}

	label := a.builder.LabelField(et)
	rows := make([][]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		rows = append(rows, []string{
			h.ID,
			fmt.Sprintf("%.3f", h.Score),
			firstString(h.Fields[label]),
			firstString(h.Fields[valueset.FieldPath]),
		})
	}
	out.Header(fmt.Sprintf("%d of %d results in %s", len(res.Hits), res.TotalFound, res.Index))
	out.Table([]string{"ID", "SCORE", "NAME", "PATH"}, rows)
	return nil
}

func firstString(vals []any) string {
	if len(vals) == 0 {
		return ""
	}
	return fmt.Sprint(vals[0])
}
