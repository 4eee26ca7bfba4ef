// Package query turns free text typed into an administrative search box into
// a safe, scoped bleve query and executes it against the right index.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

// LabelBoost weights label-field matches over other fields.
const LabelBoost = 10.0

// DefaultPathCacheSize bounds the start-node path cache.
const DefaultPathCacheSize = 1024

// PathResolver looks up the tree path of a node.
type PathResolver interface {
	// Path returns the node's path; ok is false when the node does not exist.
	Path(ctx context.Context, id string) (path valueset.Path, ok bool, err error)
}

// Scope restricts results to part of the tree.
type Scope struct {
	// StartNodeID limits results to this node and its descendants.
	StartNodeID string
	// IgnoreUserStartNodes lifts the PermittedRoots restriction.
	IgnoreUserStartNodes bool
	// PermittedRoots are the start nodes of the searching user.
	PermittedRoots []string
}

// StructuredQuery is the output of Build.
type StructuredQuery struct {
	Query query.Query
	// Text is an escaped query-string rendering for logs.
	Text string
	// Empty means there is nothing to search.
	Empty bool
	// MatchNone means the scope excludes every document.
	MatchNone bool
}

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	Fields map[valueset.EntityType]Fields
	// Cultures are the active cultures; each adds a label field.
	Cultures      []string
	PathCacheSize int
	Logger        *slog.Logger
}

// Builder composes structured queries. It is safe for concurrent use.
type Builder struct {
	fields   map[valueset.EntityType]Fields
	cultures []string
	resolver PathResolver
	paths    *lru.Cache[string, valueset.Path]
	log      *slog.Logger
}

// NewBuilder creates a Builder. resolver may be nil when no scoped searches are made.
func NewBuilder(cfg BuilderConfig, resolver PathResolver) *Builder {
	fields := cfg.Fields
	if fields == nil {
		fields = DefaultFields()
	}
	size := cfg.PathCacheSize
	if size <= 0 {
		size = DefaultPathCacheSize
	}
	paths, _ := lru.New[string, valueset.Path](size)
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Builder{
		fields:   fields,
		cultures: cfg.Cultures,
		resolver: resolver,
		paths:    paths,
		log:      log,
	}
}

// PurgePaths drops cached start-node paths. Call after moves.
func (b *Builder) PurgePaths() {
	b.paths.Purge()
}

// LabelField returns the item-name field of et, "" if et is not searchable.
func (b *Builder) LabelField(et valueset.EntityType) string {
	return b.fields[et].Label
}

// Build composes the query for text, entity type and scope.
func (b *Builder) Build(ctx context.Context, text string, et valueset.EntityType, scope Scope) (*StructuredQuery, error) {
	fields, ok := b.fields[et]
	if !ok {
		return nil, fmt.Errorf("no searchable fields for entity type %q", et)
	}

	textQuery, textRender := b.textClause(strings.TrimSpace(text), fields)

	category := query.NewTermQuery(string(et.Category()))
	category.SetField(valueset.FieldCategory)
	clauses := []query.Query{category}
	render := []string{"+" + valueset.FieldCategory + ":" + string(et.Category())}

	restricted := false
	if et != valueset.EntityMember {
		scopeQuery, scopeRender, none, err := b.scopeClause(ctx, scope)
		if err != nil {
			return nil, err
		}
		if none {
			return &StructuredQuery{Query: query.NewMatchNoneQuery(), Text: "", MatchNone: true}, nil
		}
		if scopeQuery != nil {
			restricted = true
			clauses = append(clauses, scopeQuery)
			render = append(render, "+"+scopeRender)
		}
	}

	if textQuery == nil {
		if !restricted {
			return &StructuredQuery{Empty: true}, nil
		}
		textQuery = query.NewMatchAllQuery()
		textRender = "*"
	}
	clauses = append(clauses, textQuery)
	render = append(render, "+("+textRender+")")

	return &StructuredQuery{
		Query: query.NewConjunctionQuery(clauses),
		Text:  strings.Join(render, " "),
	}, nil
}

// textClause returns nil when no searchable text remains.
func (b *Builder) textClause(text string, fields Fields) (query.Query, string) {
	guid := false
	if !strings.ContainsAny(text, " \t") {
		if _, err := uuid.Parse(text); err == nil {
			guid = true
			text = `"` + text + `"`
		}
	}
	if !guid {
		text = stripSpecial(text)
	}

	labels := fields.LabelFields(b.cultures)
	others := fields.OtherFields()

	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		phrase := strings.TrimSpace(strings.Trim(text, `"`))
		if phrase == "" {
			return nil, ""
		}
		return phraseClause(phrase, labels, others, guid)
	}

	tokens := strings.Fields(strings.ToLower(strings.ReplaceAll(text, `"`, " ")))
	if len(tokens) == 0 {
		return nil, ""
	}
	return tokenClause(tokens, labels, others)
}

func phraseClause(phrase string, labels, others []string, guid bool) (query.Query, string) {
	var should []query.Query
	var render []string
	escaped := `"` + Escape(phrase) + `"`

	for _, f := range labels {
		q := query.NewMatchPhraseQuery(phrase)
		q.SetField(f)
		q.SetBoost(LabelBoost)
		should = append(should, q)
		render = append(render, fmt.Sprintf("%s:%s^%g", f, escaped, LabelBoost))
	}
	for _, f := range others {
		q := query.NewMatchPhraseQuery(phrase)
		q.SetField(f)
		should = append(should, q)
		render = append(render, f+":"+escaped)
	}
	if guid {
		q := query.NewTermQuery(strings.ToLower(phrase))
		q.SetField(valueset.FieldKey)
		q.SetBoost(LabelBoost)
		should = append(should, q)
		render = append(render, fmt.Sprintf("%s:%s^%g", valueset.FieldKey, escaped, LabelBoost))
	}
	return query.NewDisjunctionQuery(should), strings.Join(render, " ")
}

func tokenClause(tokens, labels, others []string) (query.Query, string) {
	joined := strings.Join(tokens, " ")
	var should []query.Query
	var render []string

	// (i) exact label match, boosted.
	for _, f := range labels {
		q := query.NewMatchQuery(joined)
		q.SetField(f)
		q.SetOperator(query.MatchQueryOperatorAnd)
		q.SetBoost(LabelBoost)
		should = append(should, q)
		render = append(render, fmt.Sprintf("%s:(%s)^%g", f, escapeAll(tokens, ""), LabelBoost))
	}

	// (ii) label prefix match, every token.
	for _, f := range labels {
		should = append(should, prefixAll(tokens, []string{f}))
		render = append(render, fmt.Sprintf("%s:(%s)", f, escapeAll(tokens, "*")))
	}

	// (iii) every token prefixes some other field.
	if len(others) > 0 {
		should = append(should, prefixAll(tokens, others))
		for _, f := range others {
			render = append(render, fmt.Sprintf("%s:(%s)", f, escapeAll(tokens, "*")))
		}
	}
	return query.NewDisjunctionQuery(should), strings.Join(render, " ")
}

// prefixAll requires every token to prefix-match at least one of fields.
func prefixAll(tokens, fields []string) query.Query {
	must := make([]query.Query, 0, len(tokens))
	for _, tok := range tokens {
		alts := make([]query.Query, 0, len(fields))
		for _, f := range fields {
			p := query.NewPrefixQuery(tok)
			p.SetField(f)
			alts = append(alts, p)
		}
		must = append(must, query.NewDisjunctionQuery(alts))
	}
	return query.NewConjunctionQuery(must)
}

func escapeAll(tokens []string, suffix string) string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = "+" + Escape(t) + suffix
	}
	return strings.Join(out, " ")
}

// stripSpecial removes wildcards and turns - and _ into word breaks.
func stripSpecial(s string) string {
	return strings.NewReplacer("*", "", "-", " ", "_", " ").Replace(s)
}

// scopeClause returns the scope filter, or none=true when nothing may match.
func (b *Builder) scopeClause(ctx context.Context, scope Scope) (q query.Query, render string, none bool, err error) {
	if scope.StartNodeID != "" {
		path, ok, err := b.resolve(ctx, scope.StartNodeID)
		if err != nil {
			return nil, "", false, err
		}
		if !ok {
			b.log.Debug("search_start_node_unknown", slog.String("start_node", scope.StartNodeID))
			return nil, "", true, nil
		}
		if !scope.IgnoreUserStartNodes && !path.ContainsAny(scope.PermittedRoots...) {
			b.log.Debug("search_start_node_not_permitted", slog.String("start_node", scope.StartNodeID))
			return nil, "", true, nil
		}
		t := query.NewTermQuery(valueset.NodeID(scope.StartNodeID))
		t.SetField(valueset.FieldPathIDs)
		return t, valueset.FieldPathIDs + ":" + Escape(scope.StartNodeID), false, nil
	}

	if scope.IgnoreUserStartNodes {
		return nil, "", false, nil
	}
	if len(scope.PermittedRoots) == 0 {
		return nil, "", true, nil
	}

	roots := make([]query.Query, 0, len(scope.PermittedRoots))
	parts := make([]string, 0, len(scope.PermittedRoots))
	for _, root := range scope.PermittedRoots {
		t := query.NewTermQuery(root)
		t.SetField(valueset.FieldPathIDs)
		roots = append(roots, t)
		parts = append(parts, valueset.FieldPathIDs+":"+Escape(root))
	}
	return query.NewDisjunctionQuery(roots), "(" + strings.Join(parts, " ") + ")", false, nil
}

func (b *Builder) resolve(ctx context.Context, id string) (valueset.Path, bool, error) {
	if p, ok := b.paths.Get(id); ok {
		return p, true, nil
	}
	if b.resolver == nil {
		return "", false, nil
	}
	p, ok, err := b.resolver.Path(ctx, id)
	if err != nil || !ok {
		return "", ok, err
	}
	b.paths.Add(id, p)
	return p, true, nil
}
