//go:build ignore

// Package main generates a synthetic content tree as an apply batch for
// benchmarking indexing and search.
// Usage: go run scripts/generate-batch.go -pages 1000 -depth 4 -output testdata/bench.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	"github.com/google/uuid"
)

var (
	numPages  = flag.Int("pages", 1000, "Number of content items to generate")
	depth     = flag.Int("depth", 4, "Maximum tree depth below the root page")
	members   = flag.Int("members", 100, "Number of members to generate")
	cultures  = flag.Bool("variants", false, "Generate en-us and da-dk variants")
	outputDir = flag.String("output", "testdata/bench.json", "Output file, - for stdout")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var (
	itemTypes = []string{"page", "article", "newsItem", "landingPage", "siteSettings"}
	words     = []string{
		"home", "about", "contact", "products", "services", "careers", "press",
		"release", "office", "team", "history", "pricing", "support", "blog",
		"events", "partners", "security", "privacy", "terms", "download",
	}
)

type value struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

type item struct {
	ID                string             `json:"id"`
	ItemType          string             `json:"itemType"`
	Path              string             `json:"path"`
	Key               string             `json:"key,omitempty"`
	Published         bool               `json:"published"`
	PublishedCultures []string           `json:"publishedCultures,omitempty"`
	Cultures          []string           `json:"cultures,omitempty"`
	Values            []value            `json:"values"`
	CultureValues     map[string][]value `json:"cultureValues,omitempty"`
}

type event struct {
	Kind     string `json:"kind"`
	Category string `json:"category"`
	Items    []item `json:"items"`
}

type batch struct {
	Events []event `json:"events"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	b := batch{Events: []event{
		{Kind: "published", Category: "content", Items: generatePages(rng)},
	}}
	if *members > 0 {
		b.Events = append(b.Events, event{Kind: "member_saved", Category: "member", Items: generateMembers(rng)})
	}

	out := os.Stdout
	if *outputDir != "-" {
		f, err := os.Create(*outputDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", *outputDir, err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	if err := enc.Encode(b); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "-" {
		fmt.Fprintf(os.Stderr, "wrote %d pages and %d members to %s\n", *numPages, *members, *outputDir)
	}
}

// generatePages builds a random tree where every item's parent precedes it.
func generatePages(rng *rand.Rand) []item {
	paths := make([]string, 0, *numPages)
	depths := make([]int, 0, *numPages)
	items := make([]item, 0, *numPages)

	for i := 0; i < *numPages; i++ {
		id := strconv.Itoa(1050 + i)
		path, d := "-1,"+id, 0
		if i > 0 {
			parent := rng.Intn(len(paths))
			if depths[parent] < *depth {
				path, d = paths[parent]+","+id, depths[parent]+1
			}
		}
		paths = append(paths, path)
		depths = append(depths, d)

		name := title(rng, 2)
		it := item{
			ID:        id,
			ItemType:  itemTypes[rng.Intn(len(itemTypes))],
			Path:      path,
			Key:       uuid.NewString(),
			Published: rng.Intn(10) > 0,
			Values: []value{
				{Name: "sortOrder", Values: []any{i}},
				{Name: "umbracoFile", Values: []any{"/media/" + words[rng.Intn(len(words))] + "_" + id + ".pdf"}},
			},
		}
		if *cultures {
			it.Cultures = []string{"en-us", "da-dk"}
			it.PublishedCultures = []string{"en-us"}
			if rng.Intn(2) == 0 {
				it.PublishedCultures = append(it.PublishedCultures, "da-dk")
			}
			it.CultureValues = map[string][]value{
				"en-us": {{Name: "nodeName", Values: []any{name}}, {Name: "bodyText", Values: []any{sentence(rng, 20)}}},
				"da-dk": {{Name: "nodeName", Values: []any{name + " DK"}}, {Name: "bodyText", Values: []any{sentence(rng, 20)}}},
			}
		} else {
			it.Values = append(it.Values,
				value{Name: "nodeName", Values: []any{name}},
				value{Name: "bodyText", Values: []any{sentence(rng, 20)}},
			)
		}
		items = append(items, it)
	}
	return items
}

func generateMembers(rng *rand.Rand) []item {
	items := make([]item, 0, *members)
	for i := 0; i < *members; i++ {
		id := strconv.Itoa(2001 + i)
		name := title(rng, 2)
		items = append(items, item{
			ID:       id,
			ItemType: "member",
			Path:     "-1," + id,
			Key:      uuid.NewString(),
			Values: []value{
				{Name: "nodeName", Values: []any{name}},
				{Name: "email", Values: []any{fmt.Sprintf("member%d@example.com", i)}},
				{Name: "loginName", Values: []any{"member" + id}},
			},
		})
	}
	return items
}

func title(rng *rand.Rand, n int) string {
	s := ""
	for i := 0; i < n; i++ {
		w := words[rng.Intn(len(words))]
		if i > 0 {
			s += " "
		}
		s += string(w[0]-'a'+'A') + w[1:]
	}
	return s
}

func sentence(rng *rand.Rand, n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += " "
		}
		s += words[rng.Intn(len(words))]
	}
	return s
}
