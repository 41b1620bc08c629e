//go:build ignore

// Generates a synthetic JSONL passage corpus for load testing.
// Usage: go run scripts/generate-corpus.go -passages 5000 -output testdata/corpus.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numPassages = flag.Int("passages", 5000, "Number of passages to generate")
	output      = flag.String("output", "testdata/corpus.jsonl", "Output JSONL file")
	seed        = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// Taxonomy branches with topic vocabulary. Passages drawn from the
// same branch share vocabulary so lexical and vector scorers have
// something real to disagree about.
var branches = []struct {
	path  []string
	nouns []string
	verbs []string
}{
	{
		path:  []string{"science", "biology"},
		nouns: []string{"cell", "enzyme", "membrane", "mitochondria", "protein", "chromosome", "organism", "photosynthesis", "respiration", "mutation"},
		verbs: []string{"synthesizes", "regulates", "metabolizes", "transports", "replicates", "catalyzes"},
	},
	{
		path:  []string{"science", "physics"},
		nouns: []string{"photon", "momentum", "entropy", "wavelength", "particle", "field", "charge", "mass", "velocity", "quantum"},
		verbs: []string{"accelerates", "radiates", "oscillates", "decays", "interferes", "collides"},
	},
	{
		path:  []string{"science", "earth"},
		nouns: []string{"tide", "glacier", "sediment", "tectonic plate", "atmosphere", "erosion", "magma", "aquifer", "current", "climate"},
		verbs: []string{"erodes", "deposits", "circulates", "subducts", "evaporates", "freezes"},
	},
	{
		path:  []string{"finance", "markets"},
		nouns: []string{"bond", "yield", "equity", "dividend", "liquidity", "volatility", "portfolio", "spread", "index", "derivative"},
		verbs: []string{"hedges", "compounds", "depreciates", "rebalances", "settles", "accrues"},
	},
	{
		path:  []string{"finance", "banking"},
		nouns: []string{"deposit", "collateral", "reserve", "interest rate", "loan", "balance sheet", "capital", "credit", "solvency", "ledger"},
		verbs: []string{"underwrites", "amortizes", "securitizes", "audits", "provisions", "discounts"},
	},
	{
		path:  []string{"history"},
		nouns: []string{"empire", "treaty", "dynasty", "revolution", "trade route", "settlement", "monarchy", "republic", "census", "frontier"},
		verbs: []string{"conquered", "negotiated", "collapsed", "expanded", "unified", "colonized"},
	},
}

type passage struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	URLOrRef     string `json:"url_or_ref,omitempty"`
	TaxonomyPath string `json:"taxonomy_path"` // dotted, e.g. "science.earth"
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if dir := filepath.Dir(*output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
			os.Exit(1)
		}
	}

	f, err := os.Create(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	for i := 0; i < *numPassages; i++ {
		b := branches[rng.Intn(len(branches))]
		p := passage{
			ID:           fmt.Sprintf("gen-%06d", i),
			Title:        title(rng, b.nouns),
			Body:         body(rng, b.nouns, b.verbs),
			URLOrRef:     fmt.Sprintf("https://corpus.example/%s/%06d", strings.Join(b.path, "/"), i),
			TaxonomyPath: strings.Join(b.path, "."),
		}
		if err := enc.Encode(p); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(1)
		}
	}

	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "flush: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d passages to %s\n", *numPassages, *output)
}

func title(rng *rand.Rand, nouns []string) string {
	n := nouns[rng.Intn(len(nouns))]
	return strings.ToUpper(n[:1]) + n[1:]
}

func body(rng *rand.Rand, nouns, verbs []string) string {
	sentences := 3 + rng.Intn(5)
	var sb strings.Builder
	for s := 0; s < sentences; s++ {
		subject := nouns[rng.Intn(len(nouns))]
		verb := verbs[rng.Intn(len(verbs))]
		object := nouns[rng.Intn(len(nouns))]
		fmt.Fprintf(&sb, "The %s %s the %s. ", subject, verb, object)
	}
	return strings.TrimSpace(sb.String())
}
