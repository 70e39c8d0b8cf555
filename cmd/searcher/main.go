package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ProgrammerXX1/plagio/internal/search"
	"github.com/ProgrammerXX1/plagio/pkg/config"
	"github.com/ProgrammerXX1/plagio/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	root := flag.String("root", "", "index root directory (required)")
	queryText := flag.String("q", "", "query text (required)")
	topk := flag.Int("topk", 0, "top-k override")
	minHits := flag.Int("min-hits", 0, "stage-A candidate floor override")
	spanMinLen := flag.Int("span-min-len", 0, "minimum span length override")
	normalized := flag.Bool("normalized", false, "query text is already normalized")
	flag.Parse()

	if *root == "" || *queryText == "" {
		fmt.Fprintln(os.Stderr, "usage: searcher -root index_root -q \"query text\" [flags]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	opt := search.FromConfig(cfg.Search)
	if *topk > 0 {
		opt.TopK = *topk
	}
	if *minHits > 0 {
		opt.MinHits = *minHits
	}
	if *spanMinLen > 0 {
		opt.SpanMinLen = *spanMinLen
	}

	result := search.Root(*root, *queryText, *normalized, opt)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(result)
}
