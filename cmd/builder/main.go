package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ProgrammerXX1/plagio/internal/builder"
	"github.com/ProgrammerXX1/plagio/pkg/config"
	"github.com/ProgrammerXX1/plagio/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	corpus := flag.String("corpus", "", "path to the JSONL corpus (required)")
	outRoot := flag.String("out", "", "index root directory (required)")
	segName := flag.String("segment", "", "segment name override")
	maxDocs := flag.Int("max-docs", 0, "stop after N documents (0 = unlimited)")
	stride := flag.Int("stride", 0, "shingle stride override")
	threads := flag.Int("threads", 0, "worker pool bound override")
	ramLimit := flag.Int64("ram-limit", 0, "external sort RAM envelope in bytes")
	strict := flag.Bool("strict", false, "treat a missing text_is_normalized flag as false")
	flag.Parse()

	if *corpus == "" || *outRoot == "" {
		fmt.Fprintln(os.Stderr, "usage: builder -corpus corpus.jsonl -out index_root [flags]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	opts := builder.FromConfig(cfg.Builder)
	opts.SegmentName = *segName
	if *maxDocs > 0 {
		opts.MaxDocsInSegment = *maxDocs
	}
	if *stride > 0 {
		opts.ShingleStride = *stride
	}
	if *threads > 0 {
		opts.MaxThreads = *threads
	}
	if *ramLimit > 0 {
		opts.RAMLimitBytes = *ramLimit
	}
	if *strict {
		opts.StrictTextIsNormalized = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := builder.New(opts, nil).Build(ctx, *corpus, *outRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}

	json.NewEncoder(os.Stdout).Encode(map[string]any{
		"segment_name": st.SegmentName,
		"seg_dir":      st.SegDir,
		"docs":         st.Docs,
		"post9":        st.Post9,
		"skipped":      st.Skipped,
		"threads":      st.Threads,
		"built_at_utc": st.BuiltAtUTC,
	})
}
