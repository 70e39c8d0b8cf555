package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ProgrammerXX1/plagio/internal/manifest"
	"github.com/ProgrammerXX1/plagio/internal/segment"
	"github.com/ProgrammerXX1/plagio/pkg/config"
	"github.com/ProgrammerXX1/plagio/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	root := flag.String("root", "", "validate every segment under this index root")
	segDir := flag.String("segment", "", "validate a single segment directory")
	flag.Parse()

	if (*root == "") == (*segDir == "") {
		fmt.Fprintln(os.Stderr, "usage: validator -root index_root | -segment seg_dir")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	var vr segment.ValidationResult
	if *segDir != "" {
		vr = segment.Validate(*segDir)
	} else {
		vr = manifest.ValidateRoot(*root)
	}

	if vr.OK {
		fmt.Println("OK")
		return
	}
	for _, e := range vr.Errors {
		fmt.Fprintln(os.Stderr, "invariant violation:", e)
	}
	os.Exit(1)
}
