// Package builder turns a newline-delimited JSON corpus into one sealed
// segment: a streaming, bounded-memory pipeline of one reader, a worker
// pool, and one ordered writer, followed by an external sort of the
// postings.
package builder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ProgrammerXX1/plagio/internal/manifest"
	"github.com/ProgrammerXX1/plagio/internal/segment"
	"github.com/ProgrammerXX1/plagio/pkg/config"
	apperrors "github.com/ProgrammerXX1/plagio/pkg/errors"
	"github.com/ProgrammerXX1/plagio/pkg/metrics"
)

// Builder builds segments under an index root. Metrics may be nil.
type Builder struct {
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Builder with the given options.
func New(opts Options, m *metrics.Metrics) *Builder {
	return &Builder{
		opts:    opts,
		metrics: m,
		logger:  slog.Default().With("component", "segment-builder"),
	}
}

const scratchDirName = "build_tmp"

// Build creates one sealed segment from corpusPath under outRoot and
// appends it to the manifest. The segment directory is created
// all-or-nothing: any failure after creation removes it again.
func (b *Builder) Build(ctx context.Context, corpusPath, outRoot string) (BuildStats, error) {
	start := time.Now()
	st, err := b.build(ctx, corpusPath, outRoot)
	if b.metrics != nil {
		b.metrics.SegmentBuildDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			b.metrics.SegmentBuildsTotal.WithLabelValues("error").Inc()
		} else {
			b.metrics.SegmentBuildsTotal.WithLabelValues("ok").Inc()
			b.metrics.DocsIndexedTotal.Add(float64(st.Docs))
			b.metrics.PostingsWrittenTotal.Add(float64(st.Post9))
		}
	}
	return st, err
}

func (b *Builder) build(ctx context.Context, corpusPath, outRoot string) (BuildStats, error) {
	var st BuildStats

	strict := b.opts.StrictTextIsNormalized ||
		config.ParseBoolEnv("PLAGIO_STRICT_TEXT_IS_NORMALIZED", false)

	segName := b.opts.SegmentName
	if segName == "" {
		segName = "seg_" + segment.UTCNowCompact()
	}

	if err := os.MkdirAll(outRoot, 0755); err != nil {
		return st, fmt.Errorf("creating index root %s: %w", outRoot, err)
	}
	segDir := filepath.Join(outRoot, segName)
	if _, err := os.Stat(segDir); err == nil {
		return st, fmt.Errorf("%w: %s", apperrors.ErrSegmentExists, segDir)
	}
	if err := os.MkdirAll(filepath.Join(segDir, scratchDirName), 0755); err != nil {
		return st, fmt.Errorf("creating segment dir %s: %w", segDir, err)
	}

	st, err := b.buildInto(ctx, corpusPath, outRoot, segDir, segName, strict)
	if err != nil {
		os.RemoveAll(segDir)
		return BuildStats{}, err
	}
	os.RemoveAll(filepath.Join(segDir, scratchDirName))
	return st, nil
}

func (b *Builder) buildInto(ctx context.Context, corpusPath, outRoot, segDir, segName string, strict bool) (BuildStats, error) {
	var st BuildStats
	scratch := filepath.Join(segDir, scratchDirName)

	corpus, err := os.Open(corpusPath)
	if err != nil {
		return st, fmt.Errorf("opening corpus %s: %w", corpusPath, err)
	}
	defer corpus.Close()

	threads := b.opts.threads()
	inflight := b.opts.inflight(threads)
	p := newPipeline(b.opts, strict, segName, inflight)

	b.logger.Info("segment build started",
		"segment", segName,
		"corpus", corpusPath,
		"workers", threads,
		"inflight", inflight,
		"strict_text_is_normalized", strict,
	)

	// Ordered writer outputs: doc metadata to a scratch binary, doc info
	// streamed straight into its published .tmp file.
	docMetaPath := filepath.Join(scratch, "docmeta.bin")
	docMetaFile, err := os.Create(docMetaPath)
	if err != nil {
		return st, fmt.Errorf("creating doc metadata scratch: %w", err)
	}
	defer docMetaFile.Close()
	docMetaW := bufio.NewWriterSize(docMetaFile, 1<<20)

	docInfoTmp := filepath.Join(segDir, segment.DocIDsName+".tmp")
	docInfoFile, err := os.Create(docInfoTmp)
	if err != nil {
		return st, fmt.Errorf("creating doc info: %w", err)
	}
	defer docInfoFile.Close()
	docInfoW := bufio.NewWriterSize(docInfoFile, 1<<20)

	// Cancellation from the caller feeds the shared stop flag.
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.fail(fmt.Errorf("build cancelled: %w", ctx.Err()))
		case <-stopWatch:
		}
	}()
	defer close(stopWatch)

	go p.readLines(corpus)

	workerFiles := make([]string, threads)
	postingCounts := make([]uint64, threads)
	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		path := filepath.Join(scratch, fmt.Sprintf("postings_w%02d.raw", i))
		workerFiles[i] = path
		f, err := os.Create(path)
		if err != nil {
			p.fail(fmt.Errorf("creating raw postings file: %w", err))
			break
		}
		wg.Add(1)
		go func(i int, f *os.File) {
			defer wg.Done()
			defer f.Close()
			p.worker(f, &postingCounts[i])
		}(i, f)
	}

	writerDone := make(chan struct{})
	var nDocs uint32
	var writerErr error
	go func() {
		defer close(writerDone)
		nDocs, writerErr = p.runWriter(docMetaW, docInfoW)
	}()

	wg.Wait()
	// If the workers died early the reader may still hold queued lines;
	// drain so its goroutine can observe the closed channel and exit.
	go func() {
		for range p.lineCh {
		}
	}()
	close(p.resultCh)
	<-writerDone

	if err := p.err(); err != nil {
		return st, err
	}
	if writerErr != nil {
		return st, writerErr
	}
	if nDocs == 0 {
		return st, fmt.Errorf("%w in corpus %s", apperrors.ErrNoValidDocs, corpusPath)
	}
	if got := p.didCounter.Load(); got != nDocs {
		return st, fmt.Errorf("doc count mismatch: issued=%d written=%d", got, nDocs)
	}

	if err := docMetaW.Flush(); err != nil {
		return st, fmt.Errorf("flushing doc metadata: %w", err)
	}
	if err := docMetaFile.Close(); err != nil {
		return st, fmt.Errorf("closing doc metadata: %w", err)
	}
	if info, err := os.Stat(docMetaPath); err != nil {
		return st, fmt.Errorf("stat doc metadata: %w", err)
	} else if info.Size() != int64(nDocs)*segment.DocMetaSize {
		return st, fmt.Errorf("doc metadata size %d does not match %d docs", info.Size(), nDocs)
	}
	if err := docInfoW.Flush(); err != nil {
		return st, fmt.Errorf("flushing doc info: %w", err)
	}
	if err := docInfoFile.Sync(); err != nil {
		return st, fmt.Errorf("syncing doc info: %w", err)
	}
	if err := docInfoFile.Close(); err != nil {
		return st, fmt.Errorf("closing doc info: %w", err)
	}

	var nPost uint64
	for _, c := range postingCounts {
		nPost += c
	}

	b.logger.Info("pipeline drained, sorting postings",
		"segment", segName,
		"docs", nDocs,
		"postings", nPost,
		"skipped", p.skipped.Load(),
	)

	// Assemble index_native.bin.tmp: header, doc metadata, then the
	// externally sorted postings appended bucket by bucket.
	binTmp := filepath.Join(segDir, segment.BinName+".tmp")
	binFile, err := os.Create(binTmp)
	if err != nil {
		return st, fmt.Errorf("creating segment binary: %w", err)
	}
	defer binFile.Close()
	binW := bufio.NewWriterSize(binFile, 1<<20)

	if err := segment.WriteHeader(binW, segment.Header{
		Version: segment.FormatVersion,
		NDocs:   nDocs,
		NPost9:  nPost,
	}); err != nil {
		return st, err
	}
	docMetaIn, err := os.Open(docMetaPath)
	if err != nil {
		return st, fmt.Errorf("reopening doc metadata: %w", err)
	}
	if _, err := io.Copy(binW, docMetaIn); err != nil {
		docMetaIn.Close()
		return st, fmt.Errorf("copying doc metadata: %w", err)
	}
	docMetaIn.Close()

	if err := externalSort(workerFiles, scratch, b.opts.ramLimit(), binW); err != nil {
		return st, err
	}

	if err := binW.Flush(); err != nil {
		return st, fmt.Errorf("flushing segment binary: %w", err)
	}
	if err := binFile.Sync(); err != nil {
		return st, fmt.Errorf("syncing segment binary: %w", err)
	}
	if err := binFile.Close(); err != nil {
		return st, fmt.Errorf("closing segment binary: %w", err)
	}

	builtAt := segment.UTCNowCompact()
	if err := writeMetaJSON(segDir, segment.Meta{
		SegmentName: segName,
		BuiltAtUTC:  builtAt,
		Stats: segment.MetaStats{
			Docs: nDocs,
			K9:   nPost,
		},
		StrictTextIsNormalized: boolToInt(strict),
	}); err != nil {
		return st, err
	}

	// Publish in a fixed order; the reader treats a directory with a
	// missing file as broken, so a crash between renames is tolerated.
	if err := segment.AtomicReplace(binTmp, filepath.Join(segDir, segment.BinName)); err != nil {
		return st, err
	}
	if err := segment.AtomicReplace(docInfoTmp, filepath.Join(segDir, segment.DocIDsName)); err != nil {
		return st, err
	}
	metaTmp := filepath.Join(segDir, segment.MetaName+".tmp")
	if err := segment.AtomicReplace(metaTmp, filepath.Join(segDir, segment.MetaName)); err != nil {
		return st, err
	}

	if err := manifest.Append(outRoot, manifest.Entry{
		SegmentName: segName,
		Path:        segName + "/",
		BuiltAtUTC:  builtAt,
		Stats: manifest.Stats{
			Docs: nDocs,
			K9:   nPost,
		},
	}); err != nil {
		return st, fmt.Errorf("appending manifest: %w", err)
	}

	st = BuildStats{
		SegmentName:            segName,
		SegDir:                 segDir,
		Docs:                   nDocs,
		Post9:                  nPost,
		Skipped:                p.skipped.Load(),
		Threads:                threads,
		StrictTextIsNormalized: strict,
		BuiltAtUTC:             builtAt,
	}

	if b.metrics != nil {
		p.skipStats.Range(func(k, v any) bool {
			b.metrics.DocsSkippedTotal.WithLabelValues(k.(string)).
				Add(float64(v.(*atomic.Uint64).Load()))
			return true
		})
	}

	b.logger.Info("segment build finished",
		"segment", segName,
		"docs", st.Docs,
		"postings", st.Post9,
		"skipped", st.Skipped,
	)
	return st, nil
}

func writeMetaJSON(segDir string, m segment.Meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding segment meta: %w", err)
	}
	tmp := filepath.Join(segDir, segment.MetaName+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating segment meta: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing segment meta: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing segment meta: %w", err)
	}
	return f.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
