// Package convert runs the GTF/GFF3 to BED pipeline: chunked parallel
// parsing and aggregation, an ordered merge, then parallel rendering with
// ordered output.
package convert

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/vertti/gxf2bed/internal/aggregate"
	"github.com/vertti/gxf2bed/internal/bed"
	"github.com/vertti/gxf2bed/internal/format"
	"github.com/vertti/gxf2bed/internal/parser"
)

// DefaultChunkSize is the default number of data lines per chunk.
const DefaultChunkSize = 15000

// readBufferSize matches the line reader so bufio hands the same reader
// through after format sniffing.
const readBufferSize = 1 << 20

// Options configures a conversion. Empty feature and attribute fields are
// filled from the per-format defaults once the format is known.
type Options struct {
	Format   format.Format // Auto detects from content
	PathHint string        // input name, consulted when content is inconclusive

	ParentFeature   string
	ChildFeatures   []string
	ParentAttribute string
	ChildAttribute  string
	ThickFeature    string // optional feature type bounding thickStart/thickEnd

	BedType          bed.Type // default: BED12
	ExtraFields      []string // attribute keys appended as extra columns
	ScorePassthrough bool
	OrphanPolicy     aggregate.OrphanPolicy

	ChunkSize int // Lines per chunk (default: 15000)
	Workers   int // Parallel workers (default: NumCPU)

	Logger *zap.Logger
}

// FeatureDefaults are the parent/child layout conventions of a format.
type FeatureDefaults struct {
	ParentFeature   string
	ChildFeatures   []string
	ParentAttribute string
	ChildAttribute  string
}

// DefaultsFor returns the conventional layout for f.
func DefaultsFor(f format.Format) FeatureDefaults {
	if f == format.GFF3 {
		return FeatureDefaults{
			ParentFeature:   "mRNA",
			ChildFeatures:   []string{"exon"},
			ParentAttribute: "ID",
			ChildAttribute:  "Parent",
		}
	}
	return FeatureDefaults{
		ParentFeature:   "transcript",
		ChildFeatures:   []string{"exon"},
		ParentAttribute: "transcript_id",
		ChildAttribute:  "transcript_id",
	}
}

// RunStats summarizes a finished conversion.
type RunStats struct {
	Format      format.Format
	Lines       int // physical input lines consumed
	Records     int // records of a configured feature type
	Groups      int // BED rows written
	Chunks      int
	Elapsed     time.Duration
	HeapDeltaMB float64
}

func withDefaults(opts *Options) Options {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.BedType == 0 {
		o.BedType = bed.Bed12
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o *Options) applyFormatDefaults(f format.Format) {
	d := DefaultsFor(f)
	if o.ParentFeature == "" {
		o.ParentFeature = d.ParentFeature
	}
	if len(o.ChildFeatures) == 0 {
		o.ChildFeatures = d.ChildFeatures
	}
	if o.ParentAttribute == "" {
		o.ParentAttribute = d.ParentAttribute
	}
	if o.ChildAttribute == "" {
		o.ChildAttribute = d.ChildAttribute
	}
}

func (o *Options) rules(f format.Format) *aggregate.Rules {
	return &aggregate.Rules{
		Grammar:         f.Grammar(),
		ParentFeature:   o.ParentFeature,
		ChildFeatures:   o.ChildFeatures,
		ParentAttribute: o.ParentAttribute,
		ChildAttribute:  o.ChildAttribute,
		ThickFeature:    o.ThickFeature,
		ExtraFields:     o.ExtraFields,
	}
}

// Convert reads GTF or GFF3 from r and writes BED rows to w in the order
// each parent key first appears. Any parse or grouping error aborts the
// run before output is written.
func Convert(ctx context.Context, r io.Reader, w io.Writer, opts *Options) (*RunStats, error) {
	start := time.Now()
	o := withDefaults(opts)

	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	br := bufio.NewReaderSize(r, readBufferSize)
	f, err := resolveFormat(br, &o)
	if err != nil {
		return nil, err
	}
	o.applyFormatDefaults(f)

	log := o.Logger.With(zap.Stringer("format", f))
	log.Debug("starting conversion",
		zap.String("parent", o.ParentFeature),
		zap.Strings("children", o.ChildFeatures),
		zap.Stringer("bed", o.BedType),
		zap.Int("chunk_size", o.ChunkSize),
		zap.Int("workers", o.Workers))

	p := parser.New(br)
	m := aggregate.NewMerger(o.OrphanPolicy)
	stats := &RunStats{Format: f}

	if o.Workers == 1 {
		err = aggregateSequential(ctx, p, o.rules(f), o.ChunkSize, m, stats)
	} else {
		err = aggregateParallel(ctx, p, o.rules(f), &o, m, stats, log)
	}
	if err != nil {
		return nil, err
	}
	stats.Lines = p.LinesRead()

	groups, err := m.Close()
	if err != nil {
		return nil, err
	}
	log.Debug("merged groups", zap.Int("groups", len(groups)), zap.Int("chunks", stats.Chunks))

	rr := newRenderer(&o)
	if o.Workers == 1 {
		err = renderSequential(ctx, groups, w, rr, o.ChunkSize)
	} else {
		err = renderParallel(ctx, groups, w, rr, o.ChunkSize, o.Workers)
	}
	if err != nil {
		return nil, err
	}
	stats.Groups = len(groups)

	var after runtime.MemStats
	runtime.ReadMemStats(&after)
	stats.HeapDeltaMB = (float64(after.HeapAlloc) - float64(before.HeapAlloc)) / (1 << 20)
	stats.Elapsed = time.Since(start)

	log.Info("conversion finished",
		zap.Int("lines", stats.Lines),
		zap.Int("records", stats.Records),
		zap.Int("groups", stats.Groups),
		zap.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

// resolveFormat detects the grammar from a peeked sample. When the first
// format.SampleSize bytes settle nothing, typically a long comment header,
// it retries once on the whole read buffer. Headers longer than
// readBufferSize need Options.Format or a path hint.
func resolveFormat(br *bufio.Reader, o *Options) (format.Format, error) {
	if o.Format != format.Auto {
		return o.Format, nil
	}
	size := format.SampleSize
	for {
		sample, err := br.Peek(size)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return format.Auto, fmt.Errorf("reading input: %w", err)
		}
		f, err := format.Detect(sample, o.PathHint)
		if err == nil || len(sample) < size || size >= br.Size() {
			return f, err
		}
		size = br.Size()
	}
}
