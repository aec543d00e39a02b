// gxf2bed converts GTF and GFF3 gene annotations to BED.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
	"github.com/pkg/profile"
	"go.uber.org/zap"

	"github.com/vertti/gxf2bed/internal/aggregate"
	"github.com/vertti/gxf2bed/internal/bed"
	"github.com/vertti/gxf2bed/internal/config"
	"github.com/vertti/gxf2bed/internal/convert"
	"github.com/vertti/gxf2bed/internal/format"
)

var version = "dev"

const (
	exitSuccess = 0
	exitError   = 1
)

type cliConfig struct {
	inputFile  string
	outputFile string
	presetFile string
	logLevel   string
	profile    string
	opts       convert.Options
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, done, err := parseFlags(args, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	if done {
		return exitSuccess
	}

	log, err := newLogger(cfg.logLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	defer log.Sync() //nolint:errcheck // stderr sync is best effort

	if stop := startProfile(cfg.profile); stop != nil {
		defer stop()
	}

	input, cleanupInput, err := openInput(cfg.inputFile)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	defer cleanupInput()

	output, finishOutput, err := openOutput(cfg.outputFile, cfg.opts.Workers, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err = execute(ctx, cfg, input, output, log)
	if finishErr := finishOutput(err == nil); err == nil {
		err = finishErr
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	return exitSuccess
}

func parseFlags(args []string, stdout, stderr io.Writer) (cliConfig, bool, error) {
	var cfg cliConfig
	var showVersion, showHelp bool
	var formatName, children, extras, orphans string
	var bedType, threads, chunkSize int
	var scorePassthrough bool

	fs := flag.NewFlagSet("gxf2bed", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.inputFile, "i", "", "input GTF/GFF3 file, optionally .gz/.zst/.bz2 (default: stdin)")
	fs.StringVar(&cfg.outputFile, "o", "", "output BED file; .gz writes BGZF, .zst writes zstd (default: stdout)")
	fs.IntVar(&threads, "t", 0, "worker threads (default: physical cores)")
	fs.StringVar(&formatName, "format", "auto", "input format: auto, gtf or gff3")
	fs.StringVar(&cfg.opts.ParentFeature, "parent", "", "parent feature type (default: transcript for GTF, mRNA for GFF3)")
	fs.StringVar(&children, "child", "", "comma-separated child feature types (default: exon)")
	fs.StringVar(&cfg.opts.ParentAttribute, "parent-attr", "", "attribute naming the parent (default: transcript_id for GTF, ID for GFF3)")
	fs.StringVar(&cfg.opts.ChildAttribute, "child-attr", "", "attribute linking children to the parent (default: transcript_id for GTF, Parent for GFF3)")
	fs.StringVar(&cfg.opts.ThickFeature, "thick", "", "feature type bounding thickStart/thickEnd, e.g. CDS")
	fs.IntVar(&bedType, "type", int(bed.Bed12), "BED columns: 3, 4, 5, 6, 9 or 12")
	fs.StringVar(&extras, "extra", "", "comma-separated attributes appended as extra columns")
	fs.BoolVar(&scorePassthrough, "score", false, "use the parent's score column instead of 1000")
	fs.StringVar(&orphans, "orphans", "adopt", "groups without a parent record: adopt or error")
	fs.IntVar(&chunkSize, "chunks", convert.DefaultChunkSize, "lines per parallel chunk")
	fs.StringVar(&cfg.presetFile, "config", "", "preset file (.yaml, .toml or .json); flags override it")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.StringVar(&cfg.profile, "profile", "", "write a cpu, mem or block profile to the working directory")
	fs.BoolVar(&showVersion, "version", false, "show version and exit")
	fs.BoolVar(&showHelp, "h", false, "show help")

	fs.Usage = func() { usage(fs, stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cfg, true, nil
		}
		return cfg, false, err
	}

	if showHelp {
		fs.Usage()
		return cfg, true, nil
	}

	if showVersion {
		fmt.Fprintf(stdout, "gxf2bed version %s\n", version)
		return cfg, true, nil
	}

	switch cfg.profile {
	case "", "cpu", "mem", "block":
	default:
		return cfg, false, fmt.Errorf("unknown profile mode %q (want cpu, mem or block)", cfg.profile)
	}

	// Handle positional arguments
	rest := fs.Args()
	if len(rest) > 0 && cfg.inputFile == "" {
		cfg.inputFile = rest[0]
	}
	if len(rest) > 1 && cfg.outputFile == "" {
		cfg.outputFile = rest[1]
	}

	// Layering: preset, then explicitly set flags. Flags left at their
	// defaults only fill fields the preset did not set.
	var opts convert.Options
	if cfg.presetFile != "" {
		preset, err := config.Load(cfg.presetFile)
		if err != nil {
			return cfg, false, err
		}
		if err := preset.Apply(&opts); err != nil {
			return cfg, false, fmt.Errorf("preset %s: %w", cfg.presetFile, err)
		}
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	override := func(name string, unset bool) bool { return set[name] || unset }

	var err error
	if override("format", opts.Format == format.Auto) {
		if opts.Format, err = format.Parse(formatName); err != nil {
			return cfg, false, err
		}
	}
	if set["parent"] {
		opts.ParentFeature = cfg.opts.ParentFeature
	}
	if set["parent-attr"] {
		opts.ParentAttribute = cfg.opts.ParentAttribute
	}
	if set["child-attr"] {
		opts.ChildAttribute = cfg.opts.ChildAttribute
	}
	if set["thick"] {
		opts.ThickFeature = cfg.opts.ThickFeature
	}
	if set["child"] {
		opts.ChildFeatures = splitList(children)
	}
	if set["extra"] {
		opts.ExtraFields = splitList(extras)
	}
	if override("type", opts.BedType == 0) {
		if opts.BedType, err = bed.ParseType(bedType); err != nil {
			return cfg, false, err
		}
	}
	if set["score"] {
		opts.ScorePassthrough = scorePassthrough
	}
	if override("orphans", opts.OrphanPolicy == aggregate.Adopt) {
		if opts.OrphanPolicy, err = aggregate.ParseOrphanPolicy(orphans); err != nil {
			return cfg, false, err
		}
	}
	if override("chunks", opts.ChunkSize == 0) {
		if chunkSize <= 0 {
			return cfg, false, fmt.Errorf("-chunks must be positive, got %d", chunkSize)
		}
		opts.ChunkSize = chunkSize
	}
	if override("t", opts.Workers == 0) {
		if threads < 0 {
			return cfg, false, fmt.Errorf("-t must not be negative, got %d", threads)
		}
		opts.Workers = threads
	}
	if opts.Workers == 0 {
		opts.Workers = defaultWorkers()
	}
	opts.PathHint = cfg.inputFile

	cfg.opts = opts
	return cfg, false, nil
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// defaultWorkers uses one worker per physical core; parsing is CPU-bound
// and gains little from SMT siblings.
func defaultWorkers() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func usage(fs *flag.FlagSet, w io.Writer) {
	title := color.New(color.FgHiCyan, color.Bold).Sprint("gxf2bed")
	fmt.Fprintf(w, `%s - Fast GTF/GFF3 to BED conversion

Usage:
  gxf2bed [options] [-i input.gtf] [-o output.bed]

Options:
`, title)
	fs.PrintDefaults()
	fmt.Fprintf(w, `
Examples:
  gxf2bed -i gencode.gtf.gz -o gencode.bed          GTF to BED12
  gxf2bed -i genes.gff3 -o genes.bed.gz -type 6     GFF3 to BGZF-compressed BED6
  gxf2bed -i genes.gtf -thick CDS -extra gene_name  thick span from CDS, gene name column
  zcat genes.gtf.gz | gxf2bed > genes.bed           stdin to stdout
`)
}

func startProfile(mode string) func() {
	var opt func(*profile.Profile)
	switch mode {
	case "":
		return nil
	case "cpu":
		opt = profile.CPUProfile
	case "mem":
		opt = profile.MemProfile
	default:
		opt = profile.BlockProfile
	}
	p := profile.Start(opt, profile.ProfilePath("."), profile.Quiet, profile.NoShutdownHook)
	return p.Stop
}

func execute(ctx context.Context, cfg cliConfig, input io.Reader, output io.Writer, log *zap.Logger) error {
	log.Info("starting conversion",
		zap.String("input", displayName(cfg.inputFile)),
		zap.String("output", displayName(cfg.outputFile)),
		zap.Int("workers", cfg.opts.Workers),
		zap.String("cpu", cpuid.CPU.BrandName),
		zap.Int("physical_cores", cpuid.CPU.PhysicalCores),
		zap.Uint64("total_memory_mb", memory.TotalMemory()>>20))

	opts := cfg.opts
	opts.Logger = log
	stats, err := convert.Convert(ctx, input, output, &opts)
	if err != nil {
		return err
	}

	log.Info("wrote BED",
		zap.Stringer("format", stats.Format),
		zap.Int("rows", stats.Groups),
		zap.Int("chunks", stats.Chunks),
		zap.Duration("elapsed", stats.Elapsed),
		zap.Float64("heap_delta_mb", stats.HeapDeltaMB),
		zap.Uint64("free_memory_mb", memory.FreeMemory()>>20))
	return nil
}

func displayName(path string) string {
	if path == "" || path == "-" {
		return "-"
	}
	return path
}
