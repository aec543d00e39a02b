// gxfgen writes deterministic synthetic GTF/GFF3 annotations for
// benchmarking and testing converters.
//
// Transcripts are laid out along a configurable number of chromosomes with
// random exon counts, lengths and strands drawn from a seeded generator, so
// the same seed always produces the same file. With -expect it also writes
// the BED12 rows a correct conversion must produce.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/vertti/gxf2bed/internal/format"
	"github.com/vertti/gxf2bed/internal/synth"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	defaults := synth.DefaultOptions()
	fs := flag.NewFlagSet("gxfgen", flag.ContinueOnError)
	var (
		outputFile    = fs.String("o", "", "output annotation file (default: stdout)")
		expectFile    = fs.String("expect", "", "also write the expected BED12 conversion here")
		formatName    = fs.String("format", "gtf", "output format: gtf or gff3")
		transcripts   = fs.Int("n", defaults.Transcripts, "number of transcripts")
		maxExons      = fs.Int("exons", defaults.MaxExons, "maximum exons per transcript")
		chromosomes   = fs.Int("chroms", defaults.Chromosomes, "number of chromosomes")
		seed          = fs.Uint64("seed", defaults.Seed, "random seed for reproducibility")
		childrenFirst = fs.Bool("children-first", false, "write exons before their parent record")
		cds           = fs.Bool("cds", false, "add a CDS record over each first exon")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `gxfgen - Generate synthetic gene annotations

Usage:
  gxfgen -n 100000 -o bench.gtf
  gxfgen -format gff3 -children-first -expect bench.bed > bench.gff3

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := format.Parse(*formatName)
	if err != nil {
		return err
	}
	if f == format.Auto {
		return errors.New("-format must be gtf or gff3")
	}
	if *transcripts < 0 {
		return fmt.Errorf("-n must not be negative, got %d", *transcripts)
	}

	ts := synth.Generate(synth.Options{
		Transcripts: *transcripts,
		MaxExons:    *maxExons,
		Chromosomes: *chromosomes,
		Seed:        *seed,
	})

	if err := writeTo(*outputFile, func(w io.Writer) error {
		return synth.Write(w, ts, synth.WriteOptions{Format: f, ChildrenFirst: *childrenFirst, CDS: *cds})
	}); err != nil {
		return err
	}

	if *expectFile != "" {
		return writeTo(*expectFile, func(w io.Writer) error {
			return synth.WriteExpected(w, ts)
		})
	}
	return nil
}

func writeTo(path string, write func(io.Writer) error) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path) //nolint:gosec // CLI tool needs to create user-specified files
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close() //nolint:errcheck // Close after a successful Flush reports nothing new
		w = f
	}

	bw := bufio.NewWriterSize(w, 1<<20)
	if err := write(bw); err != nil {
		return err
	}
	return bw.Flush()
}
