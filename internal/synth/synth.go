// Package synth generates deterministic synthetic gene annotations for
// benchmarks and tests, along with the BED12 rows they should convert to.
package synth

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"

	"github.com/biogo/biogo/feat"

	"github.com/vertti/gxf2bed/internal/format"
	"github.com/vertti/gxf2bed/internal/parser"
)

// Options controls generation.
type Options struct {
	Transcripts int
	MaxExons    int // exons per transcript, drawn from 1..MaxExons
	Chromosomes int
	Seed        uint64
}

// DefaultOptions returns a small, GENCODE-shaped layout.
func DefaultOptions() Options {
	return Options{Transcripts: 1000, MaxExons: 12, Chromosomes: 3, Seed: 42}
}

// Transcript is one generated gene model. Exons are 1-based inclusive and
// ascending.
type Transcript struct {
	ID     string
	Gene   string
	Chrom  string
	Strand feat.Orientation
	Exons  [][2]uint64
}

// Start returns the first exon start.
func (t *Transcript) Start() uint64 { return t.Exons[0][0] }

// End returns the last exon end.
func (t *Transcript) End() uint64 { return t.Exons[len(t.Exons)-1][1] }

// Generate builds transcripts laid out left to right along each chromosome.
func Generate(opts Options) []Transcript {
	if opts.MaxExons < 1 {
		opts.MaxExons = 1
	}
	if opts.Chromosomes < 1 {
		opts.Chromosomes = 1
	}

	//nolint:gosec // intentionally using math/rand for reproducibility, not security
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	perChrom := (opts.Transcripts + opts.Chromosomes - 1) / opts.Chromosomes

	out := make([]Transcript, 0, opts.Transcripts)
	var pos uint64
	for i := range opts.Transcripts {
		if i%max(perChrom, 1) == 0 {
			pos = 1000
		}
		t := Transcript{
			ID:     fmt.Sprintf("T%07d", i+1),
			Gene:   fmt.Sprintf("G%07d", i/2+1),
			Chrom:  "chr" + strconv.Itoa(i/max(perChrom, 1)+1),
			Strand: feat.Forward,
		}
		if rng.IntN(2) == 1 {
			t.Strand = feat.Reverse
		}

		n := 1 + rng.IntN(opts.MaxExons)
		t.Exons = make([][2]uint64, n)
		for k := range n {
			start := pos + 1
			end := start + 49 + rng.Uint64N(450)
			t.Exons[k] = [2]uint64{start, end}
			pos = end + 100 + rng.Uint64N(4900)
		}
		out = append(out, t)
	}
	return out
}

// WriteOptions controls how transcripts are rendered.
type WriteOptions struct {
	Format format.Format // GTF or GFF3
	// ChildrenFirst writes each transcript's exons before its parent line.
	ChildrenFirst bool
	// CDS adds a CDS record spanning the first exon of every transcript.
	CDS bool
}

// Write renders ts as GTF or GFF3. Each transcript is preceded by a gene
// record, which converters are expected to ignore.
func Write(w io.Writer, ts []Transcript, opts WriteOptions) error {
	bw := bufio.NewWriterSize(w, 1<<20)

	if opts.Format == format.GFF3 {
		bw.WriteString("##gff-version 3\n")
	} else {
		bw.WriteString("#!genome-build synthetic\n")
	}

	var line []byte
	for i := range ts {
		t := &ts[i]
		line = appendRecord(line[:0], t, "gene", t.Start(), t.End(), opts.Format, geneAttrs)
		if !opts.ChildrenFirst {
			line = appendRecord(line, t, parentFeature(opts.Format), t.Start(), t.End(), opts.Format, parentAttrs)
		}
		for k, e := range t.Exons {
			line = appendRecord(line, t, "exon", e[0], e[1], opts.Format, exonAttrs(k+1))
		}
		if opts.CDS {
			e := t.Exons[0]
			line = appendRecord(line, t, "CDS", e[0], e[1], opts.Format, exonAttrs(1))
		}
		if opts.ChildrenFirst {
			line = appendRecord(line, t, parentFeature(opts.Format), t.Start(), t.End(), opts.Format, parentAttrs)
		}
		if _, err := bw.Write(line); err != nil {
			return fmt.Errorf("writing annotation: %w", err)
		}
	}
	return bw.Flush()
}

func parentFeature(f format.Format) string {
	if f == format.GFF3 {
		return "mRNA"
	}
	return "transcript"
}

type attrWriter func(dst []byte, t *Transcript, f format.Format) []byte

func appendRecord(dst []byte, t *Transcript, feature string, start, end uint64, f format.Format, attrs attrWriter) []byte {
	dst = append(dst, t.Chrom...)
	dst = append(dst, "\tsynth\t"...)
	dst = append(dst, feature...)
	dst = append(dst, '\t')
	dst = strconv.AppendUint(dst, start, 10)
	dst = append(dst, '\t')
	dst = strconv.AppendUint(dst, end, 10)
	dst = append(dst, "\t.\t"...)
	dst = append(dst, parser.StrandSymbol(t.Strand))
	dst = append(dst, "\t.\t"...)
	dst = attrs(dst, t, f)
	return append(dst, '\n')
}

func geneAttrs(dst []byte, t *Transcript, f format.Format) []byte {
	if f == format.GFF3 {
		return fmt.Appendf(dst, "ID=%s;Name=gene%%20%s", t.Gene, t.Gene)
	}
	return fmt.Appendf(dst, `gene_id "%s"; gene_name "gene %s";`, t.Gene, t.Gene)
}

func parentAttrs(dst []byte, t *Transcript, f format.Format) []byte {
	if f == format.GFF3 {
		return fmt.Appendf(dst, "ID=%s;Parent=%s;gene_name=gene%%20%s;tag=basic,CCDS", t.ID, t.Gene, t.Gene)
	}
	return fmt.Appendf(dst, `gene_id "%s"; transcript_id "%s"; gene_name "gene %s"; tag "basic"; tag "CCDS";`,
		t.Gene, t.ID, t.Gene)
}

func exonAttrs(n int) attrWriter {
	return func(dst []byte, t *Transcript, f format.Format) []byte {
		if f == format.GFF3 {
			return fmt.Appendf(dst, "ID=exon:%s:%d;Parent=%s;exon_number=%d", t.ID, n, t.ID, n)
		}
		return fmt.Appendf(dst, `gene_id "%s"; transcript_id "%s"; exon_number %d;`, t.Gene, t.ID, n)
	}
}
