// Package format detects the annotation grammar and stream compression
// of GTF/GFF3 inputs.
package format

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vertti/gxf2bed/internal/attr"
	"github.com/vertti/gxf2bed/internal/parser"
)

// Format identifies an annotation grammar.
type Format uint8

// Supported annotation formats.
const (
	Auto Format = iota // detect from content
	GTF
	GFF3
)

// SampleSize is how many leading bytes Detect expects to inspect.
const SampleSize = 64 << 10

// maxSampleLines bounds how many data lines vote during detection.
const maxSampleLines = 64

var (
	gff3Directive = []byte("##gff-version 3")
	gff2Directive = []byte("##gff-version 2")
)

func (f Format) String() string {
	switch f {
	case GTF:
		return "gtf"
	case GFF3:
		return "gff3"
	default:
		return "auto"
	}
}

// Grammar returns the attribute grammar for f.
func (f Format) Grammar() attr.Grammar {
	if f == GFF3 {
		return attr.GFF3{}
	}
	return attr.GTF{}
}

// Parse parses a user-supplied format name.
func Parse(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return Auto, nil
	case "gtf", "gff2":
		return GTF, nil
	case "gff", "gff3":
		return GFF3, nil
	default:
		return Auto, fmt.Errorf("unknown input format %q (want gtf, gff3 or auto)", name)
	}
}

// DetectionError reports input that matches neither supported grammar.
type DetectionError struct {
	Reason string
}

func (e *DetectionError) Error() string {
	return "cannot detect annotation format: " + e.Reason
}

// FromPath guesses the format from a file name, looking through a
// compression suffix (sample.gtf.gz). Returns Auto when unknown.
func FromPath(path string) Format {
	name := strings.ToLower(filepath.Base(path))
	if CompressionFromPath(name) != None {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	switch filepath.Ext(name) {
	case ".gtf", ".gff2":
		return GTF
	case ".gff", ".gff3":
		return GFF3
	default:
		return Auto
	}
}

// Detect selects the grammar from the leading bytes of the decoded input.
// A "##gff-version" directive wins; otherwise the attribute columns of the
// first data lines vote. When the sample holds no data lines, the path
// hint decides.
func Detect(sample []byte, pathHint string) (Format, error) {
	// Drop a trailing partial line unless it is all we have.
	if i := bytes.LastIndexByte(sample, '\n'); i >= 0 && i < len(sample)-1 {
		sample = sample[:i+1]
	}

	var gtfVotes, gffVotes, seen, short int
	for len(sample) > 0 && seen < maxSampleLines {
		var line []byte
		if i := bytes.IndexByte(sample, '\n'); i >= 0 {
			line, sample = sample[:i], sample[i+1:]
		} else {
			line, sample = sample, nil
		}
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if line[0] == '#' {
			switch {
			case bytes.HasPrefix(line, gff3Directive):
				return GFF3, nil
			case bytes.HasPrefix(line, gff2Directive):
				return GTF, nil
			}
			continue
		}

		seen++
		fields := bytes.SplitN(line, []byte{'\t'}, 9)
		if len(fields) < parser.NumFixedFields {
			// Not a record; the tokenizer reports it with its line number
			// if the format is settled by other lines.
			short++
			continue
		}
		if len(fields) == 9 {
			switch classify(fields[8]) {
			case GTF:
				gtfVotes++
			case GFF3:
				gffVotes++
			}
		}
	}

	switch {
	case gtfVotes > gffVotes:
		return GTF, nil
	case gffVotes > gtfVotes:
		return GFF3, nil
	case gtfVotes > 0:
		return Auto, &DetectionError{Reason: "attribute columns mix GTF and GFF3 syntax"}
	}

	if f := FromPath(pathHint); f != Auto {
		return f, nil
	}
	if seen == 0 {
		return Auto, &DetectionError{Reason: "no annotation records found"}
	}
	if short == seen {
		return Auto, &DetectionError{
			Reason: fmt.Sprintf("no line has the %d tab-separated annotation columns", parser.NumFixedFields),
		}
	}
	return Auto, &DetectionError{Reason: "attribute columns match neither GTF nor GFF3 syntax"}
}

// classify inspects the first attribute pair: `key=value` is GFF3 and
// `key value` is GTF.
func classify(attrs []byte) Format {
	attrs = bytes.TrimSpace(attrs)
	if i := bytes.IndexByte(attrs, ';'); i >= 0 {
		attrs = attrs[:i]
	}
	eq := bytes.IndexByte(attrs, '=')
	sp := bytes.IndexAny(attrs, " \t")
	switch {
	case eq > 0 && (sp < 0 || eq < sp):
		return GFF3
	case sp > 0:
		return GTF
	default:
		return Auto
	}
}
