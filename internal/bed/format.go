package bed

import (
	"strconv"

	"github.com/vertti/gxf2bed/internal/attr"
	"github.com/vertti/gxf2bed/internal/parser"
)

// Formatter renders records in one BED layout followed by extra
// attribute columns.
type Formatter struct {
	Type        Type
	ExtraFields []string
	Feature     string // parent feature type, for error messages
}

// Resolve fills rec.Extra from attrs in the requested order. A missing key
// fails with *attr.MissingError; multi-valued attributes are comma-joined.
func (f *Formatter) Resolve(rec *Record, attrs *attr.Table) error {
	if len(f.ExtraFields) == 0 {
		return nil
	}
	rec.Extra = make([]string, len(f.ExtraFields))
	for i, key := range f.ExtraFields {
		v, ok := attrs.Joined(key)
		if !ok {
			return &attr.MissingError{Key: key, Feature: f.Feature}
		}
		rec.Extra[i] = v
	}
	return nil
}

// Append renders rec as one tab-separated, newline-terminated row.
func (f *Formatter) Append(dst []byte, rec *Record) []byte {
	dst = append(dst, rec.Chrom...)
	dst = append(dst, '\t')
	dst = strconv.AppendUint(dst, rec.Start, 10)
	dst = append(dst, '\t')
	dst = strconv.AppendUint(dst, rec.End, 10)

	if f.Type >= Bed4 {
		dst = append(dst, '\t')
		dst = append(dst, rec.Name...)
	}
	if f.Type >= Bed5 {
		dst = append(dst, '\t')
		dst = strconv.AppendUint(dst, uint64(rec.Score), 10)
	}
	if f.Type >= Bed6 {
		dst = append(dst, '\t', parser.StrandSymbol(rec.Strand))
	}
	if f.Type >= Bed9 {
		dst = append(dst, '\t')
		dst = strconv.AppendUint(dst, rec.ThickStart, 10)
		dst = append(dst, '\t')
		dst = strconv.AppendUint(dst, rec.ThickEnd, 10)
		dst = append(dst, '\t')
		dst = appendRGB(dst, rec.RGB)
	}
	if f.Type >= Bed12 {
		dst = append(dst, '\t')
		dst = strconv.AppendInt(dst, int64(rec.BlockCount()), 10)
		dst = append(dst, '\t')
		dst = appendList(dst, rec.BlockSizes)
		dst = append(dst, '\t')
		dst = appendList(dst, rec.BlockStarts)
	}

	for _, v := range rec.Extra {
		dst = append(dst, '\t')
		dst = append(dst, v...)
	}
	return append(dst, '\n')
}

func appendRGB(dst []byte, c RGB) []byte {
	dst = strconv.AppendUint(dst, uint64(c[0]), 10)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, uint64(c[1]), 10)
	dst = append(dst, ',')
	return strconv.AppendUint(dst, uint64(c[2]), 10)
}

// appendList writes values with a trailing comma after each, as BED12
// block lists require.
func appendList(dst []byte, vs []uint64) []byte {
	for _, v := range vs {
		dst = strconv.AppendUint(dst, v, 10)
		dst = append(dst, ',')
	}
	return dst
}
