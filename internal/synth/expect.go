package synth

import (
	"io"
	"strconv"

	"github.com/biogo/biogo/feat"
)

// WriteExpected writes the BED12 rows a faithful conversion of ts
// produces with default settings.
func WriteExpected(w io.Writer, ts []Transcript) error {
	var line []byte
	for i := range ts {
		line = AppendExpected(line[:0], &ts[i])
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// AppendExpected appends the BED12 row for t.
func AppendExpected(dst []byte, t *Transcript) []byte {
	start := t.Start() - 1
	strand, rgb := "+", "0,0,200"
	if t.Strand == feat.Reverse {
		strand, rgb = "-", "200,0,0"
	}

	dst = append(dst, t.Chrom...)
	dst = append(dst, '\t')
	dst = strconv.AppendUint(dst, start, 10)
	dst = append(dst, '\t')
	dst = strconv.AppendUint(dst, t.End(), 10)
	dst = append(dst, '\t')
	dst = append(dst, t.ID...)
	dst = append(dst, "\t1000\t"...)
	dst = append(dst, strand...)
	dst = append(dst, '\t')
	dst = strconv.AppendUint(dst, start, 10)
	dst = append(dst, '\t')
	dst = strconv.AppendUint(dst, t.End(), 10)
	dst = append(dst, '\t')
	dst = append(dst, rgb...)
	dst = append(dst, '\t')
	dst = strconv.AppendInt(dst, int64(len(t.Exons)), 10)
	dst = append(dst, '\t')
	for _, e := range t.Exons {
		dst = strconv.AppendUint(dst, e[1]-e[0]+1, 10)
		dst = append(dst, ',')
	}
	dst = append(dst, '\t')
	for _, e := range t.Exons {
		dst = strconv.AppendUint(dst, e[0]-1-start, 10)
		dst = append(dst, ',')
	}
	return append(dst, '\n')
}
