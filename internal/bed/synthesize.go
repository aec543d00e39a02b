package bed

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/vertti/gxf2bed/internal/aggregate"
	"github.com/vertti/gxf2bed/internal/parser"
)

// Options controls coordinate synthesis.
type Options struct {
	Type             Type
	ScorePassthrough bool // use the parent's score column when present
	ThickFeature     bool // take thickStart/thickEnd from the group's thick span
}

// Synthesize converts a closed group into a BED record. Children are
// sorted by start, ties broken by input order.
func Synthesize(g *aggregate.Group, opts *Options) (*Record, error) {
	rec := &Record{
		Chrom:  g.Seqname,
		Start:  g.Start - 1,
		End:    g.End,
		Name:   g.Key,
		Score:  DefaultScore,
		Strand: g.Strand,
		RGB:    StrandRGB(g.Strand),
	}
	rec.ThickStart, rec.ThickEnd = rec.Start, rec.End

	if opts.ScorePassthrough && g.Score != "" {
		score, err := parseScore(g.Score)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", g.Key, err)
		}
		rec.Score = score
	}

	if opts.ThickFeature {
		if g.ThickEnd == 0 {
			// Non-coding: empty thick span at chromEnd.
			rec.ThickStart, rec.ThickEnd = rec.End, rec.End
		} else {
			if g.ThickStart < g.Start || g.ThickEnd > g.End {
				return nil, &BlockRangeError{
					Key: g.Key, Start: g.Start, End: g.End,
					ChildStart: g.ThickStart, ChildEnd: g.ThickEnd,
				}
			}
			rec.ThickStart, rec.ThickEnd = g.ThickStart-1, g.ThickEnd
		}
	}

	if !opts.Type.NeedsBlocks() {
		return rec, nil
	}
	if len(g.Children) == 0 {
		return nil, &EmptyGroupError{Key: g.Key, Type: opts.Type}
	}
	if opts.Type < Bed12 {
		return rec, nil
	}

	slices.SortStableFunc(g.Children, func(a, b aggregate.Child) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.Order, b.Order)
	})

	rec.BlockSizes = make([]uint64, len(g.Children))
	rec.BlockStarts = make([]uint64, len(g.Children))
	for i, c := range g.Children {
		if c.Start < g.Start || c.End > g.End {
			return nil, &BlockRangeError{
				Key: g.Key, Start: g.Start, End: g.End,
				ChildStart: c.Start, ChildEnd: c.End,
			}
		}
		rec.BlockSizes[i] = c.End - c.Start + 1
		rec.BlockStarts[i] = (c.Start - 1) - rec.Start
	}
	return rec, nil
}

// parseScore rounds a numeric score into BED's 0..1000 range.
func parseScore(s string) (uint32, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, &parser.MalformedRecordError{Reason: fmt.Sprintf("score %q is not numeric", s)}
	}
	f = math.Round(f)
	switch {
	case f < 0:
		return 0, nil
	case f > DefaultScore:
		return DefaultScore, nil
	default:
		return uint32(f), nil //nolint:gosec // clamped above
	}
}
