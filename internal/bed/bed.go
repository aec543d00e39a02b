// Package bed synthesizes BED coordinates from grouped annotation
// features and renders them as BED3 through BED12 rows.
package bed

import (
	"fmt"
	"strconv"

	"github.com/biogo/biogo/feat"
)

// Type is the number of standard BED columns emitted.
type Type uint8

// Supported BED column layouts.
const (
	Bed3  Type = 3
	Bed4  Type = 4
	Bed5  Type = 5
	Bed6  Type = 6
	Bed9  Type = 9
	Bed12 Type = 12
)

// DefaultScore is written when no input score is passed through.
const DefaultScore = 1000

// ParseType validates a BED column count.
func ParseType(n int) (Type, error) {
	switch n {
	case 3, 4, 5, 6, 9, 12:
		return Type(n), nil
	}
	return 0, fmt.Errorf("unsupported BED type %d (want 3, 4, 5, 6, 9 or 12)", n)
}

// ParseTypeString parses "12" or "bed12".
func ParseTypeString(s string) (Type, error) {
	if len(s) > 3 && (s[:3] == "bed" || s[:3] == "BED") {
		s = s[3:]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unsupported BED type %q", s)
	}
	return ParseType(n)
}

func (t Type) String() string {
	return "bed" + strconv.Itoa(int(t))
}

// NeedsBlocks reports whether rows of this type require at least one
// child block.
func (t Type) NeedsBlocks() bool {
	return t >= Bed9
}

// RGB is an itemRgb triple.
type RGB [3]uint8

// Strand colours follow genome-browser convention.
var (
	ForwardRGB = RGB{0, 0, 200}
	ReverseRGB = RGB{200, 0, 0}
	NeutralRGB = RGB{0, 0, 0}
)

// StrandRGB returns the itemRgb colour for a strand.
func StrandRGB(o feat.Orientation) RGB {
	switch o {
	case feat.Forward:
		return ForwardRGB
	case feat.Reverse:
		return ReverseRGB
	default:
		return NeutralRGB
	}
}

// Record is one finalized BED row. Coordinates are 0-based, half-open.
type Record struct {
	Chrom       string
	Start       uint64
	End         uint64
	Name        string
	Score       uint32
	Strand      feat.Orientation
	ThickStart  uint64
	ThickEnd    uint64
	RGB         RGB
	BlockSizes  []uint64
	BlockStarts []uint64 // relative to Start
	Extra       []string
}

// BlockCount returns the number of blocks.
func (r *Record) BlockCount() int {
	return len(r.BlockSizes)
}

// EmptyGroupError reports a group without children where the BED type
// needs blocks.
type EmptyGroupError struct {
	Key  string
	Type Type
}

func (e *EmptyGroupError) Error() string {
	return fmt.Sprintf("%q has no child features, required for %s", e.Key, e.Type)
}

// BlockRangeError reports a child feature outside its parent's span.
type BlockRangeError struct {
	Key        string
	Start, End uint64 // parent, 1-based inclusive
	ChildStart uint64
	ChildEnd   uint64
}

func (e *BlockRangeError) Error() string {
	return fmt.Sprintf("%q: child %d-%d lies outside parent %d-%d",
		e.Key, e.ChildStart, e.ChildEnd, e.Start, e.End)
}
