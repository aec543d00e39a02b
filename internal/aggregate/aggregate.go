// Package aggregate groups child features under the parent feature they
// belong to.
//
// Grouping runs in two phases. An Aggregator builds a Partial from one
// chunk of input lines without touching shared state. A Merger then
// unions partials that share a parent key and closes the groups. Every
// record carries an input-order stamp, so partials may be merged in any
// order and still produce first-seen output order.
package aggregate

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/biogo/biogo/feat"

	"github.com/vertti/gxf2bed/internal/attr"
	"github.com/vertti/gxf2bed/internal/parser"
)

// OrphanPolicy decides what happens to a group whose parent record never
// appears in the input.
type OrphanPolicy uint8

// Orphan policies.
const (
	Adopt  OrphanPolicy = iota // synthesize the parent span from its children
	Reject                     // fail with *OrphanError
)

func (p OrphanPolicy) String() string {
	if p == Reject {
		return "error"
	}
	return "adopt"
}

// ParseOrphanPolicy parses "adopt" or "error".
func ParseOrphanPolicy(s string) (OrphanPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "adopt":
		return Adopt, nil
	case "error", "reject":
		return Reject, nil
	default:
		return Adopt, fmt.Errorf("unknown orphan policy %q (want adopt or error)", s)
	}
}

// Rules configures which records form the hierarchy.
type Rules struct {
	Grammar         attr.Grammar
	ParentFeature   string
	ChildFeatures   []string
	ParentAttribute string
	ChildAttribute  string
	ThickFeature    string   // optional; extends the thick (coding) span
	ExtraFields     []string // attributes kept for extra BED columns
}

func (r *Rules) isChild(feature string) bool {
	return slices.Contains(r.ChildFeatures, feature)
}

// Stamp orders a record within the whole input: chunk sequence number in
// the high 32 bits, position within the chunk in the low 32 bits.
type Stamp uint64

// NewStamp builds a stamp from a chunk sequence number and local index.
func NewStamp(seq int, index uint32) Stamp {
	return Stamp(uint64(seq)<<32 | uint64(index)) //nolint:gosec // seq is a non-negative chunk counter
}

// Chunk returns the chunk sequence number.
func (s Stamp) Chunk() int { return int(s >> 32) }

// Index returns the position within the chunk.
func (s Stamp) Index() uint32 { return uint32(s) } //nolint:gosec // low bits by construction

// Child is one child interval in input coordinates (1-based, inclusive).
type Child struct {
	Start  uint64
	End    uint64
	Strand feat.Orientation
	Order  Stamp
}

// Group is one parent feature and the children linked to it.
type Group struct {
	Key     string
	Seqname string
	Start   uint64 // 1-based, inclusive
	End     uint64
	Strand  feat.Orientation
	Score   string

	Children []Child

	// Thick span in input coordinates; zero when no thick feature was seen.
	ThickStart uint64
	ThickEnd   uint64

	// Attrs holds the extra-field attributes of the parent record, or of
	// the first child when the parent is adopted.
	Attrs *attr.Table

	HasParent bool
	First     Stamp // first sighting of the key

	firstLine   int
	parentOrder Stamp
	childAttrs  *attr.Table
	childOrder  Stamp
}

// Partial holds the groups built from one chunk, in first-seen order.
type Partial struct {
	Seq     int
	Groups  []*Group
	Records int // records that matched a configured feature type
}

// Aggregator builds a Partial from the lines of one chunk. It is not safe
// for concurrent use; each worker owns its own.
type Aggregator struct {
	rules   *Rules
	seq     int
	counter uint32
	records int
	index   map[string]*Group
	groups  []*Group
}

// NewAggregator returns an aggregator for chunk seq.
func NewAggregator(rules *Rules, seq int) *Aggregator {
	return &Aggregator{
		rules: rules,
		seq:   seq,
		index: make(map[string]*Group),
	}
}

// AddLine tokenizes line, extracts its attributes and files it under its
// parent key. Lines whose feature type is not configured are ignored.
func (a *Aggregator) AddLine(line parser.Line) error {
	rec, err := parser.Tokenize(line.Text)
	if err != nil {
		return parser.WithLine(err, line.Num)
	}
	return a.Add(rec, line.Num)
}

// Add files a tokenized record.
func (a *Aggregator) Add(rec parser.Record, lineNum int) error {
	r := a.rules
	isParent := rec.Feature == r.ParentFeature
	isChild := r.isChild(rec.Feature)
	isThick := r.ThickFeature != "" && rec.Feature == r.ThickFeature
	if !isParent && !isChild && !isThick {
		return nil
	}

	tbl, err := r.Grammar.Parse(rec.Attributes)
	if err != nil {
		return lineError(err, lineNum)
	}

	order := NewStamp(a.seq, a.counter)
	a.counter++
	a.records++

	if isParent {
		key, err := tbl.Require(r.ParentAttribute, rec.Feature)
		if err != nil {
			return lineError(err, lineNum)
		}
		g := a.open(key, order, lineNum)
		if err := g.checkSeqname(rec.Seqname, lineNum); err != nil {
			return err
		}
		if !g.HasParent {
			g.setParent(rec, order, tbl.Subset(r.ExtraFields))
		}
	}

	if isChild || isThick {
		keys, err := tbl.RequireAll(r.ChildAttribute, rec.Feature)
		if err != nil {
			return lineError(err, lineNum)
		}
		for _, key := range keys {
			g := a.open(key, order, lineNum)
			if err := g.checkSeqname(rec.Seqname, lineNum); err != nil {
				return err
			}
			if isChild {
				g.Children = append(g.Children, Child{
					Start:  rec.Start,
					End:    rec.End,
					Strand: rec.Strand,
					Order:  order,
				})
			}
			if isThick {
				g.extendThick(rec.Start, rec.End)
			}
			if g.childAttrs == nil && len(r.ExtraFields) > 0 {
				g.childAttrs = tbl.Subset(r.ExtraFields)
				g.childOrder = order
			}
		}
	}
	return nil
}

// Partial returns the groups collected so far.
func (a *Aggregator) Partial() *Partial {
	return &Partial{Seq: a.seq, Groups: a.groups, Records: a.records}
}

// AggregateChunk runs an Aggregator over every line of chunk.
func AggregateChunk(chunk *parser.Chunk, rules *Rules) (*Partial, error) {
	a := NewAggregator(rules, chunk.Seq)
	for _, line := range chunk.Lines {
		if err := a.AddLine(line); err != nil {
			return nil, err
		}
	}
	return a.Partial(), nil
}

func (a *Aggregator) open(key string, order Stamp, lineNum int) *Group {
	if g, ok := a.index[key]; ok {
		return g
	}
	g := &Group{Key: key, First: order, firstLine: lineNum}
	a.index[key] = g
	a.groups = append(a.groups, g)
	return g
}

func (g *Group) setParent(rec parser.Record, order Stamp, attrs *attr.Table) {
	g.Seqname = rec.Seqname
	g.Start = rec.Start
	g.End = rec.End
	g.Strand = rec.Strand
	g.Score = rec.Score
	g.Attrs = attrs
	g.HasParent = true
	g.parentOrder = order
}

func (g *Group) checkSeqname(seqname string, lineNum int) error {
	if g.Seqname == "" {
		g.Seqname = seqname
		return nil
	}
	if g.Seqname != seqname {
		return &SeqnameMismatchError{Key: g.Key, Want: g.Seqname, Got: seqname, Line: lineNum}
	}
	return nil
}

func (g *Group) extendThick(start, end uint64) {
	if g.ThickStart == 0 || start < g.ThickStart {
		g.ThickStart = start
	}
	if end > g.ThickEnd {
		g.ThickEnd = end
	}
}

// SeqnameMismatchError reports a record linked to a group on another
// sequence.
type SeqnameMismatchError struct {
	Key  string
	Want string
	Got  string
	Line int // 0 when detected while merging chunks
}

func (e *SeqnameMismatchError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %q links to group on %s but lies on %s", e.Line, e.Key, e.Want, e.Got)
	}
	return fmt.Sprintf("group %q spans sequences %s and %s", e.Key, e.Want, e.Got)
}

// OrphanError reports children whose parent record never appeared.
type OrphanError struct {
	Key  string
	Line int // first line referencing the key
}

func (e *OrphanError) Error() string {
	return fmt.Sprintf("line %d: no parent record for %q", e.Line, e.Key)
}

func lineError(err error, lineNum int) error {
	var mre *parser.MalformedRecordError
	if errors.As(err, &mre) {
		return parser.WithLine(err, lineNum)
	}
	return fmt.Errorf("line %d: %w", lineNum, err)
}
