package aggregate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/biogo/biogo/feat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertti/gxf2bed/internal/attr"
	"github.com/vertti/gxf2bed/internal/parser"
)

func gtfRules() *Rules {
	return &Rules{
		Grammar:         attr.GTF{},
		ParentFeature:   "transcript",
		ChildFeatures:   []string{"exon"},
		ParentAttribute: "transcript_id",
		ChildAttribute:  "transcript_id",
	}
}

func gffRules() *Rules {
	return &Rules{
		Grammar:         attr.GFF3{},
		ParentFeature:   "mRNA",
		ChildFeatures:   []string{"exon"},
		ParentAttribute: "ID",
		ChildAttribute:  "Parent",
	}
}

// chunks splits text into chunks of size data lines, numbering lines from 1.
func chunks(text string, size int) []*parser.Chunk {
	var out []*parser.Chunk
	var cur *parser.Chunk
	for i, l := range strings.Split(strings.TrimSpace(text), "\n") {
		if cur == nil || len(cur.Lines) == size {
			cur = &parser.Chunk{Seq: len(out)}
			out = append(out, cur)
		}
		cur.Lines = append(cur.Lines, parser.Line{Num: i + 1, Text: []byte(l)})
	}
	return out
}

func run(t *testing.T, text string, size int, rules *Rules, policy OrphanPolicy) ([]*Group, error) {
	t.Helper()

	m := NewMerger(policy)
	for _, c := range chunks(text, size) {
		p, err := AggregateChunk(c, rules)
		if err != nil {
			return nil, err
		}
		if err := m.Merge(p); err != nil {
			return nil, err
		}
	}
	return m.Close()
}

const twoTranscripts = `chr1	src	transcript	100	200	.	+	.	gene_id "g1"; transcript_id "tx1";
chr1	src	exon	180	200	.	+	.	gene_id "g1"; transcript_id "tx1";
chr1	src	exon	100	150	.	+	.	gene_id "g1"; transcript_id "tx1";
chr2	src	transcript	1000	1100	7	-	.	gene_id "g2"; transcript_id "tx2";
chr2	src	exon	1000	1050	.	-	.	gene_id "g2"; transcript_id "tx2";
chr2	src	gene	1000	1100	.	-	.	gene_id "g2";
chr2	src	exon	1070	1100	.	-	.	gene_id "g2"; transcript_id "tx2";`

func TestAggregateSingleChunk(t *testing.T) {
	t.Parallel()

	groups, err := run(t, twoTranscripts, 100, gtfRules(), Adopt)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	tx1 := groups[0]
	assert.Equal(t, "tx1", tx1.Key)
	assert.Equal(t, "chr1", tx1.Seqname)
	assert.Equal(t, uint64(100), tx1.Start)
	assert.Equal(t, uint64(200), tx1.End)
	assert.Equal(t, feat.Forward, tx1.Strand)
	assert.True(t, tx1.HasParent)
	require.Len(t, tx1.Children, 2)
	assert.Equal(t, uint64(180), tx1.Children[0].Start, "children stay in input order")

	tx2 := groups[1]
	assert.Equal(t, "tx2", tx2.Key)
	assert.Equal(t, feat.Reverse, tx2.Strand)
	assert.Equal(t, "7", tx2.Score)
	assert.Len(t, tx2.Children, 2)
}

func TestAggregateChunkBoundaryInvariance(t *testing.T) {
	t.Parallel()

	want, err := run(t, twoTranscripts, 100, gtfRules(), Adopt)
	require.NoError(t, err)

	for size := 1; size <= 7; size++ {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			t.Parallel()

			got, err := run(t, twoTranscripts, size, gtfRules(), Adopt)
			require.NoError(t, err)
			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].Key, got[i].Key)
				assert.Equal(t, want[i].Start, got[i].Start)
				assert.Equal(t, want[i].End, got[i].End)
				assert.Equal(t, childSpans(want[i]), childSpans(got[i]))
			}
		})
	}
}

func TestMergeOrderIndependent(t *testing.T) {
	t.Parallel()

	cs := chunks(twoTranscripts, 2)
	partials := make([]*Partial, len(cs))
	for i, c := range cs {
		p, err := AggregateChunk(c, gtfRules())
		require.NoError(t, err)
		partials[i] = p
	}

	m := NewMerger(Adopt)
	for i := len(partials) - 1; i >= 0; i-- {
		require.NoError(t, m.Merge(partials[i]))
	}
	groups, err := m.Close()
	require.NoError(t, err)

	require.Len(t, groups, 2)
	assert.Equal(t, "tx1", groups[0].Key)
	assert.Equal(t, "tx2", groups[1].Key)
	assert.Equal(t, [][2]uint64{{180, 200}, {100, 150}}, childSpans(groups[0]))
	assert.Equal(t, [][2]uint64{{1000, 1050}, {1070, 1100}}, childSpans(groups[1]))
}

func TestAggregateChildBeforeParent(t *testing.T) {
	t.Parallel()

	text := `chr1	src	exon	300	400	.	+	.	transcript_id "late";
chr1	src	transcript	10	20	.	+	.	transcript_id "early";
chr1	src	exon	10	20	.	+	.	transcript_id "early";
chr1	src	transcript	300	500	.	+	.	transcript_id "late";
chr1	src	exon	450	500	.	+	.	transcript_id "late";`

	for _, size := range []int{1, 2, 5} {
		groups, err := run(t, text, size, gtfRules(), Reject)
		require.NoError(t, err)
		require.Len(t, groups, 2)
		assert.Equal(t, "late", groups[0].Key, "first sighting was a child")
		assert.Equal(t, uint64(300), groups[0].Start)
		assert.Equal(t, uint64(500), groups[0].End)
		assert.Len(t, groups[0].Children, 2)
		assert.Equal(t, "early", groups[1].Key)
	}
}

func TestAggregateOrphanPolicy(t *testing.T) {
	t.Parallel()

	text := `chr3	src	exon	500	600	.	-	.	transcript_id "orphan"; gene_name "ORF";
chr3	src	exon	100	200	.	-	.	transcript_id "orphan"; gene_name "ORF";`

	rules := gtfRules()
	rules.ExtraFields = []string{"gene_name"}

	groups, err := run(t, text, 1, rules, Adopt)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	g := groups[0]
	assert.False(t, g.HasParent)
	assert.Equal(t, uint64(100), g.Start)
	assert.Equal(t, uint64(600), g.End)
	assert.Equal(t, feat.Reverse, g.Strand)
	assert.Equal(t, "chr3", g.Seqname)
	v, ok := g.Attrs.Get("gene_name")
	assert.True(t, ok)
	assert.Equal(t, "ORF", v)

	_, err = run(t, text, 1, gtfRules(), Reject)
	var oe *OrphanError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "orphan", oe.Key)
	assert.Equal(t, 1, oe.Line)
}

func TestAggregateMissingLinkAttribute(t *testing.T) {
	t.Parallel()

	text := `chr1	src	transcript	100	200	.	+	.	transcript_id "tx1";
chr1	src	exon	100	150	.	+	.	gene_id "g1";`

	_, err := run(t, text, 10, gtfRules(), Adopt)
	var me *attr.MissingError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "transcript_id", me.Key)
	assert.Equal(t, "exon", me.Feature)
	assert.Contains(t, err.Error(), "line 2")
}

func TestAggregateEmptyLinkAttribute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		rules *Rules
		key   string
	}{
		{
			name: "GTF parent",
			text: `chr1	src	transcript	100	200	.	+	.	transcript_id "";
chr1	src	exon	100	150	.	+	.	transcript_id "";`,
			rules: gtfRules(),
			key:   "transcript_id",
		},
		{
			name: "GFF3 child",
			text: `chr1	src	mRNA	100	200	.	+	.	ID=tx1
chr1	src	exon	100	150	.	+	.	Parent=`,
			rules: gffRules(),
			key:   "Parent",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := run(t, tt.text, 10, tt.rules, Adopt)
			var me *attr.MissingError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.key, me.Key)
			assert.True(t, me.Empty)
		})
	}
}

func TestAggregateMalformedLine(t *testing.T) {
	t.Parallel()

	text := "chr1\tsrc\ttranscript\t100\t200\t.\t+\t.\ttranscript_id \"tx1\";\nchr1\tsrc\texon\t1x0\t150\t.\t+\t."

	_, err := run(t, text, 10, gtfRules(), Adopt)
	var mre *parser.MalformedRecordError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, 2, mre.Line)
}

func TestAggregateSeqnameMismatch(t *testing.T) {
	t.Parallel()

	text := `chr1	src	transcript	100	200	.	+	.	transcript_id "tx1";
chr2	src	exon	100	150	.	+	.	transcript_id "tx1";`

	for _, size := range []int{1, 2} {
		_, err := run(t, text, size, gtfRules(), Adopt)
		var se *SeqnameMismatchError
		require.ErrorAs(t, err, &se, "size=%d", size)
		assert.Equal(t, "tx1", se.Key)
		assert.Equal(t, "chr1", se.Want)
		assert.Equal(t, "chr2", se.Got)
	}
}

func TestAggregateGFF3MultiParent(t *testing.T) {
	t.Parallel()

	text := `chr1	src	mRNA	100	200	.	+	.	ID=tx1
chr1	src	mRNA	100	300	.	+	.	ID=tx2
chr1	src	exon	100	150	.	+	.	Parent=tx1,tx2
chr1	src	exon	180	200	.	+	.	Parent=tx1
chr1	src	exon	250	300	.	+	.	Parent=tx2`

	groups, err := run(t, text, 2, gffRules(), Reject)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, [][2]uint64{{100, 150}, {180, 200}}, childSpans(groups[0]))
	assert.Equal(t, [][2]uint64{{100, 150}, {250, 300}}, childSpans(groups[1]))
}

func TestAggregateThickFeature(t *testing.T) {
	t.Parallel()

	text := `chr1	src	transcript	100	900	.	+	.	transcript_id "tx1";
chr1	src	exon	100	300	.	+	.	transcript_id "tx1";
chr1	src	CDS	250	300	.	+	0	transcript_id "tx1";
chr1	src	exon	700	900	.	+	.	transcript_id "tx1";
chr1	src	CDS	700	760	.	+	1	transcript_id "tx1";`

	rules := gtfRules()
	rules.ThickFeature = "CDS"

	for _, size := range []int{1, 3, 10} {
		groups, err := run(t, text, size, rules, Reject)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, uint64(250), groups[0].ThickStart)
		assert.Equal(t, uint64(760), groups[0].ThickEnd)
		assert.Len(t, groups[0].Children, 2, "thick records are not blocks")
	}
}

func TestAggregateMultipleChildTypes(t *testing.T) {
	t.Parallel()

	text := `chr1	src	transcript	100	900	.	+	.	transcript_id "tx1";
chr1	src	five_prime_utr	100	120	.	+	.	transcript_id "tx1";
chr1	src	CDS	121	880	.	+	0	transcript_id "tx1";
chr1	src	three_prime_utr	881	900	.	+	.	transcript_id "tx1";
chr1	src	exon	100	900	.	+	.	transcript_id "tx1";`

	rules := gtfRules()
	rules.ChildFeatures = []string{"five_prime_utr", "CDS", "three_prime_utr"}

	groups, err := run(t, text, 2, rules, Reject)
	require.NoError(t, err)
	assert.Equal(t, [][2]uint64{{100, 120}, {121, 880}, {881, 900}}, childSpans(groups[0]))
}

func TestAggregateDuplicateParentKeepsFirst(t *testing.T) {
	t.Parallel()

	text := `chr1	src	transcript	100	200	.	+	.	transcript_id "tx1"; gene_name "A";
chr1	src	exon	100	200	.	+	.	transcript_id "tx1";
chr1	src	transcript	50	250	.	+	.	transcript_id "tx1"; gene_name "B";`

	rules := gtfRules()
	rules.ExtraFields = []string{"gene_name"}

	for _, size := range []int{1, 3} {
		groups, err := run(t, text, size, rules, Reject)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, uint64(100), groups[0].Start)
		v, _ := groups[0].Attrs.Get("gene_name")
		assert.Equal(t, "A", v)
	}
}

func TestAggregateIgnoresUnconfiguredFeatures(t *testing.T) {
	t.Parallel()

	// The gene line has no transcript_id and an unparsable attribute tail;
	// it must not be inspected.
	text := `chr1	src	gene	100	200	.	+	.	gene_id "unterminated
chr1	src	transcript	100	200	.	+	.	transcript_id "tx1";
chr1	src	exon	100	200	.	+	.	transcript_id "tx1";`

	groups, err := run(t, text, 10, gtfRules(), Reject)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestStamp(t *testing.T) {
	t.Parallel()

	s := NewStamp(7, 42)
	assert.Equal(t, 7, s.Chunk())
	assert.Equal(t, uint32(42), s.Index())
	assert.Less(t, NewStamp(1, 999), NewStamp(2, 0))
}

func TestParseOrphanPolicy(t *testing.T) {
	t.Parallel()

	p, err := ParseOrphanPolicy("error")
	require.NoError(t, err)
	assert.Equal(t, Reject, p)
	p, err = ParseOrphanPolicy("")
	require.NoError(t, err)
	assert.Equal(t, Adopt, p)
	assert.Equal(t, "adopt", p.String())
	_, err = ParseOrphanPolicy("drop")
	assert.Error(t, err)
}

func childSpans(g *Group) [][2]uint64 {
	out := make([][2]uint64, len(g.Children))
	for i, c := range g.Children {
		out[i] = [2]uint64{c.Start, c.End}
	}
	return out
}
