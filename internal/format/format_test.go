package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertti/gxf2bed/internal/attr"
)

const (
	gtfSample = "chr1\tsrc\ttranscript\t100\t200\t.\t+\t.\tgene_id \"g1\"; transcript_id \"tx1\";\n" +
		"chr1\tsrc\texon\t100\t150\t.\t+\t.\tgene_id \"g1\"; transcript_id \"tx1\";\n"
	gffSample = "chr1\tsrc\tmRNA\t100\t200\t.\t+\t.\tID=tx1;Name=tx1;\n" +
		"chr1\tsrc\texon\t100\t150\t.\t+\t.\tParent=tx1;\n"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sample string
		path   string
		want   Format
	}{
		{"gtf content", gtfSample, "", GTF},
		{"gff3 content", gffSample, "", GFF3},
		{"gff3 directive", "##gff-version 3.1.26\n" + gtfSample, "", GFF3},
		{"gff2 directive", "##gff-version 2\n" + gffSample, "", GTF},
		{"content beats extension", gffSample, "x.gtf", GFF3},
		{"comments only falls back to path", "#!genome-build GRCh38\n", "annot.gff3.gz", GFF3},
		{"no attributes falls back to path", "chr1\ts\tgene\t1\t2\t.\t+\t.\n", "annot.gtf", GTF},
		{"crlf", "chr1\ts\tmRNA\t1\t2\t.\t+\t.\tID=a\r\n", "", GFF3},
		{"equals inside gtf value", "chr1\ts\texon\t1\t2\t.\t+\t.\tnote \"a=b\";\n", "", GTF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Detect([]byte(tt.sample), tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectIgnoresPartialTrailingLine(t *testing.T) {
	t.Parallel()

	sample := gffSample + "chr1\tsrc\texon\t100\t150\t.\t+\t.\tgene_id \"trunc"
	got, err := Detect([]byte(sample), "")
	require.NoError(t, err)
	assert.Equal(t, GFF3, got)
}

func TestDetectSkipsShortLines(t *testing.T) {
	t.Parallel()

	sample := "chr1\ts\texon\t1\n" + "chr1\ts\texon\t1\t2\t.\t+\t.\tgene_id \"a\";\n"
	got, err := Detect([]byte(sample), "")
	require.NoError(t, err)
	assert.Equal(t, GTF, got)
}

func TestDetectErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sample string
	}{
		{"empty", ""},
		{"not tabular", "hello world\nthis is not an annotation\n"},
		{"bed input", "chr1\t10\t20\tname\n"},
		{"bare keys", "chr1\ts\texon\t1\t2\t.\t+\t.\tflag\n"},
		{"tie", "chr1\ts\texon\t1\t2\t.\t+\t.\tID=a\nchr1\ts\texon\t1\t2\t.\t+\t.\tgene_id \"a\";\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Detect([]byte(tt.sample), "input.txt")
			var de *DetectionError
			assert.ErrorAs(t, err, &de)
		})
	}
}

func TestFromPath(t *testing.T) {
	t.Parallel()

	tests := map[string]Format{
		"sample.gtf":        GTF,
		"sample.GTF.gz":     GTF,
		"sample.gff3.zst":   GFF3,
		"sample.gff.bz2":    GFF3,
		"/data/sample.gff3": GFF3,
		"sample.txt":        Auto,
		"sample.gz":         Auto,
		"":                  Auto,
	}
	for path, want := range tests {
		assert.Equal(t, want, FromPath(path), path)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]Format{"": Auto, "auto": Auto, "GTF": GTF, "gff": GFF3, "gff3": GFF3} {
		got, err := Parse(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := Parse("bed")
	assert.Error(t, err)
}

func TestGrammar(t *testing.T) {
	t.Parallel()

	assert.Equal(t, attr.GTF{}, GTF.Grammar())
	assert.Equal(t, attr.GFF3{}, GFF3.Grammar())
	assert.Equal(t, "gff3", GFF3.String())
}

func TestDetectCompression(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header []byte
		path   string
		want   Compression
	}{
		{"gzip magic", []byte{0x1f, 0x8b, 0x08, 0x00}, "x", Gzip},
		{"zstd magic", []byte{0x28, 0xb5, 0x2f, 0xfd}, "x.gtf", Zstd},
		{"bzip2 magic", []byte("BZh9"), "", Bzip2},
		{"plain text named gz", []byte("chr1"), "x.gtf.gz", None},
		{"empty falls back to extension", nil, "x.gtf.zst", Zstd},
		{"plain", []byte("##gf"), "x.gff3", None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DetectCompression(tt.header, tt.path))
		})
	}
}

func TestCompressionFromPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Gzip, CompressionFromPath("a.bed.gz"))
	assert.Equal(t, Gzip, CompressionFromPath("a.bed.BGZ"))
	assert.Equal(t, Zstd, CompressionFromPath("a.zst"))
	assert.Equal(t, Bzip2, CompressionFromPath("a.bz2"))
	assert.Equal(t, None, CompressionFromPath("a.bed"))
	assert.Equal(t, "zstd", Zstd.String())
}
