package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunWritesAnnotationAndExpectation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	gff := filepath.Join(dir, "bench.gff3")
	want := filepath.Join(dir, "bench.bed")

	if err := run([]string{"-format", "gff3", "-n", "25", "-seed", "9", "-o", gff, "-expect", want}); err != nil {
		t.Fatalf("run: %v", err)
	}

	data, err := os.ReadFile(gff) //nolint:gosec // test fixture path
	if err != nil {
		t.Fatalf("read annotation: %v", err)
	}
	if !strings.HasPrefix(string(data), "##gff-version 3\n") {
		t.Fatalf("missing GFF3 directive: %q", string(data[:40]))
	}

	bed, err := os.ReadFile(want) //nolint:gosec // test fixture path
	if err != nil {
		t.Fatalf("read expectation: %v", err)
	}
	if n := strings.Count(string(bed), "\n"); n != 25 {
		t.Fatalf("expected 25 BED rows, got %d", n)
	}
}

func TestRunDeterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.gtf")
	b := filepath.Join(dir, "b.gtf")
	for _, path := range []string{a, b} {
		if err := run([]string{"-n", "40", "-seed", "3", "-o", path}); err != nil {
			t.Fatalf("run: %v", err)
		}
	}

	da, _ := os.ReadFile(a) //nolint:gosec // test fixture path
	db, _ := os.ReadFile(b) //nolint:gosec // test fixture path
	if string(da) != string(db) {
		t.Fatal("same seed produced different output")
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"-format", "auto"},
		{"-format", "bed"},
		{"-n", "-1"},
	} {
		if err := run(args); err == nil {
			t.Errorf("run(%v): expected error", args)
		}
	}
}
