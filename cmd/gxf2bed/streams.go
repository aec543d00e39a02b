package main

import (
	"bufio"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/biogo/hts/bgzf"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/vertti/gxf2bed/internal/format"
)

const ioBufferSize = 1 << 20

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return wrapInputMaybeCompressed(path, os.Stdin, func() {})
	}

	f, err := os.Open(path) //nolint:gosec // CLI tool needs to open user-specified files
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open input: %w", err)
	}
	return wrapInputMaybeCompressed(path, f, func() { _ = f.Close() })
}

// wrapInputMaybeCompressed sniffs the stream's magic bytes and layers the
// matching decoder on top. The file extension decides only when the
// stream is too short to sniff.
func wrapInputMaybeCompressed(path string, in io.Reader, closeInput func()) (io.Reader, func(), error) {
	br := bufio.NewReaderSize(in, ioBufferSize)
	header, err := br.Peek(format.MagicSize)
	if err != nil && !errors.Is(err, io.EOF) {
		closeInput()
		return nil, nil, fmt.Errorf("cannot inspect input: %w", err)
	}

	switch format.DetectCompression(header, path) {
	case format.Gzip:
		gz, err := pgzip.NewReader(br)
		if err != nil {
			closeInput()
			return nil, nil, fmt.Errorf("cannot open gzip input: %w", err)
		}
		return gz, func() {
			_ = gz.Close()
			closeInput()
		}, nil
	case format.Zstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			closeInput()
			return nil, nil, fmt.Errorf("cannot open zstd input: %w", err)
		}
		return zr, func() {
			zr.Close()
			closeInput()
		}, nil
	case format.Bzip2:
		return bzip2.NewReader(br), closeInput, nil
	}

	return br, closeInput, nil
}

// openOutput picks the encoding from the output extension: .gz and .bgz
// write BGZF blocks, .zst writes zstd, anything else is plain text. Files
// are staged next to path and renamed into place by finish(true);
// finish(false) discards the staged file so a failed run leaves no
// partial BED behind.
func openOutput(path string, workers int, stdout io.Writer) (io.Writer, func(commit bool) error, error) {
	if path == "" || path == "-" {
		bw := bufio.NewWriterSize(stdout, ioBufferSize)
		return bw, func(bool) error { return bw.Flush() }, nil
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, nil, fmt.Errorf("cannot create output: %w", err)
	}
	discard := func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}

	var enc io.WriteCloser
	switch lower := strings.ToLower(path); {
	case strings.HasSuffix(lower, ".gz"), strings.HasSuffix(lower, ".bgz"):
		enc = bgzf.NewWriter(f, max(workers, 1))
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		zw, err := zstd.NewWriter(f, zstd.WithEncoderConcurrency(max(workers, 1)))
		if err != nil {
			discard()
			return nil, nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		enc = zw
	}

	var sink io.Writer = f
	if enc != nil {
		sink = enc
	}
	bw := bufio.NewWriterSize(sink, ioBufferSize)

	return bw, func(commit bool) error {
		if !commit {
			if enc != nil {
				_ = enc.Close()
			}
			discard()
			return nil
		}

		err := bw.Flush()
		if enc != nil {
			err = errors.Join(err, enc.Close())
		}
		err = errors.Join(err, f.Chmod(0o644), f.Close())
		if err != nil {
			_ = os.Remove(f.Name())
			return fmt.Errorf("finishing output: %w", err)
		}
		if err := os.Rename(f.Name(), path); err != nil {
			_ = os.Remove(f.Name())
			return fmt.Errorf("finishing output: %w", err)
		}
		return nil
	}, nil
}
