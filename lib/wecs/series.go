// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package wecs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrSeriesExhausted is returned by [Series.Next] once every row has
// been consumed.
var ErrSeriesExhausted = errors.New("wind series exhausted")

// Series reads wind speeds row by row. Each row holds one or more
// comma-separated speeds (m/s) for one step.
type Series struct {
	scanner *bufio.Scanner
	closers []io.Closer
	row     int
}

// OpenSeries opens the wind series at path. The extension selects the
// decompressor: ".zst" for zstd, ".lz4" for an lz4 frame, anything
// else is read as plain CSV.
func OpenSeries(path string) (*Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wind series: %w", err)
	}
	series := &Series{closers: []io.Closer{file}}
	var reader io.Reader = file
	switch filepath.Ext(path) {
	case ".zst":
		decoder, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("opening zstd wind series %s: %w", path, err)
		}
		series.closers = append(series.closers, decoderCloser{decoder})
		reader = decoder
	case ".lz4":
		reader = lz4.NewReader(file)
	}
	series.scanner = bufio.NewScanner(reader)
	return series, nil
}

// NewSeries reads a plain CSV series from r.
func NewSeries(r io.Reader) *Series {
	return &Series{scanner: bufio.NewScanner(r)}
}

// Next reads the next row and expands it to count speeds: speed i is
// column i modulo the row length. Blank lines are skipped.
func (s *Series) Next(count int) ([]float64, error) {
	for s.scanner.Scan() {
		s.row++
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		row, err := parseRow(line)
		if err != nil {
			return nil, fmt.Errorf("wind series row %d: %w", s.row, err)
		}
		speeds := make([]float64, count)
		for i := range speeds {
			speeds[i] = row[i%len(row)]
		}
		return speeds, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading wind series: %w", err)
	}
	return nil, ErrSeriesExhausted
}

// Close releases the underlying file and decompressor.
func (s *Series) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parseRow(line string) ([]float64, error) {
	fields := strings.Split(line, ",")
	row := make([]float64, len(fields))
	for i, field := range fields {
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		row[i] = value
	}
	return row, nil
}

// decoderCloser adapts zstd.Decoder, whose Close returns nothing.
type decoderCloser struct {
	decoder *zstd.Decoder
}

func (c decoderCloser) Close() error {
	c.decoder.Close()
	return nil
}
