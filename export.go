// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Export table for offline analysis.
package sidechannel

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

var ExportHeader = []string{"key_byte_guess", "plaintext_tag", "measurement", "is_correct_label"}

// CSVWriter is a SampleSink writing one export row per sample.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
	rows   int
}

// The header is written immediately, so an empty sweep still yields a
// valid table.
func NewCSVWriter(dst io.Writer) *CSVWriter {
	w := csv.NewWriter(dst)
	w.Write(ExportHeader)
	return &CSVWriter{w: w}
}

// Creates filename and writes the header. Close flushes and closes the file.
func CreateCSV(filename string) (*CSVWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("Error creating export file: %v", err)
	}
	c := NewCSVWriter(f)
	c.closer = f
	return c, nil
}

func (c *CSVWriter) Record(s Sample) error {
	label := "0"
	if s.Correct {
		label = "1"
	}
	err := c.w.Write([]string{
		strconv.Itoa(s.Candidate),
		strconv.Itoa(s.PlaintextTag),
		strconv.FormatFloat(s.Measurement, 'g', -1, 64),
		label,
	})
	if err != nil {
		return fmt.Errorf("CSV write failed %v", err)
	}
	c.rows++
	return nil
}

func (c *CSVWriter) Flush() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("CSV flush failed %v", err)
	}
	return nil
}

// Data rows written so far, header excluded.
func (c *CSVWriter) Rows() int {
	return c.rows
}

func (c *CSVWriter) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// ExportRow is one parsed row of an export table.
type ExportRow struct {
	Guess       int
	Tag         int
	Measurement float64
	Correct     bool
}

// Parses an export table. The header must match ExportHeader.
func ReadCSV(src io.Reader) ([]ExportRow, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = len(ExportHeader)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading export header: %v", err)
	}
	for i, h := range ExportHeader {
		if header[i] != h {
			return nil, fmt.Errorf("%w: unexpected column %q, want %q", ErrInvalidConfig, header[i], h)
		}
	}
	var rows []ExportRow
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading export line %d: %v", line, err)
		}
		row, err := parseExportRow(rec)
		if err != nil {
			return nil, fmt.Errorf("export line %d: %v", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseExportRow(rec []string) (ExportRow, error) {
	var row ExportRow
	var err error
	if row.Guess, err = strconv.Atoi(rec[0]); err != nil {
		return row, err
	}
	if row.Guess < 0 || row.Guess > 255 {
		return row, fmt.Errorf("key byte guess %d out of range", row.Guess)
	}
	if row.Tag, err = strconv.Atoi(rec[1]); err != nil {
		return row, err
	}
	if row.Measurement, err = strconv.ParseFloat(rec[2], 64); err != nil {
		return row, err
	}
	switch rec[3] {
	case "1":
		row.Correct = true
	case "0":
	default:
		return row, fmt.Errorf("bad label %q", rec[3])
	}
	return row, nil
}

func LoadCSV(filename string) ([]ExportRow, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("Error opening export file: %v", err)
	}
	defer f.Close()
	return ReadCSV(f)
}
