package core

// sink.go is the incremental CSV writer for exports. Each batch call
// appends its rows to the session's file; only the first batch truncates
// and writes the BOM and header.
//
// The sink performs no locking: batch calls for one token are serialized
// by the client, which is the engine's documented concurrency contract.

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// utf8BOM is written once at the start of every export file so spreadsheet
// tools on Windows detect the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSVBatch appends one batch of rows to the CSV file at path.
//
// On the first batch the file is truncated, the UTF-8 BOM is emitted, and
// a header row is written from labels (falling back to the raw column
// names). The column order is fixed by columns and stays authoritative for
// every subsequent batch regardless of map iteration order. All values are
// quoted and escaped per RFC 4180 by encoding/csv.
func WriteCSVBatch(path string, rows []map[string]string, columns, labels []string, first bool) error {
	flags := os.O_WRONLY | os.O_CREATE
	if first {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return sinkError(fmt.Errorf("create export dir: %w", err))
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return sinkError(fmt.Errorf("open %s: %w", path, err))
	}

	if first {
		if _, err := file.Write(utf8BOM); err != nil {
			file.Close()
			return sinkError(fmt.Errorf("write BOM: %w", err))
		}
	}

	writer := csv.NewWriter(file)

	if first {
		header := columns
		if len(labels) == len(columns) {
			header = labels
		}
		if err := writer.Write(header); err != nil {
			file.Close()
			return sinkError(fmt.Errorf("write header: %w", err))
		}
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = row[col]
		}
		if err := writer.Write(record); err != nil {
			file.Close()
			return sinkError(fmt.Errorf("write row: %w", err))
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return sinkError(fmt.Errorf("flush: %w", err))
	}
	if err := file.Close(); err != nil {
		return sinkError(fmt.Errorf("close %s: %w", path, err))
	}

	return nil
}
