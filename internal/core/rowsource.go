package core

// rowsource.go defines the uniform pagination abstraction over the three
// places batch rows come from: an uploaded CSV file (offset-based), the
// host database (offset-based export reads), and an external paginated API
// (cursor-based, see cursor.go).
//
// A source is stateless between calls: each Fetch re-derives its position
// from the Position value the client sends back, so any server instance
// can serve any batch.

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// Position locates the next slice within a row source. Exactly one of
// Offset or Cursor is meaningful, depending on the source variant.
type Position struct {
	Offset int    // Zero-based data-row offset; the header row is not counted
	Cursor string // Opaque cursor for external API sources
}

// Row is one source row bound to its header.
// Values holds a cell per known column; ragged rows map missing columns to
// the empty string so a malformed row becomes one failed or skipped item
// instead of aborting the batch.
type Row struct {
	// Line is the physical line in the source file, with the header on
	// line 1, so error reports match what the user sees in a spreadsheet.
	// Sources without a header line count from 1.
	Line   int
	Values map[string]string
}

// Slice is one fetched batch of rows.
type Slice struct {
	Rows    []Row
	HasMore bool
	Next    Position
	Total   int // -1 if the source has not reported a total
}

// RowSource paginates uniformly over any of the source variants.
type RowSource interface {
	Fetch(ctx context.Context, pos Position, limit int) (Slice, error)
}

// FileRowSource reads an uploaded CSV file by data-row offset.
//
// Seeking skips pos.Offset parsed rows from the start of the file on every
// call. That is O(n) per call, but with batches advancing monotonically the
// total work stays linear in file size across the whole job.
type FileRowSource struct {
	Path    string
	Headers []string // Resolved at session start; authoritative for binding
}

// Fetch returns up to limit data rows starting at pos.Offset.
// HasMore is detected by peeking one row past the batch.
func (f *FileRowSource) Fetch(ctx context.Context, pos Position, limit int) (Slice, error) {
	if err := ctx.Err(); err != nil {
		return Slice{}, err
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return Slice{}, sourceFetchError(fmt.Errorf("open %s: %w", f.Path, err))
	}
	defer file.Close()

	reader := newCSVReader(file)

	// Skip the header row
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return Slice{}, sourceFetchError(errors.New("empty file"))
		}
		return Slice{}, sourceFetchError(fmt.Errorf("read header: %w", err))
	}

	// Seek: skip pos.Offset data rows
	for skipped := 0; skipped < pos.Offset; skipped++ {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				return Slice{Total: -1, Next: pos}, nil
			}
			return Slice{}, sourceFetchError(fmt.Errorf("seek to row %d: %w", pos.Offset, err))
		}
	}

	slice := Slice{Total: -1}
	for len(slice.Rows) < limit {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Slice{}, sourceFetchError(fmt.Errorf("read row: %w", err))
		}
		// +2: one for the header line, one for 1-indexing
		slice.Rows = append(slice.Rows, Row{
			Line:   pos.Offset + len(slice.Rows) + 2,
			Values: bindRecord(record, f.Headers),
		})
	}

	// Peek one row past the batch to detect more data
	if _, err := reader.Read(); err == nil {
		slice.HasMore = true
	}

	slice.Next = Position{Offset: pos.Offset + len(slice.Rows)}
	return slice, nil
}

// bindRecord maps a raw CSV record onto the header columns.
// Missing trailing cells become empty strings; extra cells are dropped.
func bindRecord(record, headers []string) map[string]string {
	values := make(map[string]string, len(headers))
	for i, col := range headers {
		if i < len(record) {
			values[col] = record[i]
		} else {
			values[col] = ""
		}
	}
	return values
}

// newCSVReader builds a CSV reader tolerant of real-world files: UTF-8 BOM
// skipped, ragged rows allowed, stray quotes tolerated.
func newCSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(newBOMSkippingReader(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

// ReadFileHeader returns the header row of a CSV file.
func ReadFileHeader(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, sourceFetchError(fmt.Errorf("open %s: %w", path, err))
	}
	defer file.Close()

	header, err := newCSVReader(file).Read()
	if err != nil {
		if err == io.EOF {
			return nil, sourceFetchError(errors.New("empty file"))
		}
		return nil, sourceFetchError(fmt.Errorf("read header: %w", err))
	}
	return header, nil
}

// CountFileRows returns the number of data rows in a CSV file, excluding
// the header. Called once at import start to size the job.
func CountFileRows(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, sourceFetchError(fmt.Errorf("open %s: %w", path, err))
	}
	defer file.Close()

	reader := newCSVReader(file)
	count := -1 // First row read is the header
	for {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				break
			}
			return 0, sourceFetchError(fmt.Errorf("count rows: %w", err))
		}
		count++
	}
	if count < 0 {
		return 0, sourceFetchError(errors.New("empty file"))
	}
	return count, nil
}

// bomSkippingReader strips a leading UTF-8 BOM (0xEF 0xBB 0xBF), commonly
// added by Windows spreadsheet tools.
type bomSkippingReader struct {
	reader  *bufio.Reader
	checked bool
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{reader: bufio.NewReader(r)}
}

func (b *bomSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		if lead, err := b.reader.Peek(3); err == nil &&
			lead[0] == 0xEF && lead[1] == 0xBB && lead[2] == 0xBF {
			b.reader.Discard(3)
		}
	}
	return b.reader.Read(p)
}

// QueryRowSource paginates over host records via an operation's export
// callback, presenting the same interface as the file and cursor variants.
type QueryRowSource struct {
	Query    ExportFetch
	Snapshot Snapshot
	Total    int // Known exactly at export start
}

// Fetch returns one offset-based slice of matching host records.
func (q *QueryRowSource) Fetch(ctx context.Context, pos Position, limit int) (Slice, error) {
	items, hasMore, err := q.Query(ctx, q.Snapshot, pos.Offset, limit)
	if err != nil {
		return Slice{}, sourceFetchError(err)
	}

	slice := Slice{HasMore: hasMore, Total: q.Total}
	for i, item := range items {
		slice.Rows = append(slice.Rows, Row{
			Line:   pos.Offset + i + 1,
			Values: item,
		})
	}
	slice.Next = Position{Offset: pos.Offset + len(items)}
	return slice, nil
}
