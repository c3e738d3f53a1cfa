package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return path
}

func TestFileRowSource_Fetch(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("email,name\n")
	for i := 1; i <= 7; i++ {
		fmt.Fprintf(&sb, "user%d@example.com,User %d\n", i, i)
	}
	path := writeTestCSV(t, sb.String())
	source := &FileRowSource{Path: path, Headers: []string{"email", "name"}}
	ctx := context.Background()

	tests := []struct {
		name        string
		offset      int
		limit       int
		wantRows    int
		wantFirst   string
		wantHasMore bool
		wantNext    int
	}{
		{
			name:   "first batch", offset: 0, limit: 3,
			wantRows: 3, wantFirst: "user1@example.com", wantHasMore: true, wantNext: 3,
		},
		{
			name:   "middle batch", offset: 3, limit: 3,
			wantRows: 3, wantFirst: "user4@example.com", wantHasMore: true, wantNext: 6,
		},
		{
			name:   "final partial batch", offset: 6, limit: 3,
			wantRows: 1, wantFirst: "user7@example.com", wantHasMore: false, wantNext: 7,
		},
		{
			name:   "offset past end", offset: 10, limit: 3,
			wantRows: 0, wantHasMore: false, wantNext: 10,
		},
		{
			name:   "limit exactly consumes rest", offset: 4, limit: 3,
			wantRows: 3, wantFirst: "user5@example.com", wantHasMore: false, wantNext: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slice, err := source.Fetch(ctx, Position{Offset: tt.offset}, tt.limit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(slice.Rows) != tt.wantRows {
				t.Fatalf("got %d rows, want %d", len(slice.Rows), tt.wantRows)
			}
			if tt.wantRows > 0 && slice.Rows[0].Values["email"] != tt.wantFirst {
				t.Errorf("first row = %q, want %q", slice.Rows[0].Values["email"], tt.wantFirst)
			}
			if slice.HasMore != tt.wantHasMore {
				t.Errorf("hasMore = %v, want %v", slice.HasMore, tt.wantHasMore)
			}
			if slice.Next.Offset != tt.wantNext {
				t.Errorf("next offset = %d, want %d", slice.Next.Offset, tt.wantNext)
			}
		})
	}
}

func TestFileRowSource_CoversEveryRowExactlyOnce(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("id\n")
	for i := 1; i <= 25; i++ {
		fmt.Fprintf(&sb, "%d\n", i)
	}
	path := writeTestCSV(t, sb.String())
	source := &FileRowSource{Path: path, Headers: []string{"id"}}

	seen := map[string]int{}
	pos := Position{}
	for {
		slice, err := source.Fetch(context.Background(), pos, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, row := range slice.Rows {
			seen[row.Values["id"]]++
		}
		if !slice.HasMore {
			break
		}
		pos = slice.Next
	}

	if len(seen) != 25 {
		t.Fatalf("saw %d distinct rows, want 25", len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("row %s seen %d times, want exactly once", id, count)
		}
	}
}

func TestFileRowSource_LineNumbers(t *testing.T) {
	path := writeTestCSV(t, "id\n1\n2\n3\n4\n")
	source := &FileRowSource{Path: path, Headers: []string{"id"}}

	slice, err := source.Fetch(context.Background(), Position{Offset: 2}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Physical file lines: header is line 1, so data rows 3 and 4 sit on
	// lines 4 and 5.
	if slice.Rows[0].Line != 4 || slice.Rows[1].Line != 5 {
		t.Errorf("lines = %d, %d; want 4, 5", slice.Rows[0].Line, slice.Rows[1].Line)
	}
}

func TestFileRowSource_RaggedRows(t *testing.T) {
	path := writeTestCSV(t, "a,b,c\n1,2,3\nonly-one\n1,2,3,extra\n")
	source := &FileRowSource{Path: path, Headers: []string{"a", "b", "c"}}

	slice, err := source.Fetch(context.Background(), Position{}, 10)
	if err != nil {
		t.Fatalf("ragged rows must not abort the batch: %v", err)
	}
	if len(slice.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(slice.Rows))
	}

	short := slice.Rows[1].Values
	if short["a"] != "only-one" || short["b"] != "" || short["c"] != "" {
		t.Errorf("short row = %v, want missing cells bound to empty strings", short)
	}

	long := slice.Rows[2].Values
	if len(long) != 3 {
		t.Errorf("long row has %d values, want extra cells dropped", len(long))
	}
}

func TestFileRowSource_BOMSkipped(t *testing.T) {
	content := string([]byte{0xEF, 0xBB, 0xBF}) + "email\nx@example.com\n"
	path := writeTestCSV(t, content)

	headers, err := ReadFileHeader(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(headers) != 1 || headers[0] != "email" {
		t.Errorf("header = %v, want BOM stripped from first column", headers)
	}
}

func TestFileRowSource_ContextCancelled(t *testing.T) {
	path := writeTestCSV(t, "id\n1\n")
	source := &FileRowSource{Path: path, Headers: []string{"id"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := source.Fetch(ctx, Position{}, 10); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestReadFileHeader_EmptyFile(t *testing.T) {
	path := writeTestCSV(t, "")
	if _, err := ReadFileHeader(path); err == nil {
		t.Error("expected error for empty file")
	}
}

func TestCountFileRows(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected int
		wantErr  bool
	}{
		{name: "header plus three rows", content: "id\n1\n2\n3\n", expected: 3},
		{name: "header only", content: "id\n", expected: 0},
		{name: "no trailing newline", content: "id\n1\n2", expected: 2},
		{name: "empty file", content: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestCSV(t, tt.content)
			count, err := CountFileRows(path)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if count != tt.expected {
				t.Errorf("got %d, want %d", count, tt.expected)
			}
		})
	}
}

func TestQueryRowSource_Fetch(t *testing.T) {
	records := make([]map[string]string, 12)
	for i := range records {
		records[i] = map[string]string{"id": fmt.Sprintf("%d", i+1)}
	}

	query := func(ctx context.Context, snap Snapshot, offset, limit int) ([]map[string]string, bool, error) {
		end := offset + limit
		if end > len(records) {
			end = len(records)
		}
		if offset >= len(records) {
			return nil, false, nil
		}
		return records[offset:end], end < len(records), nil
	}

	source := &QueryRowSource{Query: query, Total: 12}

	slice, err := source.Fetch(context.Background(), Position{Offset: 5}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slice.Rows) != 5 || !slice.HasMore {
		t.Errorf("got %d rows, hasMore %v; want 5, true", len(slice.Rows), slice.HasMore)
	}
	if slice.Rows[0].Values["id"] != "6" {
		t.Errorf("first id = %s, want 6", slice.Rows[0].Values["id"])
	}
	if slice.Total != 12 {
		t.Errorf("total = %d, want 12", slice.Total)
	}
	if slice.Next.Offset != 10 {
		t.Errorf("next offset = %d, want 10", slice.Next.Offset)
	}
}

func TestQueryRowSource_FetchErrorIsSourceFetch(t *testing.T) {
	source := &QueryRowSource{
		Query: func(ctx context.Context, snap Snapshot, offset, limit int) ([]map[string]string, bool, error) {
			return nil, false, fmt.Errorf("relation does not exist")
		},
	}

	_, err := source.Fetch(context.Background(), Position{}, 10)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrSourceFetch) {
		t.Errorf("error %v not classified as a source fetch failure", err)
	}
}

func TestCursorRowSource_Fetch(t *testing.T) {
	pages := map[string]Page{
		"": {
			Items:   []map[string]string{{"id": "a"}, {"id": "b"}},
			HasMore: true,
			Cursor:  "p2",
			Total:   5,
		},
		"p2": {
			Items:   []map[string]string{{"id": "c"}},
			HasMore: false,
			Total:   5,
		},
	}

	source := &CursorRowSource{FetchPage: func(ctx context.Context, cursor string, limit int) (Page, error) {
		page, ok := pages[cursor]
		if !ok {
			return Page{}, fmt.Errorf("unknown cursor %q", cursor)
		}
		return page, nil
	}}

	first, err := source.Fetch(context.Background(), Position{}, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.Rows) != 2 || !first.HasMore || first.Next.Cursor != "p2" {
		t.Errorf("first page = %d rows, hasMore %v, cursor %q; want 2, true, p2",
			len(first.Rows), first.HasMore, first.Next.Cursor)
	}
	if first.Total != 5 {
		t.Errorf("total = %d, want 5", first.Total)
	}

	second, err := source.Fetch(context.Background(), first.Next, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second.Rows) != 1 || second.HasMore {
		t.Errorf("second page = %d rows, hasMore %v; want 1, false", len(second.Rows), second.HasMore)
	}
}
