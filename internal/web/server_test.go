package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkoster/batchline/internal/config"
	"github.com/pkoster/batchline/internal/core"
	"github.com/pkoster/batchline/internal/kv"
)

// newTestServer wires a server over in-memory stores and the given
// operation definitions.
func newTestServer(t *testing.T, defs ...core.OperationDefinition) *Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.Jobs.UploadsDir = t.TempDir()
	cfg.Jobs.MaxUploadSize = 10 << 20
	cfg.Rate.Enabled = false

	registry := core.NewRegistry()
	for _, def := range defs {
		registry.Register(def)
	}

	orch := core.NewOrchestrator(registry,
		core.NewSessionStore(kv.NewMemoryStore()),
		core.NewMemoryStatsStore(50, 20),
		core.Options{
			BatchSize:  10,
			ExportTTL:  time.Hour,
			ImportTTL:  time.Hour,
			ExportsDir: t.TempDir(),
		})

	return NewServer(orch, registry, cfg)
}

func exportDef(ref string, n int) core.OperationDefinition {
	records := make([]map[string]string, n)
	for i := range records {
		records[i] = map[string]string{"id": fmt.Sprintf("%d", i+1)}
	}
	return core.OperationDefinition{
		Ref:    ref,
		Kind:   core.KindExport,
		Fields: []core.FieldSpec{{Name: "id", Label: "ID"}},
		Count: func(ctx context.Context, snap core.Snapshot) (int, error) {
			return n, nil
		},
		Export: func(ctx context.Context, snap core.Snapshot, offset, limit int) ([]map[string]string, bool, error) {
			if offset >= len(records) {
				return nil, false, nil
			}
			end := offset + limit
			if end > len(records) {
				end = len(records)
			}
			return records[offset:end], end < len(records), nil
		},
	}
}

func importDef(ref string) core.OperationDefinition {
	return core.OperationDefinition{
		Ref:    ref,
		Kind:   core.KindImport,
		Fields: []core.FieldSpec{{Name: "email", Required: true}},
		Process: func(ctx context.Context, item map[string]string) (core.Outcome, error) {
			return core.Created(), nil
		},
	}
}

func doJSON(t *testing.T, server *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	var fields map[string]json.RawMessage
	if rec.Body.Len() > 0 && strings.Contains(rec.Header().Get("Content-Type"), "json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &fields); err != nil {
			t.Fatalf("%s %s: invalid JSON response %q", method, path, rec.Body.String())
		}
	}
	return rec, fields
}

func jsonString(t *testing.T, fields map[string]json.RawMessage, key string) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(fields[key], &s); err != nil {
		t.Fatalf("field %s = %s, want string", key, fields[key])
	}
	return s
}

func TestServer_ExportFlow(t *testing.T) {
	server := newTestServer(t, exportDef("orders", 25))

	rec, fields := doJSON(t, server, http.MethodPost, "/api/export/orders/start", map[string]any{
		"filters": map[string]string{"status": "paid"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	token := jsonString(t, fields, "token")

	var downloadRef string
	for batch := 0; batch < 3; batch++ {
		rec, fields = doJSON(t, server, http.MethodPost,
			fmt.Sprintf("/api/export/%s/batch?batch=%d", token, batch), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("batch %d status = %d: %s", batch, rec.Code, rec.Body.String())
		}
		var complete bool
		json.Unmarshal(fields["isComplete"], &complete)
		if complete {
			downloadRef = jsonString(t, fields, "downloadRef")
		}
	}
	if downloadRef == "" {
		t.Fatal("no download ref after the final batch")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/download/"+downloadRef, nil)
	dl := httptest.NewRecorder()
	server.Router().ServeHTTP(dl, req)
	if dl.Code != http.StatusOK {
		t.Fatalf("download status = %d", dl.Code)
	}
	if ct := dl.Header().Get("Content-Type"); !strings.Contains(ct, "text/csv") {
		t.Errorf("content type = %q, want text/csv", ct)
	}
	if !strings.Contains(dl.Header().Get("Content-Disposition"), "attachment") {
		t.Errorf("disposition = %q, want attachment", dl.Header().Get("Content-Disposition"))
	}
	lines := strings.Split(strings.TrimRight(dl.Body.String(), "\n"), "\n")
	if len(lines) != 26 {
		t.Errorf("got %d lines, want header + 25 rows", len(lines))
	}
}

func TestServer_ImportFlow(t *testing.T) {
	server := newTestServer(t, importDef("subscribers"))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "subs.csv")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("Email,Name\na@example.com,Ann\nb@example.com,Bob\n"))
	mw.WriteField("mapping", `{"email":"Email"}`)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/import/subscribers/start", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}

	var start struct {
		Token      string `json:"token"`
		TotalItems int    `json:"totalItems"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &start); err != nil {
		t.Fatal(err)
	}
	if start.TotalItems != 2 {
		t.Errorf("total = %d, want 2", start.TotalItems)
	}

	rec2, fields := doJSON(t, server, http.MethodPost,
		"/api/import/"+start.Token+"/batch?offset=0", nil)
	if rec2.Code != http.StatusOK {
		t.Fatalf("batch status = %d: %s", rec2.Code, rec2.Body.String())
	}
	var created int
	json.Unmarshal(fields["created"], &created)
	if created != 2 {
		t.Errorf("created = %d, want 2", created)
	}
}

func TestServer_ListOperations(t *testing.T) {
	server := newTestServer(t, exportDef("orders", 1), importDef("subscribers"))

	req := httptest.NewRequest(http.MethodGet, "/api/operations", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var infos []operationInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d operations, want 2", len(infos))
	}
	// Sorted by kind then ref: export before import
	if infos[0].Ref != "orders" || infos[1].Ref != "subscribers" {
		t.Errorf("order = %s, %s; want orders, subscribers", infos[0].Ref, infos[1].Ref)
	}
}

func TestServer_ErrorStatuses(t *testing.T) {
	server := newTestServer(t, exportDef("orders", 5))

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{
			name:   "expired token is 410",
			method: http.MethodPost, path: "/api/export/unknown-token/batch?batch=0",
			wantStatus: http.StatusGone, wantCode: "SES001",
		},
		{
			name:   "unknown operation is 404",
			method: http.MethodPost, path: "/api/export/ghost/start",
			wantStatus: http.StatusNotFound, wantCode: "OPD001",
		},
		{
			name:   "missing batch param is 400",
			method: http.MethodPost, path: "/api/export/some-token/batch",
			wantStatus: http.StatusBadRequest, wantCode: "REQ001",
		},
		{
			name:   "unknown sync operation is 404",
			method: http.MethodPost, path: "/api/sync/ghost/start",
			wantStatus: http.StatusNotFound, wantCode: "OPD001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, fields := doJSON(t, server, tt.method, tt.path, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := jsonString(t, fields, "code"); got != tt.wantCode {
				t.Errorf("code = %s, want %s", got, tt.wantCode)
			}
		})
	}
}

func TestServer_CompleteCancelsJob(t *testing.T) {
	server := newTestServer(t, exportDef("orders", 5))

	_, fields := doJSON(t, server, http.MethodPost, "/api/export/orders/start", nil)
	token := jsonString(t, fields, "token")

	rec, fields := doJSON(t, server, http.MethodPost, "/api/jobs/"+token+"/complete",
		map[string]any{"status": "cancelled"})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := jsonString(t, fields, "lastStatus"); got != "cancelled" {
		t.Errorf("lastStatus = %s, want cancelled", got)
	}

	// The session is gone
	rec, _ = doJSON(t, server, http.MethodPost, "/api/export/"+token+"/batch?batch=0", nil)
	if rec.Code != http.StatusGone {
		t.Errorf("status after complete = %d, want 410", rec.Code)
	}
}

func TestServer_StatsEndpoint(t *testing.T) {
	server := newTestServer(t, exportDef("orders", 5))

	_, fields := doJSON(t, server, http.MethodPost, "/api/export/orders/start", nil)
	token := jsonString(t, fields, "token")
	doJSON(t, server, http.MethodPost, "/api/export/"+token+"/batch?batch=0", nil)

	rec, fields := doJSON(t, server, http.MethodGet, "/api/stats/orders", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var created int
	json.Unmarshal(fields["created"], &created)
	if created != 5 {
		t.Errorf("created = %d, want 5 exported rows", created)
	}
}

func TestServer_InvalidCompleteStatus(t *testing.T) {
	server := newTestServer(t, exportDef("orders", 5))

	rec, _ := doJSON(t, server, http.MethodPost, "/api/jobs/whatever/complete",
		map[string]any{"status": "bogus"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRateLimiterCloseStopsCleanup(t *testing.T) {
	rl := newRateLimiter(10, time.Minute)

	closed := make(chan struct{})
	go func() {
		rl.close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close() did not return, cleanup goroutine still running")
	}

	// Closing again is a no-op
	rl.close()
}

func TestServer_ShutdownStopsRateLimiter(t *testing.T) {
	server := newTestServer(t, exportDef("orders", 5))
	server.cfg.Rate.Enabled = true
	server.cfg.Rate.RequestsPerMinute = 100
	server.limiter = newRateLimiter(server.cfg.Rate.RequestsPerMinute, time.Minute)

	if err := server.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case <-server.limiter.done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown() did not stop the limiter cleanup goroutine")
	}
}
