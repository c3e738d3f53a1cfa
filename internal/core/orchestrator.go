package core

// orchestrator.go drives the job state machine:
//
//	Created -> InProgress -> {Complete, Expired, Failed}
//
// Each start/batch/complete call is one short, synchronous unit of work.
// There is no background scheduler; the client drives the loop and is
// expected to issue batch calls for one token sequentially, awaiting each
// before sending the next. Concurrent batches for the same token are a
// known race, not a supported mode: file-offset seeking and CSV appends
// are not safe against concurrent writers, and stats counters are added
// without compare-and-swap.
//
// Replaying a batch position after a partial failure may double-count
// items. The engine does not guarantee exactly-once processing.

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pkoster/batchline/internal/logging"
)

// Options carries the engine tunables, mapped from application config.
type Options struct {
	BatchSize  int
	ExportTTL  time.Duration
	ImportTTL  time.Duration
	ExportsDir string
}

// Orchestrator coordinates job sessions, row sources, per-item processing,
// stats, and the CSV sink. All collaborators are injected.
type Orchestrator struct {
	registry *Registry
	sessions *SessionStore
	stats    StatsStore
	opts     Options
}

// NewOrchestrator creates an orchestrator over the given collaborators.
func NewOrchestrator(registry *Registry, sessions *SessionStore, stats StatsStore, opts Options) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		sessions: sessions,
		stats:    stats,
		opts:     opts,
	}
}

// StartResult is returned from every job start call.
type StartResult struct {
	Token      string `json:"token"`
	TotalItems int    `json:"totalItems"` // -1 when unknown (sync)
	BatchSize  int    `json:"batchSize"`
}

// ExportBatchResult is returned from each export batch call.
type ExportBatchResult struct {
	ProcessedItems int    `json:"processedItems"` // Cumulative rows written
	TotalItems     int    `json:"totalItems"`
	IsComplete     bool   `json:"isComplete"`
	DownloadRef    string `json:"downloadRef,omitempty"` // Set on the final batch
}

// BatchResponse pairs one batch result with a stats snapshot.
type BatchResponse struct {
	BatchResult
	Stats OperationStats `json:"stats"`
}

// StartExport creates an export session. The filter snapshot is captured
// here and never re-read from later requests. A failed start creates no
// session.
func (o *Orchestrator) StartExport(ctx context.Context, ref string, snap Snapshot) (StartResult, error) {
	def, err := o.definition(ref, KindExport)
	if err != nil {
		return StartResult{}, err
	}
	if def.Export == nil || def.Count == nil {
		return StartResult{}, fmt.Errorf("%w: export for %s", ErrMissingCallback, ref)
	}

	total, err := def.Count(ctx, snap)
	if err != nil {
		return StartResult{}, sourceFetchError(err)
	}

	sinkPath := filepath.Join(o.opts.ExportsDir, uuid.New().String()+".csv")

	token, err := o.sessions.Start(ctx, JobSession{
		Kind:         KindExport,
		OperationRef: ref,
		Snapshot:     snap,
		TotalItems:   total,
		SinkPath:     sinkPath,
		Headers:      def.FieldNames(),
		TTL:          o.opts.ExportTTL,
	})
	if err != nil {
		return StartResult{}, err
	}

	if _, err := o.stats.InitRun(ctx, ref, "export", total); err != nil {
		return StartResult{}, err
	}

	logging.FromContext(ctx).Info("export started",
		"operation", ref, "token", token, "total", total)

	return StartResult{Token: token, TotalItems: total, BatchSize: o.opts.BatchSize}, nil
}

// ExportBatch pulls one slice of host records and appends it to the
// session's CSV file. On the final batch it completes the run and returns
// a one-time download reference.
func (o *Orchestrator) ExportBatch(ctx context.Context, token string, batchIndex int) (ExportBatchResult, error) {
	session, err := o.session(ctx, token, KindExport)
	if err != nil {
		return ExportBatchResult{}, err
	}

	def, err := o.definition(session.OperationRef, KindExport)
	if err != nil {
		return ExportBatchResult{}, err
	}
	if def.Export == nil {
		return ExportBatchResult{}, fmt.Errorf("%w: export for %s", ErrMissingCallback, session.OperationRef)
	}

	source := &QueryRowSource{Query: def.Export, Snapshot: session.Snapshot, Total: session.TotalItems}
	offset := batchIndex * o.opts.BatchSize

	slice, err := source.Fetch(ctx, Position{Offset: offset}, o.opts.BatchSize)
	if err != nil {
		return ExportBatchResult{}, err
	}

	rows := make([]map[string]string, len(slice.Rows))
	for i, row := range slice.Rows {
		rows[i] = row.Values
	}

	if err := WriteCSVBatch(session.SinkPath, rows, session.Headers, def.HeaderLabels(), batchIndex == 0); err != nil {
		return ExportBatchResult{}, err
	}

	// Rows written land in the created counter; exports have no
	// updated/skipped/failed classification.
	if _, err := o.stats.ApplyBatch(ctx, session.OperationRef, BatchResult{
		Processed: len(rows),
		Created:   len(rows),
		Total:     session.TotalItems,
	}); err != nil {
		return ExportBatchResult{}, err
	}

	result := ExportBatchResult{
		ProcessedItems: offset + len(rows),
		TotalItems:     session.TotalItems,
		IsComplete:     !slice.HasMore,
	}

	if result.IsComplete {
		duration := time.Since(session.CreatedAt)
		if _, err := o.stats.CompleteRun(ctx, session.OperationRef, StatusComplete, duration); err != nil {
			return ExportBatchResult{}, err
		}
		// The token doubles as the one-time download reference; the
		// session stays alive until the download or the TTL sweep.
		result.DownloadRef = token

		logging.FromContext(ctx).Info("export complete",
			"operation", session.OperationRef, "token", token,
			"rows", result.ProcessedItems, "duration", duration)
	}

	return result, nil
}

// Download opens a completed export for reading. The download is one-shot:
// closing the returned reader deletes the file and the session.
func (o *Orchestrator) Download(ctx context.Context, downloadRef string) (io.ReadCloser, string, error) {
	session, err := o.session(ctx, downloadRef, KindExport)
	if err != nil {
		return nil, "", err
	}

	file, err := os.Open(session.SinkPath)
	if err != nil {
		return nil, "", fmt.Errorf("download not found: %w", err)
	}

	name := filepath.Base(session.SinkPath)
	return &oneShotDownload{
		file: file,
		cleanup: func() {
			os.Remove(session.SinkPath)
			o.sessions.Delete(context.Background(), downloadRef)
		},
	}, name, nil
}

// StartImport creates an import session over an uploaded CSV file.
// The resolved header and field mapping are captured once, here.
func (o *Orchestrator) StartImport(ctx context.Context, ref, filePath string, fieldMap map[string]string) (StartResult, error) {
	def, err := o.definition(ref, KindImport)
	if err != nil {
		return StartResult{}, err
	}
	if def.Process == nil {
		return StartResult{}, fmt.Errorf("%w: processor for %s", ErrMissingCallback, ref)
	}

	headers, err := ReadFileHeader(filePath)
	if err != nil {
		return StartResult{}, err
	}

	if err := ValidateFieldMap(fieldMap, def.Fields, headers); err != nil {
		return StartResult{}, err
	}

	total, err := CountFileRows(filePath)
	if err != nil {
		return StartResult{}, err
	}

	token, err := o.sessions.Start(ctx, JobSession{
		Kind:         KindImport,
		OperationRef: ref,
		TotalItems:   total,
		SourcePath:   filePath,
		FieldMap:     fieldMap,
		Headers:      headers,
		TTL:          o.opts.ImportTTL,
	})
	if err != nil {
		return StartResult{}, err
	}

	if _, err := o.stats.InitRun(ctx, ref, filepath.Base(filePath), total); err != nil {
		return StartResult{}, err
	}

	logging.FromContext(ctx).Info("import started",
		"operation", ref, "token", token, "total", total)

	return StartResult{Token: token, TotalItems: total, BatchSize: o.opts.BatchSize}, nil
}

// ImportBatch reads one slice of the uploaded file, maps each row through
// the field mapping, and runs the operation's item processor. On the final
// batch the run is completed and the uploaded file removed.
func (o *Orchestrator) ImportBatch(ctx context.Context, token string, offset int) (BatchResponse, error) {
	session, err := o.session(ctx, token, KindImport)
	if err != nil {
		return BatchResponse{}, err
	}

	def, err := o.definition(session.OperationRef, KindImport)
	if err != nil {
		return BatchResponse{}, err
	}
	if def.Process == nil {
		return BatchResponse{}, fmt.Errorf("%w: processor for %s", ErrMissingCallback, session.OperationRef)
	}

	source := &FileRowSource{Path: session.SourcePath, Headers: session.Headers}
	slice, err := source.Fetch(ctx, Position{Offset: offset}, o.opts.BatchSize)
	if err != nil {
		return BatchResponse{}, err
	}

	var items []batchItem
	empties := 0
	for _, row := range slice.Rows {
		if IsEmptyRow(row, session.FieldMap) {
			empties++
			continue
		}
		items = append(items, batchItem{
			line: row.Line,
			data: MapRow(row, session.FieldMap, def.Fields),
		})
	}

	result := ProcessBatch(ctx, items, def.Process, def.Validate)
	result.Processed += empties
	result.Skipped += empties
	result.HasMore = slice.HasMore
	result.NextOffset = slice.Next.Offset
	result.Total = session.TotalItems

	stats, err := o.stats.ApplyBatch(ctx, session.OperationRef, result)
	if err != nil {
		return BatchResponse{}, err
	}

	if !slice.HasMore {
		duration := time.Since(session.CreatedAt)
		stats, err = o.stats.CompleteRun(ctx, session.OperationRef, StatusComplete, duration)
		if err != nil {
			return BatchResponse{}, err
		}
		// The uploaded file is no longer needed once every row is consumed.
		if err := os.Remove(session.SourcePath); err != nil && !os.IsNotExist(err) {
			logging.FromContext(ctx).Warn("failed to remove import file",
				"path", session.SourcePath, "error", err)
		}

		logging.FromContext(ctx).Info("import complete",
			"operation", session.OperationRef, "token", token,
			"created", stats.Created, "failed", stats.Failed, "duration", duration)
	}

	return BatchResponse{BatchResult: result, Stats: stats}, nil
}

// StartSync creates a sync session against the operation's external API.
// The total is unknown until the remote reports one.
func (o *Orchestrator) StartSync(ctx context.Context, ref string) (StartResult, error) {
	def, err := o.definition(ref, KindSync)
	if err != nil {
		return StartResult{}, err
	}
	if def.Fetch == nil || def.Process == nil {
		return StartResult{}, fmt.Errorf("%w: fetch/processor for %s", ErrMissingCallback, ref)
	}

	token, err := o.sessions.Start(ctx, JobSession{
		Kind:         KindSync,
		OperationRef: ref,
		TotalItems:   -1,
		TTL:          o.opts.ImportTTL,
	})
	if err != nil {
		return StartResult{}, err
	}

	if _, err := o.stats.InitRun(ctx, ref, "sync", -1); err != nil {
		return StartResult{}, err
	}

	logging.FromContext(ctx).Info("sync started", "operation", ref, "token", token)

	return StartResult{Token: token, TotalItems: -1, BatchSize: o.opts.BatchSize}, nil
}

// SyncBatch fetches one remote page and runs every item through the
// operation's processor. The cursor is passed back unchanged from the
// previous response.
func (o *Orchestrator) SyncBatch(ctx context.Context, token, cursor string) (BatchResponse, error) {
	session, err := o.session(ctx, token, KindSync)
	if err != nil {
		return BatchResponse{}, err
	}

	def, err := o.definition(session.OperationRef, KindSync)
	if err != nil {
		return BatchResponse{}, err
	}
	if def.Fetch == nil || def.Process == nil {
		return BatchResponse{}, fmt.Errorf("%w: fetch/processor for %s", ErrMissingCallback, session.OperationRef)
	}

	source := &CursorRowSource{FetchPage: def.Fetch}
	slice, err := source.Fetch(ctx, Position{Cursor: cursor}, o.opts.BatchSize)
	if err != nil {
		return BatchResponse{}, err
	}

	items := make([]batchItem, 0, len(slice.Rows))
	for _, row := range slice.Rows {
		items = append(items, batchItem{line: row.Line, data: canonicalize(row.Values, def.Fields)})
	}

	result := ProcessBatch(ctx, items, def.Process, nil)
	result.HasMore = slice.HasMore
	result.NextCursor = slice.Next.Cursor
	result.Total = slice.Total

	stats, err := o.stats.ApplyBatch(ctx, session.OperationRef, result)
	if err != nil {
		return BatchResponse{}, err
	}

	if !slice.HasMore {
		duration := time.Since(session.CreatedAt)
		stats, err = o.stats.CompleteRun(ctx, session.OperationRef, StatusComplete, duration)
		if err != nil {
			return BatchResponse{}, err
		}

		logging.FromContext(ctx).Info("sync complete",
			"operation", session.OperationRef, "token", token,
			"created", stats.Created, "updated", stats.Updated, "duration", duration)
	}

	return BatchResponse{BatchResult: result, Stats: stats}, nil
}

// Complete finalizes a job on behalf of the client: records the final
// status, deletes the session, and returns the frozen stats. Called with
// StatusCancelled when the user abandons a job deliberately.
func (o *Orchestrator) Complete(ctx context.Context, token string, status RunStatus, duration time.Duration) (OperationStats, error) {
	session, err := o.sessions.Get(ctx, token)
	if err != nil {
		return OperationStats{}, err
	}

	if duration <= 0 {
		duration = time.Since(session.CreatedAt)
	}

	stats, err := o.stats.CompleteRun(ctx, session.OperationRef, status, duration)
	if err != nil {
		return OperationStats{}, err
	}

	if err := o.sessions.Delete(ctx, token); err != nil {
		return OperationStats{}, err
	}

	logging.FromContext(ctx).Info("job completed",
		"operation", session.OperationRef, "token", token, "status", status)

	return stats, nil
}

// Stats returns a read-only snapshot for an operation ref.
func (o *Orchestrator) Stats(ctx context.Context, ref string) (OperationStats, error) {
	return o.stats.Get(ctx, ref)
}

// definition looks the operation up fresh; sessions never carry callbacks.
func (o *Orchestrator) definition(ref string, kind Kind) (OperationDefinition, error) {
	def, ok := o.registry.Get(ref)
	if !ok {
		return OperationDefinition{}, fmt.Errorf("%w: %s", ErrInvalidOperation, ref)
	}
	if def.Kind != kind {
		return OperationDefinition{}, fmt.Errorf("%w: %s is %s, not %s", ErrInvalidOperation, ref, def.Kind, kind)
	}
	return def, nil
}

// session loads a job session and checks it belongs to the expected kind.
func (o *Orchestrator) session(ctx context.Context, token string, kind Kind) (JobSession, error) {
	session, err := o.sessions.Get(ctx, token)
	if err != nil {
		return JobSession{}, err
	}
	if session.Kind != kind {
		return JobSession{}, fmt.Errorf("%w: token is a %s job", ErrInvalidOperation, session.Kind)
	}
	return session, nil
}

// canonicalize applies field sanitizers and defaults to a remote item.
// Fields map by name; operations without declared fields pass items through.
func canonicalize(values map[string]string, fields []FieldSpec) map[string]string {
	if len(fields) == 0 {
		return values
	}
	identity := make(map[string]string, len(fields))
	for _, f := range fields {
		identity[f.Name] = f.Name
	}
	return MapRow(Row{Values: values}, identity, fields)
}

// oneShotDownload deletes the export artifacts when closed.
type oneShotDownload struct {
	file    *os.File
	cleanup func()
}

func (d *oneShotDownload) Read(p []byte) (int, error) { return d.file.Read(p) }

func (d *oneShotDownload) Close() error {
	err := d.file.Close()
	d.cleanup()
	return err
}
