package services

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/platform/objectstore"
)

func TestSubmitFeedbackStoresRowAndLogs(t *testing.T) {
	gdb := newTestDB(t)
	blobs := objectstore.NewMemory()
	svc := NewFeedbackService(logger.NewNop(), gdb, blobs)

	logs := []map[string]any{
		{"level": "error", "message": "stream dropped"},
		{"level": "info", "message": "retrying"},
	}
	contact := &Contact{Name: "Sam", Email: "sam@example.com"}

	id, err := svc.Submit(context.Background(), "visitor-abc123", "bug", "stream keeps dropping", logs, "Mozilla/5.0", contact)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rows, err := svc.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.ID != id || row.Type != "bug" || row.Fingerprint != "visitor-abc123" || row.ContactName != "Sam" {
		t.Fatalf("row = %+v", row)
	}
	if !strings.HasPrefix(row.LogsObjectPath, "feedback-logs/") {
		t.Fatalf("LogsObjectPath = %q", row.LogsObjectPath)
	}

	rc, err := blobs.Get(context.Background(), row.LogsObjectPath)
	if err != nil {
		t.Fatalf("blob get: %v", err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)

	var blob struct {
		LogCount int              `json:"logCount"`
		Logs     []map[string]any `json:"logs"`
	}
	if err := json.Unmarshal(raw, &blob); err != nil {
		t.Fatalf("unmarshal blob: %v", err)
	}
	if blob.LogCount != 2 || len(blob.Logs) != 2 {
		t.Fatalf("blob = %+v", blob)
	}
}

func TestSubmitFeedbackSurvivesBlobFailure(t *testing.T) {
	gdb := newTestDB(t)

	// nil blob store: logs are skipped, the row still lands.
	svc := NewFeedbackService(logger.NewNop(), gdb, nil)
	id, err := svc.Submit(context.Background(), "visitor-abc123", "other", "hello", nil, "", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rows, err := svc.ListAll(context.Background())
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListAll = %v, %v", rows, err)
	}
	if rows[0].ID != id || rows[0].LogsObjectPath != "" {
		t.Fatalf("row = %+v", rows[0])
	}
}
