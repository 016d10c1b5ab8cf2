package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"keyrotation-auth/internal/audit/domain"
	"keyrotation-auth/internal/telemetry"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	mu        sync.Mutex
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByPrincipal(ctx context.Context, principalID string, limit int) ([]*domain.AuditLog, error) {
	return nil, nil
}

type chanEmitter struct {
	events chan *telemetry.Event
}

func (c *chanEmitter) Emit(ctx context.Context, e *telemetry.Event) error {
	c.events <- e
	return nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil, func(context.Context) string { return "192.168.1.1" }, nil)

	logger.LogEvent(context.Background(), "p1", ActionLoginSuccess, OutcomeSuccess, map[string]string{"phone": "13800000000"})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.ID == "" {
		t.Error("id should be set")
	}
	if entry.PrincipalID != "p1" {
		t.Errorf("principal_id = %q, want p1", entry.PrincipalID)
	}
	if entry.Action != ActionLoginSuccess || entry.Outcome != OutcomeSuccess {
		t.Errorf("action/outcome = %q/%q", entry.Action, entry.Outcome)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want 192.168.1.1", entry.IP)
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(entry.Metadata), &meta); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if meta["phone"] != "13800000000" {
		t.Errorf("metadata phone = %q", meta["phone"])
	}
	if entry.CreatedAt == 0 {
		t.Error("created_at should be set")
	}
}

func TestLogger_LogEvent_NilIPExtractor(t *testing.T) {
	repo := &mockAuditRepo{}
	NewLogger(repo, nil, nil, nil).LogEvent(context.Background(), "", ActionLoginFailure, OutcomeFailure, nil)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	if repo.entries[0].IP != "unknown" {
		t.Errorf("ip = %q, want unknown", repo.entries[0].IP)
	}
	if repo.entries[0].Metadata != "" {
		t.Errorf("metadata = %q, want empty", repo.entries[0].Metadata)
	}
}

func TestLogger_LogEvent_RepositoryError(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	// Should not panic or propagate.
	NewLogger(repo, nil, nil, nil).LogEvent(context.Background(), "p1", ActionLogout, OutcomeSuccess, nil)
}

func TestLogger_LogEvent_NilRepoStillEmits(t *testing.T) {
	em := &chanEmitter{events: make(chan *telemetry.Event, 1)}
	NewLogger(nil, em, nil, nil).LogEvent(context.Background(), "p1", ActionRefresh, OutcomeSuccess, nil)

	select {
	case e := <-em.events:
		if e.Action != ActionRefresh || e.PrincipalID != "p1" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("event was not emitted")
	}
}
