package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/tikgrab/internal/domain"
)

func newTestEventService(size int) *EventService {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewEventService(EventServiceConfig{RingBufferSize: size}, logger)
}

func TestEventService_Notify(t *testing.T) {
	svc := newTestEventService(10)

	svc.Notify(domain.NotifyLoadingStart, domain.Notification{
		Severity:    domain.EventSeverityInfo,
		Category:    domain.EventCategoryDownload,
		Message:     "Downloading video",
		OperationID: "dl_abc",
		Data:        domain.EventMetadata{"kind": "video"},
	})

	events := svc.GetRecent(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	e := events[0]
	if e.Kind != domain.NotifyLoadingStart {
		t.Errorf("expected kind loading-start, got %s", e.Kind)
	}
	if e.Message != "Downloading video" || e.OperationID != "dl_abc" {
		t.Errorf("unexpected event %+v", e)
	}
	var meta map[string]string
	if err := json.Unmarshal(e.Metadata, &meta); err != nil || meta["kind"] != "video" {
		t.Errorf("metadata = %s (%v)", e.Metadata, err)
	}
}

func TestEventService_Defaults(t *testing.T) {
	svc := newTestEventService(0)
	svc.Emit(domain.Event{Message: "bare"})

	e := svc.GetRecent(1)[0]
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Errorf("ID and timestamp should be filled, got %+v", e)
	}
	if e.Kind != domain.NotifyToast || e.Severity != domain.EventSeverityInfo {
		t.Errorf("kind/severity = %s/%s, want toast/info", e.Kind, e.Severity)
	}
	if svc.Stats().BufferSize != 1000 {
		t.Errorf("default buffer size = %d, want 1000", svc.Stats().BufferSize)
	}
}

func TestEventService_RingBuffer(t *testing.T) {
	svc := newTestEventService(5)

	for i := 0; i < 10; i++ {
		svc.Toast(domain.EventSeverityInfo, domain.EventCategorySystem, "message "+string(rune('0'+i)), nil)
	}

	// Should only have last 5
	events := svc.GetRecent(10)
	if len(events) != 5 {
		t.Fatalf("expected 5 events (ring buffer size), got %d", len(events))
	}

	// Most recent first
	if events[0].Message != "message 9" {
		t.Errorf("expected first event to be 'message 9', got '%s'", events[0].Message)
	}
	if events[4].Message != "message 5" {
		t.Errorf("expected last event to be 'message 5', got '%s'", events[4].Message)
	}
}

func TestEventService_Query_Filter(t *testing.T) {
	svc := newTestEventService(100)

	svc.Toast(domain.EventSeverityInfo, domain.EventCategoryMedia, "record loaded", nil)
	svc.Toast(domain.EventSeverityError, domain.EventCategoryNetwork, "connection failed", nil)
	svc.Toast(domain.EventSeverityWarning, domain.EventCategoryDisk, "low disk space", nil)
	svc.Notify(domain.NotifyLoadingEnd, domain.Notification{
		Severity:    domain.EventSeveritySuccess,
		Category:    domain.EventCategoryArchive,
		Message:     "archive complete",
		OperationID: "dl_zip",
	})

	tests := []struct {
		name   string
		filter domain.EventFilter
		want   string
	}{
		{"severity", domain.EventFilter{Severity: ptr(domain.EventSeverityError)}, "connection failed"},
		{"category", domain.EventFilter{Category: ptr(domain.EventCategoryArchive)}, "archive complete"},
		{"kind", domain.EventFilter{Kind: ptr(domain.NotifyLoadingEnd)}, "archive complete"},
		{"operation", domain.EventFilter{OperationID: "dl_zip"}, "archive complete"},
		{"search", domain.EventFilter{SearchText: "DISK"}, "low disk space"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Query(context.Background(), domain.EventQuery{Filter: tt.filter, Limit: 10})
			if err != nil {
				t.Fatalf("query failed: %v", err)
			}
			if len(result.Events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(result.Events))
			}
			if result.Events[0].Message != tt.want {
				t.Errorf("expected %q, got %q", tt.want, result.Events[0].Message)
			}
		})
	}

	future := time.Now().Add(time.Hour)
	result, _ := svc.Query(context.Background(), domain.EventQuery{Filter: domain.EventFilter{StartTime: &future}})
	if result.Total != 0 {
		t.Errorf("expected no events after a future start time, got %d", result.Total)
	}
}

func TestEventService_SSE_Subscribe(t *testing.T) {
	svc := newTestEventService(10)

	subID, ch := svc.Subscribe()
	if subID == 0 {
		t.Error("expected non-zero subscriber ID")
	}
	if svc.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", svc.SubscriberCount())
	}

	var wg sync.WaitGroup
	wg.Add(1)

	var received domain.Event
	go func() {
		defer wg.Done()
		select {
		case event := <-ch:
			received = event
		case <-time.After(time.Second):
			t.Error("timeout waiting for event")
		}
	}()

	svc.Toast(domain.EventSeverityInfo, domain.EventCategorySystem, "SSE test", nil)
	wg.Wait()

	if received.Message != "SSE test" {
		t.Errorf("expected 'SSE test', got '%s'", received.Message)
	}

	svc.Unsubscribe(subID)
	if svc.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", svc.SubscriberCount())
	}
	if _, open := <-ch; open {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestEventService_ConcurrentNotify(t *testing.T) {
	svc := newTestEventService(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				svc.Notify(domain.NotifyLoadingUpdate, domain.Notification{
					Category: domain.EventCategoryArchive,
					Message:  "progress",
					Data:     domain.EventMetadata{"goroutine": id, "iteration": j},
				})
			}
		}(i)
	}
	wg.Wait()

	if stats := svc.Stats(); stats.BufferUsed != 1000 {
		t.Errorf("expected buffer to be full (1000), got %d", stats.BufferUsed)
	}
}

func TestEventService_Pagination(t *testing.T) {
	svc := newTestEventService(100)

	for i := 0; i < 25; i++ {
		svc.Toast(domain.EventSeverityInfo, domain.EventCategorySystem, "event "+string(rune('A'+i)), nil)
	}

	pages := []struct {
		offset, want int
		more         bool
	}{
		{0, 10, true},
		{10, 10, true},
		{20, 5, false},
		{30, 0, false},
	}
	for _, p := range pages {
		result, err := svc.Query(context.Background(), domain.EventQuery{Limit: 10, Offset: p.offset})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(result.Events) != p.want || result.HasMore != p.more || result.Total != 25 {
			t.Errorf("offset %d: got %d events more=%v total=%d", p.offset, len(result.Events), result.HasMore, result.Total)
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}
