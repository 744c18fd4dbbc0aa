package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iconidentify/tikgrab/internal/domain"
)

// EventServiceConfig configures the event service.
type EventServiceConfig struct {
	// RingBufferSize is the number of events to keep in memory.
	// Default: 1000
	RingBufferSize int
}

// EventService records notifications in an in-memory ring buffer and fans
// them out to live subscribers. It is the Notifier every other component
// talks to.
type EventService struct {
	cfg    EventServiceConfig
	logger *slog.Logger

	// Ring buffer for recent events
	mu       sync.RWMutex
	events   []domain.Event
	head     int    // Next write position
	count    int    // Number of events in buffer
	eventSeq uint64 // Monotonic sequence for event IDs

	// SSE subscribers for real-time streaming
	subMu       sync.RWMutex
	subscribers map[uint64]chan domain.Event
	subSeq      uint64
}

// NewEventService creates a new event service.
func NewEventService(cfg EventServiceConfig, logger *slog.Logger) *EventService {
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &EventService{
		cfg:         cfg,
		logger:      logger,
		events:      make([]domain.Event, cfg.RingBufferSize),
		subscribers: make(map[uint64]chan domain.Event),
	}
}

// Notify implements domain.Notifier.
func (s *EventService) Notify(kind domain.NotificationKind, n domain.Notification) {
	s.Emit(domain.Event{
		Kind:        kind,
		Severity:    n.Severity,
		Category:    n.Category,
		Message:     n.Message,
		OperationID: n.OperationID,
		Metadata:    n.Data.ToJSON(),
	})
}

// Emit records an event to the event log.
func (s *EventService) Emit(event domain.Event) {
	if event.ID == "" {
		seq := atomic.AddUint64(&s.eventSeq, 1)
		event.ID = domain.EventID(fmt.Sprintf("evt_%d_%d", time.Now().UnixNano(), seq))
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Kind == "" {
		event.Kind = domain.NotifyToast
	}
	if event.Severity == "" {
		event.Severity = domain.EventSeverityInfo
	}

	s.mu.Lock()
	s.events[s.head] = event
	s.head = (s.head + 1) % s.cfg.RingBufferSize
	if s.count < s.cfg.RingBufferSize {
		s.count++
	}
	s.mu.Unlock()

	s.notifySubscribers(event)

	logLevel := slog.LevelDebug
	switch event.Severity {
	case domain.EventSeverityWarning:
		logLevel = slog.LevelWarn
	case domain.EventSeverityError:
		logLevel = slog.LevelError
	}
	s.logger.Log(context.Background(), logLevel, "notification",
		"event_id", event.ID,
		"kind", event.Kind,
		"category", event.Category,
		"severity", event.Severity,
		"operation_id", event.OperationID,
		"message", event.Message,
	)
}

// Toast is a convenience method for a plain toast notification.
func (s *EventService) Toast(severity domain.EventSeverity, category domain.EventCategory, message string, metadata domain.EventMetadata) {
	s.Notify(domain.NotifyToast, domain.Notification{
		Severity: severity,
		Category: category,
		Message:  message,
		Data:     metadata,
	})
}

// Query returns events matching the filter with pagination, newest first.
func (s *EventService) Query(ctx context.Context, query domain.EventQuery) (*domain.EventQueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 200 {
		query.Limit = 200
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	allEvents := make([]domain.Event, 0, s.count)
	for i := 0; i < s.count; i++ {
		// Read backwards from head-1
		idx := (s.head - 1 - i + s.cfg.RingBufferSize) % s.cfg.RingBufferSize
		event := s.events[idx]
		if event.ID == "" {
			continue
		}
		if matchesFilter(event, query.Filter) {
			allEvents = append(allEvents, event)
		}
	}

	total := len(allEvents)
	start := query.Offset
	if start >= total {
		return &domain.EventQueryResult{
			Events:  []domain.Event{},
			Total:   total,
			HasMore: false,
		}, nil
	}

	end := min(start+query.Limit, total)

	return &domain.EventQueryResult{
		Events:  allEvents[start:end],
		Total:   total,
		HasMore: end < total,
	}, nil
}

// GetRecent returns the most recent N events.
func (s *EventService) GetRecent(n int) []domain.Event {
	if n <= 0 {
		n = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := min(n, s.count)
	result := make([]domain.Event, 0, count)
	for i := 0; i < count; i++ {
		idx := (s.head - 1 - i + s.cfg.RingBufferSize) % s.cfg.RingBufferSize
		event := s.events[idx]
		if event.ID == "" {
			continue
		}
		result = append(result, event)
	}

	return result
}

func matchesFilter(event domain.Event, filter domain.EventFilter) bool {
	if filter.Kind != nil && event.Kind != *filter.Kind {
		return false
	}
	if filter.Severity != nil && event.Severity != *filter.Severity {
		return false
	}
	if filter.Category != nil && event.Category != *filter.Category {
		return false
	}
	if filter.OperationID != "" && event.OperationID != filter.OperationID {
		return false
	}
	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.SearchText != "" && !strings.Contains(strings.ToLower(event.Message), strings.ToLower(filter.SearchText)) {
		return false
	}
	return true
}

// Subscribe creates a new SSE subscriber and returns a channel for events.
// The caller must call Unsubscribe when done.
func (s *EventService) Subscribe() (uint64, <-chan domain.Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.subSeq++
	id := s.subSeq
	ch := make(chan domain.Event, 100)
	s.subscribers[id] = ch

	s.logger.Info("SSE subscriber added", "subscriber_id", id, "total_subscribers", len(s.subscribers))
	return id, ch
}

// Unsubscribe removes an SSE subscriber.
func (s *EventService) Unsubscribe(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
		s.logger.Info("SSE subscriber removed", "subscriber_id", id, "total_subscribers", len(s.subscribers))
	}
}

func (s *EventService) notifySubscribers(event domain.Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip this event for this subscriber
			s.logger.Warn("SSE subscriber buffer full, dropping event", "subscriber_id", id, "event_id", event.ID)
		}
	}
}

// SubscriberCount returns the number of active SSE subscribers.
func (s *EventService) SubscriberCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subscribers)
}

// EventStats describes buffer usage.
type EventStats struct {
	BufferSize     int `json:"buffer_size"`
	BufferUsed     int `json:"buffer_used"`
	SSESubscribers int `json:"sse_subscribers"`
}

func (s *EventService) Stats() EventStats {
	s.mu.RLock()
	bufferUsed := s.count
	s.mu.RUnlock()

	return EventStats{
		BufferSize:     s.cfg.RingBufferSize,
		BufferUsed:     bufferUsed,
		SSESubscribers: s.SubscriberCount(),
	}
}
