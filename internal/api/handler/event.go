package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/iconidentify/tikgrab/internal/domain"
	"github.com/iconidentify/tikgrab/internal/service"
)

// EventHandler handles event-related HTTP requests.
type EventHandler struct {
	eventSvc  *service.EventService
	logger    *slog.Logger
	keepalive time.Duration
}

// NewEventHandler creates a new event handler.
func NewEventHandler(eventSvc *service.EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		eventSvc:  eventSvc,
		logger:    logger,
		keepalive: 30 * time.Second,
	}
}

// EventResponse represents an event in API responses.
type EventResponse struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Kind        string          `json:"kind"`
	Severity    string          `json:"severity"`
	Category    string          `json:"category"`
	Message     string          `json:"message"`
	OperationID string          `json:"operation_id,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

func toEventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:          string(e.ID),
		Timestamp:   e.Timestamp,
		Kind:        string(e.Kind),
		Severity:    string(e.Severity),
		Category:    string(e.Category),
		Message:     e.Message,
		OperationID: e.OperationID,
		Metadata:    e.Metadata,
	}
}

// EventListResponse contains paginated event list.
type EventListResponse struct {
	Events  []EventResponse `json:"events"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	HasMore bool            `json:"has_more"`
}

// EventStatsResponse contains event service statistics.
type EventStatsResponse struct {
	Total          int            `json:"total"`
	BySeverity     map[string]int `json:"by_severity"`
	BufferSize     int            `json:"buffer_size"`
	BufferUsed     int            `json:"buffer_used"`
	SSESubscribers int            `json:"sse_subscribers"`
}

// List handles GET /api/v1/events
// Query parameters:
//   - kind: toast, loading-start, loading-update, loading-end, open-external
//   - severity: info, warning, error, success
//   - category: media, download, archive, network, disk, system
//   - operation_id: events of one operation
//   - start_time: events after this time (RFC3339)
//   - search: search in message text
//   - limit: max events to return (default 50, max 200)
//   - offset: pagination offset
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := domain.EventQuery{
		Limit:  50,
		Offset: 0,
	}

	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			query.Limit = parsed
		}
	}
	if o := q.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			query.Offset = parsed
		}
	}

	if k := q.Get("kind"); k != "" {
		kind := domain.NotificationKind(k)
		query.Filter.Kind = &kind
	}
	if sev := q.Get("severity"); sev != "" {
		severity := domain.EventSeverity(sev)
		query.Filter.Severity = &severity
	}
	if cat := q.Get("category"); cat != "" {
		category := domain.EventCategory(cat)
		query.Filter.Category = &category
	}
	query.Filter.OperationID = q.Get("operation_id")
	query.Filter.SearchText = q.Get("search")
	if startTime := q.Get("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			query.Filter.StartTime = &t
		}
	}

	result, err := h.eventSvc.Query(r.Context(), query)
	if err != nil {
		h.logger.Error("failed to query events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query events")
		return
	}

	response := EventListResponse{
		Events:  make([]EventResponse, 0, len(result.Events)),
		Total:   result.Total,
		Limit:   query.Limit,
		Offset:  query.Offset,
		HasMore: result.HasMore,
	}
	for _, e := range result.Events {
		response.Events = append(response.Events, toEventResponse(e))
	}

	writeJSON(w, http.StatusOK, response)
}

// RecentEventsResponse wraps the events array for the UI.
type RecentEventsResponse struct {
	Events []EventResponse `json:"events"`
}

// Recent handles GET /api/v1/events/recent
// Returns the most recent N events (default 50).
func (h *EventHandler) Recent(w http.ResponseWriter, r *http.Request) {
	n := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			n = parsed
		}
	}

	events := h.eventSvc.GetRecent(n)

	response := RecentEventsResponse{
		Events: make([]EventResponse, 0, len(events)),
	}
	for _, e := range events {
		response.Events = append(response.Events, toEventResponse(e))
	}

	writeJSON(w, http.StatusOK, response)
}

// Stats handles GET /api/v1/events/stats
func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.eventSvc.Stats()

	events := h.eventSvc.GetRecent(stats.BufferSize)
	bySeverity := map[string]int{
		"info":    0,
		"warning": 0,
		"error":   0,
		"success": 0,
	}
	for _, e := range events {
		bySeverity[string(e.Severity)]++
	}

	writeJSON(w, http.StatusOK, EventStatsResponse{
		Total:          len(events),
		BySeverity:     bySeverity,
		BufferSize:     stats.BufferSize,
		BufferUsed:     stats.BufferUsed,
		SSESubscribers: stats.SSESubscribers,
	})
}

// Stream handles GET /api/v1/events/stream
// Server-Sent Events endpoint; each notification is sent with its kind as
// the SSE event name.
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, eventCh := h.eventSvc.Subscribe()
	defer h.eventSvc.Unsubscribe(subID)

	h.logger.Info("SSE client connected", "subscriber_id", subID, "remote_addr", r.RemoteAddr)

	fmt.Fprintf(w, "event: connected\ndata: {\"subscriber_id\": %d}\n\n", subID)
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected", "subscriber_id", subID)
			return

		case event, ok := <-eventCh:
			if !ok {
				return
			}

			eventData, err := json.Marshal(toEventResponse(event))
			if err != nil {
				h.logger.Warn("failed to serialize event", "event_id", event.ID, "error", err)
				continue
			}

			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Kind, eventData)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// Categories handles GET /api/v1/events/categories
func (h *EventHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories := []string{
		string(domain.EventCategoryMedia),
		string(domain.EventCategoryDownload),
		string(domain.EventCategoryArchive),
		string(domain.EventCategoryNetwork),
		string(domain.EventCategoryDisk),
		string(domain.EventCategorySystem),
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": categories})
}
