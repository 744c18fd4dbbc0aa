package domain

import (
	"encoding/json"
	"time"
)

// EventID is a unique identifier for an event.
type EventID string

// String returns the string representation of the EventID.
func (id EventID) String() string {
	return string(id)
}

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	EventSeverityInfo    EventSeverity = "info"
	EventSeverityWarning EventSeverity = "warning"
	EventSeverityError   EventSeverity = "error"
	EventSeveritySuccess EventSeverity = "success"
)

// EventCategory represents the category of an event for filtering.
type EventCategory string

const (
	EventCategoryMedia    EventCategory = "media"
	EventCategoryDownload EventCategory = "download"
	EventCategoryArchive  EventCategory = "archive"
	EventCategoryNetwork  EventCategory = "network"
	EventCategoryDisk     EventCategory = "disk"
	EventCategorySystem   EventCategory = "system"
)

// NotificationKind is what the UI should do with a notification.
type NotificationKind string

const (
	NotifyToast         NotificationKind = "toast"
	NotifyLoadingStart  NotificationKind = "loading-start"
	NotifyLoadingUpdate NotificationKind = "loading-update"
	NotifyLoadingEnd    NotificationKind = "loading-end"
	// NotifyOpenExternal asks the UI to open a link itself.
	NotifyOpenExternal NotificationKind = "open-external"
)

// Event represents a notification recorded in the activity log.
type Event struct {
	ID          EventID          `json:"id"`
	Timestamp   time.Time        `json:"timestamp"`
	Kind        NotificationKind `json:"kind"`
	Severity    EventSeverity    `json:"severity"`
	Category    EventCategory    `json:"category"`
	Message     string           `json:"message"`
	OperationID string           `json:"operation_id,omitempty"`
	Metadata    json.RawMessage  `json:"metadata,omitempty"`
}

// EventMetadata is a helper type for building event metadata.
type EventMetadata map[string]interface{}

// ToJSON converts metadata to JSON.
func (m EventMetadata) ToJSON() json.RawMessage {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return data
}

// Notification is the payload handed to a Notifier.
type Notification struct {
	Severity    EventSeverity
	Category    EventCategory
	Message     string
	OperationID string
	Data        EventMetadata
}

// Notifier delivers fire-and-forget notifications to whatever UI is attached.
type Notifier interface {
	Notify(kind NotificationKind, n Notification)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(NotificationKind, Notification) {}

// EventFilter specifies criteria for querying events.
type EventFilter struct {
	Kind        *NotificationKind `json:"kind,omitempty"`
	Severity    *EventSeverity    `json:"severity,omitempty"`
	Category    *EventCategory    `json:"category,omitempty"`
	OperationID string            `json:"operation_id,omitempty"`
	StartTime   *time.Time        `json:"start_time,omitempty"`
	SearchText  string            `json:"search_text,omitempty"`
}

// EventQuery represents a query for events with pagination.
type EventQuery struct {
	Filter EventFilter `json:"filter"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// EventQueryResult contains the result of an event query.
type EventQueryResult struct {
	Events  []Event `json:"events"`
	Total   int     `json:"total"`
	HasMore bool    `json:"has_more"`
}
