package downloader

import (
	"context"
	"errors"

	"github.com/iconidentify/tikgrab/internal/domain"
)

// NotifierOpener hands links to the connected UI through the notification
// stream. The UI opens the link itself.
type NotifierOpener struct {
	notifier domain.Notifier
}

// NewNotifierOpener creates an Opener backed by notifier.
func NewNotifierOpener(notifier domain.Notifier) *NotifierOpener {
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	return &NotifierOpener{notifier: notifier}
}

// OpenExternal implements Opener. Mobile clients get a second nudge because
// their browsers often ignore the first programmatic open.
func (o *NotifierOpener) OpenExternal(ctx context.Context, req OpenRequest) error {
	if req.URL == "" {
		return errors.New("no link to open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data := domain.EventMetadata{
		"url":      req.URL,
		"filename": req.Filename,
	}
	o.notifier.Notify(domain.NotifyOpenExternal, domain.Notification{
		Severity:    domain.EventSeverityInfo,
		Category:    domain.EventCategoryDownload,
		Message:     "Opening the file in a new tab; save it from there",
		OperationID: req.OperationID,
		Data:        data,
	})

	if req.Mobile {
		o.notifier.Notify(domain.NotifyToast, domain.Notification{
			Severity:    domain.EventSeverityInfo,
			Category:    domain.EventCategoryDownload,
			Message:     "If nothing opened, tap the link and choose \"Download\" or \"Save to Files\"",
			OperationID: req.OperationID,
			Data:        domain.EventMetadata{"url": req.URL, "new_context": true},
		})
	}
	return nil
}
