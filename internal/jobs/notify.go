package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

// Notification is the delivery contract handed to the notifier. Kind maps
// one-to-one to the notify.* job types.
type Notification struct {
	Kind        string
	SectionID   string
	RequesterID string
	Position    int
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. Stands in for a real
// delivery channel, which is outside this service.
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) Send(_ context.Context, msg Notification) error {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notify kind=%s section=%s requester=%s position=%d",
		msg.Kind, msg.SectionID, msg.RequesterID, msg.Position)
	return nil
}

// NotificationHandler adapts a Notifier into a job handler for the
// notify.* job types.
func NotificationHandler(notifier Notifier) Handler {
	return func(ctx context.Context, job domain.Job) error {
		var payload NotificationPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode notification payload: %w", err)
		}
		return notifier.Send(ctx, Notification{
			Kind:        job.Type,
			SectionID:   payload.SectionID,
			RequesterID: payload.RequesterID,
			Position:    payload.Position,
		})
	}
}

// RecomputeHandler adapts the waitlist stats recompute into a job handler.
func RecomputeHandler(recompute func(ctx context.Context, sectionID string) error) Handler {
	return func(ctx context.Context, job domain.Job) error {
		var payload RecomputePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode recompute payload: %w", err)
		}
		return recompute(ctx, payload.SectionID)
	}
}
