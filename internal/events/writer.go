package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"planline/internal/domain"
	"planline/internal/store"
)

// Writer appends audit records to the events collection.
type Writer struct {
	Store store.Store
	Now   func() time.Time
	NewID func() string
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	newID := uuid.NewString
	if w.NewID != nil {
		newID = w.NewID
	}
	if payload == nil {
		payload = EventPayload{}
	}
	evt := domain.Event{
		ID:         newID(),
		TS:         now().UTC().Format(time.RFC3339),
		Type:       evtType,
		ProjectID:  projectID,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    payload,
	}
	fields, err := store.Encode(evt)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if _, err := w.Store.Create(ctx, domain.CollectionEvents, evt.ID, fields); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
