package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/wso2/identity-apps-sub079/internal/alert"
)

// Event types.
const (
	TypeAlert    = "alert"
	TypeDeleted  = "resource.deleted"
	TypeCreated  = "resource.created"
	TypeUpdated  = "resource.updated"
	TypeSession  = "session.closed"
	TypeAPIKey   = "apikey.created"
	TypeAPIKeyRm = "apikey.deleted"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Record is one row of the append-only log.
type Record struct {
	Type        string
	Level       string
	Resource    string
	EntityID    string
	ActorID     string
	Message     string
	Description string
	Payload     EventPayload
}

// Append inserts rec. With a nil tx it writes through DB directly.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	payload := rec.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	const q = `INSERT INTO events(ts,type,level,resource,entity_id,actor_id,message,description,payload_json) VALUES (?,?,?,?,?,?,?,?,?)`
	args := []any{ts, rec.Type, nullable(rec.Level), nullable(rec.Resource), nullable(rec.EntityID), nullable(rec.ActorID), nullable(rec.Message), nullable(rec.Description), string(data)}
	if tx != nil {
		_, err = tx.ExecContext(ctx, q, args...)
	} else {
		_, err = w.DB.ExecContext(ctx, q, args...)
	}
	return err
}

// Sink persists alerts to the event log.
type Sink struct {
	Writer  Writer
	ActorID string
	Logger  *log.Logger
}

func (s Sink) Add(a alert.Alert) {
	err := s.Writer.Append(context.Background(), nil, Record{
		Type:        TypeAlert,
		Level:       string(a.Level),
		Resource:    a.Source,
		ActorID:     s.ActorID,
		Message:     a.Message,
		Description: a.Description,
	})
	if err != nil {
		logger := s.Logger
		if logger == nil {
			logger = log.Default()
		}
		logger.Printf("events: persist alert: %v", err)
	}
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
