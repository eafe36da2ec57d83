package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditStamp records who performed a lifecycle action and when. Mutable
// entities carry one stamp per transition (created, closed, deactivated, ...).
type AuditStamp struct {
	ActorID   uuid.UUID `json:"actorId"`
	ActorName string    `json:"actorName"`
	At        time.Time `json:"at"`
}

// StampFrom builds an audit stamp for the identity at the given instant.
func StampFrom(id Identity, at time.Time) AuditStamp {
	return AuditStamp{ActorID: id.ActorID, ActorName: id.ActorName, At: at}
}

// IsZero reports whether the stamp was never set.
func (s AuditStamp) IsZero() bool {
	return s.ActorID == uuid.Nil && s.ActorName == "" && s.At.IsZero()
}

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	BusinessID uuid.UUID
	ActorName  string
	Action     string
	Entity     string
	EntityID   string
	Meta       map[string]any
	At         time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = time.Now()
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_logs (business_id, actor_name, action, entity, entity_id, meta, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.BusinessID, log.ActorName, log.Action, log.Entity, log.EntityID, metaJSON, log.At)
	return err
}
