package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"shopifyapp/pkg/db"
)

// Deduper records deliveries and reports whether one was already seen.
type Deduper interface {
	Seen(ctx context.Context, p Payload) (bool, error)
}

// EventLog is the Postgres-backed Deduper.
type EventLog struct {
	db db.DBTX
}

func NewEventLog(db db.DBTX) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) Seen(ctx context.Context, p Payload) (bool, error) {
	const q = `
INSERT INTO webhook_events (shop_domain, topic, event_id, payload_hash)
VALUES ($1, $2, $3, $4)
`
	hash := sha256Hex(p.Body)
	eventID := p.EventID
	if eventID == "" {
		eventID = hash
	}
	if _, err := l.db.Exec(ctx, q, p.Domain, p.Topic, eventID, hash); err != nil {
		if isUniqueViolation(err) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func sha256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
