package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Activity is a durable record of something a user did, kept for the admin
// activity feed independently of log retention.
type Activity struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Recorder persists activity rows.
type Recorder struct {
	db  *sql.DB
	now func() time.Time
}

// NewRecorder wraps db for activity recording.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

// Record inserts one activity row. Details marshal to jsonb; a nil map stores
// an empty object so readers never see SQL NULL.
func (r *Recorder) Record(ctx context.Context, act Activity) error {
	if act.ID == "" {
		act.ID = uuid.NewString()
	}
	if act.CreatedAt.IsZero() {
		act.CreatedAt = r.now().UTC()
	}
	if act.Details == nil {
		act.Details = map[string]any{}
	}
	details, err := json.Marshal(act.Details)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
        INSERT INTO activity_logs (id, user_id, action, entity_type, entity_id, details, created_at)
        VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)`,
		act.ID, act.UserID, act.Action, act.EntityType, act.EntityID, details, act.CreatedAt)
	return err
}

// ListRecent returns the newest activity rows, capped at limit.
func (r *Recorder) ListRecent(ctx context.Context, limit int) ([]Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, COALESCE(user_id, ''), action, COALESCE(entity_type, ''), COALESCE(entity_id, ''), details, created_at
        FROM activity_logs
        ORDER BY created_at DESC
        LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var act Activity
		var details []byte
		if err := rows.Scan(&act.ID, &act.UserID, &act.Action, &act.EntityType, &act.EntityID, &details, &act.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &act.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, act)
	}
	return out, rows.Err()
}
