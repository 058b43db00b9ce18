package repo

import (
	"context"
	"database/sql"
	"strings"

	"accord/internal/domain"
)

type EventFilters struct {
	FamilyID   string
	Type       string
	EntityKind string
	EntityID   string
	// Before returns events with ids strictly below the cursor.
	Before int64
	Limit  int
}

// LatestEvents returns events newest first.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.FamilyID != "" {
		clauses = append(clauses, "family_id=?")
		args = append(args, f.FamilyID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	return queryEvents(ctx, r.DB, `SELECT id,ts,type,COALESCE(family_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE `+
		strings.Join(clauses, " AND ")+` ORDER BY id DESC LIMIT ?`, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, familyID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"id>?"}
	args := []any{cursor}
	if familyID != "" {
		clauses = append(clauses, "family_id=?")
		args = append(args, familyID)
	}
	args = append(args, limit)
	return queryEvents(ctx, r.DB, `SELECT id,ts,type,COALESCE(family_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE `+
		strings.Join(clauses, " AND ")+` ORDER BY id ASC LIMIT ?`, args...)
}

// LatestEventID returns the most recent event ID, for one family or overall.
func (r Repo) LatestEventID(ctx context.Context, familyID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if familyID != "" {
		query += ` WHERE family_id=?`
		args = append(args, familyID)
	}
	var id int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func queryEvents(ctx context.Context, q querier, query string, args ...any) ([]domain.Event, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.FamilyID, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
