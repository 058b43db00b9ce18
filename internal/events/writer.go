package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written to the outbox.
const (
	FamilyCreated          = "family.created"
	MemberAdded            = "member.added"
	GoalCreated            = "goal.created"
	GoalUpdated            = "goal.updated"
	GoalProgress           = "goal.progress"
	GoalDeleted            = "goal.deleted"
	GoalStatusChanged      = "goal.status_changed"
	ConflictDetected       = "conflict.detected"
	ConflictResolved       = "conflict.resolved"
	AgreementCreated       = "agreement.created"
	AgreementStatusChanged = "agreement.status_changed"
	SubtaskAdded           = "subtask.added"
	SubtaskCompleted       = "subtask.completed"
	SubtaskReopened        = "subtask.reopened"
	SubtaskDeleted         = "subtask.deleted"
)

// Types lists every event type the core emits.
var Types = []string{
	FamilyCreated, MemberAdded, GoalCreated, GoalUpdated, GoalProgress, GoalDeleted,
	GoalStatusChanged, ConflictDetected, ConflictResolved, AgreementCreated, AgreementStatusChanged,
	SubtaskAdded, SubtaskCompleted, SubtaskReopened, SubtaskDeleted,
}

func KnownType(t string) bool {
	for _, known := range Types {
		if known == t {
			return true
		}
	}
	return false
}

// Writer appends domain events inside the caller's transaction, so an event
// exists if and only if the change it describes committed.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, familyID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,family_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(familyID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
