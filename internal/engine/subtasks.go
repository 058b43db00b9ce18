package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"accord/internal/domain"
	"accord/internal/events"
)

// AddSubtasks appends steps to an owned DRAFT or ACTIVE goal and recomputes
// its progress from the completed share.
func (e Engine) AddSubtasks(ctx context.Context, goalID string, titles []string, actorID string) ([]domain.Subtask, domain.Goal, error) {
	var clean []string
	for _, t := range titles {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	if len(clean) == 0 {
		return nil, domain.Goal{}, fmt.Errorf("%w: at least one subtask title is required", domain.ErrInvalidInput)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Goal{}, err
	}
	defer tx.Rollback()

	g, err := e.subtaskGoalTx(ctx, tx, goalID, actorID)
	if err != nil {
		return nil, domain.Goal{}, err
	}
	now := e.timestamp()
	added := make([]domain.Subtask, 0, len(clean))
	for _, title := range clean {
		st := domain.Subtask{ID: newID(), GoalID: g.ID, Title: title, CreatedAt: now}
		if st.Position, err = e.Repo.InsertSubtaskTx(ctx, tx, st); err != nil {
			return nil, domain.Goal{}, err
		}
		if err := e.emit(ctx, tx, events.SubtaskAdded, g.FamilyID, "subtask", st.ID, actorID, events.EventPayload{"goal_id": g.ID, "title": title}); err != nil {
			return nil, domain.Goal{}, err
		}
		added = append(added, st)
	}
	if err := e.recalculateProgress(ctx, tx, g, actorID); err != nil {
		return nil, domain.Goal{}, err
	}
	stored, err := e.Repo.GetGoalTx(ctx, tx, g.ID)
	if err != nil {
		return nil, domain.Goal{}, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.Goal{}, err
	}
	return added, stored, nil
}

// SetSubtaskCompleted marks a subtask done or not done. Completing the last
// open step of an ACTIVE goal completes the goal; on any other goal it is refused.
func (e Engine) SetSubtaskCompleted(ctx context.Context, subtaskID string, completed bool, actorID string) (domain.Subtask, domain.Goal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Subtask{}, domain.Goal{}, err
	}
	defer tx.Rollback()

	st, err := e.Repo.GetSubtaskTx(ctx, tx, subtaskID)
	if err != nil {
		return domain.Subtask{}, domain.Goal{}, err
	}
	g, err := e.subtaskGoalTx(ctx, tx, st.GoalID, actorID)
	if err != nil {
		return domain.Subtask{}, domain.Goal{}, err
	}
	changed, err := e.Repo.SetSubtaskCompletedTx(ctx, tx, st.ID, completed, actorID, e.timestamp())
	if err != nil {
		return domain.Subtask{}, domain.Goal{}, err
	}
	if changed {
		evt := events.SubtaskReopened
		if completed {
			evt = events.SubtaskCompleted
		}
		if err := e.emit(ctx, tx, evt, g.FamilyID, "subtask", st.ID, actorID, events.EventPayload{"goal_id": g.ID}); err != nil {
			return domain.Subtask{}, domain.Goal{}, err
		}
		if err := e.recalculateProgress(ctx, tx, g, actorID); err != nil {
			return domain.Subtask{}, domain.Goal{}, err
		}
	}
	if st, err = e.Repo.GetSubtaskTx(ctx, tx, st.ID); err != nil {
		return domain.Subtask{}, domain.Goal{}, err
	}
	stored, err := e.Repo.GetGoalTx(ctx, tx, g.ID)
	if err != nil {
		return domain.Subtask{}, domain.Goal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Subtask{}, domain.Goal{}, err
	}
	return st, stored, nil
}

// DeleteSubtask removes a step. Progress keeps its last value when no steps remain.
func (e Engine) DeleteSubtask(ctx context.Context, subtaskID, actorID string) (domain.Goal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Goal{}, err
	}
	defer tx.Rollback()

	st, err := e.Repo.GetSubtaskTx(ctx, tx, subtaskID)
	if err != nil {
		return domain.Goal{}, err
	}
	g, err := e.subtaskGoalTx(ctx, tx, st.GoalID, actorID)
	if err != nil {
		return domain.Goal{}, err
	}
	if err := e.Repo.DeleteSubtaskTx(ctx, tx, st.ID); err != nil {
		return domain.Goal{}, err
	}
	if err := e.emit(ctx, tx, events.SubtaskDeleted, g.FamilyID, "subtask", st.ID, actorID, events.EventPayload{"goal_id": g.ID, "title": st.Title}); err != nil {
		return domain.Goal{}, err
	}
	if err := e.recalculateProgress(ctx, tx, g, actorID); err != nil {
		return domain.Goal{}, err
	}
	stored, err := e.Repo.GetGoalTx(ctx, tx, g.ID)
	if err != nil {
		return domain.Goal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Goal{}, err
	}
	return stored, nil
}

// GetSubtask returns a subtask and the goal it belongs to.
func (e Engine) GetSubtask(ctx context.Context, subtaskID, actorID string) (domain.Subtask, domain.Goal, error) {
	st, err := e.Repo.GetSubtaskTx(ctx, nil, subtaskID)
	if err != nil {
		return domain.Subtask{}, domain.Goal{}, err
	}
	g, err := e.GetGoal(ctx, st.GoalID, actorID)
	if err != nil {
		return domain.Subtask{}, domain.Goal{}, err
	}
	return st, g, nil
}

func (e Engine) ListSubtasks(ctx context.Context, goalID, actorID string) ([]domain.Subtask, error) {
	if _, err := e.GetGoal(ctx, goalID, actorID); err != nil {
		return nil, err
	}
	return e.Repo.ListSubtasks(ctx, goalID)
}

// subtaskGoalTx loads the goal a subtask change applies to. Steps move
// progress, so they follow the same rules as manual progress.
func (e Engine) subtaskGoalTx(ctx context.Context, tx *sql.Tx, goalID, actorID string) (domain.Goal, error) {
	g, err := e.Repo.GetGoalTx(ctx, tx, goalID)
	if err != nil {
		return domain.Goal{}, err
	}
	if err := e.Auth.RequireOwner(ctx, tx, g, actorID); err != nil {
		return domain.Goal{}, err
	}
	if g.Status != domain.GoalDraft && g.Status != domain.GoalActive {
		return domain.Goal{}, fmt.Errorf("%w: steps of %s goal %s are frozen", domain.ErrInvalidState, g.Status, g.ID)
	}
	return g, nil
}

func (e Engine) recalculateProgress(ctx context.Context, tx *sql.Tx, g domain.Goal, actorID string) error {
	done, total, err := e.Repo.SubtaskCountsTx(ctx, tx, g.ID)
	if err != nil {
		return err
	}
	progress, ok := domain.SubtaskProgress(done, total)
	if !ok || progress == g.Progress {
		return nil
	}
	return e.applyProgress(ctx, tx, g, progress, actorID, "subtasks")
}
