package engine

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"accord/internal/domain"
	"accord/internal/events"
	"accord/internal/repo"
)

// DetectConflicts scans the family for goals competing with goalID and
// records one conflict per new pair, blocking both goals. It returns only the
// conflicts created by this run.
func (e Engine) DetectConflicts(ctx context.Context, goalID, familyID, actorID string) ([]domain.Conflict, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	g, err := e.Repo.GetGoalTx(ctx, tx, goalID)
	if err != nil {
		return nil, err
	}
	if g.FamilyID != familyID {
		return nil, fmt.Errorf("%w: goal %s in family %s", domain.ErrNotFound, goalID, familyID)
	}
	if _, err := e.Auth.RequireMember(ctx, tx, familyID, actorID); err != nil {
		return nil, err
	}
	conflicts, err := e.detectTx(ctx, tx, g, actorID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return conflicts, nil
}

// detectTx is the detection unit shared by goal create/update. The subject is
// stored as goal A of every conflict it opens.
func (e Engine) detectTx(ctx context.Context, tx *sql.Tx, subject domain.Goal, actorID string) ([]domain.Conflict, error) {
	if !subject.Status.Detectable() && subject.Status != domain.GoalBlocked {
		return nil, nil
	}
	if len(subject.Resources) == 0 {
		return nil, nil
	}
	candidates, err := e.Repo.ListDetectableGoalsTx(ctx, tx, subject.FamilyID, subject.ID)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	now := e.timestamp()
	created := []domain.Conflict{}
	for _, cand := range candidates {
		shared := subject.Resources.Intersect(cand.Resources)
		if len(shared) == 0 {
			continue
		}
		c := domain.Conflict{
			ID:              newID(),
			FamilyID:        subject.FamilyID,
			Type:            domain.ClassifyConflict(shared),
			SharedResources: shared,
			GoalAID:         subject.ID,
			GoalBID:         cand.ID,
			Status:          domain.ConflictUnresolved,
			CreatedAt:       now,
		}
		inserted, err := e.Repo.InsertConflictTx(ctx, tx, c)
		if err != nil {
			return nil, fmt.Errorf("insert conflict: %w", err)
		}
		if !inserted {
			continue
		}
		reason := events.EventPayload{"conflict_id": c.ID}
		if subject.Status != domain.GoalBlocked {
			if err := e.setGoalStatus(ctx, tx, subject, domain.GoalBlocked, nil, actorID, "conflict", reason); err != nil {
				return nil, err
			}
			subject.Status = domain.GoalBlocked
		}
		if err := e.setGoalStatus(ctx, tx, cand, domain.GoalBlocked, nil, actorID, "conflict", reason); err != nil {
			return nil, err
		}
		if err := e.emit(ctx, tx, events.ConflictDetected, c.FamilyID, "conflict", c.ID, actorID, events.EventPayload{
			"type":             c.Type,
			"shared_resources": c.SharedResources,
			"goal_a_id":        subject.ID,
			"goal_a_title":     subject.Title,
			"goal_a_owner_id":  subject.OwnerID,
			"goal_b_id":        cand.ID,
			"goal_b_title":     cand.Title,
			"goal_b_owner_id":  cand.OwnerID,
			"notify":           notifyOwners(subject.OwnerID, cand.OwnerID),
		}); err != nil {
			return nil, err
		}
		e.log().Info("conflict detected",
			zap.String("conflict_id", c.ID),
			zap.String("type", string(c.Type)),
			zap.String("goal_a", subject.ID),
			zap.String("goal_b", cand.ID),
			zap.Strings("shared", c.SharedResources.Strings()))
		created = append(created, c)
	}
	return created, nil
}

// notifyOwners lists the owners to inform, once each.
func notifyOwners(a, b string) []string {
	if a == b {
		return []string{a}
	}
	return []string{a, b}
}

type ConflictListOptions struct {
	FamilyID string
	Status   string
	GoalID   string
	Limit    int
	ActorID  string
}

func (e Engine) ListConflicts(ctx context.Context, opts ConflictListOptions) ([]domain.Conflict, error) {
	if _, err := e.GetFamily(ctx, opts.FamilyID, opts.ActorID); err != nil {
		return nil, err
	}
	status := ""
	if opts.Status != "" {
		st, err := domain.ParseConflictStatus(opts.Status)
		if err != nil {
			return nil, err
		}
		status = string(st)
	}
	return e.Repo.ListConflicts(ctx, repo.ConflictFilters{FamilyID: opts.FamilyID, Status: status, GoalID: opts.GoalID, Limit: opts.Limit})
}

// GetConflict returns a conflict with its resolution once resolved.
func (e Engine) GetConflict(ctx context.Context, conflictID, actorID string) (domain.Conflict, error) {
	c, err := e.Repo.GetConflict(ctx, conflictID)
	if err != nil {
		return c, err
	}
	if _, err := e.Auth.RequireMember(ctx, nil, c.FamilyID, actorID); err != nil {
		return domain.Conflict{}, err
	}
	if c.Status == domain.ConflictResolved {
		res, err := e.Repo.GetResolutionByConflict(ctx, c.ID)
		if err != nil {
			return domain.Conflict{}, err
		}
		c.Resolution = &res
	}
	return c, nil
}
