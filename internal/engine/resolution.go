package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"accord/internal/domain"
	"accord/internal/events"
)

// ResolveOptions carry the human decision that settles a conflict.
type ResolveOptions struct {
	ConflictID   string
	Strategy     string
	Description  string
	Cost         string
	Compensation string
	ReviewDate   string
	ActorID      string
}

// ResolveConflict applies a strategy to an UNRESOLVED conflict. The conflict,
// both goals, the resolution and the resulting agreement change together or not at all.
func (e Engine) ResolveConflict(ctx context.Context, opts ResolveOptions) (domain.Agreement, error) {
	strategy, err := domain.ParseStrategy(opts.Strategy)
	if err != nil {
		return domain.Agreement{}, err
	}
	cost := strings.TrimSpace(opts.Cost)
	compensation := strings.TrimSpace(opts.Compensation)
	if cost == "" || compensation == "" {
		return domain.Agreement{}, fmt.Errorf("%w: cost and compensation are required", domain.ErrInvalidState)
	}
	reviewDate, err := domain.ParseDate(opts.ReviewDate)
	if err != nil {
		return domain.Agreement{}, err
	}
	targetA, targetB, err := domain.StrategyOutcome(strategy)
	if err != nil {
		return domain.Agreement{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agreement{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetConflictTx(ctx, tx, opts.ConflictID)
	if err != nil {
		return domain.Agreement{}, err
	}
	if _, err := e.Auth.RequireMember(ctx, tx, c.FamilyID, opts.ActorID); err != nil {
		return domain.Agreement{}, err
	}
	if c.Status != domain.ConflictUnresolved {
		return domain.Agreement{}, fmt.Errorf("%w: conflict %s is already %s", domain.ErrInvalidState, c.ID, c.Status)
	}
	goalA, err := e.Repo.GetGoalTx(ctx, tx, c.GoalAID)
	if err != nil {
		return domain.Agreement{}, err
	}
	goalB, err := e.Repo.GetGoalTx(ctx, tx, c.GoalBID)
	if err != nil {
		return domain.Agreement{}, err
	}

	now := e.timestamp()
	ok, err := e.Repo.MarkConflictResolvedTx(ctx, tx, c.ID, now)
	if err != nil {
		return domain.Agreement{}, err
	}
	if !ok {
		return domain.Agreement{}, fmt.Errorf("%w: conflict %s is already RESOLVED", domain.ErrInvalidState, c.ID)
	}
	var notes []string
	for _, step := range []struct {
		goal   domain.Goal
		target domain.GoalStatus
	}{{goalA, targetA}, {goalB, targetB}} {
		note, err := e.applyOutcome(ctx, tx, step.goal, step.target, c.ID, strategy, opts.ActorID)
		if err != nil {
			return domain.Agreement{}, err
		}
		if note != "" {
			notes = append(notes, note)
		}
	}

	res := domain.Resolution{
		ID:           newID(),
		ConflictID:   c.ID,
		Strategy:     strategy,
		Description:  strings.TrimSpace(opts.Description),
		Cost:         cost,
		Compensation: compensation,
		ReviewDate:   reviewDate,
		CreatedAt:    now,
	}
	if err := e.Repo.InsertResolutionTx(ctx, tx, res); err != nil {
		return domain.Agreement{}, fmt.Errorf("insert resolution: %w", err)
	}
	a := domain.Agreement{
		ID:         newID(),
		FamilyID:   c.FamilyID,
		ConflictID: c.ID,
		Title:      domain.AgreementTitle(goalA.Title, goalB.Title),
		Terms:      strings.Join(append([]string{domain.AgreementTerms(strategy, res.Description)}, notes...), " "),
		ValidUntil: reviewDate,
		Status:     domain.AgreementActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.Repo.InsertAgreementTx(ctx, tx, a); err != nil {
		return domain.Agreement{}, fmt.Errorf("insert agreement: %w", err)
	}
	if err := e.emit(ctx, tx, events.ConflictResolved, c.FamilyID, "conflict", c.ID, opts.ActorID, events.EventPayload{
		"strategy":      strategy,
		"resolution_id": res.ID,
		"agreement_id":  a.ID,
		"goal_a_id":     goalA.ID,
		"goal_b_id":     goalB.ID,
		"notify":        notifyOwners(goalA.OwnerID, goalB.OwnerID),
	}); err != nil {
		return domain.Agreement{}, err
	}
	if err := e.emit(ctx, tx, events.AgreementCreated, a.FamilyID, "agreement", a.ID, opts.ActorID, events.EventPayload{
		"title":       a.Title,
		"conflict_id": c.ID,
		"valid_until": a.ValidUntil,
	}); err != nil {
		return domain.Agreement{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Agreement{}, err
	}
	e.log().Info("conflict resolved",
		zap.String("conflict_id", c.ID),
		zap.String("strategy", string(strategy)),
		zap.String("agreement_id", a.ID))
	return a.WithDerived(e.now()), nil
}

// applyOutcome moves a BLOCKED goal to its strategy target. A goal leaving
// BLOCKED for ACTIVE stays BLOCKED while another unresolved conflict holds it.
// Goals outside BLOCKED are left alone. A non-empty note describes an
// outcome that was not applied.
func (e Engine) applyOutcome(ctx context.Context, tx *sql.Tx, g domain.Goal, target domain.GoalStatus, conflictID string, strategy domain.Strategy, actorID string) (string, error) {
	if g.Status != domain.GoalBlocked {
		if g.Status == target {
			return "", nil
		}
		return fmt.Sprintf("Goal %q stays %s.", g.Title, g.Status), nil
	}
	if target == domain.GoalActive {
		open, err := e.Repo.CountUnresolvedForGoalTx(ctx, tx, g.ID, conflictID)
		if err != nil {
			return "", err
		}
		if open > 0 {
			e.log().Debug("goal stays blocked",
				zap.String("goal_id", g.ID),
				zap.Int("unresolved_conflicts", open))
			return fmt.Sprintf("Goal %q stays BLOCKED until its other conflicts are resolved.", g.Title), nil
		}
	}
	return "", e.setGoalStatus(ctx, tx, g, target, nil, actorID, "resolution", events.EventPayload{
		"conflict_id": conflictID,
		"strategy":    strategy,
	})
}
