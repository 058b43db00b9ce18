package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"accord/internal/domain"
	"accord/internal/events"
	"accord/internal/repo"
)

// GoalCreateOptions are parameters for creating a goal. The acting user becomes the owner.
type GoalCreateOptions struct {
	ID          string
	FamilyID    string
	Title       string
	Description string
	Type        string
	Horizon     string
	Resources   []string
	Deadline    string
	Metric      string
	ActorID     string
}

// CreateGoal stores a DRAFT goal and runs conflict detection in the same
// transaction. The returned goal reflects any blocking that detection caused.
func (e Engine) CreateGoal(ctx context.Context, opts GoalCreateOptions) (domain.Goal, []domain.Conflict, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Goal{}, nil, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if opts.FamilyID == "" {
		return domain.Goal{}, nil, fmt.Errorf("%w: family is required", domain.ErrInvalidInput)
	}
	typ, err := domain.ParseGoalType(opts.Type)
	if err != nil {
		return domain.Goal{}, nil, err
	}
	horizon, err := domain.ParseGoalHorizon(opts.Horizon)
	if err != nil {
		return domain.Goal{}, nil, err
	}
	resources, err := domain.ParseResourceSet(opts.Resources)
	if err != nil {
		return domain.Goal{}, nil, err
	}
	deadline, err := domain.ParseDate(opts.Deadline)
	if err != nil {
		return domain.Goal{}, nil, err
	}
	id := opts.ID
	if id == "" {
		id = newID()
	}
	now := e.timestamp()
	g := domain.Goal{
		ID:          id,
		FamilyID:    opts.FamilyID,
		OwnerID:     opts.ActorID,
		Title:       title,
		Description: strings.TrimSpace(opts.Description),
		Type:        typ,
		Horizon:     horizon,
		Resources:   resources,
		Deadline:    deadline,
		Metric:      strings.TrimSpace(opts.Metric),
		Progress:    0,
		Status:      domain.GoalDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Goal{}, nil, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetFamilyTx(ctx, tx, g.FamilyID); err != nil {
		return domain.Goal{}, nil, err
	}
	if _, err := e.Auth.RequireMember(ctx, tx, g.FamilyID, opts.ActorID); err != nil {
		return domain.Goal{}, nil, err
	}
	if err := e.Repo.InsertGoalTx(ctx, tx, g); err != nil {
		return domain.Goal{}, nil, fmt.Errorf("insert goal: %w", err)
	}
	if err := e.emit(ctx, tx, events.GoalCreated, g.FamilyID, "goal", g.ID, opts.ActorID, events.EventPayload{
		"title":     g.Title,
		"status":    g.Status,
		"resources": g.Resources,
	}); err != nil {
		return domain.Goal{}, nil, err
	}
	conflicts, err := e.detectTx(ctx, tx, g, opts.ActorID)
	if err != nil {
		return domain.Goal{}, nil, err
	}
	stored, err := e.Repo.GetGoalTx(ctx, tx, g.ID)
	if err != nil {
		return domain.Goal{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Goal{}, nil, err
	}
	return stored, conflicts, nil
}

// GoalUpdateOptions patches a goal; nil fields are left unchanged.
type GoalUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	Type        *string
	Horizon     *string
	Resources   *[]string
	Deadline    *string
	Metric      *string
	ActorID     string
}

// UpdateGoal edits an owned goal. Detection re-runs only when the resource set changed.
func (e Engine) UpdateGoal(ctx context.Context, opts GoalUpdateOptions) (domain.Goal, []domain.Conflict, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Goal{}, nil, err
	}
	defer tx.Rollback()

	g, err := e.Repo.GetGoalTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Goal{}, nil, err
	}
	if err := e.Auth.RequireOwner(ctx, tx, g, opts.ActorID); err != nil {
		return domain.Goal{}, nil, err
	}
	if g.Status.Terminal() {
		return domain.Goal{}, nil, fmt.Errorf("%w: goal %s is %s", domain.ErrInvalidState, g.ID, g.Status)
	}

	var changed []string
	if opts.Title != nil {
		title := strings.TrimSpace(*opts.Title)
		if title == "" {
			return domain.Goal{}, nil, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
		}
		if title != g.Title {
			g.Title = title
			changed = append(changed, "title")
		}
	}
	if opts.Description != nil && strings.TrimSpace(*opts.Description) != g.Description {
		g.Description = strings.TrimSpace(*opts.Description)
		changed = append(changed, "description")
	}
	if opts.Type != nil {
		typ, err := domain.ParseGoalType(*opts.Type)
		if err != nil {
			return domain.Goal{}, nil, err
		}
		if typ != g.Type {
			g.Type = typ
			changed = append(changed, "type")
		}
	}
	if opts.Horizon != nil {
		h, err := domain.ParseGoalHorizon(*opts.Horizon)
		if err != nil {
			return domain.Goal{}, nil, err
		}
		if h != g.Horizon {
			g.Horizon = h
			changed = append(changed, "horizon")
		}
	}
	if opts.Deadline != nil {
		d, err := domain.ParseDate(*opts.Deadline)
		if err != nil {
			return domain.Goal{}, nil, err
		}
		if d != g.Deadline {
			g.Deadline = d
			changed = append(changed, "deadline")
		}
	}
	if opts.Metric != nil && strings.TrimSpace(*opts.Metric) != g.Metric {
		g.Metric = strings.TrimSpace(*opts.Metric)
		changed = append(changed, "metric")
	}
	resourcesChanged := false
	if opts.Resources != nil {
		set, err := domain.ParseResourceSet(*opts.Resources)
		if err != nil {
			return domain.Goal{}, nil, err
		}
		if !set.Equal(g.Resources) {
			if g.Status == domain.GoalBlocked {
				return domain.Goal{}, nil, fmt.Errorf("%w: resources of BLOCKED goal %s change only through resolution", domain.ErrInvalidState, g.ID)
			}
			g.Resources = set
			resourcesChanged = true
			changed = append(changed, "resources")
		}
	}
	if len(changed) == 0 {
		return g, nil, nil
	}
	g.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateGoalTx(ctx, tx, g); err != nil {
		return domain.Goal{}, nil, err
	}
	if resourcesChanged {
		if err := e.Repo.SetGoalResourcesTx(ctx, tx, g.ID, g.Resources); err != nil {
			return domain.Goal{}, nil, err
		}
	}
	if err := e.emit(ctx, tx, events.GoalUpdated, g.FamilyID, "goal", g.ID, opts.ActorID, events.EventPayload{"fields": changed}); err != nil {
		return domain.Goal{}, nil, err
	}
	var conflicts []domain.Conflict
	if resourcesChanged {
		if conflicts, err = e.detectTx(ctx, tx, g, opts.ActorID); err != nil {
			return domain.Goal{}, nil, err
		}
	}
	stored, err := e.Repo.GetGoalTx(ctx, tx, g.ID)
	if err != nil {
		return domain.Goal{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Goal{}, nil, err
	}
	return stored, conflicts, nil
}

// ActivateGoal moves an owned DRAFT goal to ACTIVE.
func (e Engine) ActivateGoal(ctx context.Context, goalID, actorID string) (domain.Goal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Goal{}, err
	}
	defer tx.Rollback()

	g, err := e.Repo.GetGoalTx(ctx, tx, goalID)
	if err != nil {
		return domain.Goal{}, err
	}
	if err := e.Auth.RequireOwner(ctx, tx, g, actorID); err != nil {
		return domain.Goal{}, err
	}
	if g.Status != domain.GoalDraft {
		return domain.Goal{}, fmt.Errorf("%w: only DRAFT goals can be activated, goal %s is %s", domain.ErrInvalidState, g.ID, g.Status)
	}
	if err := e.setGoalStatus(ctx, tx, g, domain.GoalActive, nil, actorID, "activated", nil); err != nil {
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

// UpdateGoalProgress sets progress, clamped to 0..100. Reaching 100 completes an ACTIVE goal.
func (e Engine) UpdateGoalProgress(ctx context.Context, goalID string, progress int, actorID string) (domain.Goal, error) {
	progress = clampProgress(progress)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Goal{}, err
	}
	defer tx.Rollback()

	g, err := e.Repo.GetGoalTx(ctx, tx, goalID)
	if err != nil {
		return domain.Goal{}, err
	}
	if err := e.Auth.RequireOwner(ctx, tx, g, actorID); err != nil {
		return domain.Goal{}, err
	}
	if err := e.applyProgress(ctx, tx, g, progress, actorID, "manual"); err != nil {
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

// DeleteGoal removes an owned goal that takes part in no unresolved conflict.
func (e Engine) DeleteGoal(ctx context.Context, goalID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	g, err := e.Repo.GetGoalTx(ctx, tx, goalID)
	if err != nil {
		return err
	}
	if err := e.Auth.RequireOwner(ctx, tx, g, actorID); err != nil {
		return err
	}
	open, err := e.Repo.CountUnresolvedForGoalTx(ctx, tx, g.ID, "")
	if err != nil {
		return err
	}
	if open > 0 {
		return fmt.Errorf("%w: goal %s has %d unresolved conflict(s)", domain.ErrInvalidState, g.ID, open)
	}
	if err := e.Repo.DeleteGoalTx(ctx, tx, g.ID); err != nil {
		return err
	}
	if err := e.emit(ctx, tx, events.GoalDeleted, g.FamilyID, "goal", g.ID, actorID, events.EventPayload{"title": g.Title, "status": g.Status}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GetGoal(ctx context.Context, goalID, actorID string) (domain.Goal, error) {
	g, err := e.Repo.GetGoal(ctx, goalID)
	if err != nil {
		return g, err
	}
	if _, err := e.Auth.RequireMember(ctx, nil, g.FamilyID, actorID); err != nil {
		return domain.Goal{}, err
	}
	return g, nil
}

type GoalListOptions struct {
	FamilyID        string
	Status          string
	OwnerID         string
	Limit           int
	CursorCreatedAt string
	CursorID        string
	ActorID         string
}

func (e Engine) ListGoals(ctx context.Context, opts GoalListOptions) ([]domain.Goal, error) {
	if _, err := e.GetFamily(ctx, opts.FamilyID, opts.ActorID); err != nil {
		return nil, err
	}
	status := ""
	if opts.Status != "" {
		st, err := domain.ParseGoalStatus(opts.Status)
		if err != nil {
			return nil, err
		}
		status = string(st)
	}
	return e.Repo.ListGoals(ctx, repo.GoalFilters{
		FamilyID:        opts.FamilyID,
		Status:          status,
		OwnerID:         opts.OwnerID,
		Limit:           opts.Limit,
		CursorCreatedAt: opts.CursorCreatedAt,
		CursorID:        opts.CursorID,
	})
}

// applyProgress records a new progress value for a DRAFT or ACTIVE goal.
// 100 completes the goal, which must then be ACTIVE.
func (e Engine) applyProgress(ctx context.Context, tx *sql.Tx, g domain.Goal, progress int, actorID, source string) error {
	if g.Status != domain.GoalDraft && g.Status != domain.GoalActive {
		return fmt.Errorf("%w: cannot change progress of %s goal %s", domain.ErrInvalidState, g.Status, g.ID)
	}
	previous := g.Progress
	if progress == 100 {
		if g.Status != domain.GoalActive {
			return fmt.Errorf("%w: goal %s must be ACTIVE to complete", domain.ErrInvalidState, g.ID)
		}
		if err := e.setGoalStatus(ctx, tx, g, domain.GoalCompleted, &progress, actorID, "completed", events.EventPayload{"source": source}); err != nil {
			return err
		}
	} else if progress != previous {
		g.Progress = progress
		g.UpdatedAt = e.timestamp()
		if err := e.Repo.UpdateGoalTx(ctx, tx, g); err != nil {
			return err
		}
	}
	return e.emit(ctx, tx, events.GoalProgress, g.FamilyID, "goal", g.ID, actorID, events.EventPayload{"from": previous, "to": progress, "source": source})
}

// setGoalStatus validates and applies one transition and records it.
func (e Engine) setGoalStatus(ctx context.Context, tx *sql.Tx, g domain.Goal, to domain.GoalStatus, progress *int, actorID, reason string, extra events.EventPayload) error {
	if err := domain.EnsureGoalTransition(g.Status, to); err != nil {
		return err
	}
	if err := e.Repo.SetGoalStatusTx(ctx, tx, g.ID, g.Status, to, progress, e.timestamp()); err != nil {
		return err
	}
	payload := events.EventPayload{"from": g.Status, "to": to, "reason": reason, "owner_id": g.OwnerID}
	for k, v := range extra {
		payload[k] = v
	}
	e.log().Debug("goal status changed",
		zap.String("goal_id", g.ID),
		zap.String("from", string(g.Status)),
		zap.String("to", string(to)),
		zap.String("reason", reason))
	return e.emit(ctx, tx, events.GoalStatusChanged, g.FamilyID, "goal", g.ID, actorID, payload)
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
