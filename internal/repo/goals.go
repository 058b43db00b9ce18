package repo

import (
	"context"
	"database/sql"
	"strings"

	"accord/internal/domain"
)

const goalColumns = `id,family_id,owner_id,title,COALESCE(description,''),type,horizon,COALESCE(deadline,''),COALESCE(metric,''),progress,status,created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanGoal(s scanner) (domain.Goal, error) {
	var g domain.Goal
	var typ, horizon, status string
	err := s.Scan(&g.ID, &g.FamilyID, &g.OwnerID, &g.Title, &g.Description, &typ, &horizon,
		&g.Deadline, &g.Metric, &g.Progress, &status, &g.CreatedAt, &g.UpdatedAt)
	g.Type = domain.GoalType(typ)
	g.Horizon = domain.GoalHorizon(horizon)
	g.Status = domain.GoalStatus(status)
	g.Resources = domain.ResourceSet{}
	return g, err
}

// InsertGoalTx writes the goal row and its resource tags.
func (r Repo) InsertGoalTx(ctx context.Context, tx *sql.Tx, g domain.Goal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO goals(id,family_id,owner_id,title,description,type,horizon,deadline,metric,progress,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		g.ID, g.FamilyID, g.OwnerID, g.Title, nullable(g.Description), string(g.Type), string(g.Horizon),
		nullable(g.Deadline), nullable(g.Metric), g.Progress, string(g.Status), g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return err
	}
	return r.SetGoalResourcesTx(ctx, tx, g.ID, g.Resources)
}

// UpdateGoalTx rewrites the mutable goal fields. Status is changed only via SetGoalStatusTx.
func (r Repo) UpdateGoalTx(ctx context.Context, tx *sql.Tx, g domain.Goal) error {
	res, err := tx.ExecContext(ctx, `UPDATE goals SET title=?,description=?,type=?,horizon=?,deadline=?,metric=?,progress=?,updated_at=? WHERE id=?`,
		g.Title, nullable(g.Description), string(g.Type), string(g.Horizon), nullable(g.Deadline), nullable(g.Metric), g.Progress, g.UpdatedAt, g.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("goal", g.ID)
	}
	return nil
}

// SetGoalStatusTx moves a goal from one status to another, optionally with a new
// progress value. It fails with ErrNotFound if the goal is no longer in `from`.
func (r Repo) SetGoalStatusTx(ctx context.Context, tx *sql.Tx, id string, from, to domain.GoalStatus, progress *int, now string) error {
	query := `UPDATE goals SET status=?,updated_at=?`
	args := []any{string(to), now}
	if progress != nil {
		query += `,progress=?`
		args = append(args, *progress)
	}
	query += ` WHERE id=? AND status=?`
	args = append(args, id, string(from))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("goal in status "+string(from), id)
	}
	return nil
}

func (r Repo) SetGoalResourcesTx(ctx context.Context, tx *sql.Tx, goalID string, resources domain.ResourceSet) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM goal_resources WHERE goal_id=?`, goalID); err != nil {
		return err
	}
	for _, res := range resources {
		if _, err := tx.ExecContext(ctx, `INSERT INTO goal_resources(goal_id,resource) VALUES (?,?)`, goalID, string(res)); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) DeleteGoalTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM goals WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("goal", id)
	}
	return nil
}

func (r Repo) GetGoal(ctx context.Context, id string) (domain.Goal, error) {
	return r.GetGoalTx(ctx, nil, id)
}

func (r Repo) GetGoalTx(ctx context.Context, tx *sql.Tx, id string) (domain.Goal, error) {
	q := r.q(tx)
	g, err := scanGoal(q.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return g, notFound("goal", id)
	}
	if err != nil {
		return g, err
	}
	goals := []domain.Goal{g}
	if err := attachGoalResources(ctx, q, goals); err != nil {
		return g, err
	}
	return goals[0], nil
}

type GoalFilters struct {
	FamilyID        string
	Status          string
	OwnerID         string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListGoals returns goals newest first.
func (r Repo) ListGoals(ctx context.Context, f GoalFilters) ([]domain.Goal, error) {
	clauses := []string{"family_id=?"}
	args := []any{f.FamilyID}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + goalColumns + ` FROM goals WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.queryGoals(ctx, r.DB, query, args...)
}

// ListDetectableGoalsTx returns the family's ACTIVE and DRAFT goals other than
// excludeID, oldest first.
func (r Repo) ListDetectableGoalsTx(ctx context.Context, tx *sql.Tx, familyID, excludeID string) ([]domain.Goal, error) {
	return r.queryGoals(ctx, tx, `SELECT `+goalColumns+` FROM goals
WHERE family_id=? AND id<>? AND status IN (?,?) ORDER BY created_at ASC, id ASC`,
		familyID, excludeID, string(domain.GoalActive), string(domain.GoalDraft))
}

func (r Repo) CountGoalsByStatus(ctx context.Context, familyID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM goals WHERE family_id=? GROUP BY status`, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func (r Repo) queryGoals(ctx context.Context, q querier, query string, args ...any) ([]domain.Goal, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var goals []domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if err := attachGoalResources(ctx, q, goals); err != nil {
		return nil, err
	}
	return goals, nil
}

func attachGoalResources(ctx context.Context, q querier, goals []domain.Goal) error {
	if len(goals) == 0 {
		return nil
	}
	idx := make(map[string]int, len(goals))
	args := make([]any, len(goals))
	for i, g := range goals {
		idx[g.ID] = i
		args[i] = g.ID
	}
	rows, err := q.QueryContext(ctx, `SELECT goal_id,resource FROM goal_resources WHERE goal_id IN (`+placeholders(len(goals))+`)`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	tags := map[string][]domain.ResourceTag{}
	for rows.Next() {
		var goalID, res string
		if err := rows.Scan(&goalID, &res); err != nil {
			return err
		}
		tags[goalID] = append(tags[goalID], domain.ResourceTag(res))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for id, t := range tags {
		set, err := domain.NewResourceSet(t...)
		if err != nil {
			return err
		}
		goals[idx[id]].Resources = set
	}
	return nil
}
