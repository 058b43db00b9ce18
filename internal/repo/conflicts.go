package repo

import (
	"context"
	"database/sql"
	"strings"

	"accord/internal/domain"
)

const conflictColumns = `id,family_id,type,goal_a_id,goal_b_id,status,created_at,resolved_at`

func scanConflict(s scanner) (domain.Conflict, error) {
	var c domain.Conflict
	var typ, status string
	var resolvedAt sql.NullString
	err := s.Scan(&c.ID, &c.FamilyID, &typ, &c.GoalAID, &c.GoalBID, &status, &c.CreatedAt, &resolvedAt)
	c.Type = domain.ConflictType(typ)
	c.Status = domain.ConflictStatus(status)
	c.SharedResources = domain.ResourceSet{}
	if resolvedAt.Valid {
		v := resolvedAt.String
		c.ResolvedAt = &v
	}
	return c, err
}

// InsertConflictTx records a conflict unless one already exists for the same
// unordered goal pair. It reports whether a row was written.
func (r Repo) InsertConflictTx(ctx context.Context, tx *sql.Tx, c domain.Conflict) (bool, error) {
	low, high := domain.PairKey(c.GoalAID, c.GoalBID)
	res, err := tx.ExecContext(ctx, `INSERT INTO conflicts(id,family_id,type,goal_a_id,goal_b_id,pair_low,pair_high,status,created_at)
VALUES (?,?,?,?,?,?,?,?,?) ON CONFLICT(pair_low,pair_high) DO NOTHING`,
		c.ID, c.FamilyID, string(c.Type), c.GoalAID, c.GoalBID, low, high, string(c.Status), c.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	for _, tag := range c.SharedResources {
		if _, err := tx.ExecContext(ctx, `INSERT INTO conflict_resources(conflict_id,resource) VALUES (?,?)`, c.ID, string(tag)); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r Repo) GetConflict(ctx context.Context, id string) (domain.Conflict, error) {
	return r.GetConflictTx(ctx, nil, id)
}

func (r Repo) GetConflictTx(ctx context.Context, tx *sql.Tx, id string) (domain.Conflict, error) {
	q := r.q(tx)
	c, err := scanConflict(q.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return c, notFound("conflict", id)
	}
	if err != nil {
		return c, err
	}
	list := []domain.Conflict{c}
	if err := attachConflictResources(ctx, q, list); err != nil {
		return c, err
	}
	return list[0], nil
}

type ConflictFilters struct {
	FamilyID string
	Status   string
	GoalID   string
	Limit    int
}

// ListConflicts returns conflicts newest first.
func (r Repo) ListConflicts(ctx context.Context, f ConflictFilters) ([]domain.Conflict, error) {
	clauses := []string{"family_id=?"}
	args := []any{f.FamilyID}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.GoalID != "" {
		clauses = append(clauses, "(goal_a_id=? OR goal_b_id=?)")
		args = append(args, f.GoalID, f.GoalID)
	}
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if err := attachConflictResources(ctx, r.DB, res); err != nil {
		return nil, err
	}
	return res, nil
}

// CountUnresolvedForGoalTx counts UNRESOLVED conflicts involving the goal,
// ignoring excludeID.
func (r Repo) CountUnresolvedForGoalTx(ctx context.Context, tx *sql.Tx, goalID, excludeID string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT count(*) FROM conflicts WHERE status=? AND (goal_a_id=? OR goal_b_id=?) AND id<>?`,
		string(domain.ConflictUnresolved), goalID, goalID, excludeID).Scan(&n)
	return n, err
}

// MarkConflictResolvedTx flips an UNRESOLVED conflict to RESOLVED. It reports
// false when the conflict was already resolved by a concurrent writer.
func (r Repo) MarkConflictResolvedTx(ctx context.Context, tx *sql.Tx, id, resolvedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE conflicts SET status=?, resolved_at=? WHERE id=? AND status=?`,
		string(domain.ConflictResolved), resolvedAt, id, string(domain.ConflictUnresolved))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) InsertResolutionTx(ctx context.Context, tx *sql.Tx, res domain.Resolution) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO resolutions(id,conflict_id,strategy,description,cost,compensation,review_date,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		res.ID, res.ConflictID, string(res.Strategy), nullable(res.Description), res.Cost, res.Compensation, nullable(res.ReviewDate), res.CreatedAt)
	return err
}

func (r Repo) GetResolutionByConflict(ctx context.Context, conflictID string) (domain.Resolution, error) {
	var res domain.Resolution
	var strategy string
	err := r.DB.QueryRowContext(ctx, `SELECT id,conflict_id,strategy,COALESCE(description,''),cost,compensation,COALESCE(review_date,''),created_at
FROM resolutions WHERE conflict_id=?`, conflictID).
		Scan(&res.ID, &res.ConflictID, &strategy, &res.Description, &res.Cost, &res.Compensation, &res.ReviewDate, &res.CreatedAt)
	if err == sql.ErrNoRows {
		return res, notFound("resolution for conflict", conflictID)
	}
	res.Strategy = domain.Strategy(strategy)
	return res, err
}

func attachConflictResources(ctx context.Context, q querier, conflicts []domain.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}
	idx := make(map[string]int, len(conflicts))
	args := make([]any, len(conflicts))
	for i, c := range conflicts {
		idx[c.ID] = i
		args[i] = c.ID
	}
	rows, err := q.QueryContext(ctx, `SELECT conflict_id,resource FROM conflict_resources WHERE conflict_id IN (`+placeholders(len(conflicts))+`)`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	tags := map[string][]domain.ResourceTag{}
	for rows.Next() {
		var id, res string
		if err := rows.Scan(&id, &res); err != nil {
			return err
		}
		tags[id] = append(tags[id], domain.ResourceTag(res))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for id, t := range tags {
		set, err := domain.NewResourceSet(t...)
		if err != nil {
			return err
		}
		conflicts[idx[id]].SharedResources = set
	}
	return nil
}
