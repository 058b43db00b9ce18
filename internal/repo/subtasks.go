package repo

import (
	"context"
	"database/sql"
	"errors"

	"accord/internal/domain"
)

const subtaskColumns = `id,goal_id,title,position,completed,completed_at,COALESCE(completed_by,''),created_at`

func scanSubtask(s scanner) (domain.Subtask, error) {
	var st domain.Subtask
	var completedAt sql.NullString
	err := s.Scan(&st.ID, &st.GoalID, &st.Title, &st.Position, &st.Completed, &completedAt, &st.CompletedBy, &st.CreatedAt)
	if completedAt.Valid {
		st.CompletedAt = &completedAt.String
	}
	return st, err
}

// InsertSubtaskTx appends a subtask after the goal's last one and returns its position.
func (r Repo) InsertSubtaskTx(ctx context.Context, tx *sql.Tx, st domain.Subtask) (int, error) {
	var pos int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position),0)+1 FROM subtasks WHERE goal_id=?`, st.GoalID).Scan(&pos)
	if err != nil {
		return 0, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO subtasks(id,goal_id,title,position,completed,created_at) VALUES (?,?,?,?,0,?)`,
		st.ID, st.GoalID, st.Title, pos, st.CreatedAt)
	return pos, err
}

func (r Repo) GetSubtaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Subtask, error) {
	st, err := scanSubtask(r.q(tx).QueryRowContext(ctx, `SELECT `+subtaskColumns+` FROM subtasks WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Subtask{}, notFound("subtask", id)
	}
	return st, err
}

func (r Repo) ListSubtasks(ctx context.Context, goalID string) ([]domain.Subtask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+subtaskColumns+` FROM subtasks WHERE goal_id=? ORDER BY position`, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Subtask
	for rows.Next() {
		st, err := scanSubtask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SetSubtaskCompletedTx flips the completion flag. It reports false when the
// subtask was already in the requested state.
func (r Repo) SetSubtaskCompletedTx(ctx context.Context, tx *sql.Tx, id string, completed bool, actorID, now string) (bool, error) {
	var res sql.Result
	var err error
	if completed {
		res, err = tx.ExecContext(ctx, `UPDATE subtasks SET completed=1,completed_at=?,completed_by=? WHERE id=? AND completed=0`, now, actorID, id)
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE subtasks SET completed=0,completed_at=NULL,completed_by=NULL WHERE id=? AND completed=1`, id)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) DeleteSubtaskTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM subtasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("subtask", id)
	}
	return nil
}

// SubtaskCountsTx returns how many of a goal's subtasks are done, and how many exist.
func (r Repo) SubtaskCountsTx(ctx context.Context, tx *sql.Tx, goalID string) (done, total int, err error) {
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(completed),0), COUNT(*) FROM subtasks WHERE goal_id=?`, goalID).Scan(&done, &total)
	return done, total, err
}
