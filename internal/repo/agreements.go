package repo

import (
	"context"
	"database/sql"

	"accord/internal/domain"
)

const agreementColumns = `id,family_id,conflict_id,title,terms,COALESCE(valid_until,''),status,created_at,updated_at`

func scanAgreement(s scanner) (domain.Agreement, error) {
	var a domain.Agreement
	var status string
	err := s.Scan(&a.ID, &a.FamilyID, &a.ConflictID, &a.Title, &a.Terms, &a.ValidUntil, &status, &a.CreatedAt, &a.UpdatedAt)
	a.Status = domain.AgreementStatus(status)
	return a, err
}

func (r Repo) InsertAgreementTx(ctx context.Context, tx *sql.Tx, a domain.Agreement) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO agreements(id,family_id,conflict_id,title,terms,valid_until,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.FamilyID, a.ConflictID, a.Title, a.Terms, nullable(a.ValidUntil), string(a.Status), a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAgreement(ctx context.Context, id string) (domain.Agreement, error) {
	return r.GetAgreementTx(ctx, nil, id)
}

func (r Repo) GetAgreementTx(ctx context.Context, tx *sql.Tx, id string) (domain.Agreement, error) {
	a, err := scanAgreement(r.q(tx).QueryRowContext(ctx, `SELECT `+agreementColumns+` FROM agreements WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return a, notFound("agreement", id)
	}
	return a, err
}

func (r Repo) GetAgreementByConflict(ctx context.Context, conflictID string) (domain.Agreement, error) {
	a, err := scanAgreement(r.DB.QueryRowContext(ctx, `SELECT `+agreementColumns+` FROM agreements WHERE conflict_id=?`, conflictID))
	if err == sql.ErrNoRows {
		return a, notFound("agreement for conflict", conflictID)
	}
	return a, err
}

// ListAgreements returns every agreement of a family, newest first. Status
// filtering happens in the engine because EXPIRED is derived.
func (r Repo) ListAgreements(ctx context.Context, familyID string) ([]domain.Agreement, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+agreementColumns+` FROM agreements WHERE family_id=? ORDER BY created_at DESC, id DESC`, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// UpdateAgreementStatusTx applies a guarded status change; false means the
// agreement was not in `from` any more.
func (r Repo) UpdateAgreementStatusTx(ctx context.Context, tx *sql.Tx, id string, from, to domain.AgreementStatus, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE agreements SET status=?, updated_at=? WHERE id=? AND status=?`, string(to), now, id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
