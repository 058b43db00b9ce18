package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"accord/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = domain.ErrNotFound

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q runs on tx when given, otherwise directly on the pool.
func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

func (r Repo) InsertFamilyTx(ctx context.Context, tx *sql.Tx, f domain.Family) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO families(id,name,north_star,created_at) VALUES (?,?,?,?)`,
		f.ID, f.Name, nullable(f.NorthStar), f.CreatedAt)
	return err
}

func (r Repo) GetFamily(ctx context.Context, id string) (domain.Family, error) {
	return r.GetFamilyTx(ctx, nil, id)
}

func (r Repo) GetFamilyTx(ctx context.Context, tx *sql.Tx, id string) (domain.Family, error) {
	var f domain.Family
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,name,COALESCE(north_star,''),created_at FROM families WHERE id=?`, id).
		Scan(&f.ID, &f.Name, &f.NorthStar, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, notFound("family", id)
	}
	return f, err
}

func (r Repo) FindFamilyByName(ctx context.Context, name string) (domain.Family, error) {
	var f domain.Family
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(north_star,''),created_at FROM families WHERE name=? ORDER BY created_at LIMIT 1`, name).
		Scan(&f.ID, &f.Name, &f.NorthStar, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, notFound("family", name)
	}
	return f, err
}

// ListFamilies returns families, restricted to those the actor belongs to when actorID is set.
func (r Repo) ListFamilies(ctx context.Context, actorID string) ([]domain.Family, error) {
	query := `SELECT f.id,f.name,COALESCE(f.north_star,''),f.created_at FROM families f`
	var args []any
	if actorID != "" {
		query += ` JOIN family_members m ON m.family_id=f.id WHERE m.actor_id=?`
		args = append(args, actorID)
	}
	query += ` ORDER BY f.created_at, f.id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Family
	for rows.Next() {
		var f domain.Family
		if err := rows.Scan(&f.ID, &f.Name, &f.NorthStar, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

// SingleFamily returns the only family in the store, for commands run without --family.
func (r Repo) SingleFamily(ctx context.Context, actorID string) (domain.Family, error) {
	families, err := r.ListFamilies(ctx, actorID)
	if err != nil {
		return domain.Family{}, err
	}
	if len(families) == 0 {
		return domain.Family{}, ErrNotFound
	}
	if len(families) > 1 {
		return domain.Family{}, fmt.Errorf("multiple families exist; specify --family")
	}
	return families[0], nil
}

func (r Repo) UpsertMemberTx(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO family_members(family_id,actor_id,role,created_at) VALUES (?,?,?,?)
ON CONFLICT(family_id,actor_id) DO UPDATE SET role=excluded.role`, m.FamilyID, m.ActorID, string(m.Role), m.CreatedAt)
	return err
}

func (r Repo) GetMemberTx(ctx context.Context, tx *sql.Tx, familyID, actorID string) (domain.Member, error) {
	var m domain.Member
	var role string
	err := r.q(tx).QueryRowContext(ctx, `SELECT family_id,actor_id,role,created_at FROM family_members WHERE family_id=? AND actor_id=?`, familyID, actorID).
		Scan(&m.FamilyID, &m.ActorID, &role, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, notFound("member", actorID)
	}
	m.Role = domain.MemberRole(role)
	return m, err
}

func (r Repo) ListMembers(ctx context.Context, familyID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT family_id,actor_id,role,created_at FROM family_members WHERE family_id=? ORDER BY created_at, actor_id`, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		var role string
		if err := rows.Scan(&m.FamilyID, &m.ActorID, &role, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = domain.MemberRole(role)
		res = append(res, m)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
