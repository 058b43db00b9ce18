package auth

import (
	"context"
	"database/sql"
	"fmt"

	"accord/internal/domain"
)

// UnauthorizedError reports an actor acting outside its family or on a goal it does not own.
type UnauthorizedError struct {
	FamilyID string
	ActorID  string
	Reason   string
}

func (e UnauthorizedError) Error() string {
	if e.ActorID == "" {
		return "unauthorized: actor_id required"
	}
	return fmt.Sprintf("unauthorized: actor %s %s in family %s", e.ActorID, e.Reason, e.FamilyID)
}

func (e UnauthorizedError) Is(target error) bool {
	return target == domain.ErrUnauthorized
}

// Service answers membership questions from family_members.
type Service struct {
	DB *sql.DB
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s Service) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return s.DB
}

// MemberRole returns the actor's role, or ok=false when it is not a member.
func (s Service) MemberRole(ctx context.Context, tx *sql.Tx, familyID, actorID string) (domain.MemberRole, bool, error) {
	var role string
	err := s.q(tx).QueryRowContext(ctx, `SELECT role FROM family_members WHERE family_id=? AND actor_id=?`, familyID, actorID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return domain.MemberRole(role), true, nil
}

// RequireMember fails with UnauthorizedError unless actorID belongs to the family.
func (s Service) RequireMember(ctx context.Context, tx *sql.Tx, familyID, actorID string) (domain.MemberRole, error) {
	if actorID == "" {
		return "", UnauthorizedError{FamilyID: familyID}
	}
	role, ok, err := s.MemberRole(ctx, tx, familyID, actorID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", UnauthorizedError{FamilyID: familyID, ActorID: actorID, Reason: "is not a member"}
	}
	return role, nil
}

// RequireOwner fails unless actorID is a member of the goal's family and owns the goal.
func (s Service) RequireOwner(ctx context.Context, tx *sql.Tx, g domain.Goal, actorID string) error {
	if _, err := s.RequireMember(ctx, tx, g.FamilyID, actorID); err != nil {
		return err
	}
	if g.OwnerID != actorID {
		return UnauthorizedError{FamilyID: g.FamilyID, ActorID: actorID, Reason: "does not own goal " + g.ID}
	}
	return nil
}
