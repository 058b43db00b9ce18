package domain

import (
	"fmt"
	"strings"
)

type GoalStatus string

const (
	GoalDraft     GoalStatus = "DRAFT"
	GoalActive    GoalStatus = "ACTIVE"
	GoalBlocked   GoalStatus = "BLOCKED"
	GoalPaused    GoalStatus = "PAUSED"
	GoalCompleted GoalStatus = "COMPLETED"
	GoalDropped   GoalStatus = "DROPPED"
)

type GoalType string

const (
	GoalTypeFamily   GoalType = "FAMILY"
	GoalTypePersonal GoalType = "PERSONAL"
)

type GoalHorizon string

const (
	HorizonShort GoalHorizon = "SHORT"
	HorizonMid   GoalHorizon = "MID"
	HorizonLong  GoalHorizon = "LONG"
)

type MemberRole string

const (
	RoleAdult   MemberRole = "ADULT"
	RolePartner MemberRole = "PARTNER"
	RoleChild   MemberRole = "CHILD"
)

type ConflictStatus string

const (
	ConflictUnresolved ConflictStatus = "UNRESOLVED"
	ConflictResolved   ConflictStatus = "RESOLVED"
)

type AgreementStatus string

const (
	AgreementActive    AgreementStatus = "ACTIVE"
	AgreementExpired   AgreementStatus = "EXPIRED"
	AgreementRevised   AgreementStatus = "REVISED"
	AgreementCancelled AgreementStatus = "CANCELLED"
)

// Detectable reports whether a goal takes part in conflict detection as a candidate.
func (s GoalStatus) Detectable() bool {
	return s == GoalActive || s == GoalDraft
}

// Terminal statuses never leave and never gain conflicts.
func (s GoalStatus) Terminal() bool {
	return s == GoalCompleted || s == GoalDropped
}

// EnsureGoalTransition validates a goal status change. Which actor may
// trigger each edge (owner, detector, resolution) is enforced by the engine.
func EnsureGoalTransition(from, to GoalStatus) error {
	switch from {
	case GoalDraft:
		if to == GoalActive || to == GoalBlocked {
			return nil
		}
	case GoalActive:
		if to == GoalBlocked || to == GoalCompleted {
			return nil
		}
	case GoalBlocked:
		if to == GoalActive || to == GoalPaused || to == GoalDropped {
			return nil
		}
	}
	return fmt.Errorf("%w: goal status %s -> %s", ErrInvalidState, from, to)
}

// EnsureAgreementTransition validates human changes to an agreement.
// EXPIRED is derived from the review date and never set directly.
func EnsureAgreementTransition(from, to AgreementStatus) error {
	if from == AgreementActive && (to == AgreementRevised || to == AgreementCancelled) {
		return nil
	}
	return fmt.Errorf("%w: agreement status %s -> %s", ErrInvalidState, from, to)
}

func ParseGoalStatus(s string) (GoalStatus, error) {
	st := GoalStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case GoalDraft, GoalActive, GoalBlocked, GoalPaused, GoalCompleted, GoalDropped:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown goal status %q", ErrInvalidInput, s)
}

func ParseGoalType(s string) (GoalType, error) {
	if strings.TrimSpace(s) == "" {
		return GoalTypeFamily, nil
	}
	t := GoalType(strings.ToUpper(strings.TrimSpace(s)))
	if t == GoalTypeFamily || t == GoalTypePersonal {
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown goal type %q", ErrInvalidInput, s)
}

func ParseGoalHorizon(s string) (GoalHorizon, error) {
	if strings.TrimSpace(s) == "" {
		return HorizonMid, nil
	}
	h := GoalHorizon(strings.ToUpper(strings.TrimSpace(s)))
	switch h {
	case HorizonShort, HorizonMid, HorizonLong:
		return h, nil
	}
	return "", fmt.Errorf("%w: unknown horizon %q", ErrInvalidInput, s)
}

func ParseMemberRole(s string) (MemberRole, error) {
	if strings.TrimSpace(s) == "" {
		return RoleAdult, nil
	}
	r := MemberRole(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleAdult, RolePartner, RoleChild:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

func ParseConflictStatus(s string) (ConflictStatus, error) {
	st := ConflictStatus(strings.ToUpper(strings.TrimSpace(s)))
	if st == ConflictUnresolved || st == ConflictResolved {
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown conflict status %q", ErrInvalidInput, s)
}

func ParseAgreementStatus(s string) (AgreementStatus, error) {
	st := AgreementStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case AgreementActive, AgreementExpired, AgreementRevised, AgreementCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown agreement status %q", ErrInvalidInput, s)
}
