package engine

import (
	"context"
	"fmt"

	"accord/internal/domain"
	"accord/internal/events"
)

type AgreementListOptions struct {
	FamilyID string
	// Status filters on the effective status, so EXPIRED is accepted.
	Status  string
	ActorID string
}

func (e Engine) ListAgreements(ctx context.Context, opts AgreementListOptions) ([]domain.Agreement, error) {
	if _, err := e.GetFamily(ctx, opts.FamilyID, opts.ActorID); err != nil {
		return nil, err
	}
	var want domain.AgreementStatus
	if opts.Status != "" {
		st, err := domain.ParseAgreementStatus(opts.Status)
		if err != nil {
			return nil, err
		}
		want = st
	}
	stored, err := e.Repo.ListAgreements(ctx, opts.FamilyID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	res := make([]domain.Agreement, 0, len(stored))
	for _, a := range stored {
		a = a.WithDerived(now)
		if want != "" && a.EffectiveStatus != want {
			continue
		}
		res = append(res, a)
	}
	return res, nil
}

func (e Engine) GetAgreement(ctx context.Context, agreementID, actorID string) (domain.Agreement, error) {
	a, err := e.Repo.GetAgreement(ctx, agreementID)
	if err != nil {
		return a, err
	}
	if _, err := e.Auth.RequireMember(ctx, nil, a.FamilyID, actorID); err != nil {
		return domain.Agreement{}, err
	}
	return a.WithDerived(e.now()), nil
}

// UpdateAgreementStatus records a human revision or cancellation. The
// resolution that produced the agreement is never touched.
func (e Engine) UpdateAgreementStatus(ctx context.Context, agreementID, status, actorID string) (domain.Agreement, error) {
	to, err := domain.ParseAgreementStatus(status)
	if err != nil {
		return domain.Agreement{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agreement{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAgreementTx(ctx, tx, agreementID)
	if err != nil {
		return domain.Agreement{}, err
	}
	if _, err := e.Auth.RequireMember(ctx, tx, a.FamilyID, actorID); err != nil {
		return domain.Agreement{}, err
	}
	if err := domain.EnsureAgreementTransition(a.Status, to); err != nil {
		return domain.Agreement{}, err
	}
	now := e.timestamp()
	ok, err := e.Repo.UpdateAgreementStatusTx(ctx, tx, a.ID, a.Status, to, now)
	if err != nil {
		return domain.Agreement{}, err
	}
	if !ok {
		return domain.Agreement{}, fmt.Errorf("%w: agreement %s changed concurrently", domain.ErrInvalidState, a.ID)
	}
	if err := e.emit(ctx, tx, events.AgreementStatusChanged, a.FamilyID, "agreement", a.ID, actorID, events.EventPayload{
		"from": a.Status,
		"to":   to,
	}); err != nil {
		return domain.Agreement{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Agreement{}, err
	}
	a.Status = to
	a.UpdatedAt = now
	return a.WithDerived(e.now()), nil
}

// AgreementStats summarizes a family's agreements by effective status.
func (e Engine) AgreementStats(ctx context.Context, familyID, actorID string) (domain.AgreementStats, error) {
	all, err := e.ListAgreements(ctx, AgreementListOptions{FamilyID: familyID, ActorID: actorID})
	if err != nil {
		return domain.AgreementStats{}, err
	}
	now := e.now()
	window := e.Config.ReviewWindow()
	var stats domain.AgreementStats
	for _, a := range all {
		stats.Total++
		switch a.EffectiveStatus {
		case domain.AgreementActive:
			stats.Active++
		case domain.AgreementExpired:
			stats.Expired++
		case domain.AgreementRevised:
			stats.Revised++
		case domain.AgreementCancelled:
			stats.Cancelled++
		}
		if a.UpcomingReview(now, window) {
			stats.UpcomingReviews++
		}
	}
	return stats, nil
}
