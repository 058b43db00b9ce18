package domain

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate validates an optional calendar date. Empty input yields "".
func ParseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if len(s) > len(DateLayout) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: invalid date %q (want YYYY-MM-DD)", ErrInvalidInput, s)
	}
	return t.Format(DateLayout), nil
}

// DaysUntil counts calendar days from now (UTC) to the given date.
// It returns false when the date is empty or malformed.
func DaysUntil(date string, now time.Time) (int, bool) {
	if date == "" {
		return 0, false
	}
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return 0, false
	}
	n := now.UTC()
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Sub(today).Hours() / 24), true
}

// EffectiveAgreementStatus reports EXPIRED for an active agreement whose
// review date lies before today. Stored status is otherwise returned as-is.
func EffectiveAgreementStatus(a Agreement, now time.Time) AgreementStatus {
	if a.Status != AgreementActive {
		return a.Status
	}
	if days, ok := DaysUntil(a.ValidUntil, now); ok && days < 0 {
		return AgreementExpired
	}
	return AgreementActive
}

// WithDerived fills the read-time fields of an agreement.
func (a Agreement) WithDerived(now time.Time) Agreement {
	a.EffectiveStatus = EffectiveAgreementStatus(a, now)
	if days, ok := DaysUntil(a.ValidUntil, now); ok {
		a.DaysUntilReview = &days
	} else {
		a.DaysUntilReview = nil
	}
	return a
}

// UpcomingReview reports an effective-active agreement due within window days.
func (a Agreement) UpcomingReview(now time.Time, window int) bool {
	if EffectiveAgreementStatus(a, now) != AgreementActive {
		return false
	}
	days, ok := DaysUntil(a.ValidUntil, now)
	return ok && days > 0 && days <= window
}
