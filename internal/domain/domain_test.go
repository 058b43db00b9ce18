package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setFromMask builds a resource set from the low five bits of mask.
func setFromMask(mask int) ResourceSet {
	var tags []ResourceTag
	for i, tag := range AllResources {
		if mask&(1<<i) != 0 {
			tags = append(tags, tag)
		}
	}
	set, _ := NewResourceSet(tags...)
	return set
}

func TestClassifyConflict(t *testing.T) {
	cases := []struct {
		shared []ResourceTag
		want   ConflictType
	}{
		{[]ResourceTag{ResourceGeo}, ConflictDirect},
		{[]ResourceTag{ResourceGeo, ResourceMoney, ResourceTime}, ConflictDirect},
		{[]ResourceTag{ResourceTime, ResourceMoney}, ConflictResource},
		{[]ResourceTag{ResourceEnergy, ResourceRisk}, ConflictResource},
		{[]ResourceTag{ResourceMoney}, ConflictPriority},
		{[]ResourceTag{ResourceEnergy}, ConflictPriority},
	}
	for _, tc := range cases {
		set, err := NewResourceSet(tc.shared...)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ClassifyConflict(set), "shared=%v", tc.shared)
	}
}

func TestClassificationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("intersection is symmetric and classification agrees", prop.ForAll(
		func(a, b int) bool {
			sa, sb := setFromMask(a), setFromMask(b)
			ab, ba := sa.Intersect(sb), sb.Intersect(sa)
			if !ab.Equal(ba) {
				return false
			}
			if len(ab) == 0 {
				return true
			}
			return ClassifyConflict(ab) == ClassifyConflict(ba)
		},
		gen.IntRange(0, 31),
		gen.IntRange(0, 31),
	))

	properties.Property("GEO always classifies DIRECT", prop.ForAll(
		func(mask int) bool {
			set := setFromMask(mask | 1<<2)
			return ClassifyConflict(set) == ConflictDirect
		},
		gen.IntRange(0, 31),
	))

	properties.Property("single non-GEO tag classifies PRIORITY", prop.ForAll(
		func(idx int) bool {
			tag := AllResources[idx]
			if tag == ResourceGeo {
				return true
			}
			set, _ := NewResourceSet(tag)
			return ClassifyConflict(set) == ConflictPriority
		},
		gen.IntRange(0, len(AllResources)-1),
	))

	properties.Property("intersection is a subset of both sides", prop.ForAll(
		func(a, b int) bool {
			sa, sb := setFromMask(a), setFromMask(b)
			for _, tag := range sa.Intersect(sb) {
				if !sa.Has(tag) || !sb.Has(tag) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 31),
		gen.IntRange(0, 31),
	))

	properties.TestingRun(t)
}

func TestResourceSetNormalizes(t *testing.T) {
	set, err := ParseResourceSet([]string{"risk", "geo", "GEO", " money "})
	require.NoError(t, err)
	assert.Equal(t, ResourceSet{ResourceMoney, ResourceGeo, ResourceRisk}, set)
	assert.True(t, set.Equal(ResourceSet{ResourceRisk, ResourceMoney, ResourceGeo}))

	_, err = ParseResourceSet([]string{"LOVE"})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestGoalTransitions(t *testing.T) {
	allowed := map[GoalStatus][]GoalStatus{
		GoalDraft:   {GoalActive, GoalBlocked},
		GoalActive:  {GoalBlocked, GoalCompleted},
		GoalBlocked: {GoalActive, GoalPaused, GoalDropped},
	}
	all := []GoalStatus{GoalDraft, GoalActive, GoalBlocked, GoalPaused, GoalCompleted, GoalDropped}
	for _, from := range all {
		for _, to := range all {
			err := EnsureGoalTransition(from, to)
			ok := false
			for _, a := range allowed[from] {
				if a == to {
					ok = true
				}
			}
			if ok {
				assert.NoError(t, err, "%s -> %s", from, to)
			} else {
				assert.ErrorIs(t, err, ErrInvalidState, "%s -> %s", from, to)
			}
		}
	}
}

func TestStrategyOutcome(t *testing.T) {
	cases := map[Strategy][2]GoalStatus{
		StrategyDrop:       {GoalActive, GoalDropped},
		StrategyPriority:   {GoalActive, GoalPaused},
		StrategySequence:   {GoalActive, GoalPaused},
		StrategyCompromise: {GoalActive, GoalActive},
		StrategyTransform:  {GoalActive, GoalActive},
	}
	for s, want := range cases {
		a, b, err := StrategyOutcome(s)
		require.NoError(t, err)
		assert.Equal(t, want[0], a, s)
		assert.Equal(t, want[1], b, s)
	}
	_, _, err := StrategyOutcome("VOTE")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAgreementTermsAndTitle(t *testing.T) {
	assert.Equal(t, "Trip ↔ Course", AgreementTitle("Trip", "Course"))
	assert.Equal(t, "Strategy: PRIORITY.", AgreementTerms(StrategyPriority, "  "))
	assert.Equal(t, "Strategy: SEQUENCE. Trip first, course in spring", AgreementTerms(StrategySequence, "Trip first, course in spring"))
}

func TestEffectiveAgreementStatus(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	a := Agreement{Status: AgreementActive, ValidUntil: "2024-03-09"}
	assert.Equal(t, AgreementExpired, EffectiveAgreementStatus(a, now))

	a.ValidUntil = "2024-03-10"
	assert.Equal(t, AgreementActive, EffectiveAgreementStatus(a, now))

	a.ValidUntil = ""
	assert.Equal(t, AgreementActive, EffectiveAgreementStatus(a, now))

	revised := Agreement{Status: AgreementRevised, ValidUntil: "2020-01-01"}
	assert.Equal(t, AgreementRevised, EffectiveAgreementStatus(revised, now))
}

func TestUpcomingReview(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	due := func(date string) bool {
		return Agreement{Status: AgreementActive, ValidUntil: date}.UpcomingReview(now, 14)
	}
	assert.False(t, due("2024-03-10"), "today is not upcoming")
	assert.True(t, due("2024-03-11"))
	assert.True(t, due("2024-03-24"))
	assert.False(t, due("2024-03-25"))
	assert.False(t, due("2024-03-01"))

	derived := Agreement{Status: AgreementActive, ValidUntil: "2024-03-13"}.WithDerived(now)
	require.NotNil(t, derived.DaysUntilReview)
	assert.Equal(t, 3, *derived.DaysUntilReview)
}

func TestAgreementTransitions(t *testing.T) {
	assert.NoError(t, EnsureAgreementTransition(AgreementActive, AgreementRevised))
	assert.NoError(t, EnsureAgreementTransition(AgreementActive, AgreementCancelled))
	assert.ErrorIs(t, EnsureAgreementTransition(AgreementActive, AgreementExpired), ErrInvalidState)
	assert.ErrorIs(t, EnsureAgreementTransition(AgreementCancelled, AgreementActive), ErrInvalidState)
	assert.ErrorIs(t, EnsureAgreementTransition(AgreementRevised, AgreementCancelled), ErrInvalidState)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", d)
	d, err = ParseDate("2024-06-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", d)
	d, err = ParseDate("2024-06-01T01:00:00+05:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", d, "the date is read in the writer's own offset")
	_, err = ParseDate("June 1st")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSubtaskProgress(t *testing.T) {
	tests := []struct {
		done, total int
		want        int
		ok          bool
	}{
		{0, 0, 0, false},
		{0, 3, 0, true},
		{1, 3, 33, true},
		{2, 3, 67, true},
		{1, 8, 13, true},
		{3, 3, 100, true},
		{5, 3, 100, true},
	}
	for _, tt := range tests {
		got, ok := SubtaskProgress(tt.done, tt.total)
		assert.Equal(t, tt.ok, ok, "%d/%d", tt.done, tt.total)
		assert.Equal(t, tt.want, got, "%d/%d", tt.done, tt.total)
	}
}
