package engine_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"accord/internal/config"
	"accord/internal/db"
	"accord/internal/domain"
	"accord/internal/engine"
	"accord/internal/migrate"
	"accord/internal/repo"
)

const (
	familyID = "fam-1"
	alice    = "alice"
	bob      = "bob"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	_, err = eng.CreateFamily(ctx, engine.FamilyCreateOptions{ID: familyID, Name: "Karimovs", ActorID: alice})
	require.NoError(t, err)
	_, err = eng.AddMember(ctx, familyID, bob, "PARTNER", alice)
	require.NoError(t, err)
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) goal(t *testing.T, owner, title string, resources ...string) domain.Goal {
	t.Helper()
	g, _, err := env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{
		FamilyID:  familyID,
		Title:     title,
		Resources: resources,
		ActorID:   owner,
	})
	require.NoError(t, err)
	return g
}

func (env testEnv) status(t *testing.T, goalID string) domain.GoalStatus {
	t.Helper()
	g, err := env.Engine.Repo.GetGoal(env.Ctx, goalID)
	require.NoError(t, err)
	return g.Status
}

func (env testEnv) unresolved(t *testing.T) []domain.Conflict {
	t.Helper()
	list, err := env.Engine.Repo.ListConflicts(env.Ctx, repo.ConflictFilters{FamilyID: familyID, Status: "UNRESOLVED"})
	require.NoError(t, err)
	return list
}

func TestPriorityResolutionScenario(t *testing.T) {
	env := newTestEnv(t)
	move := env.goal(t, bob, "Move to Samarkand", "GEO", "TIME")
	business, conflicts, err := env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{
		FamilyID:  familyID,
		Title:     "Start a business in Tashkent",
		Resources: []string{"MONEY", "GEO"},
		ActorID:   alice,
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	c := conflicts[0]
	assert.Equal(t, domain.ConflictDirect, c.Type)
	assert.Equal(t, domain.ResourceSet{domain.ResourceGeo}, c.SharedResources)
	assert.Equal(t, business.ID, c.GoalAID)
	assert.Equal(t, move.ID, c.GoalBID)
	assert.Equal(t, domain.GoalBlocked, business.Status, "returned goal reflects detection")
	assert.Equal(t, domain.GoalBlocked, env.status(t, move.ID))

	agreement, err := env.Engine.ResolveConflict(env.Ctx, engine.ResolveOptions{
		ConflictID:   c.ID,
		Strategy:     "PRIORITY",
		Cost:         "B postponed 6 months",
		Compensation: "2 joint trips/year",
		ActorID:      bob,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.GoalActive, env.status(t, business.ID))
	assert.Equal(t, domain.GoalPaused, env.status(t, move.ID))
	assert.Equal(t, domain.AgreementActive, agreement.Status)
	assert.Equal(t, "", agreement.ValidUntil)
	assert.Equal(t, "Start a business in Tashkent ↔ Move to Samarkand", agreement.Title)
	assert.Equal(t, "Strategy: PRIORITY.", agreement.Terms)

	resolved, err := env.Engine.GetConflict(env.Ctx, c.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.ConflictResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, "2 joint trips/year", resolved.Resolution.Compensation)

	list, err := env.Engine.ListAgreements(env.Ctx, engine.AgreementListOptions{FamilyID: familyID, ActorID: alice})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, agreement.ID, list[0].ID)
}

func TestStrategyOutcomes(t *testing.T) {
	cases := []struct {
		strategy string
		a, b     domain.GoalStatus
	}{
		{"DROP", domain.GoalActive, domain.GoalDropped},
		{"PRIORITY", domain.GoalActive, domain.GoalPaused},
		{"SEQUENCE", domain.GoalActive, domain.GoalPaused},
		{"COMPROMISE", domain.GoalActive, domain.GoalActive},
		{"TRANSFORM", domain.GoalActive, domain.GoalActive},
	}
	for _, tc := range cases {
		t.Run(tc.strategy, func(t *testing.T) {
			env := newTestEnv(t)
			b := env.goal(t, bob, "Buy a car", "MONEY")
			a, conflicts, err := env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{
				FamilyID: familyID, Title: "Renovate kitchen", Resources: []string{"MONEY", "ENERGY"}, ActorID: alice,
			})
			require.NoError(t, err)
			require.Len(t, conflicts, 1)
			assert.Equal(t, domain.ConflictPriority, conflicts[0].Type)

			agreement, err := env.Engine.ResolveConflict(env.Ctx, engine.ResolveOptions{
				ConflictID:   conflicts[0].ID,
				Strategy:     tc.strategy,
				Description:  "talked it through",
				Cost:         "someone waits",
				Compensation: "weekend off",
				ReviewDate:   "2024-06-01",
				ActorID:      alice,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.a, env.status(t, a.ID))
			assert.Equal(t, tc.b, env.status(t, b.ID))
			assert.Equal(t, domain.AgreementActive, agreement.Status)
			assert.Equal(t, "2024-06-01", agreement.ValidUntil)
			assert.Equal(t, fmt.Sprintf("Strategy: %s. talked it through", tc.strategy), agreement.Terms)
			assert.Empty(t, env.unresolved(t))
		})
	}
}

func TestDetectionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	a := env.goal(t, alice, "Marathon", "TIME", "ENERGY")
	b := env.goal(t, bob, "Night classes", "TIME", "ENERGY")
	require.Len(t, env.unresolved(t), 1)

	for _, id := range []string{a.ID, b.ID} {
		again, err := env.Engine.DetectConflicts(env.Ctx, id, familyID, alice)
		require.NoError(t, err)
		assert.Empty(t, again)
	}
	all, err := env.Engine.ListConflicts(env.Ctx, engine.ConflictListOptions{FamilyID: familyID, ActorID: alice})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, domain.ConflictResource, all[0].Type)
}

func TestDetectionIsSymmetric(t *testing.T) {
	run := func(firstResources, secondResources []string) domain.Conflict {
		env := newTestEnv(t)
		env.goal(t, alice, "first", firstResources...)
		_, conflicts, err := env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{
			FamilyID: familyID, Title: "second", Resources: secondResources, ActorID: bob,
		})
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		return conflicts[0]
	}
	x := []string{"GEO", "MONEY", "RISK"}
	y := []string{"MONEY", "GEO", "TIME"}
	ab, ba := run(x, y), run(y, x)
	assert.Equal(t, domain.ConflictDirect, ab.Type)
	assert.Equal(t, ab.Type, ba.Type)
	if diff := cmp.Diff(ab.SharedResources, ba.SharedResources); diff != "" {
		t.Fatalf("shared resources differ (-ab +ba):\n%s", diff)
	}
}

func TestNoOverlapLeavesGoalsUntouched(t *testing.T) {
	env := newTestEnv(t)
	a := env.goal(t, alice, "Learn piano", "TIME")
	b, conflicts, err := env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{
		FamilyID: familyID, Title: "Save for laptop", Resources: []string{"MONEY"}, ActorID: bob,
	})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Equal(t, domain.GoalDraft, b.Status)
	assert.Equal(t, domain.GoalDraft, env.status(t, a.ID))

	_, err = env.Engine.DetectConflicts(env.Ctx, "missing", familyID, alice)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBlockedGoalsAreNotCandidates(t *testing.T) {
	env := newTestEnv(t)
	env.goal(t, alice, "Relocate", "GEO")
	env.goal(t, bob, "Study abroad", "GEO")
	third := env.goal(t, bob, "Buy a dacha", "GEO")
	assert.Equal(t, domain.GoalDraft, third.Status)
	assert.Len(t, env.unresolved(t), 1)
}

func TestResolveRejectsIncompleteInput(t *testing.T) {
	env := newTestEnv(t)
	a := env.goal(t, alice, "Trip", "MONEY")
	b := env.goal(t, bob, "Laptop", "MONEY")
	conflicts := env.unresolved(t)
	require.Len(t, conflicts, 1)

	for _, opts := range []engine.ResolveOptions{
		{Strategy: "PRIORITY", Cost: "", Compensation: "dinner"},
		{Strategy: "PRIORITY", Cost: "wait", Compensation: "   "},
	} {
		opts.ConflictID = conflicts[0].ID
		opts.ActorID = alice
		_, err := env.Engine.ResolveConflict(env.Ctx, opts)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	}
	_, err := env.Engine.ResolveConflict(env.Ctx, engine.ResolveOptions{
		ConflictID: conflicts[0].ID, Strategy: "VOTE", Cost: "x", Compensation: "y", ActorID: alice,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = env.Engine.ResolveConflict(env.Ctx, engine.ResolveOptions{
		ConflictID: "nope", Strategy: "DROP", Cost: "x", Compensation: "y", ActorID: alice,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Len(t, env.unresolved(t), 1)
	assert.Equal(t, domain.GoalBlocked, env.status(t, a.ID))
	assert.Equal(t, domain.GoalBlocked, env.status(t, b.ID))
	agreements, err := env.Engine.Repo.ListAgreements(env.Ctx, familyID)
	require.NoError(t, err)
	assert.Empty(t, agreements)
}

func TestResolveTwiceFails(t *testing.T) {
	env := newTestEnv(t)
	env.goal(t, alice, "Trip", "MONEY")
	env.goal(t, bob, "Laptop", "MONEY")
	c := env.unresolved(t)[0]
	opts := engine.ResolveOptions{ConflictID: c.ID, Strategy: "COMPROMISE", Cost: "half budget", Compensation: "shared trip", ActorID: alice}
	_, err := env.Engine.ResolveConflict(env.Ctx, opts)
	require.NoError(t, err)
	_, err = env.Engine.ResolveConflict(env.Ctx, opts)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	agreements, err := env.Engine.Repo.ListAgreements(env.Ctx, familyID)
	require.NoError(t, err)
	assert.Len(t, agreements, 1)
}

func TestGoalStaysBlockedWhileAnotherConflictIsOpen(t *testing.T) {
	env := newTestEnv(t)
	study := env.goal(t, bob, "Study abroad", "GEO")
	job := env.goal(t, bob, "Evening job", "TIME")
	_, err := env.Engine.ActivateGoal(env.Ctx, job.ID, bob)
	require.NoError(t, err)

	relocate, conflicts, err := env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{
		FamilyID: familyID, Title: "Relocate", Resources: []string{"GEO", "TIME"}, ActorID: alice,
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	assert.Equal(t, domain.GoalBlocked, relocate.Status)
	byOther := map[string]domain.Conflict{}
	for _, c := range conflicts {
		assert.Equal(t, relocate.ID, c.GoalAID)
		byOther[c.GoalBID] = c
	}

	first, err := env.Engine.ResolveConflict(env.Ctx, engine.ResolveOptions{ConflictID: byOther[study.ID].ID, Strategy: "COMPROMISE", Cost: "c", Compensation: "k", ActorID: alice})
	require.NoError(t, err)
	assert.Equal(t, domain.GoalBlocked, env.status(t, relocate.ID), "still held by the second conflict")
	assert.Equal(t, domain.GoalActive, env.status(t, study.ID))
	assert.Equal(t, `Strategy: COMPROMISE. Goal "Relocate" stays BLOCKED until its other conflicts are resolved.`, first.Terms)

	second, err := env.Engine.ResolveConflict(env.Ctx, engine.ResolveOptions{ConflictID: byOther[job.ID].ID, Strategy: "TRANSFORM", Cost: "c", Compensation: "k", ActorID: alice})
	require.NoError(t, err)
	assert.Equal(t, domain.GoalActive, env.status(t, relocate.ID))
	assert.Equal(t, domain.GoalActive, env.status(t, job.ID))
	assert.Equal(t, "Strategy: TRANSFORM.", second.Terms)
}

func TestBlockedGoalResourcesAreFrozen(t *testing.T) {
	env := newTestEnv(t)
	relocate := env.goal(t, alice, "Relocate", "GEO")
	env.goal(t, bob, "Study abroad", "GEO")
	open := env.unresolved(t)
	require.Len(t, open, 1)

	money := []string{"MONEY"}
	_, _, err := env.Engine.UpdateGoal(env.Ctx, engine.GoalUpdateOptions{ID: relocate.ID, Resources: &money, ActorID: alice})
	require.ErrorIs(t, err, domain.ErrInvalidState)

	g, err := env.Engine.Repo.GetGoal(env.Ctx, relocate.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ResourceSet{domain.ResourceGeo}, g.Resources)
	c, err := env.Engine.Repo.GetConflict(env.Ctx, open[0].ID)
	require.NoError(t, err)
	study, err := env.Engine.Repo.GetGoal(env.Ctx, c.GoalAID)
	require.NoError(t, err)
	assert.Equal(t, g.Resources.Intersect(study.Resources), c.SharedResources)

	title := "Relocate to Samarkand"
	renamed, _, err := env.Engine.UpdateGoal(env.Ctx, engine.GoalUpdateOptions{ID: relocate.ID, Title: &title, ActorID: alice})
	require.NoError(t, err, "descriptive fields stay editable")
	assert.Equal(t, domain.GoalBlocked, renamed.Status)
}

func TestAgreementNotesOutcomeNotApplied(t *testing.T) {
	env := newTestEnv(t)
	move := env.goal(t, bob, "Move", "GEO", "TIME")
	business := env.goal(t, alice, "Business", "GEO")
	first := env.unresolved(t)
	require.Len(t, first, 1)
	evening := env.goal(t, bob, "Evening job", "TIME")
	assert.Equal(t, domain.GoalDraft, evening.Status, "blocked goals are not candidates")

	again, err := env.Engine.DetectConflicts(env.Ctx, move.ID, familyID, bob)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, move.ID, again[0].GoalAID)

	_, err = env.Engine.ResolveConflict(env.Ctx, engine.ResolveOptions{ConflictID: first[0].ID, Strategy: "PRIORITY", Cost: "c", Compensation: "k", ActorID: alice})
	require.NoError(t, err)
	assert.Equal(t, domain.GoalActive, env.status(t, business.ID))
	assert.Equal(t, domain.GoalPaused, env.status(t, move.ID))

	a, err := env.Engine.ResolveConflict(env.Ctx, engine.ResolveOptions{ConflictID: again[0].ID, Strategy: "COMPROMISE", Cost: "c", Compensation: "k", ActorID: bob})
	require.NoError(t, err)
	assert.Equal(t, `Strategy: COMPROMISE. Goal "Move" stays PAUSED.`, a.Terms)
	assert.Equal(t, domain.GoalPaused, env.status(t, move.ID))
	assert.Equal(t, domain.GoalActive, env.status(t, evening.ID))
}

func (env testEnv) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, env.Engine.DB.QueryRowContext(env.Ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestResolutionRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	a := env.goal(t, alice, "Trip", "MONEY")
	b := env.goal(t, bob, "Laptop", "MONEY")
	c := env.unresolved(t)[0]
	eventsBefore := env.count(t, "events")

	_, err := env.Engine.DB.ExecContext(env.Ctx, `CREATE TRIGGER fail_agreement BEFORE INSERT ON agreements BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)
	_, err = env.Engine.ResolveConflict(env.Ctx, engine.ResolveOptions{ConflictID: c.ID, Strategy: "DROP", Cost: "c", Compensation: "k", ActorID: alice})
	require.Error(t, err)

	stored, err := env.Engine.Repo.GetConflict(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConflictUnresolved, stored.Status)
	assert.Nil(t, stored.ResolvedAt)
	assert.Equal(t, domain.GoalBlocked, env.status(t, a.ID))
	assert.Equal(t, domain.GoalBlocked, env.status(t, b.ID))
	assert.Equal(t, 0, env.count(t, "resolutions"))
	assert.Equal(t, 0, env.count(t, "agreements"))
	assert.Equal(t, eventsBefore, env.count(t, "events"))
}

func TestDetectionRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	laptop := env.goal(t, bob, "Laptop", "MONEY")
	eventsBefore := env.count(t, "events")

	_, err := env.Engine.DB.ExecContext(env.Ctx, `CREATE TRIGGER fail_conflict_resources BEFORE INSERT ON conflict_resources BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)
	_, _, err = env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{FamilyID: familyID, Title: "Trip", Resources: []string{"MONEY"}, ActorID: alice})
	require.Error(t, err)

	assert.Equal(t, 1, env.count(t, "goals"), "the new goal is not kept without its detection")
	assert.Equal(t, 0, env.count(t, "conflicts"))
	assert.Equal(t, domain.GoalDraft, env.status(t, laptop.ID))
	assert.Equal(t, eventsBefore, env.count(t, "events"))
}

func TestSubtasksDriveProgress(t *testing.T) {
	env := newTestEnv(t)
	g := env.goal(t, alice, "Renovate kitchen", "MONEY")
	_, err := env.Engine.UpdateGoalProgress(env.Ctx, g.ID, 40, alice)
	require.NoError(t, err)

	steps, updated, err := env.Engine.AddSubtasks(env.Ctx, g.ID, []string{"Pick tiles", " ", "Hire builder", "Paint"}, alice)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{steps[0].Position, steps[1].Position, steps[2].Position})
	assert.Equal(t, 0, updated.Progress, "progress follows the steps once they exist")

	_, updated, err = env.Engine.SetSubtaskCompleted(env.Ctx, steps[0].ID, true, alice)
	require.NoError(t, err)
	assert.Equal(t, 33, updated.Progress)
	st, updated, err := env.Engine.SetSubtaskCompleted(env.Ctx, steps[1].ID, true, alice)
	require.NoError(t, err)
	assert.True(t, st.Completed)
	require.NotNil(t, st.CompletedAt)
	assert.Equal(t, alice, st.CompletedBy)
	assert.Equal(t, 67, updated.Progress)

	_, _, err = env.Engine.SetSubtaskCompleted(env.Ctx, steps[2].ID, true, alice)
	require.ErrorIs(t, err, domain.ErrInvalidState, "a DRAFT goal cannot complete")
	_, _, err = env.Engine.SetSubtaskCompleted(env.Ctx, steps[2].ID, true, bob)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.Engine.ActivateGoal(env.Ctx, g.ID, alice)
	require.NoError(t, err)
	_, updated, err = env.Engine.SetSubtaskCompleted(env.Ctx, steps[2].ID, true, alice)
	require.NoError(t, err)
	assert.Equal(t, 100, updated.Progress)
	assert.Equal(t, domain.GoalCompleted, updated.Status)

	_, _, err = env.Engine.SetSubtaskCompleted(env.Ctx, steps[0].ID, false, alice)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "completed goals are frozen")

	list, err := env.Engine.ListSubtasks(env.Ctx, g.ID, bob)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	evts, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{FamilyID: familyID, EntityID: g.ID, Type: "goal.status_changed", Limit: 10}, alice)
	require.NoError(t, err)
	var completedBySteps bool
	for _, evt := range evts {
		if strings.Contains(evt.Payload, `"to":"COMPLETED"`) && strings.Contains(evt.Payload, `"source":"subtasks"`) {
			completedBySteps = true
		}
	}
	assert.True(t, completedBySteps)
	added, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{FamilyID: familyID, Type: "subtask.added", Limit: 10}, alice)
	require.NoError(t, err)
	assert.Len(t, added, 3)
}

func TestReopeningAndDeletingSubtasks(t *testing.T) {
	env := newTestEnv(t)
	g := env.goal(t, bob, "Learn Uzbek", "TIME")
	steps, _, err := env.Engine.AddSubtasks(env.Ctx, g.ID, []string{"Alphabet", "Numbers"}, bob)
	require.NoError(t, err)

	_, updated, err := env.Engine.SetSubtaskCompleted(env.Ctx, steps[0].ID, true, bob)
	require.NoError(t, err)
	assert.Equal(t, 50, updated.Progress)
	_, updated, err = env.Engine.SetSubtaskCompleted(env.Ctx, steps[0].ID, true, bob)
	require.NoError(t, err, "completing twice is a no-op")
	assert.Equal(t, 50, updated.Progress)

	_, err = env.Engine.DeleteSubtask(env.Ctx, steps[1].ID, bob)
	require.ErrorIs(t, err, domain.ErrInvalidState, "one done out of one would complete a DRAFT goal")
	_, err = env.Engine.Repo.GetSubtaskTx(env.Ctx, nil, steps[1].ID)
	assert.NoError(t, err, "the step is kept")
	assert.Equal(t, domain.GoalDraft, env.status(t, g.ID))

	st, updated, err := env.Engine.SetSubtaskCompleted(env.Ctx, steps[0].ID, false, bob)
	require.NoError(t, err)
	assert.False(t, st.Completed)
	assert.Nil(t, st.CompletedAt)
	assert.Equal(t, 0, updated.Progress)

	updated, err = env.Engine.DeleteSubtask(env.Ctx, steps[1].ID, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Progress)
	updated, err = env.Engine.DeleteSubtask(env.Ctx, steps[0].ID, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Progress, "no steps left leaves progress alone")
}

func TestUpdateWithoutResourceChangeSkipsDetection(t *testing.T) {
	env := newTestEnv(t)
	a := env.goal(t, alice, "Trip", "MONEY", "TIME")
	env.goal(t, bob, "Laptop", "ENERGY")

	title := "Family trip"
	same := []string{"TIME", "MONEY"}
	g, conflicts, err := env.Engine.UpdateGoal(env.Ctx, engine.GoalUpdateOptions{ID: a.ID, Title: &title, Resources: &same, ActorID: alice})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Equal(t, "Family trip", g.Title)

	overlap := []string{"ENERGY"}
	_, conflicts, err = env.Engine.UpdateGoal(env.Ctx, engine.GoalUpdateOptions{ID: a.ID, Resources: &overlap, ActorID: alice})
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)

	_, _, err = env.Engine.UpdateGoal(env.Ctx, engine.GoalUpdateOptions{ID: a.ID, Title: &title, ActorID: bob})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestProgressAndCompletion(t *testing.T) {
	env := newTestEnv(t)
	g := env.goal(t, alice, "Read 12 books", "TIME")

	_, err := env.Engine.UpdateGoalProgress(env.Ctx, g.ID, 100, alice)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "a DRAFT goal cannot complete")

	g, err = env.Engine.UpdateGoalProgress(env.Ctx, g.ID, -5, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Progress)

	_, err = env.Engine.ActivateGoal(env.Ctx, g.ID, alice)
	require.NoError(t, err)
	g, err = env.Engine.UpdateGoalProgress(env.Ctx, g.ID, 40, alice)
	require.NoError(t, err)
	assert.Equal(t, 40, g.Progress)
	assert.Equal(t, domain.GoalActive, g.Status)

	g, err = env.Engine.UpdateGoalProgress(env.Ctx, g.ID, 250, alice)
	require.NoError(t, err)
	assert.Equal(t, 100, g.Progress)
	assert.Equal(t, domain.GoalCompleted, g.Status)

	_, err = env.Engine.UpdateGoalProgress(env.Ctx, g.ID, 50, alice)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = env.Engine.ActivateGoal(env.Ctx, g.ID, alice)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestBlockedGoalRejectsOwnerActions(t *testing.T) {
	env := newTestEnv(t)
	a := env.goal(t, alice, "Trip", "GEO")
	env.goal(t, bob, "Move", "GEO")

	_, err := env.Engine.ActivateGoal(env.Ctx, a.ID, alice)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = env.Engine.UpdateGoalProgress(env.Ctx, a.ID, 10, alice)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	err = env.Engine.DeleteGoal(env.Ctx, a.ID, alice)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	c := env.unresolved(t)[0]
	_, err = env.Engine.ResolveConflict(env.Ctx, engine.ResolveOptions{ConflictID: c.ID, Strategy: "DROP", Cost: "c", Compensation: "k", ActorID: bob})
	require.NoError(t, err)
	require.NoError(t, env.Engine.DeleteGoal(env.Ctx, a.ID, alice))
	_, err = env.Engine.GetGoal(env.Ctx, a.ID, alice)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMembershipIsEnforced(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{FamilyID: familyID, Title: "x", ActorID: "mallory"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, _, err = env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{FamilyID: familyID, Title: "x"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, _, err = env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{FamilyID: "other", Title: "x", ActorID: alice})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	env.goal(t, alice, "Trip", "GEO")
	env.goal(t, bob, "Move", "GEO")
	c := env.unresolved(t)[0]
	_, err = env.Engine.ResolveConflict(env.Ctx, engine.ResolveOptions{ConflictID: c.ID, Strategy: "DROP", Cost: "c", Compensation: "k", ActorID: "mallory"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Len(t, env.unresolved(t), 1)

	_, err = env.Engine.AddMember(env.Ctx, familyID, "kid", "CHILD", bob)
	require.NoError(t, err)
	_, err = env.Engine.AddMember(env.Ctx, familyID, "stranger", "ADULT", "kid")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAgreementLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.goal(t, alice, "Trip", "MONEY")
	env.goal(t, bob, "Laptop", "MONEY")
	c := env.unresolved(t)[0]
	a, err := env.Engine.ResolveConflict(env.Ctx, engine.ResolveOptions{
		ConflictID: c.ID, Strategy: "SEQUENCE", Cost: "laptop waits", Compensation: "new bag", ReviewDate: "2024-01-10", ActorID: alice,
	})
	require.NoError(t, err)

	stats, err := env.Engine.AgreementStats(env.Ctx, familyID, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.AgreementStats{Total: 1, Active: 1, UpcomingReviews: 1}, stats)

	later := env.Engine
	later.Now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	stats, err = later.AgreementStats(env.Ctx, familyID, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.AgreementStats{Total: 1, Expired: 1}, stats)
	expired, err := later.ListAgreements(env.Ctx, engine.AgreementListOptions{FamilyID: familyID, Status: "EXPIRED", ActorID: bob})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	stored, err := env.Engine.Repo.GetAgreement(env.Ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgreementActive, stored.Status, "expiry is never written")

	_, err = env.Engine.UpdateAgreementStatus(env.Ctx, a.ID, "EXPIRED", alice)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	revised, err := env.Engine.UpdateAgreementStatus(env.Ctx, a.ID, "revised", bob)
	require.NoError(t, err)
	assert.Equal(t, domain.AgreementRevised, revised.Status)
	_, err = env.Engine.UpdateAgreementStatus(env.Ctx, a.ID, "CANCELLED", bob)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	conflict, err := env.Engine.GetConflict(env.Ctx, c.ID, alice)
	require.NoError(t, err)
	require.NotNil(t, conflict.Resolution, "revision keeps the resolution")
	assert.Equal(t, domain.StrategySequence, conflict.Resolution.Strategy)
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.goal(t, alice, "Trip", "GEO")
	env.goal(t, bob, "Move", "GEO")

	evts, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{FamilyID: familyID, Type: "conflict.detected"}, alice)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Contains(t, evts[0].Payload, `"notify":["bob","alice"]`)

	changes, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{FamilyID: familyID, Type: "goal.status_changed"}, alice)
	require.NoError(t, err)
	assert.Len(t, changes, 2)
}

// Concurrent creations serialize on the store; whatever the interleaving,
// conflicts and blocked goals must match one to one.
func TestConcurrentCreationKeepsBlockingInvariant(t *testing.T) {
	env := newTestEnv(t)
	env.goal(t, alice, "Anchor", "GEO", "MONEY")

	var g errgroup.Group
	for i := 0; i < 6; i++ {
		owner := alice
		if i%2 == 1 {
			owner = bob
		}
		title := fmt.Sprintf("goal-%d", i)
		g.Go(func() error {
			_, _, err := env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{
				FamilyID: familyID, Title: title, Resources: []string{"GEO"}, ActorID: owner,
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	open := env.unresolved(t)
	inConflict := map[string]bool{}
	pairs := map[[2]string]bool{}
	for _, c := range open {
		low, high := domain.PairKey(c.GoalAID, c.GoalBID)
		assert.False(t, pairs[[2]string{low, high}], "duplicate pair")
		pairs[[2]string{low, high}] = true
		inConflict[c.GoalAID] = true
		inConflict[c.GoalBID] = true
	}
	goals, err := env.Engine.Repo.ListGoals(env.Ctx, repo.GoalFilters{FamilyID: familyID})
	require.NoError(t, err)
	require.Len(t, goals, 7)
	for _, goal := range goals {
		assert.Equal(t, inConflict[goal.ID], goal.Status == domain.GoalBlocked, goal.Title)
	}
}
