package app

import (
	"context"
	"errors"

	"accord/internal/domain"
	"accord/internal/engine"
	"accord/internal/repo"
)

const (
	DemoFamilyID = "demo"
	DemoAdult    = "fakhriddin"
	DemoPartner  = "madina"
)

// SeedResult reports what SeedDemo created.
type SeedResult struct {
	Family    domain.Family     `json:"family"`
	Created   bool              `json:"created"`
	Goals     []domain.Goal     `json:"goals,omitempty"`
	Conflicts []domain.Conflict `json:"conflicts,omitempty"`
}

// SeedDemo creates the demo family with two members. With goals it also
// adds two goals that compete for GEO, leaving one unresolved conflict.
// Running it again returns the existing family untouched.
func SeedDemo(ctx context.Context, e engine.Engine, withGoals bool) (SeedResult, error) {
	existing, err := e.Repo.GetFamily(ctx, DemoFamilyID)
	if err == nil {
		return SeedResult{Family: existing}, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return SeedResult{}, err
	}
	f, err := e.CreateFamily(ctx, engine.FamilyCreateOptions{
		ID:        DemoFamilyID,
		Name:      "Demo family",
		NorthStar: "Stable life, growth and freedom of choice",
		ActorID:   DemoAdult,
	})
	if err != nil {
		return SeedResult{}, err
	}
	if _, err := e.AddMember(ctx, f.ID, DemoPartner, string(domain.RolePartner), DemoAdult); err != nil {
		return SeedResult{}, err
	}
	res := SeedResult{Family: f, Created: true}
	if !withGoals {
		return res, nil
	}
	goals := []engine.GoalCreateOptions{
		{Title: "Move to Samarkand", Horizon: "LONG", Resources: []string{"GEO", "TIME"}, ActorID: DemoPartner},
		{Title: "Start a business in Tashkent", Type: "PERSONAL", Resources: []string{"MONEY", "GEO"}, ActorID: DemoAdult},
	}
	for _, opts := range goals {
		opts.FamilyID = f.ID
		g, conflicts, err := e.CreateGoal(ctx, opts)
		if err != nil {
			return SeedResult{}, err
		}
		res.Goals = append(res.Goals, g)
		res.Conflicts = append(res.Conflicts, conflicts...)
	}
	return res, nil
}
