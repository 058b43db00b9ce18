package domain

import (
	"fmt"
	"strings"
)

type ConflictType string

const (
	ConflictDirect   ConflictType = "DIRECT"
	ConflictResource ConflictType = "RESOURCE"
	ConflictPriority ConflictType = "PRIORITY"
)

// ClassifyConflict maps a non-empty shared resource set to a conflict type.
// First match wins: GEO, then TIME with MONEY, then two or more tags.
func ClassifyConflict(shared ResourceSet) ConflictType {
	switch {
	case shared.Has(ResourceGeo):
		return ConflictDirect
	case shared.Has(ResourceTime) && shared.Has(ResourceMoney):
		return ConflictResource
	case len(shared) >= 2:
		return ConflictResource
	default:
		return ConflictPriority
	}
}

// PairKey orders two goal ids so that an unordered pair has one key.
func PairKey(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

type Strategy string

const (
	StrategyPriority   Strategy = "PRIORITY"
	StrategySequence   Strategy = "SEQUENCE"
	StrategyCompromise Strategy = "COMPROMISE"
	StrategyTransform  Strategy = "TRANSFORM"
	StrategyDrop       Strategy = "DROP"
)

var Strategies = []Strategy{StrategyPriority, StrategySequence, StrategyCompromise, StrategyTransform, StrategyDrop}

func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Strategies {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidInput, s)
}

// StrategyOutcome returns the target statuses of goal A and goal B.
func StrategyOutcome(s Strategy) (a, b GoalStatus, err error) {
	switch s {
	case StrategyDrop:
		return GoalActive, GoalDropped, nil
	case StrategyPriority, StrategySequence:
		return GoalActive, GoalPaused, nil
	case StrategyCompromise, StrategyTransform:
		return GoalActive, GoalActive, nil
	}
	return "", "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidInput, string(s))
}

func AgreementTitle(goalA, goalB string) string {
	return goalA + " ↔ " + goalB
}

func AgreementTerms(s Strategy, description string) string {
	terms := fmt.Sprintf("Strategy: %s.", s)
	if d := strings.TrimSpace(description); d != "" {
		terms += " " + d
	}
	return terms
}
