package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"accord/internal/domain"
	"accord/internal/repo"
)

// ResolveFamily picks the active family. An override is matched by id, then
// by name; without one the actor's only family is used.
func ResolveFamily(ctx context.Context, r repo.Repo, override, actorID string) (domain.Family, error) {
	override = strings.TrimSpace(override)
	if override != "" {
		f, err := r.GetFamily(ctx, override)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.Family{}, err
		}
		f, err = r.FindFamilyByName(ctx, override)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Family{}, fmt.Errorf("family %q: %w", override, domain.ErrNotFound)
			}
			return domain.Family{}, err
		}
		return f, nil
	}
	f, err := r.SingleFamily(ctx, actorID)
	if err != nil {
		return domain.Family{}, fmt.Errorf("family not specified; use --family or accord family use: %w", err)
	}
	return f, nil
}
