package domain

import (
	"fmt"
	"sort"
	"strings"
)

type ResourceTag string

const (
	ResourceMoney  ResourceTag = "MONEY"
	ResourceTime   ResourceTag = "TIME"
	ResourceGeo    ResourceTag = "GEO"
	ResourceEnergy ResourceTag = "ENERGY"
	ResourceRisk   ResourceTag = "RISK"
)

// AllResources lists the closed tag set in canonical order.
var AllResources = []ResourceTag{ResourceMoney, ResourceTime, ResourceGeo, ResourceEnergy, ResourceRisk}

func resourceRank(tag ResourceTag) int {
	for i, r := range AllResources {
		if r == tag {
			return i
		}
	}
	return -1
}

func (r ResourceTag) Valid() bool {
	return resourceRank(r) >= 0
}

// ParseResourceTag accepts tags case-insensitively.
func ParseResourceTag(s string) (ResourceTag, error) {
	tag := ResourceTag(strings.ToUpper(strings.TrimSpace(s)))
	if !tag.Valid() {
		return "", fmt.Errorf("%w: unknown resource %q", ErrInvalidInput, s)
	}
	return tag, nil
}

// ResourceSet is a duplicate-free set of tags kept in canonical order.
type ResourceSet []ResourceTag

// NewResourceSet dedupes and orders tags. Unknown tags are rejected.
func NewResourceSet(tags ...ResourceTag) (ResourceSet, error) {
	seen := map[ResourceTag]bool{}
	set := ResourceSet{}
	for _, t := range tags {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: unknown resource %q", ErrInvalidInput, string(t))
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		set = append(set, t)
	}
	sort.Slice(set, func(i, j int) bool { return resourceRank(set[i]) < resourceRank(set[j]) })
	return set, nil
}

// ParseResourceSet parses raw strings such as CLI flags or request fields.
func ParseResourceSet(raw []string) (ResourceSet, error) {
	tags := make([]ResourceTag, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			continue
		}
		tag, err := ParseResourceTag(s)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return NewResourceSet(tags...)
}

func (s ResourceSet) Has(tag ResourceTag) bool {
	for _, t := range s {
		if t == tag {
			return true
		}
	}
	return false
}

func (s ResourceSet) Intersect(other ResourceSet) ResourceSet {
	out := ResourceSet{}
	for _, t := range s {
		if other.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// Equal ignores order.
func (s ResourceSet) Equal(other ResourceSet) bool {
	if len(s) != len(other) {
		return false
	}
	for _, t := range s {
		if !other.Has(t) {
			return false
		}
	}
	return true
}

func (s ResourceSet) Strings() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = string(t)
	}
	return out
}

func (s ResourceSet) String() string {
	return strings.Join(s.Strings(), ",")
}
