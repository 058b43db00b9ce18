package domain

type Family struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	NorthStar string `json:"north_star,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Member struct {
	FamilyID  string     `json:"family_id"`
	ActorID   string     `json:"actor_id"`
	Role      MemberRole `json:"role" enum:"ADULT,PARTNER,CHILD"`
	CreatedAt string     `json:"created_at" format:"date-time"`
}

type Goal struct {
	ID          string      `json:"id"`
	FamilyID    string      `json:"family_id"`
	OwnerID     string      `json:"owner_id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Type        GoalType    `json:"type" enum:"FAMILY,PERSONAL"`
	Horizon     GoalHorizon `json:"horizon" enum:"SHORT,MID,LONG"`
	Resources   ResourceSet `json:"resources"`
	Deadline    string      `json:"deadline,omitempty" format:"date"`
	Metric      string      `json:"metric,omitempty"`
	Progress    int         `json:"progress" minimum:"0" maximum:"100"`
	Status      GoalStatus  `json:"status" enum:"DRAFT,ACTIVE,BLOCKED,PAUSED,COMPLETED,DROPPED"`
	CreatedAt   string      `json:"created_at" format:"date-time"`
	UpdatedAt   string      `json:"updated_at" format:"date-time"`
}

// Conflict links two goals of one family competing for shared resources.
// GoalAID is the goal whose creation or edit triggered detection.
type Conflict struct {
	ID              string         `json:"id"`
	FamilyID        string         `json:"family_id"`
	Type            ConflictType   `json:"type" enum:"DIRECT,RESOURCE,PRIORITY"`
	SharedResources ResourceSet    `json:"shared_resources"`
	GoalAID         string         `json:"goal_a_id"`
	GoalBID         string         `json:"goal_b_id"`
	Status          ConflictStatus `json:"status" enum:"UNRESOLVED,RESOLVED"`
	CreatedAt       string         `json:"created_at" format:"date-time"`
	ResolvedAt      *string        `json:"resolved_at,omitempty" format:"date-time"`
	Resolution      *Resolution    `json:"resolution,omitempty"`
}

type Resolution struct {
	ID           string   `json:"id"`
	ConflictID   string   `json:"conflict_id"`
	Strategy     Strategy `json:"strategy" enum:"PRIORITY,SEQUENCE,COMPROMISE,TRANSFORM,DROP"`
	Description  string   `json:"description,omitempty"`
	Cost         string   `json:"cost"`
	Compensation string   `json:"compensation"`
	ReviewDate   string   `json:"review_date,omitempty" format:"date"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

type Agreement struct {
	ID         string          `json:"id"`
	FamilyID   string          `json:"family_id"`
	ConflictID string          `json:"conflict_id"`
	Title      string          `json:"title"`
	Terms      string          `json:"terms"`
	ValidUntil string          `json:"valid_until,omitempty" format:"date"`
	Status     AgreementStatus `json:"status" enum:"ACTIVE,EXPIRED,REVISED,CANCELLED"`
	CreatedAt  string          `json:"created_at" format:"date-time"`
	UpdatedAt  string          `json:"updated_at" format:"date-time"`

	// Derived at read time.
	EffectiveStatus AgreementStatus `json:"effective_status,omitempty" enum:"ACTIVE,EXPIRED,REVISED,CANCELLED"`
	DaysUntilReview *int            `json:"days_until_review,omitempty"`
}

type AgreementStats struct {
	Total           int `json:"total"`
	Active          int `json:"active"`
	Expired         int `json:"expired"`
	Revised         int `json:"revised"`
	Cancelled       int `json:"cancelled"`
	UpcomingReviews int `json:"upcoming_reviews"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	FamilyID   string `json:"family_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Subtask is a checklist step of a goal. Once a goal has subtasks its
// progress follows the share of completed ones.
type Subtask struct {
	ID          string  `json:"id"`
	GoalID      string  `json:"goal_id"`
	Title       string  `json:"title"`
	Position    int     `json:"position"`
	Completed   bool    `json:"completed"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
	CompletedBy string  `json:"completed_by,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

// SubtaskProgress is round(done/total*100), halves rounding up. ok is false
// when there are no subtasks, in which case progress is left as it is.
func SubtaskProgress(done, total int) (progress int, ok bool) {
	if total <= 0 {
		return 0, false
	}
	if done > total {
		done = total
	}
	return (done*200 + total) / (2 * total), true
}
