package server

import (
	"encoding/json"

	"accord/internal/domain"
)

// Request payloads

type CreateFamilyRequest struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	NorthStar string `json:"north_star,omitempty"`
	Role      string `json:"role,omitempty" enum:"ADULT,PARTNER,CHILD"`
}

type AddMemberRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty" enum:"ADULT,PARTNER,CHILD"`
}

type CreateGoalRequest struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type,omitempty" enum:"FAMILY,PERSONAL"`
	Horizon     string   `json:"horizon,omitempty" enum:"SHORT,MID,LONG"`
	Resources   []string `json:"resources,omitempty"`
	Deadline    string   `json:"deadline,omitempty"`
	Metric      string   `json:"metric,omitempty"`
}

type UpdateGoalRequest struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Type        *string   `json:"type,omitempty" enum:"FAMILY,PERSONAL"`
	Horizon     *string   `json:"horizon,omitempty" enum:"SHORT,MID,LONG"`
	Resources   *[]string `json:"resources,omitempty"`
	Deadline    *string   `json:"deadline,omitempty"`
	Metric      *string   `json:"metric,omitempty"`
}

type ProgressRequest struct {
	Progress int `json:"progress"`
}

type AddSubtasksRequest struct {
	Titles []string `json:"titles" minItems:"1"`
}

type SubtaskStatusRequest struct {
	Completed bool `json:"completed"`
}

type ResolveConflictRequest struct {
	Strategy     string `json:"strategy" enum:"PRIORITY,SEQUENCE,COMPROMISE,TRANSFORM,DROP"`
	Description  string `json:"description,omitempty"`
	Cost         string `json:"cost"`
	Compensation string `json:"compensation"`
	ReviewDate   string `json:"review_date,omitempty"`
}

type AgreementStatusRequest struct {
	Status string `json:"status" enum:"REVISED,CANCELLED"`
}

type DevLoginRequest struct {
	ActorID  string `json:"actor_id"`
	FamilyID string `json:"family_id,omitempty"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type FamilyResponse struct {
	domain.Family
	Members []domain.Member `json:"members"`
}

type GoalMutationResponse struct {
	Goal      domain.Goal       `json:"goal"`
	Conflicts []domain.Conflict `json:"conflicts"`
}

type SubtasksResponse struct {
	Goal     domain.Goal      `json:"goal"`
	Subtasks []domain.Subtask `json:"subtasks"`
}

type SubtaskMutationResponse struct {
	Goal    domain.Goal    `json:"goal"`
	Subtask domain.Subtask `json:"subtask"`
}

type paginatedGoals struct {
	Items      []domain.Goal `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts"`
	Type       string          `json:"type"`
	FamilyID   string          `json:"family_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(evt domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		FamilyID:   evt.FamilyID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
