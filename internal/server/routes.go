package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"accord/internal/domain"
	"accord/internal/engine"
	"accord/internal/repo"
)

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

type familyPath struct {
	FamilyID string `path:"family_id"`
}

func registerFamilies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-family",
		Method:        http.MethodPost,
		Path:          "/families",
		Summary:       "Create family",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateFamilyRequest `json:"body"`
	}) (*struct {
		Body FamilyResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.CreateFamily(ctx, engine.FamilyCreateOptions{
			ID:        input.Body.ID,
			Name:      input.Body.Name,
			NorthStar: input.Body.NorthStar,
			Role:      input.Body.Role,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return familyResponse(ctx, e, f, actorID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-families",
		Method:      http.MethodGet,
		Path:        "/families",
		Summary:     "Families of the current actor",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []domain.Family `json:"items"`
		} `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListFamilies(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.Family `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = nonNil(items)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-family",
		Method:      http.MethodGet,
		Path:        "/families/{family_id}",
		Summary:     "Get family with members",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *familyPath) (*struct {
		Body FamilyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.GetFamily(ctx, input.FamilyID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return familyResponse(ctx, e, f, actorID)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPost,
		Path:          "/families/{family_id}/members",
		Summary:       "Add or re-role a family member",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		FamilyID string           `path:"family_id"`
		Body     AddMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddMember(ctx, input.FamilyID, input.Body.ActorID, input.Body.Role, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})
}

func familyResponse(ctx context.Context, e engine.Engine, f domain.Family, actorID string) (*struct {
	Body FamilyResponse `json:"body"`
}, error) {
	members, err := e.ListMembers(ctx, f.ID, actorID)
	if err != nil {
		return nil, handleError(err)
	}
	return &struct {
		Body FamilyResponse `json:"body"`
	}{Body: FamilyResponse{Family: f, Members: nonNil(members)}}, nil
}

type goalPath struct {
	FamilyID string `path:"family_id"`
	GoalID   string `path:"goal_id"`
}

type goalMutationOutput struct {
	Body GoalMutationResponse `json:"body"`
}

type goalOutput struct {
	Body domain.Goal `json:"body"`
}

// ownGoal loads a goal through the engine and checks it belongs to the path family.
func ownGoal(ctx context.Context, e engine.Engine, familyID, goalID, actorID string) error {
	g, err := e.GetGoal(ctx, goalID, actorID)
	if err != nil {
		return err
	}
	return inFamily(familyID, g.FamilyID)
}

func registerGoals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-goal",
		Method:        http.MethodPost,
		Path:          "/families/{family_id}/goals",
		Summary:       "Create goal and detect conflicts",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		FamilyID string            `path:"family_id"`
		Body     CreateGoalRequest `json:"body"`
	}) (*goalMutationOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, conflicts, err := e.CreateGoal(ctx, engine.GoalCreateOptions{
			ID:          input.Body.ID,
			FamilyID:    input.FamilyID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Type:        input.Body.Type,
			Horizon:     input.Body.Horizon,
			Resources:   input.Body.Resources,
			Deadline:    input.Body.Deadline,
			Metric:      input.Body.Metric,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &goalMutationOutput{Body: GoalMutationResponse{Goal: g, Conflicts: nonNil(conflicts)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-goals",
		Method:      http.MethodGet,
		Path:        "/families/{family_id}/goals",
		Summary:     "List goals",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FamilyID string `path:"family_id"`
		Status   string `query:"status" enum:"DRAFT,ACTIVE,BLOCKED,PAUSED,COMPLETED,DROPPED"`
		OwnerID  string `query:"owner_id"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedGoals `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListGoals(ctx, engine.GoalListOptions{
			FamilyID:        input.FamilyID,
			Status:          input.Status,
			OwnerID:         input.OwnerID,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
			ActorID:         actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedGoals{Items: nonNil(items)}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			resp.Items = items[:limit]
		}
		return &struct {
			Body paginatedGoals `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-goal",
		Method:      http.MethodGet,
		Path:        "/families/{family_id}/goals/{goal_id}",
		Summary:     "Get goal",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *goalPath) (*goalOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.GetGoal(ctx, input.GoalID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := inFamily(input.FamilyID, g.FamilyID); err != nil {
			return nil, handleError(err)
		}
		return &goalOutput{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-goal",
		Method:      http.MethodPatch,
		Path:        "/families/{family_id}/goals/{goal_id}",
		Summary:     "Update goal; re-detects conflicts when resources change",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		FamilyID string            `path:"family_id"`
		GoalID   string            `path:"goal_id"`
		Body     UpdateGoalRequest `json:"body"`
	}) (*goalMutationOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := ownGoal(ctx, e, input.FamilyID, input.GoalID, actorID); err != nil {
			return nil, handleError(err)
		}
		g, conflicts, err := e.UpdateGoal(ctx, engine.GoalUpdateOptions{
			ID:          input.GoalID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Type:        input.Body.Type,
			Horizon:     input.Body.Horizon,
			Resources:   input.Body.Resources,
			Deadline:    input.Body.Deadline,
			Metric:      input.Body.Metric,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &goalMutationOutput{Body: GoalMutationResponse{Goal: g, Conflicts: nonNil(conflicts)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-goal",
		Method:        http.MethodDelete,
		Path:          "/families/{family_id}/goals/{goal_id}",
		Summary:       "Delete goal",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *goalPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := ownGoal(ctx, e, input.FamilyID, input.GoalID, actorID); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteGoal(ctx, input.GoalID, actorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-goal",
		Method:      http.MethodPost,
		Path:        "/families/{family_id}/goals/{goal_id}/activate",
		Summary:     "Activate a draft goal",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *goalPath) (*goalOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := ownGoal(ctx, e, input.FamilyID, input.GoalID, actorID); err != nil {
			return nil, handleError(err)
		}
		g, err := e.ActivateGoal(ctx, input.GoalID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &goalOutput{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "goal-progress",
		Method:      http.MethodPost,
		Path:        "/families/{family_id}/goals/{goal_id}/progress",
		Summary:     "Record goal progress; 100 completes an active goal",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		FamilyID string          `path:"family_id"`
		GoalID   string          `path:"goal_id"`
		Body     ProgressRequest `json:"body"`
	}) (*goalOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := ownGoal(ctx, e, input.FamilyID, input.GoalID, actorID); err != nil {
			return nil, handleError(err)
		}
		g, err := e.UpdateGoalProgress(ctx, input.GoalID, input.Body.Progress, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &goalOutput{Body: g}, nil
	})
}

type subtaskPath struct {
	FamilyID  string `path:"family_id"`
	GoalID    string `path:"goal_id"`
	SubtaskID string `path:"subtask_id"`
}

// ownSubtask checks the subtask sits under the path goal and family.
func ownSubtask(ctx context.Context, e engine.Engine, p subtaskPath, actorID string) error {
	st, g, err := e.GetSubtask(ctx, p.SubtaskID, actorID)
	if err != nil {
		return err
	}
	if st.GoalID != p.GoalID {
		return domain.ErrNotFound
	}
	return inFamily(p.FamilyID, g.FamilyID)
}

func registerSubtasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-subtasks",
		Method:      http.MethodGet,
		Path:        "/families/{family_id}/goals/{goal_id}/subtasks",
		Summary:     "List goal subtasks",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *goalPath) (*struct {
		Body SubtasksResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.GetGoal(ctx, input.GoalID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := inFamily(input.FamilyID, g.FamilyID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListSubtasks(ctx, g.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubtasksResponse `json:"body"`
		}{Body: SubtasksResponse{Goal: g, Subtasks: nonNil(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-subtasks",
		Method:        http.MethodPost,
		Path:          "/families/{family_id}/goals/{goal_id}/subtasks",
		Summary:       "Add subtasks; progress follows the completed share",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		FamilyID string             `path:"family_id"`
		GoalID   string             `path:"goal_id"`
		Body     AddSubtasksRequest `json:"body"`
	}) (*struct {
		Body SubtasksResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := ownGoal(ctx, e, input.FamilyID, input.GoalID, actorID); err != nil {
			return nil, handleError(err)
		}
		added, g, err := e.AddSubtasks(ctx, input.GoalID, input.Body.Titles, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubtasksResponse `json:"body"`
		}{Body: SubtasksResponse{Goal: g, Subtasks: nonNil(added)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-subtask-status",
		Method:      http.MethodPatch,
		Path:        "/families/{family_id}/goals/{goal_id}/subtasks/{subtask_id}",
		Summary:     "Complete or reopen a subtask",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		FamilyID  string               `path:"family_id"`
		GoalID    string               `path:"goal_id"`
		SubtaskID string               `path:"subtask_id"`
		Body      SubtaskStatusRequest `json:"body"`
	}) (*struct {
		Body SubtaskMutationResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := ownSubtask(ctx, e, subtaskPath{input.FamilyID, input.GoalID, input.SubtaskID}, actorID); err != nil {
			return nil, handleError(err)
		}
		st, g, err := e.SetSubtaskCompleted(ctx, input.SubtaskID, input.Body.Completed, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubtaskMutationResponse `json:"body"`
		}{Body: SubtaskMutationResponse{Goal: g, Subtask: st}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-subtask",
		Method:      http.MethodDelete,
		Path:        "/families/{family_id}/goals/{goal_id}/subtasks/{subtask_id}",
		Summary:     "Delete a subtask",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *subtaskPath) (*goalOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := ownSubtask(ctx, e, *input, actorID); err != nil {
			return nil, handleError(err)
		}
		g, err := e.DeleteSubtask(ctx, input.SubtaskID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &goalOutput{Body: g}, nil
	})
}

type conflictOutput struct {
	Body domain.Conflict `json:"body"`
}

func registerConflicts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-conflicts",
		Method:      http.MethodGet,
		Path:        "/families/{family_id}/conflicts",
		Summary:     "List conflicts",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FamilyID string `path:"family_id"`
		Status   string `query:"status" enum:"UNRESOLVED,RESOLVED"`
		GoalID   string `query:"goal_id"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body struct {
			Items []domain.Conflict `json:"items"`
		} `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListConflicts(ctx, engine.ConflictListOptions{
			FamilyID: input.FamilyID,
			Status:   input.Status,
			GoalID:   input.GoalID,
			Limit:    normalizeLimit(input.Limit),
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.Conflict `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = nonNil(items)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-conflict",
		Method:      http.MethodGet,
		Path:        "/families/{family_id}/conflicts/{conflict_id}",
		Summary:     "Get conflict with its resolution",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FamilyID   string `path:"family_id"`
		ConflictID string `path:"conflict_id"`
	}) (*conflictOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.GetConflict(ctx, input.ConflictID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := inFamily(input.FamilyID, c.FamilyID); err != nil {
			return nil, handleError(err)
		}
		return &conflictOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "resolve-conflict",
		Method:        http.MethodPost,
		Path:          "/families/{family_id}/conflicts/{conflict_id}/resolve",
		Summary:       "Resolve conflict and create its agreement",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		FamilyID   string                 `path:"family_id"`
		ConflictID string                 `path:"conflict_id"`
		Body       ResolveConflictRequest `json:"body"`
	}) (*agreementOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.GetConflict(ctx, input.ConflictID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := inFamily(input.FamilyID, c.FamilyID); err != nil {
			return nil, handleError(err)
		}
		a, err := e.ResolveConflict(ctx, engine.ResolveOptions{
			ConflictID:   input.ConflictID,
			Strategy:     input.Body.Strategy,
			Description:  input.Body.Description,
			Cost:         input.Body.Cost,
			Compensation: input.Body.Compensation,
			ReviewDate:   input.Body.ReviewDate,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &agreementOutput{Body: a}, nil
	})
}

type agreementOutput struct {
	Body domain.Agreement `json:"body"`
}

func registerAgreements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-agreements",
		Method:      http.MethodGet,
		Path:        "/families/{family_id}/agreements",
		Summary:     "List agreements by effective status",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FamilyID string `path:"family_id"`
		Status   string `query:"status" enum:"ACTIVE,EXPIRED,REVISED,CANCELLED"`
	}) (*struct {
		Body struct {
			Items []domain.Agreement `json:"items"`
		} `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListAgreements(ctx, engine.AgreementListOptions{FamilyID: input.FamilyID, Status: input.Status, ActorID: actorID})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.Agreement `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = nonNil(items)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "agreement-stats",
		Method:      http.MethodGet,
		Path:        "/families/{family_id}/agreements/stats",
		Summary:     "Agreement counts and upcoming reviews",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *familyPath) (*struct {
		Body domain.AgreementStats `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stats, err := e.AgreementStats(ctx, input.FamilyID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AgreementStats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-agreement-status",
		Method:      http.MethodPatch,
		Path:        "/families/{family_id}/agreements/{agreement_id}/status",
		Summary:     "Revise or cancel an agreement",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		FamilyID    string                 `path:"family_id"`
		AgreementID string                 `path:"agreement_id"`
		Body        AgreementStatusRequest `json:"body"`
	}) (*agreementOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		current, err := e.GetAgreement(ctx, input.AgreementID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := inFamily(input.FamilyID, current.FamilyID); err != nil {
			return nil, handleError(err)
		}
		a, err := e.UpdateAgreementStatus(ctx, input.AgreementID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &agreementOutput{Body: a}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/families/{family_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FamilyID   string `path:"family_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"family,member,goal,conflict,agreement"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			before = parsed
		}
		items, err := e.ListEvents(ctx, repo.EventFilters{
			FamilyID:   input.FamilyID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     before,
			Limit:      limit + 1,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
