package accordsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Accord HTTP API client bound to one family.
type Client struct {
	BaseURL     string
	FamilyID    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, familyID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		FamilyID: familyID,
		Timeout:  10 * time.Second,
	}
}

type Member struct {
	FamilyID string `json:"family_id"`
	ActorID  string `json:"actor_id"`
	Role     string `json:"role"`
}

type Family struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	NorthStar string   `json:"north_star,omitempty"`
	Members   []Member `json:"members,omitempty"`
}

type Goal struct {
	ID          string   `json:"id"`
	FamilyID    string   `json:"family_id"`
	OwnerID     string   `json:"owner_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type"`
	Horizon     string   `json:"horizon"`
	Resources   []string `json:"resources"`
	Deadline    string   `json:"deadline,omitempty"`
	Progress    int      `json:"progress"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"created_at"`
}

type Subtask struct {
	ID          string `json:"id"`
	GoalID      string `json:"goal_id"`
	Title       string `json:"title"`
	Position    int    `json:"position"`
	Completed   bool   `json:"completed"`
	CompletedAt string `json:"completed_at,omitempty"`
	CompletedBy string `json:"completed_by,omitempty"`
}

// Subtasks is a goal with its checklist.
type Subtasks struct {
	Goal     Goal      `json:"goal"`
	Subtasks []Subtask `json:"subtasks"`
}

// GoalInput is the body for creating a goal.
type GoalInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type,omitempty"`
	Horizon     string   `json:"horizon,omitempty"`
	Resources   []string `json:"resources,omitempty"`
	Deadline    string   `json:"deadline,omitempty"`
	Metric      string   `json:"metric,omitempty"`
}

type Resolution struct {
	ID           string `json:"id"`
	Strategy     string `json:"strategy"`
	Description  string `json:"description,omitempty"`
	Cost         string `json:"cost"`
	Compensation string `json:"compensation"`
	ReviewDate   string `json:"review_date,omitempty"`
}

type Conflict struct {
	ID              string      `json:"id"`
	FamilyID        string      `json:"family_id"`
	Type            string      `json:"type"`
	SharedResources []string    `json:"shared_resources"`
	GoalAID         string      `json:"goal_a_id"`
	GoalBID         string      `json:"goal_b_id"`
	Status          string      `json:"status"`
	Resolution      *Resolution `json:"resolution,omitempty"`
}

// GoalResult is returned by goal mutations that run conflict detection.
type GoalResult struct {
	Goal      Goal       `json:"goal"`
	Conflicts []Conflict `json:"conflicts"`
}

// ResolveInput is the human decision for a conflict.
type ResolveInput struct {
	Strategy     string `json:"strategy"`
	Description  string `json:"description,omitempty"`
	Cost         string `json:"cost"`
	Compensation string `json:"compensation"`
	ReviewDate   string `json:"review_date,omitempty"`
}

type Agreement struct {
	ID              string `json:"id"`
	FamilyID        string `json:"family_id"`
	ConflictID      string `json:"conflict_id"`
	Title           string `json:"title"`
	Terms           string `json:"terms"`
	ValidUntil      string `json:"valid_until,omitempty"`
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status,omitempty"`
	DaysUntilReview *int   `json:"days_until_review,omitempty"`
}

type AgreementStats struct {
	Total           int `json:"total"`
	Active          int `json:"active"`
	Expired         int `json:"expired"`
	Revised         int `json:"revised"`
	Cancelled       int `json:"cancelled"`
	UpcomingReviews int `json:"upcoming_reviews"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	FamilyID   string         `json:"family_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// DevLogin mints a development token and stores it on the client.
func (c *Client) DevLogin(ctx context.Context, actorID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]any{"actor_id": actorID, "family_id": c.FamilyID}
	if err := c.do(ctx, http.MethodPost, "v0/auth/dev/login", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// CreateFamily creates a family and binds the client to it.
func (c *Client) CreateFamily(ctx context.Context, id, name string) (Family, error) {
	var resp Family
	err := c.do(ctx, http.MethodPost, "v0/families", map[string]any{"id": id, "name": name}, &resp)
	if err == nil {
		c.FamilyID = resp.ID
	}
	return resp, err
}

func (c *Client) Family(ctx context.Context) (Family, error) {
	var resp Family
	err := c.do(ctx, http.MethodGet, c.familyPath(""), nil, &resp)
	return resp, err
}

func (c *Client) AddMember(ctx context.Context, actorID, role string) (Member, error) {
	var resp Member
	err := c.do(ctx, http.MethodPost, c.familyPath("members"), map[string]any{"actor_id": actorID, "role": role}, &resp)
	return resp, err
}

// CreateGoal creates a goal and returns any conflicts it caused.
func (c *Client) CreateGoal(ctx context.Context, in GoalInput) (GoalResult, error) {
	var resp GoalResult
	err := c.do(ctx, http.MethodPost, c.familyPath("goals"), in, &resp)
	return resp, err
}

func (c *Client) Goal(ctx context.Context, id string) (Goal, error) {
	var resp Goal
	err := c.do(ctx, http.MethodGet, c.familyPath("goals/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Goals lists goals, optionally filtered by status.
func (c *Client) Goals(ctx context.Context, status string) ([]Goal, error) {
	endpoint := c.familyPath("goals")
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []Goal `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// UpdateGoal sends a partial update; only the given fields change.
func (c *Client) UpdateGoal(ctx context.Context, id string, fields map[string]any) (GoalResult, error) {
	var resp GoalResult
	err := c.do(ctx, http.MethodPatch, c.familyPath("goals/"+url.PathEscape(id)), fields, &resp)
	return resp, err
}

func (c *Client) ActivateGoal(ctx context.Context, id string) (Goal, error) {
	var resp Goal
	err := c.do(ctx, http.MethodPost, c.familyPath("goals/"+url.PathEscape(id)+"/activate"), nil, &resp)
	return resp, err
}

func (c *Client) SetProgress(ctx context.Context, id string, progress int) (Goal, error) {
	var resp Goal
	err := c.do(ctx, http.MethodPost, c.familyPath("goals/"+url.PathEscape(id)+"/progress"), map[string]any{"progress": progress}, &resp)
	return resp, err
}

func (c *Client) Subtasks(ctx context.Context, goalID string) (Subtasks, error) {
	var resp Subtasks
	err := c.do(ctx, http.MethodGet, c.familyPath("goals/"+url.PathEscape(goalID)+"/subtasks"), nil, &resp)
	return resp, err
}

func (c *Client) AddSubtasks(ctx context.Context, goalID string, titles ...string) (Subtasks, error) {
	var resp Subtasks
	err := c.do(ctx, http.MethodPost, c.familyPath("goals/"+url.PathEscape(goalID)+"/subtasks"), map[string]any{"titles": titles}, &resp)
	return resp, err
}

// SetSubtaskCompleted completes or reopens a step and returns it with its recalculated goal.
func (c *Client) SetSubtaskCompleted(ctx context.Context, goalID, subtaskID string, completed bool) (Subtask, Goal, error) {
	var resp struct {
		Goal    Goal    `json:"goal"`
		Subtask Subtask `json:"subtask"`
	}
	err := c.do(ctx, http.MethodPatch, c.familyPath("goals/"+url.PathEscape(goalID)+"/subtasks/"+url.PathEscape(subtaskID)), map[string]any{"completed": completed}, &resp)
	return resp.Subtask, resp.Goal, err
}

func (c *Client) DeleteSubtask(ctx context.Context, goalID, subtaskID string) (Goal, error) {
	var resp Goal
	err := c.do(ctx, http.MethodDelete, c.familyPath("goals/"+url.PathEscape(goalID)+"/subtasks/"+url.PathEscape(subtaskID)), nil, &resp)
	return resp, err
}

func (c *Client) DeleteGoal(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.familyPath("goals/"+url.PathEscape(id)), nil, nil)
}

// Conflicts lists conflicts, optionally filtered by status.
func (c *Client) Conflicts(ctx context.Context, status string) ([]Conflict, error) {
	endpoint := c.familyPath("conflicts")
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []Conflict `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) Conflict(ctx context.Context, id string) (Conflict, error) {
	var resp Conflict
	err := c.do(ctx, http.MethodGet, c.familyPath("conflicts/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Resolve settles a conflict and returns the agreement it produced.
func (c *Client) Resolve(ctx context.Context, conflictID string, in ResolveInput) (Agreement, error) {
	var resp Agreement
	err := c.do(ctx, http.MethodPost, c.familyPath("conflicts/"+url.PathEscape(conflictID)+"/resolve"), in, &resp)
	return resp, err
}

func (c *Client) Agreements(ctx context.Context, status string) ([]Agreement, error) {
	endpoint := c.familyPath("agreements")
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []Agreement `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) AgreementStats(ctx context.Context) (AgreementStats, error) {
	var resp AgreementStats
	err := c.do(ctx, http.MethodGet, c.familyPath("agreements/stats"), nil, &resp)
	return resp, err
}

func (c *Client) SetAgreementStatus(ctx context.Context, id, status string) (Agreement, error) {
	var resp Agreement
	err := c.do(ctx, http.MethodPatch, c.familyPath("agreements/"+url.PathEscape(id)+"/status"), map[string]any{"status": status}, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.familyPath("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) familyPath(p string) string {
	family := url.PathEscape(c.FamilyID)
	if p == "" {
		return fmt.Sprintf("v0/families/%s", family)
	}
	return fmt.Sprintf("v0/families/%s/%s", family, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
