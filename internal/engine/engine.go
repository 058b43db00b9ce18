package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"accord/internal/config"
	"accord/internal/domain"
	"accord/internal/engine/auth"
	"accord/internal/events"
	"accord/internal/logging"
	"accord/internal/repo"
)

// Engine is the conflict detection and resolution core. Every mutation runs
// in a single transaction together with the events it emits.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Config *config.Config
	Log    *zap.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Auth:   auth.Service{DB: db},
		Config: cfg,
		Log:    zap.NewNop(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *zap.Logger {
	return logging.OrNop(e.Log)
}

// emit appends an event stamped with the engine clock.
func (e Engine) emit(ctx context.Context, tx *sql.Tx, evtType, familyID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, familyID, entityKind, entityID, actorID, payload)
}

func newID() string {
	return uuid.NewString()
}

// FamilyCreateOptions are parameters for creating a family.
type FamilyCreateOptions struct {
	ID        string
	Name      string
	NorthStar string
	// Role of the creating actor, ADULT when empty.
	Role    string
	ActorID string
}

// CreateFamily creates a family with the acting user as its first member.
func (e Engine) CreateFamily(ctx context.Context, opts FamilyCreateOptions) (domain.Family, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Family{}, fmt.Errorf("%w: family name is required", domain.ErrInvalidInput)
	}
	if opts.ActorID == "" {
		return domain.Family{}, auth.UnauthorizedError{}
	}
	role, err := domain.ParseMemberRole(opts.Role)
	if err != nil {
		return domain.Family{}, err
	}
	id := opts.ID
	if id == "" {
		id = newID()
	}
	now := e.timestamp()
	f := domain.Family{ID: id, Name: name, NorthStar: strings.TrimSpace(opts.NorthStar), CreatedAt: now}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Family{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertFamilyTx(ctx, tx, f); err != nil {
		return domain.Family{}, fmt.Errorf("insert family: %w", err)
	}
	if err := e.Repo.UpsertMemberTx(ctx, tx, domain.Member{FamilyID: f.ID, ActorID: opts.ActorID, Role: role, CreatedAt: now}); err != nil {
		return domain.Family{}, fmt.Errorf("insert member: %w", err)
	}
	if err := e.emit(ctx, tx, events.FamilyCreated, f.ID, "family", f.ID, opts.ActorID, events.EventPayload{"name": f.Name}); err != nil {
		return domain.Family{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Family{}, err
	}
	return f, nil
}

// AddMember adds or re-roles a member. Children cannot manage membership.
func (e Engine) AddMember(ctx context.Context, familyID, memberID, role, actorID string) (domain.Member, error) {
	if strings.TrimSpace(memberID) == "" {
		return domain.Member{}, fmt.Errorf("%w: member actor id is required", domain.ErrInvalidInput)
	}
	r, err := domain.ParseMemberRole(role)
	if err != nil {
		return domain.Member{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Member{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetFamilyTx(ctx, tx, familyID); err != nil {
		return domain.Member{}, err
	}
	actorRole, err := e.Auth.RequireMember(ctx, tx, familyID, actorID)
	if err != nil {
		return domain.Member{}, err
	}
	if actorRole == domain.RoleChild {
		return domain.Member{}, auth.UnauthorizedError{FamilyID: familyID, ActorID: actorID, Reason: "cannot manage members"}
	}
	m := domain.Member{FamilyID: familyID, ActorID: strings.TrimSpace(memberID), Role: r, CreatedAt: e.timestamp()}
	if err := e.Repo.UpsertMemberTx(ctx, tx, m); err != nil {
		return domain.Member{}, err
	}
	if err := e.emit(ctx, tx, events.MemberAdded, familyID, "member", m.ActorID, actorID, events.EventPayload{"role": m.Role}); err != nil {
		return domain.Member{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Member{}, err
	}
	return m, nil
}

func (e Engine) GetFamily(ctx context.Context, familyID, actorID string) (domain.Family, error) {
	f, err := e.Repo.GetFamily(ctx, familyID)
	if err != nil {
		return f, err
	}
	if _, err := e.Auth.RequireMember(ctx, nil, familyID, actorID); err != nil {
		return domain.Family{}, err
	}
	return f, nil
}

func (e Engine) ListMembers(ctx context.Context, familyID, actorID string) ([]domain.Member, error) {
	if _, err := e.GetFamily(ctx, familyID, actorID); err != nil {
		return nil, err
	}
	return e.Repo.ListMembers(ctx, familyID)
}

// ListEvents returns a family's event log, newest first.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters, actorID string) ([]domain.Event, error) {
	if _, err := e.GetFamily(ctx, f.FamilyID, actorID); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, f)
}
