package usercontext

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/scopedcache"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/platinummonkey/orgscope/pkg/usercontext")

// DefaultTTL is the lifetime of a cached context
const DefaultTTL = time.Hour

// Tree resolves a unit's ancestor chain
type Tree interface {
	AncestorIDs(ctx context.Context, unitID string) ([]string, error)
}

// LoadObserver is notified after every uncached context load
type LoadObserver interface {
	ContextLoaded(role hierarchy.Role, d time.Duration, err error)
}

// Option configures a Provider
type Option func(*Provider)

// WithCache caches contexts in c
func WithCache(c *scopedcache.Cache) Option {
	return func(p *Provider) {
		p.cache = c
	}
}

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithLoadObserver reports context loads to o
func WithLoadObserver(o LoadObserver) Option {
	return func(p *Provider) {
		p.observer = o
	}
}

// Provider builds and caches UserContexts
type Provider struct {
	store    Store
	tree     Tree
	cache    *scopedcache.Cache
	ttl      time.Duration
	observer LoadObserver
	log      *logrus.Logger
}

// NewProvider creates a new context provider. Without WithCache every call
// reads through to the store.
func NewProvider(store Store, tree Tree, log *logrus.Logger, opts ...Option) *Provider {
	if log == nil {
		log = logrus.New()
	}
	p := &Provider{
		store: store,
		tree:  tree,
		ttl:   DefaultTTL,
		log:   log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key returns the cache key of a user's context
func Key(userID string) string {
	return string(Resource) + ":" + userID
}

// Resource is the cache resource class of user contexts
const Resource = hierarchy.ResourceKind("usercontext")

// Tags returns the cache tags of a user's context
func Tags(userID string) []string {
	return []string{scopedcache.ClassTag(Resource), scopedcache.IDTag(Resource, userID)}
}

// GetContext returns the user's context. Non-MASTER users without an active
// position fail with hierarchy.ErrNoActivePosition.
func (p *Provider) GetContext(ctx context.Context, userID string) (hierarchy.UserContext, error) {
	if userID == "" {
		return hierarchy.UserContext{}, fmt.Errorf("%w: empty id", hierarchy.ErrUserNotFound)
	}
	if p.cache == nil {
		return p.load(ctx, userID)
	}
	return scopedcache.RememberFixed(ctx, p.cache, Key(userID), Tags(userID), p.ttl, func(ctx context.Context) (hierarchy.UserContext, error) {
		return p.load(ctx, userID)
	})
}

// TargetContext returns the context of a user being acted upon. A user without
// an active position is returned with RoleNone and the organization of the
// user row, so that permission checks can still run against it.
func (p *Provider) TargetContext(ctx context.Context, userID string) (hierarchy.UserContext, error) {
	uctx, err := p.GetContext(ctx, userID)
	if !errors.Is(err, hierarchy.ErrNoActivePosition) {
		return uctx, err
	}

	user, err := p.store.GetUser(ctx, userID)
	if err != nil {
		return hierarchy.UserContext{}, err
	}
	return hierarchy.UserContext{
		UserID:         user.ID,
		Role:           hierarchy.RoleNone,
		OrganizationID: user.OrganizationID,
		ResolvedAt:     time.Now().UTC(),
	}, nil
}

// InvalidateUser drops the cached context of a user. Call it after any
// position, department or role change of that user.
func (p *Provider) InvalidateUser(ctx context.Context, userIDs ...string) error {
	if p.cache == nil || len(userIDs) == 0 {
		return nil
	}
	tags := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		tags = append(tags, scopedcache.IDTag(Resource, id))
	}
	return p.cache.InvalidateTags(ctx, tags...)
}

// InvalidateAll drops every cached context, for bulk restructuring
func (p *Provider) InvalidateAll(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.InvalidateTags(ctx, scopedcache.ClassTag(Resource))
}

// Position returns a position of any user, active or not
func (p *Provider) Position(ctx context.Context, positionID string) (*hierarchy.Position, error) {
	return p.store.Position(ctx, positionID)
}

func (p *Provider) load(ctx context.Context, userID string) (uctx hierarchy.UserContext, err error) {
	ctx, span := tracer.Start(ctx, "usercontext.load", trace.WithAttributes(attribute.String("orgscope.user_id", userID)))
	start := time.Now()
	defer func() {
		if p.observer != nil {
			p.observer.ContextLoaded(uctx.Role, time.Since(start), err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context load failed")
		} else {
			span.SetAttributes(attribute.String("orgscope.role", uctx.Role.String()))
		}
		span.End()
	}()

	user, err := p.store.GetUser(ctx, userID)
	if err != nil {
		return hierarchy.UserContext{}, err
	}
	if user.IsMaster {
		return hierarchy.MasterContext(user.ID), nil
	}

	positions, err := p.store.ActivePositions(ctx, userID)
	if err != nil {
		return hierarchy.UserContext{}, err
	}
	if len(positions) == 0 {
		return hierarchy.UserContext{}, fmt.Errorf("%w: user %s", hierarchy.ErrNoActivePosition, userID)
	}
	if len(positions) > 1 {
		p.log.WithFields(logrus.Fields{
			"user_id":   userID,
			"positions": len(positions),
			"using":     positions[0].ID,
		}).Warn("user has multiple active positions")
	}

	pos := positions[0]
	role := pos.Role()
	switch {
	case role == hierarchy.RoleMaster:
		return hierarchy.MasterContext(user.ID), nil
	case !role.Valid():
		return hierarchy.UserContext{}, fmt.Errorf("position %s has unknown level %d", pos.ID, pos.Level)
	}

	uctx = hierarchy.UserContext{
		UserID:         user.ID,
		Role:           role,
		OrganizationID: user.OrganizationID,
		UnitID:         pos.UnitID,
	}

	g, gctx := errgroup.WithContext(ctx)
	if pos.UnitID != "" {
		g.Go(func() error {
			chain, err := p.tree.AncestorIDs(gctx, pos.UnitID)
			if err != nil {
				return fmt.Errorf("failed to resolve unit chain: %w", err)
			}
			uctx.AncestorUnitChain = chain
			return nil
		})
	}
	g.Go(func() error {
		codes, err := p.store.Departments(gctx, pos.ID)
		if err != nil {
			return err
		}
		uctx.DepartmentCodes = codes
		return nil
	})
	if err := g.Wait(); err != nil {
		return hierarchy.UserContext{}, err
	}

	if role == hierarchy.RoleStoreManager {
		uctx.StoreID = pos.UnitID
	}
	uctx.ResolvedAt = time.Now().UTC()
	return uctx, nil
}
