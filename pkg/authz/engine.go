package authz

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/orgtree"
	"github.com/platinummonkey/orgscope/pkg/permission"
	"github.com/platinummonkey/orgscope/pkg/scope"
	"github.com/platinummonkey/orgscope/pkg/scopedcache"
	"github.com/platinummonkey/orgscope/pkg/usercontext"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/platinummonkey/orgscope/pkg/authz")

// DecisionRecorder receives every permission decision, typically for metrics
type DecisionRecorder interface {
	Decision(kind string, allowed bool, rule string)
}

type noopDecisions struct{}

func (noopDecisions) Decision(string, bool, string) {}

// Deps are the collaborators of an Engine
type Deps struct {
	DB         *sql.DB
	Tree       *orgtree.Index
	Contexts   *usercontext.Provider
	Cache      *scopedcache.Cache
	Dependents permission.DependencyCounter

	// Optional
	Audit     audit.Logger
	Decisions DecisionRecorder
	Log       *logrus.Logger
}

// Engine ties the components together into the read and write paths used by
// request handlers
type Engine struct {
	db         *sql.DB
	tree       *orgtree.Index
	resolver   *scope.Resolver
	evaluator  *permission.Evaluator
	contexts   *usercontext.Provider
	cache      *scopedcache.Cache
	dependents permission.DependencyCounter
	audit      audit.Logger
	decisions  DecisionRecorder
	log        *logrus.Logger
}

// NewEngine creates a new engine
func NewEngine(deps Deps) (*Engine, error) {
	switch {
	case deps.DB == nil:
		return nil, fmt.Errorf("database is required")
	case deps.Tree == nil:
		return nil, fmt.Errorf("org tree index is required")
	case deps.Contexts == nil:
		return nil, fmt.Errorf("context provider is required")
	case deps.Cache == nil:
		return nil, fmt.Errorf("cache is required")
	}

	if deps.Log == nil {
		deps.Log = logrus.New()
	}
	if deps.Audit == nil {
		deps.Audit = audit.NoOp()
	}
	if deps.Decisions == nil {
		deps.Decisions = noopDecisions{}
	}
	if deps.Dependents == nil {
		deps.Dependents = permission.NewSQLDependencyCounter(deps.DB)
	}

	return &Engine{
		db:         deps.DB,
		tree:       deps.Tree,
		resolver:   scope.NewResolver(deps.Tree),
		evaluator:  permission.NewEvaluator(deps.Tree, deps.Log),
		contexts:   deps.Contexts,
		cache:      deps.Cache,
		dependents: deps.Dependents,
		audit:      deps.Audit,
		decisions:  deps.Decisions,
		log:        deps.Log,
	}, nil
}

// Tree returns the org tree index
func (e *Engine) Tree() *orgtree.Index { return e.tree }

// Resolver returns the scope resolver
func (e *Engine) Resolver() *scope.Resolver { return e.resolver }

// Evaluator returns the permission evaluator
func (e *Engine) Evaluator() *permission.Evaluator { return e.evaluator }

// Cache returns the scoped cache
func (e *Engine) Cache() *scopedcache.Cache { return e.cache }

// Context returns the caller's context. A missing active position is audited
// as a denial.
func (e *Engine) Context(ctx context.Context, userID string) (hierarchy.UserContext, error) {
	uctx, err := e.contexts.GetContext(ctx, userID)
	if err != nil && hierarchy.IsDenied(err) {
		event := audit.NewEvent(ctx, audit.EventTypeContextMissing, audit.EventStatusDenied)
		event.ActorID = userID
		event.Reason = hierarchy.DenialReason(err)
		e.writeAudit(ctx, event)
	}
	return uctx, err
}

// TargetContext returns the context of a user being acted upon
func (e *Engine) TargetContext(ctx context.Context, userID string) (hierarchy.UserContext, error) {
	return e.contexts.TargetContext(ctx, userID)
}

// ResolveScope returns the scope filter of uctx for kind
func (e *Engine) ResolveScope(uctx hierarchy.UserContext, kind hierarchy.ResourceKind) scope.ScopeFilter {
	return e.resolver.ResolveScope(uctx, kind)
}

// AuthorizeUser evaluates a user-management operation and records it
func (e *Engine) AuthorizeUser(ctx context.Context, actor, target hierarchy.UserContext, op permission.UserOp) permission.Decision {
	d := e.evaluator.EvaluateUser(actor, target, op)
	e.record(ctx, audit.EventTypeUserDecision, actor, string(hierarchy.ResourceUsers), target.UserID, string(op), d)
	return d
}

// AuthorizeFields evaluates a field-level update and records it
func (e *Engine) AuthorizeFields(ctx context.Context, actor, target hierarchy.UserContext, fields []string) permission.Decision {
	d := e.evaluator.EvaluateFields(actor, target, fields)
	e.record(ctx, audit.EventTypeUserDecision, actor, string(hierarchy.ResourceUsers), target.UserID, "update_fields", d)
	return d
}

// AuthorizeUnit evaluates an org-unit operation and records it
func (e *Engine) AuthorizeUnit(ctx context.Context, actor hierarchy.UserContext, unitID string, op permission.UnitOp) (permission.Decision, error) {
	d, err := e.evaluator.EvaluateUnit(ctx, actor, unitID, op)
	if err != nil {
		return d, err
	}
	e.record(ctx, audit.EventTypeUnitDecision, actor, string(hierarchy.ResourceUnits), unitID, string(op), d)
	return d, nil
}

// AuthorizeCreateOrganization evaluates organization creation and records it
func (e *Engine) AuthorizeCreateOrganization(ctx context.Context, actor hierarchy.UserContext) permission.Decision {
	d := e.evaluator.EvaluateCreateOrganization(actor)
	e.record(ctx, audit.EventTypeOrgDecision, actor, string(hierarchy.ResourceOrganizations), "", "create", d)
	return d
}

// record reports a decision to the metrics recorder and audits denials
func (e *Engine) record(ctx context.Context, eventType audit.EventType, actor hierarchy.UserContext, resourceType, resourceID, op string, d permission.Decision) {
	e.decisions.Decision(resourceType, d.Allowed, string(d.Rule))
	if d.Allowed {
		return
	}

	event := audit.NewEvent(ctx, eventType, audit.EventStatusDenied)
	event.ActorID = actor.UserID
	event.ActorRole = actor.Role.String()
	event.OrganizationID = actor.OrganizationID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Operation = op
	event.Rule = string(d.Rule)
	event.Reason = d.Reason
	e.writeAudit(ctx, event)
}

func (e *Engine) writeAudit(ctx context.Context, event *audit.Event) {
	if err := e.audit.Log(ctx, event); err != nil {
		e.log.WithError(err).WithField("event_type", string(event.EventType)).Error("failed to write audit event")
	}
}
