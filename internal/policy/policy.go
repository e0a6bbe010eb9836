// Package policy derives the permission required for a protected resource
// and decides whether a session satisfies it. Authorize is the single choke
// point every protected operation calls before any side effect.
package policy

import (
	"context"

	"github.com/gatehouse-cms/gatehouse/internal/session"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

// Operation is the access being attempted on a resource.
type Operation string

// Operations recognized by the policy.
const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpDelete Operation = "delete"
)

// Resource is the target of a protected operation. Public resources share a
// category-level permission; private ones are scoped by schema slug.
type Resource struct {
	Slug   string
	Public bool
}

// RequiredPermission names the permission gating an operation on a resource.
// Public resources map to "content::<op>" so administrators can grant
// blanket access; schema-scoped ones map to "<slug>::<op>".
func RequiredPermission(res Resource, op Operation) string {
	if res.Public {
		return "content::" + string(op)
	}
	return res.Slug + "::" + string(op)
}

// Recorder observes authorization decisions; nil-safe.
type Recorder interface {
	AuthzDecision(allowed bool)
}

// Guard evaluates access checks against the session permission cache.
type Guard struct {
	sessions *session.Manager
	recorder Recorder
}

// NewGuard constructs a Guard.
func NewGuard(sessions *session.Manager) *Guard {
	return &Guard{sessions: sessions}
}

// SetRecorder wires decision metrics.
func (g *Guard) SetRecorder(r Recorder) {
	g.recorder = r
}

// Authorize gates an operation on a resource. Session errors pass through
// unchanged; an authenticated session without the derived permission gets
// ErrAccessForbidden. No new error kinds are invented here.
func (g *Guard) Authorize(ctx context.Context, token string, res Resource, op Operation) error {
	return g.Require(ctx, token, RequiredPermission(res, op))
}

// Require gates an operation on an exact permission name.
func (g *Guard) Require(ctx context.Context, token, permission string) error {
	ok, err := g.sessions.HasPermission(ctx, token, permission)
	if err != nil {
		return err
	}
	if g.recorder != nil {
		g.recorder.AuthzDecision(ok)
	}
	if !ok {
		return shared.ErrAccessForbidden
	}
	return nil
}
