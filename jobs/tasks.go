// Package jobs hosts the background queue: role-scoped session invalidation
// fan-out and the periodic graph integrity scan.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gatehouse-cms/gatehouse/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRoleInvalidation evicts the cached sessions of every holder of a role.
	TaskRoleInvalidation = "authz:invalidate_role_sessions"
	// TaskGraphIntegrity re-provisions scoped permissions dropped from the graph.
	TaskGraphIntegrity = "graph:integrity_scan"
)

// RoleInvalidationPayload names the role whose holders need fresh snapshots.
type RoleInvalidationPayload struct {
	RoleID string `json:"role_id"`
}

// NewRoleInvalidationTask constructs the fan-out task.
func NewRoleInvalidationTask(payload RoleInvalidationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoleInvalidation, data), nil
}

// NewGraphIntegrityTask constructs the periodic integrity scan task.
func NewGraphIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskGraphIntegrity, nil)
}

// RoleInvalidator walks a role's holders and evicts their sessions.
// Implemented by the authz service.
type RoleInvalidator interface {
	InvalidateRoleSessions(ctx context.Context, roleID string) error
}

// IntegrityScanner restores scoped permissions for private schemas.
// Implemented by the schema registry.
type IntegrityScanner interface {
	EnsureScopedPermissions(ctx context.Context) (int, error)
}

// HandleRoleInvalidation returns the handler for TaskRoleInvalidation.
func HandleRoleInvalidation(inv RoleInvalidator, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RoleInvalidationPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("role_invalidation")
		err := inv.InvalidateRoleSessions(ctx, payload.RoleID)
		if err != nil {
			logger.Error("role invalidation fan-out failed",
				slog.String("role", payload.RoleID), slog.Any("error", err))
		}
		return tracker.End(err)
	}
}

// HandleGraphIntegrity returns the handler for TaskGraphIntegrity.
func HandleGraphIntegrity(scanner IntegrityScanner, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track("graph_integrity")
		repaired, err := scanner.EnsureScopedPermissions(ctx)
		if err != nil {
			logger.Error("graph integrity scan failed", slog.Any("error", err))
			return tracker.End(err)
		}
		if repaired > 0 {
			metrics.AddRepairs("permission", repaired)
			logger.Warn("graph integrity scan restored permissions", slog.Int("count", repaired))
		}
		return tracker.End(nil)
	}
}
