package jobs

import (
	"context"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/gatehouse-cms/gatehouse/internal/jobs"
)

type stubInvalidator struct {
	roles []string
	fail  error
}

func (s *stubInvalidator) InvalidateRoleSessions(_ context.Context, roleID string) error {
	if s.fail != nil {
		return s.fail
	}
	s.roles = append(s.roles, roleID)
	return nil
}

type stubScanner struct {
	repaired int
	fail     error
}

func (s *stubScanner) EnsureScopedPermissions(context.Context) (int, error) {
	return s.repaired, s.fail
}

func TestHandleRoleInvalidation(t *testing.T) {
	inv := &stubInvalidator{}
	handler := HandleRoleInvalidation(inv, nil, slog.Default())

	task, err := NewRoleInvalidationTask(RoleInvalidationPayload{RoleID: "r1"})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	assert.Equal(t, []string{"r1"}, inv.roles)
}

func TestHandleRoleInvalidationSkipsMalformedPayload(t *testing.T) {
	inv := &stubInvalidator{}
	handler := HandleRoleInvalidation(inv, nil, slog.Default())

	err := handler(context.Background(), asynq.NewTask(TaskRoleInvalidation, []byte("not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, inv.roles)
}

func TestHandleRoleInvalidationPropagatesFailure(t *testing.T) {
	inv := &stubInvalidator{fail: assert.AnError}
	handler := HandleRoleInvalidation(inv, nil, slog.Default())

	task, err := NewRoleInvalidationTask(RoleInvalidationPayload{RoleID: "r1"})
	require.NoError(t, err)

	assert.ErrorIs(t, handler(context.Background(), task), assert.AnError)
}

func TestHandleGraphIntegrity(t *testing.T) {
	metrics := jobmetrics.NewMetrics(nil)

	handler := HandleGraphIntegrity(&stubScanner{repaired: 2}, metrics, slog.Default())
	assert.NoError(t, handler(context.Background(), NewGraphIntegrityTask()))

	handler = HandleGraphIntegrity(&stubScanner{fail: assert.AnError}, metrics, slog.Default())
	assert.ErrorIs(t, handler(context.Background(), NewGraphIntegrityTask()), assert.AnError)
}
