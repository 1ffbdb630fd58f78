package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/catering/internal/config"
	"github.com/smallbiznis/catering/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, adminRoles ...int64) Service {
	t.Helper()
	conn := dbtest.Open(t)
	enforcer, err := NewEnforcer(conn, config.Config{AdminRoleIDs: adminRoles})
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeAdminRole(t *testing.T) {
	svc := newTestService(t, 1, 7)
	ctx := context.Background()

	err := svc.Authorize(ctx, Subject{UserID: "10", RoleIDs: []int64{3, 7}}, ObjectNotificationSetting, ActionNotificationSettingManage)
	assert.NoError(t, err)

	err = svc.Authorize(ctx, Subject{UserID: "11", RoleIDs: []int64{3}}, ObjectNotificationSetting, ActionNotificationSettingView)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeSystemSubject(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, Subject{System: true}, ObjectNotificationJob, ActionNotificationJobRun))
	assert.ErrorIs(t, svc.Authorize(ctx, Subject{System: true}, ObjectNotificationSetting, ActionNotificationSettingManage), ErrForbidden)
}

func TestAuthorizeRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t, 1)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, Subject{}, ObjectNotificationJob, ActionNotificationJobRun), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Subject{RoleIDs: []int64{1}}, "", ActionNotificationJobRun), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, Subject{RoleIDs: []int64{1}}, ObjectNotificationJob, " "), ErrInvalidAction)
}

func TestSeedIsIdempotent(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := NewEnforcer(conn, config.Config{AdminRoleIDs: []int64{1}})
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn, config.Config{AdminRoleIDs: []int64{1}})
	require.NoError(t, err)

	policies, err := enforcer.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, policies, 4)
}
