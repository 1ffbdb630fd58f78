package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/catering/internal/config"
	obslogger "github.com/smallbiznis/catering/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectNotification        = "notification"
	ObjectNotificationSetting = "notification_setting"
	ObjectNotificationJob     = "notification_job"
)

const (
	ActionNotificationSettingView   = "notification_setting.view"
	ActionNotificationSettingManage = "notification_setting.manage"
	ActionNotificationJobRun        = "notification_job.run"
)

const (
	roleAdmin     = "role:admin"
	subjectSystem = "system"
)

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads persisted policies and seeds the built-in admin grants.
func NewEnforcer(db *gorm.DB, cfg config.Config) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer, cfg.AdminRoleIDs); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

// Authorize allows the subject when any of its roles grants object/action.
func (s *ServiceImpl) Authorize(ctx context.Context, subject Subject, object string, action string) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subjects := subjectsFor(subject)
	if len(subjects) == 0 {
		return ErrInvalidActor
	}

	for _, sub := range subjects {
		allowed, err := s.enforcer.Enforce(sub, object, action)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
	}

	obslogger.WithContext(ctx, s.log).Info("authorization.denied",
		zap.String("user_id", subject.UserID),
		zap.Int64s("role_ids", subject.RoleIDs),
		zap.String("object", object),
		zap.String("action", action),
	)
	return ErrForbidden
}

func subjectsFor(subject Subject) []string {
	if subject.System {
		return []string{subjectSystem}
	}
	out := make([]string, 0, len(subject.RoleIDs))
	for _, roleID := range subject.RoleIDs {
		if roleID <= 0 {
			continue
		}
		out = append(out, roleSubject(roleID))
	}
	return out
}

func roleSubject(roleID int64) string {
	return fmt.Sprintf("role:%d", roleID)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer, adminRoleIDs []int64) error {
	policies := [][]string{
		{roleAdmin, ObjectNotificationSetting, ActionNotificationSettingView},
		{roleAdmin, ObjectNotificationSetting, ActionNotificationSettingManage},
		{roleAdmin, ObjectNotificationJob, ActionNotificationJobRun},

		{subjectSystem, ObjectNotificationJob, ActionNotificationJobRun},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	for _, roleID := range adminRoleIDs {
		if roleID <= 0 {
			continue
		}
		sub := roleSubject(roleID)
		has, err := enforcer.HasGroupingPolicy(sub, roleAdmin)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(sub, roleAdmin); err != nil {
			return err
		}
	}
	return nil
}
