package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPayment      = "payment"
	ObjectSubscription = "subscription"
	ObjectUsage        = "usage"
)

const (
	ActionPaymentView       = "payment.view"
	ActionPaymentReactivate = "payment.reactivate"

	ActionSubscriptionView   = "subscription.view"
	ActionSubscriptionCancel = "subscription.cancel"

	ActionUsageView = "usage.view"
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

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
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
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, userID string, role string, object string, action string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidActor
	}
	role = normalizeRole(role)
	if roleRank(role) == 0 {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("user:%s", userID)
	roleName := fmt.Sprintf("role:%s", role)
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per subject, following the role in the latest token.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func normalizeRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	return strings.TrimPrefix(role, "role:")
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Member permissions
		{"role:member", ObjectSubscription, ActionSubscriptionView},
		{"role:member", ObjectSubscription, ActionSubscriptionCancel},
		{"role:member", ObjectUsage, ActionUsageView},

		// Admin permissions
		{"role:admin", ObjectSubscription, ActionSubscriptionView},
		{"role:admin", ObjectSubscription, ActionSubscriptionCancel},
		{"role:admin", ObjectUsage, ActionUsageView},
		{"role:admin", ObjectPayment, ActionPaymentView},
		{"role:admin", ObjectPayment, ActionPaymentReactivate},

		// Owner permissions
		{"role:owner", ObjectSubscription, ActionSubscriptionView},
		{"role:owner", ObjectSubscription, ActionSubscriptionCancel},
		{"role:owner", ObjectUsage, ActionUsageView},
		{"role:owner", ObjectPayment, ActionPaymentView},
		{"role:owner", ObjectPayment, ActionPaymentReactivate},
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
	return nil
}
