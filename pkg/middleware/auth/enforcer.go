package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/database"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
)

// Back office user groups.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleWriter = "writer"
)

// Management API resources.
const (
	ResourceWebhooks     = "webhooks"
	ResourceHealthChecks = "health-checks"
)

const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionAll    = "*"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && (p.act == "*" || r.act == p.act)
`

// DefaultPolicies are seeded when the policy table is empty. Only
// administrators may manage the settings section.
var DefaultPolicies = [][]string{
	{RoleAdmin, ResourceWebhooks, ActionAll},
	{RoleAdmin, ResourceHealthChecks, ActionAll},
	{RoleEditor, ResourceHealthChecks, ActionRead},
}

// Enforcer wraps a casbin enforcer whose policies live in the application database.
type Enforcer struct {
	enforcer *casbin.Enforcer
	logger   logger.Logger
}

func NewEnforcer(db *database.DB, log logger.Logger) (*Enforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter: %w", err)
	}

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load rbac model: %w", err)
	}

	e, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}
	e.EnableAutoSave(true)

	enforcer := &Enforcer{enforcer: e, logger: log}
	if err := enforcer.seed(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func (e *Enforcer) seed() error {
	policies, err := e.enforcer.GetPolicy()
	if err != nil {
		return fmt.Errorf("failed to read policies: %w", err)
	}
	if len(policies) > 0 {
		return nil
	}

	e.logger.Info("Seeding default permissions", "count", len(DefaultPolicies))
	if _, err := e.enforcer.AddPolicies(DefaultPolicies); err != nil {
		return fmt.Errorf("failed to seed policies: %w", err)
	}
	return nil
}

func (e *Enforcer) CheckPermission(subject, resource, action string) (bool, error) {
	allowed, err := e.enforcer.Enforce(subject, resource, action)
	if err != nil {
		e.logger.Error("Failed to check permission", "error", err, "subject", subject, "resource", resource, "action", action)
		return false, err
	}

	e.logger.Debug("Permission check", "subject", subject, "resource", resource, "action", action, "allowed", allowed)
	return allowed, nil
}

// AddRole assigns a user to a user group.
func (e *Enforcer) AddRole(userID, role string) error {
	added, err := e.enforcer.AddGroupingPolicy(userID, role)
	if err != nil {
		return fmt.Errorf("failed to add role: %w", err)
	}
	if !added {
		e.logger.Warn("Role already assigned", "user", userID, "role", role)
		return nil
	}

	e.logger.Info("Role assigned", "user", userID, "role", role)
	return nil
}

func (e *Enforcer) RemoveRole(userID, role string) error {
	removed, err := e.enforcer.RemoveGroupingPolicy(userID, role)
	if err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}
	if !removed {
		e.logger.Warn("Role not found for user", "user", userID, "role", role)
	}
	return nil
}

func (e *Enforcer) GetRoles(userID string) ([]string, error) {
	roles, err := e.enforcer.GetRolesForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	return roles, nil
}

func (e *Enforcer) AddPermission(role, resource, action string) error {
	if _, err := e.enforcer.AddPolicy(role, resource, action); err != nil {
		return fmt.Errorf("failed to add permission: %w", err)
	}
	return nil
}
