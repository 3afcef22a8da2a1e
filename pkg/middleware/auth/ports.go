package auth

// PermissionChecker is the minimal RBAC interface used by authorization middleware.
type PermissionChecker interface {
	CheckPermission(subject, resource, action string) (bool, error)
	GetRoles(subject string) ([]string, error)
}
