package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner        = "owner"
	RoleOperator     = "operator"
	RoleBillingAdmin = "billing_admin"
	RoleSuperAdmin   = "super_admin"
	RoleIntegration  = "integration" // hidden role used by provider webhooks
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
