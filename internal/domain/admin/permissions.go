package admin

// Permission represents an operator permission
type Permission string

const (
	// Settlement operations
	PermissionViewTransactions Permission = "transactions.view"
	PermissionReviewTopups     Permission = "topups.review"
	PermissionProcessPayouts   Permission = "payouts.process"

	// System
	PermissionManageRates Permission = "rates.manage"
	PermissionViewReports Permission = "reports.view"
)

// RolePermissions maps account roles to their permissions
var RolePermissions = map[string][]Permission{
	"admin": {
		PermissionViewTransactions,
		PermissionReviewTopups,
		PermissionProcessPayouts,
		PermissionManageRates,
		PermissionViewReports,
	},
	"operator": {
		PermissionViewTransactions,
		PermissionReviewTopups,
		PermissionProcessPayouts,
		PermissionViewReports,
	},
}

// HasPermission checks whether a role grants a permission
func HasPermission(role string, perm Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
