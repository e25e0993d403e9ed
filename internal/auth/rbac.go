package auth

import (
	"errors"

	"github.com/factorhub/marketplace/internal/models"
)

// RBAC errors.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidRole      = errors.New("invalid role")
)

// Permission represents an action that can be performed.
type Permission string

const (
	// PermissionManageAssets allows creating, approving, posting and cancelling own assets.
	PermissionManageAssets Permission = "manage_assets"
	// PermissionReviewBids allows accepting, rejecting and un-accepting bids on own assets.
	PermissionReviewBids Permission = "review_bids"
	// PermissionBrowseMarketplace allows listing posted assets.
	PermissionBrowseMarketplace Permission = "browse_marketplace"
	// PermissionPlaceBids allows placing and editing bids.
	PermissionPlaceBids Permission = "place_bids"
	// PermissionConfirmPayment allows confirming payment of an accepted bid.
	PermissionConfirmPayment Permission = "confirm_payment"
	// PermissionResendNotifications allows re-emitting bid notifications.
	PermissionResendNotifications Permission = "resend_notifications"
)

// rolePermissions defines which permissions each role has.
var rolePermissions = map[models.Role][]Permission{
	models.RoleSeller: {
		PermissionManageAssets,
		PermissionReviewBids,
	},
	models.RoleBuyer: {
		PermissionBrowseMarketplace,
		PermissionPlaceBids,
		PermissionConfirmPayment,
	},
	models.RoleAdmin: {
		PermissionManageAssets,
		PermissionReviewBids,
		PermissionBrowseMarketplace,
		PermissionPlaceBids,
		PermissionConfirmPayment,
		PermissionResendNotifications,
	},
}

// CheckRolePermission checks if a role has a specific permission.
func CheckRolePermission(role models.Role, permission Permission) error {
	permissions, ok := rolePermissions[role]
	if !ok {
		return ErrPermissionDenied
	}
	for _, p := range permissions {
		if p == permission {
			return nil
		}
	}
	return ErrPermissionDenied
}

// Permissions returns the permissions granted to role.
func Permissions(role models.Role) []Permission {
	return append([]Permission(nil), rolePermissions[role]...)
}
