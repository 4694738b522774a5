package flows

import (
	"context"

	"github.com/MrEthical07/eduAuth/refresh"
)

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Store refresh.Store
}

// RunLogoutAll revokes every refresh record of userID and reports how many
// were newly revoked.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) (int, error) {
	return deps.Store.InvalidateAllForUser(ctx, userID)
}
