package taskstore

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/gateway"
	"github.com/harrisonrobin/taskdeck/pkg/logging"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

// FetchRole reads the role of userID. Anything short of a readable "admin"
// row yields RoleUser.
func FetchRole(ctx context.Context, gw gateway.Gateway, userID string, log *zap.Logger) model.Role {
	log = logging.OrNop(log)
	ctx, cancel := context.WithTimeout(gateway.WithIdempotent(ctx), DefaultTimeout)
	defer cancel()

	raws, err := gw.Select(ctx, CollectionProfiles, gateway.Where("id", userID))
	if err != nil {
		log.Warn("role lookup failed, assuming user", zap.String("user", userID), zap.Error(err))
		return model.RoleUser
	}
	if len(raws) == 0 {
		return model.RoleUser
	}
	var p struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(raws[0], &p); err != nil {
		log.Warn("unreadable profile, assuming user", zap.String("user", userID), zap.Error(err))
		return model.RoleUser
	}
	return model.ParseRole(p.Role)
}

// ResolveAuth builds the AuthContext of the gateway's current session.
func ResolveAuth(ctx context.Context, gw gateway.Gateway, timeout time.Duration, log *zap.Logger) (model.AuthContext, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	u, err := gw.CurrentUser(cctx)
	if err != nil {
		return model.AuthContext{}, err
	}
	if u == nil {
		return model.AuthContext{}, apperr.ErrAuthRequired
	}
	return model.AuthContext{
		UserID: u.ID,
		Email:  u.Email,
		Role:   FetchRole(ctx, gw, u.ID, log),
	}, nil
}
