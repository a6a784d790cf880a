// Package auth resolves badge tags to users and decides stop permissions.
package auth

import (
	"context"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/errs"
	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

// UserFinder is the persistence view the authorizer needs.
type UserFinder interface {
	FindByTag(ctx context.Context, tenantID, tagID string) (*models.User, error)
}

// Authorizer resolves tags against the registered badge list.
type Authorizer struct {
	users UserFinder
	// openSessionStop lets a non-admin stop a session started by someone
	// else, for sites with free access policies.
	openSessionStop bool
	logger          *zap.Logger
}

// NewAuthorizer builds the badge-backed authorizer.
func NewAuthorizer(users UserFinder, openSessionStop bool, logger *zap.Logger) *Authorizer {
	return &Authorizer{users: users, openSessionStop: openSessionStop, logger: logger}
}

// AuthorizeTag resolves the user behind the tag, or an unauthorized error
// when the tag is unknown on this tenant.
func (a *Authorizer) AuthorizeTag(ctx context.Context, station *models.ChargingStation, tagID, action string) (*models.User, error) {
	if tagID == "" {
		return nil, errs.New(errs.KindInvalidArgument, "empty tag")
	}

	user, err := a.users.FindByTag(ctx, station.TenantID, tagID)
	if err != nil {
		return nil, errs.Wrap(errs.KindUpstream, err)
	}
	if user == nil {
		a.logger.Debug("unknown tag rejected",
			zap.String("tenantID", station.TenantID),
			zap.String("stationID", station.ID),
			zap.String("tagID", tagID),
			zap.String("action", action))
		return nil, errs.Newf(errs.KindUnauthorized, "tag %q is not registered", tagID)
	}
	return user, nil
}

// CanStopOthersSession reports whether the user may stop a session they did
// not start.
func (a *Authorizer) CanStopOthersSession(ctx context.Context, station *models.ChargingStation, user *models.User) bool {
	if user.IsAdmin() {
		return true
	}
	return a.openSessionStop
}
