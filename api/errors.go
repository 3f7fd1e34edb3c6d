package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"zinga/db"
	"zinga/utils"
)

// respondStoreError maps a store error onto the matching HTTP status. Anything
// it does not recognise is a 500 and the message is generic.
func respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, db.ErrDestructiveSave),
		errors.Is(err, db.ErrInvalidBackupName),
		errors.Is(err, db.ErrNoPurchaseIDs),
		errors.Is(err, db.ErrUnknownModule),
		errors.Is(err, db.ErrInvalidRecords),
		errors.Is(err, db.ErrInvalidQuery):
		utils.GinBadRequest(c, err.Error())
	case errors.Is(err, db.ErrVersionConflict):
		utils.GinConflict(c, err.Error())
	case errors.Is(err, db.ErrBackupNotFound),
		errors.Is(err, db.ErrUserNotFound),
		errors.Is(err, db.ErrUnknownCollection):
		utils.GinNotFound(c, err.Error())
	case errors.Is(err, db.ErrInvalidCredentials):
		utils.GinUnauthorized(c, err.Error())
	case errors.Is(err, db.ErrAccountLocked):
		utils.GinError(c, http.StatusLocked, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		utils.GinError(c, http.StatusServiceUnavailable, "Request was cancelled before it completed.")
	default:
		utils.GinError(c, http.StatusInternalServerError, "Internal server error: "+err.Error())
	}
}
