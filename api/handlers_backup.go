package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"zinga/audit"
	"zinga/db"
	"zinga/utils"
)

// ListBackupsResponse wraps the backup list.
type ListBackupsResponse struct {
	Backups []db.BackupInfo `json:"backups"`
}

// RestoreBackupRequest names the backup to restore.
type RestoreBackupRequest struct {
	Filename string `json:"filename" binding:"required"`
}

// ListBackupsHandler lists the timestamped backups, newest first.
// @Summary      List Backups
// @Description  Lists the `backup-<ms>.json` files in the data directory, newest first. The permanent sidecar and pre-restore snapshots are not included.
// @Tags         Backups
// @Produce      json
// @Success      200  {object}  ListBackupsResponse
// @Failure      500  {object}  utils.APIError "Internal Server Error: the data directory could not be read."
// @Router       /api/backup [get]
func ListBackupsHandler(c *gin.Context, store *db.Store) {
	backups, err := store.ListBackups(c.Request.Context())
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListBackupsResponse{Backups: backups})
}

// RestoreBackupHandler replaces the live document with a backup.
// @Summary      Restore a Backup
// @Description  Restores `filename` (as returned by `GET /api/backup`). Only names of the form `backup-<digits>.json` inside the data directory are accepted.
// @Description  The current document is kept as `pre-restore-backup-<ms>.json` first. The restored document gets a new `version`, so clients still holding the replaced one are refused with 409.
// @Tags         Backups
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body RestoreBackupRequest true "The backup to restore."
// @Success      200  {object}  db.RestoreResult
// @Failure      400  {object}  utils.APIError "Bad Request: missing, malformed or unsafe filename, or the backup is not valid JSON."
// @Failure      404  {object}  utils.APIError "Not Found: no backup with that name."
// @Failure      500  {object}  utils.APIError "Internal Server Error: the restore could not be written."
// @Router       /api/backup [post]
func RestoreBackupHandler(c *gin.Context, store *db.Store, trail *audit.Log) {
	var req RestoreBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v. 'filename' must be provided.", err))
		return
	}

	ctx := c.Request.Context()
	result, err := store.RestoreBackup(ctx, req.Filename)
	if err != nil {
		if errors.Is(err, db.ErrCorruptDocument) {
			utils.GinBadRequest(c, err.Error())
			return
		}
		respondStoreError(c, err)
		return
	}

	trail.Record(ctx, audit.ActionRestore, utils.Actor(c), gin.H{
		"filename":    req.Filename,
		"moduleCount": result.ModuleCount,
		"userCount":   result.UserCount,
	})
	c.JSON(http.StatusOK, result)
}
