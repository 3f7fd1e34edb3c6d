package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"zinga/audit"
	"zinga/db"
	"zinga/utils"
)

// AuditResponse wraps the audit entries.
type AuditResponse struct {
	Entries []audit.Entry `json:"entries"`
}

// AuditHandler lists recent audit entries.
// @Summary      Audit Trail
// @Description  Lists recent document mutations (saves, rejected saves, restores, resets, payment confirmations, purchases and prunes), newest first.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query  int     false  "Maximum entries." minimum(1) maximum(500) default(50)
// @Param        action query  string  false  "Only entries with this action."
// @Success      200  {object}  AuditResponse
// @Failure      400  {object}  utils.APIError "Bad Request: invalid limit."
// @Failure      500  {object}  utils.APIError "Internal Server Error: the audit database could not be read."
// @Router       /api/audit [get]
func AuditHandler(c *gin.Context, trail *audit.Log) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		utils.GinBadRequest(c, "Invalid 'limit' query parameter. Must be a positive integer.")
		return
	}

	entries, err := trail.List(c.Request.Context(), audit.Filter{Action: c.Query("action"), Limit: limit})
	if err != nil {
		utils.GinInternalServerError(c, "Failed to read audit trail: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, AuditResponse{Entries: entries})
}

// HealthHandler reports whether the live document can be read.
// @Summary      Health Check
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /healthz [get]
func HealthHandler(c *gin.Context, store *db.Store) {
	if _, err := store.LoadRaw(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
