package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"zinga/audit"
	"zinga/db"
	"zinga/models"
	"zinga/utils"
)

// --- Get Data ---

// GetDataHandler returns the live document.
// @Summary      Load the Application Document
// @Description  Returns the whole application document (users, modules, packages, purchases, settings and the auxiliary admin collections) as stored, plus a `lastLoaded` timestamp.
// @Description  User passwords are never included. Users saved back without a `password` keep the one on disk.
// @Description
// @Description  On first start the document is created from the permanent backup sidecar, or from the built-in seed data when there is no sidecar.
// @Description  Records that do not pass validation are still returned here; they are only set aside by writes.
// @Tags         Data
// @Produce      json
// @Success      200  {object}  map[string]interface{} "The application document with `lastLoaded` added."
// @Failure      500  {object}  utils.APIError "Internal Server Error: the document could not be read or is not valid JSON."
// @Router       /api/data [get]
func GetDataHandler(c *gin.Context, store *db.Store) {
	doc, err := store.LoadDocument(c.Request.Context())
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if err := db.RedactPasswords(doc); err != nil {
		respondStoreError(c, err)
		return
	}

	stamp, _ := json.Marshal(time.Now().UTC().Format(time.RFC3339Nano))
	doc["lastLoaded"] = stamp
	c.JSON(http.StatusOK, doc)
}

// --- Save Data ---

// SaveDataHandler merges the request body into the live document.
// @Summary      Save the Application Document
// @Description  Merges the posted document into the stored one. Each collection that is present and non-empty replaces the stored collection; missing or empty collections keep what is on disk. `settings` is merged key by key.
// @Description
// @Description  Before anything is written the current document is copied to `backup-<ms>.json`.
// @Description  A save that would empty a guarded collection (by default `modules`) that is non-empty on disk is rejected with 400 and nothing is written to the live file.
// @Description
// @Description  Send the `version` you last loaded to get optimistic concurrency: if the stored document has moved on, the save is refused with 409. Without `version` the last writer wins.
// @Description  Plaintext passwords are hashed; markup is stripped from module titles and package names.
// @Tags         Data
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        document body object true "The application document, or the collections to replace."
// @Success      200  {object}  db.SaveResult "Document saved."
// @Failure      400  {object}  utils.APIError "Bad Request: malformed JSON, an invalid record, or a destructive save."
// @Failure      409  {object}  utils.APIError "Conflict: the document was changed by another client since `version` was loaded."
// @Failure      429  {object}  utils.APIError "Too many write requests from this client."
// @Failure      500  {object}  utils.APIError "Internal Server Error: the document could not be written."
// @Router       /api/data [post]
func SaveDataHandler(c *gin.Context, store *db.Store, trail *audit.Log) {
	body, err := c.GetRawData()
	if err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}
	if !gjson.ValidBytes(body) {
		utils.GinBadRequest(c, "Invalid request body: not valid JSON.")
		return
	}

	var opts db.SaveOptions
	if v := gjson.GetBytes(body, "version"); v.Exists() && v.Type != gjson.Null {
		if v.Type != gjson.Number {
			utils.GinBadRequest(c, "Invalid 'version': must be a number.")
			return
		}
		base := v.Int()
		opts.BaseVersion = &base
	}

	incoming, bad, err := models.DecodeAppData(body)
	if err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if len(bad) > 0 {
		utils.GinBadRequest(c, "Invalid request body: "+(&models.InvalidRecordsError{Records: bad}).Error())
		return
	}

	ctx := c.Request.Context()
	result, err := store.Save(ctx, incoming, opts)
	if err != nil {
		trail.Record(ctx, audit.ActionSaveRejected, utils.Actor(c), gin.H{"error": err.Error()})
		respondStoreError(c, err)
		return
	}

	trail.Record(ctx, audit.ActionSave, utils.Actor(c), gin.H{"version": result.Version, "moduleCount": result.ModuleCount})
	c.JSON(http.StatusOK, result)
}

// --- Reset Data ---

// ResetDataHandler replaces the live document with the seed data.
// @Summary      Reset to Defaults
// @Description  Backs up the current document and overwrites it with the built-in seed data (one admin user, the sample modules, default settings). The permanent sidecar is left alone so the last real catalog can still be recovered from it.
// @Tags         Data
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{} "The freshly reset document."
// @Failure      500  {object}  utils.APIError "Internal Server Error: the reset could not be written."
// @Router       /api/data [delete]
func ResetDataHandler(c *gin.Context, store *db.Store, trail *audit.Log) {
	ctx := c.Request.Context()
	doc, err := store.Reset(ctx)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	trail.Record(ctx, audit.ActionReset, utils.Actor(c), gin.H{"version": doc.Version})
	c.JSON(http.StatusOK, doc)
}
