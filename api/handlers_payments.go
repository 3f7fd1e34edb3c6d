package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"zinga/audit"
	"zinga/db"
	"zinga/utils"
)

// ConfirmPaymentsRequest lists the purchases to mark as paid.
type ConfirmPaymentsRequest struct {
	PurchaseIDs []string `json:"purchaseIds"`
}

// CreatePurchaseRequest starts a checkout.
type CreatePurchaseRequest struct {
	UserID    string   `json:"userId" binding:"required"`
	ModuleIDs []string `json:"moduleIds" binding:"required,min=1"`
	Amount    float64  `json:"amount" binding:"gte=0"` // 0 charges the catalog price
}

// ConfirmPaymentsHandler completes pending purchases.
// @Summary      Confirm Payments
// @Description  Marks each listed pending purchase as `completed`, adds its modules to the buyer's `purchasedModules` and its amount to `totalSpent`.
// @Description  Purchases that are already completed or do not exist are skipped and not counted in `processed`.
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Param        request body ConfirmPaymentsRequest true "Purchase ids to confirm."
// @Success      200  {object}  db.ConfirmResult
// @Failure      400  {object}  utils.APIError "Bad Request: `purchaseIds` missing or empty."
// @Failure      500  {object}  utils.APIError "Internal Server Error: the document could not be written."
// @Router       /api/payments/confirm [post]
func ConfirmPaymentsHandler(c *gin.Context, store *db.Store, trail *audit.Log) {
	var req ConfirmPaymentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	ctx := c.Request.Context()
	result, err := store.ConfirmPayments(ctx, req.PurchaseIDs)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	if result.Processed > 0 {
		trail.Record(ctx, audit.ActionConfirmPayments, utils.Actor(c), gin.H{
			"purchaseIds": req.PurchaseIDs,
			"processed":   result.Processed,
		})
	}
	c.JSON(http.StatusOK, result)
}

// CreatePurchaseHandler records a pending purchase.
// @Summary      Create a Purchase
// @Description  Records a pending purchase of one or more modules for a user. When `amount` is 0 or omitted the sum of the module prices is charged.
// @Description  Confirm it afterwards with `POST /api/payments/confirm`.
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Param        request body CreatePurchaseRequest true "The purchase."
// @Success      201  {object}  models.Purchase
// @Failure      400  {object}  utils.APIError "Bad Request: invalid body or unknown module."
// @Failure      404  {object}  utils.APIError "Not Found: unknown user."
// @Failure      500  {object}  utils.APIError "Internal Server Error: the document could not be written."
// @Router       /api/purchases [post]
func CreatePurchaseHandler(c *gin.Context, store *db.Store, trail *audit.Log) {
	var req CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	ctx := c.Request.Context()
	purchase, err := store.CreatePurchase(ctx, req.UserID, req.ModuleIDs, req.Amount)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	trail.Record(ctx, audit.ActionCreatePurchase, utils.Actor(c), gin.H{
		"purchaseId": purchase.ID,
		"userId":     purchase.UserID,
		"amount":     purchase.Amount,
	})
	c.JSON(http.StatusCreated, purchase)
}
