package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"zinga/config"
	"zinga/db"
	"zinga/models"
	"zinga/utils"
)

// LoginRequest defines the expected body for logging in.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the access token and the signed-in user.
type LoginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// LoginHandler exchanges credentials for a token.
// @Summary      Log In
// @Description  Checks the email (case-insensitive) and password against the stored users and returns a signed token carrying the user's id, email and role.
// @Description  After 5 failed attempts the account is locked for 15 minutes.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        credentials body LoginRequest true "Email and password."
// @Success      200  {object}  LoginResponse
// @Failure      400  {object}  utils.APIError "Bad Request: email or password missing."
// @Failure      401  {object}  utils.APIError "Unauthorized: wrong email or password."
// @Failure      423  {object}  utils.APIError "Locked: too many failed attempts, try again later."
// @Failure      500  {object}  utils.APIError "Internal Server Error."
// @Router       /api/auth/login [post]
func LoginHandler(c *gin.Context, store *db.Store, cfg *config.Config) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	user, err := store.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	token, err := utils.GenerateJWT(&user, cfg)
	if err != nil {
		utils.GinInternalServerError(c, fmt.Sprintf("Failed to generate token: %v", err))
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token, User: user})
}
