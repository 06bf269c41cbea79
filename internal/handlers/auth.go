package handlers

import (
	"errors"
	"net/http"

	"pvs_monitor/internal/service"

	"github.com/gin-gonic/gin"
)

// Single, shared credentials payload for both sign-up and sign-in.
type authCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// bindJSONOrBadRequest tries to bind the request body into dst and writes a 400 JSON on failure.
// Returns false if the request was already handled (aborted), true otherwise.
func (h *Handler) bindJSONOrBadRequest(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if h.log != nil {
			h.log.Infow("auth_bad_request_body", "err", err)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// @Summary      Register an operator
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  authCredentials  true  "Credentials"
// @Success      200  {object}  map[string]int
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /auth/sign-up [post]
func (h *Handler) signUp(c *gin.Context) {
	var input authCredentials
	if ok := h.bindJSONOrBadRequest(c, &input); !ok {
		return
	}

	id, err := h.services.SignUp(c.Request.Context(), input.Username, input.Password)
	if err != nil {
		if h.log != nil {
			h.log.Infow("auth_sign_up_failed", "username", input.Username, "err", err)
		}
		code := http.StatusBadRequest
		if errors.Is(err, service.ErrUserExists) {
			code = http.StatusConflict
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id})
}

// @Summary      Obtain a bearer token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  authCredentials  true  "Credentials"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /auth/sign-in [post]
func (h *Handler) signIn(c *gin.Context) {
	var input authCredentials
	if ok := h.bindJSONOrBadRequest(c, &input); !ok {
		return
	}

	token, err := h.services.GenerateToken(c.Request.Context(), input.Username, input.Password)
	if err != nil {
		if h.log != nil {
			h.log.Infow("auth_sign_in_failed", "username", input.Username, "err", err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

