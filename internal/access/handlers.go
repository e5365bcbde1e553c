package access

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medicore/hms-access/internal/session"
	"github.com/medicore/hms-access/pkg/logger"
	"github.com/medicore/hms-access/pkg/types"
)

// Handlers exposes the access-control core over HTTP for the navigation
// and UI layer.
type Handlers struct {
	sessions *session.Store
	gate     *Gate
	override *Controller
	logger   *logger.Logger
}

// NewHandlers creates the HTTP handlers.
func NewHandlers(sessions *session.Store, gate *Gate, override *Controller, log *logger.Logger) *Handlers {
	return &Handlers{
		sessions: sessions,
		gate:     gate,
		override: override,
		logger:   log,
	}
}

// RegisterRoutes registers the access-control routes with the router.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		sess := v1.Group("/session")
		{
			sess.POST("/login", h.Login)
			sess.POST("/demo", h.LoginDemo)
			sess.POST("/logout", h.Logout)
			sess.GET("/me", h.Me)
		}

		override := v1.Group("/override")
		{
			override.POST("/activate", h.ActivateOverride)
			override.POST("/deactivate", h.DeactivateOverride)
			override.GET("", h.OverrideState)
		}

		acc := v1.Group("/access")
		{
			acc.GET("/check", h.CheckAccess)
			acc.GET("/modules", h.NavigableModules)
		}
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Remember bool   `json:"remember"`
}

// Login handles credential login.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format", "details": err.Error()})
		return
	}

	sess, err := h.sessions.Login(c.Request.Context(), types.Credentials{
		Email:    req.Email,
		Password: req.Password,
	}, req.Remember)
	if err != nil {
		h.handleError(c, err)
		return
	}

	view, _ := h.gate.DefaultView()
	c.JSON(http.StatusOK, gin.H{
		"user":         sess.User,
		"default_view": view,
	})
}

type demoLoginRequest struct {
	Role string `json:"role" binding:"required"`
}

// LoginDemo handles demo login.
func (h *Handlers) LoginDemo(c *gin.Context) {
	var req demoLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format", "details": err.Error()})
		return
	}

	role, err := types.ParseRole(req.Role)
	if err != nil {
		h.handleError(c, err)
		return
	}

	sess, err := h.sessions.LoginAsDemo(c.Request.Context(), role)
	if err != nil {
		h.handleError(c, err)
		return
	}

	view, _ := h.gate.DefaultView()
	c.JSON(http.StatusOK, gin.H{
		"user":         sess.User,
		"demo":         true,
		"default_view": view,
	})
}

// Logout tears down the session and any active override.
func (h *Handlers) Logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context()); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the current identity and its landing view. The token is
// re-validated against the backend: a rejected token forces a logout
// instead of serving stale session state, while a backend outage falls
// back to the cached identity.
func (h *Handlers) Me(c *gin.Context) {
	user, ok := h.sessions.CurrentUser()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no authenticated session"})
		return
	}

	refreshed, err := h.sessions.Refresh(c.Request.Context())
	if err != nil {
		if !types.IsType(err, types.ErrorTypeNetwork) {
			h.handleError(c, err)
			return
		}
		refreshed = user
	}

	view, _ := h.gate.DefaultView()
	c.JSON(http.StatusOK, gin.H{
		"user":         refreshed,
		"default_view": view,
	})
}

type activateRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ActivateOverride starts an emergency override for the current session.
func (h *Handlers) ActivateOverride(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format", "details": err.Error()})
		return
	}

	user, ok := h.sessions.CurrentUser()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no authenticated session"})
		return
	}

	state, err := h.override.Activate(c.Request.Context(), *user, req.Reason)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"override": state})
}

// DeactivateOverride ends the override early. Idempotent.
func (h *Handlers) DeactivateOverride(c *gin.Context) {
	if _, ok := h.sessions.CurrentUser(); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no authenticated session"})
		return
	}
	if err := h.override.Deactivate(c.Request.Context()); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"override": h.override.State()})
}

// OverrideState returns the observable override state for countdown
// banners.
func (h *Handlers) OverrideState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"override": h.override.State()})
}

// CheckAccess answers "can the current session perform an action
// requiring this level on this module".
func (h *Handlers) CheckAccess(c *gin.Context) {
	module, err := types.ParseModule(c.Query("module"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	levelParam := c.DefaultQuery("level", types.LevelView.String())
	level, err := types.ParseAccessLevel(levelParam)
	if err != nil {
		h.handleError(c, err)
		return
	}

	if err := h.gate.Authorize(c.Request.Context(), module, level); err != nil {
		if ae, ok := types.AsAccessError(err); ok && ae.Type == types.ErrorTypeForbidden {
			c.JSON(http.StatusOK, gin.H{
				"allowed": false,
				"reason":  ae.Code,
				"details": ae.Details,
			})
			return
		}
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allowed": true})
}

// NavigableModules lists modules the session may open, for menu state.
func (h *Handlers) NavigableModules(c *gin.Context) {
	if _, ok := h.sessions.CurrentUser(); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no authenticated session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"modules": h.gate.NavigableModules()})
}

// handleError maps core errors to HTTP status codes.
func (h *Handlers) handleError(c *gin.Context, err error) {
	ae, ok := types.AsAccessError(err)
	if !ok {
		h.logger.WithError(err).Error("Unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch ae.Type {
	case types.ErrorTypeValidation:
		status = http.StatusBadRequest
	case types.ErrorTypeAuthentication:
		status = http.StatusUnauthorized
	case types.ErrorTypeSessionExpired:
		status = http.StatusUnauthorized
	case types.ErrorTypeForbidden:
		status = http.StatusForbidden
	case types.ErrorTypeConflict:
		status = http.StatusConflict
	case types.ErrorTypeNetwork:
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{
		"error": ae.Message,
		"code":  ae.Code,
		"type":  ae.Type,
	})
}
