package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"meditrack-backend/internal/middleware"
	"meditrack-backend/internal/models"
	"meditrack-backend/internal/services"
)

// AuthHandlers serves sign-up, sign-in and the signed-in user's profile
type AuthHandlers struct {
	users       *services.UserService
	authService *services.AuthService
	oauth       *services.OAuthService
	logger      *zap.Logger
}

// NewAuthHandlers creates auth handlers. oauth may be nil when Google sign-in is not configured.
func NewAuthHandlers(users *services.UserService, authService *services.AuthService, oauth *services.OAuthService, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{
		users:       users,
		authService: authService,
		oauth:       oauth,
		logger:      logger,
	}
}

func (h *AuthHandlers) issueToken(c *gin.Context, status int, user *models.CurrentUser) {
	token, expiresAt, err := h.authService.GenerateToken(&user.User)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to generate token")
		return
	}

	respondOK(c, status, models.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}

// SignUp registers a password account and signs it in
func (h *AuthHandlers) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.SignUp(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to create account")
		return
	}

	h.logger.Info("user signed up", zap.String("user_id", user.ID), zap.Bool("is_admin", user.IsAdmin))
	h.issueToken(c, http.StatusCreated, user)
}

// Login signs a user in with email and password
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.SignInRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to sign in")
		return
	}

	current, err := h.users.GetCurrentUser(c.Request.Context(), user.ID)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to load user")
		return
	}

	h.issueToken(c, http.StatusOK, current)
}

// RefreshToken swaps a token close to expiry for a fresh one
func (h *AuthHandlers) RefreshToken(c *gin.Context) {
	var req models.RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	token, expiresAt, err := h.authService.RefreshToken(c.Request.Context(), req.Token)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to refresh token")
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt,
	})
}

// Logout revokes the presented token
func (h *AuthHandlers) Logout(c *gin.Context) {
	if err := h.authService.RevokeToken(c.Request.Context(), c.GetString(middleware.ContextToken)); err != nil {
		handleServiceError(c, h.logger, err, "Failed to sign out")
		return
	}

	respondMessage(c, "Signed out successfully")
}

// Me returns the signed-in user with profile and admin flag
func (h *AuthHandlers) Me(c *gin.Context) {
	user, err := h.users.GetCurrentUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to load user")
		return
	}

	respondOK(c, http.StatusOK, user)
}

// UpdateProfile changes the signed-in user's name or phone
func (h *AuthHandlers) UpdateProfile(c *gin.Context) {
	var req models.ProfileUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to update profile")
		return
	}

	respondOK(c, http.StatusOK, user)
}

// GoogleLogin redirects to Google's consent screen
func (h *AuthHandlers) GoogleLogin(c *gin.Context) {
	if h.oauth == nil {
		respondError(c, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}

	url, state := h.oauth.AuthCodeURL()
	setOAuthStateCookie(c, state, int(services.OAuthStateTTL.Seconds()))
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// OAuthStateCookie holds the sign-in state for the browser that started it
const OAuthStateCookie = "meditrack_oauth_state"

func setOAuthStateCookie(c *gin.Context, value string, maxAge int) {
	secure := c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"
	// Lax so the cookie survives the top-level redirect back from Google
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(OAuthStateCookie, value, maxAge, "/api/v1/auth/google", "", secure, true)
}

// GoogleCallback completes Google sign-in and issues a token
func (h *AuthHandlers) GoogleCallback(c *gin.Context) {
	if h.oauth == nil {
		respondError(c, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}
	if reason := c.Query("error"); reason != "" {
		respondError(c, http.StatusUnauthorized, "Google sign-in was cancelled: "+reason)
		return
	}

	browserState, _ := c.Cookie(OAuthStateCookie)
	setOAuthStateCookie(c, "", -1)

	user, err := h.oauth.HandleCallback(c.Request.Context(), c.Query("code"), c.Query("state"), browserState)
	if err != nil {
		handleServiceError(c, h.logger, err, "Google sign-in failed")
		return
	}

	h.logger.Info("google sign-in", zap.String("user_id", user.ID))
	h.issueToken(c, http.StatusOK, user)
}
