package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tazhibayda/features-service/internal/domain"
	"github.com/tazhibayda/features-service/internal/log"
	"github.com/tazhibayda/features-service/internal/queue"
	"github.com/tazhibayda/features-service/internal/repo"
	"github.com/tazhibayda/features-service/internal/security"
	"go.uber.org/zap"
)

func userDetails(u *domain.User) gin.H {
	return gin.H{"id": u.ID, "name": u.Name, "email": u.Email}
}

func (h *Handler) token(c *gin.Context, u *domain.User) (string, bool) {
	tok, err := security.MakeAccess(h.JWTSecret, u.ID.Hex(), u.Email, h.AccessTTL)
	if err != nil {
		log.WithDD(c.Request.Context(), log.L).Error("token sign failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return "", false
	}
	return tok, true
}

type registerReq struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Register godoc
// @Summary Register user
// @Tags users
// @Accept json
// @Produce json
// @Param payload body registerReq true "register"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/users/register [post]
func (h *Handler) Register(c *gin.Context) {
	var in registerReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !strings.Contains(email, "@") || len(in.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email or weak password"})
		return
	}
	if in.Password != in.ConfirmPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password and confirm password do not match"})
		return
	}
	exists, err := h.Store.FindUserByEmail(c.Request.Context(), email)
	if err != nil {
		h.featureErr(c, err)
		return
	}
	if exists != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email is already in use"})
		return
	}
	hash, err := security.HashPassword(in.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash failed"})
		return
	}
	u := &domain.User{Name: strings.TrimSpace(in.Name), Email: email, PasswordHash: hash, Provider: "local"}
	if err := h.Store.CreateUser(c.Request.Context(), u); err != nil {
		// 409 только на гонку по уникальному индексу, остальное — не дубль
		if repo.IsDup(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "email is already in use"})
			return
		}
		h.featureErr(c, err)
		return
	}

	tok, ok := h.token(c, u)
	if !ok {
		return
	}

	h.publish(c, "user.registered",
		queue.UserRegistered{UserID: u.ID.Hex(), Email: u.Email, Name: u.Name})

	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": userDetails(u), "token": tok})
}

type googleSignInReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photoURL"`
}

// GoogleSignIn godoc
// @Summary Sign in with an upstream-verified Google profile
// @Tags users
// @Accept json
// @Produce json
// @Param payload body googleSignInReq true "profile"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/v1/users/google-signin [post]
func (h *Handler) GoogleSignIn(c *gin.Context) {
	var in googleSignInReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}

	u, err := h.Store.FindUserByEmail(c.Request.Context(), email)
	if err != nil {
		h.featureErr(c, err)
		return
	}
	if u != nil {
		tok, ok := h.token(c, u)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Sign In with Google Successful", "user": userDetails(u), "token": tok})
		return
	}

	u = &domain.User{Name: strings.TrimSpace(in.Name), Email: email, Provider: "google", PhotoURL: in.PhotoURL}
	if err := h.Store.CreateUser(c.Request.Context(), u); err != nil {
		if repo.IsDup(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "email is already in use"})
			return
		}
		h.featureErr(c, err)
		return
	}
	tok, ok := h.token(c, u)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": userDetails(u), "token": tok})
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login godoc
// @Summary Login
// @Tags users
// @Accept json
// @Produce json
// @Param payload body loginReq true "login"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/users/login [post]
func (h *Handler) Login(c *gin.Context) {
	var in loginReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	u, err := h.Store.FindUserByEmail(c.Request.Context(), email)
	if err != nil {
		h.featureErr(c, err)
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if !security.CheckPassword(u.PasswordHash, in.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	tok, ok := h.token(c, u)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged in successfully", "user": userDetails(u), "token": tok})
}

// Me godoc
// @Summary Current user
// @Tags users
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /api/v1/users/me [get]
func (h *Handler) Me(c *gin.Context) {
	uid, ok := h.actorID(c)
	if !ok {
		return
	}
	u, err := h.Store.FindUserByID(c.Request.Context(), uid)
	if err != nil || u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User found", "user": userDetails(u)})
}

type updateUserReq struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UpdateUser godoc
// @Summary Update profile
// @Tags users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body updateUserReq true "name, email"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/users/update [patch]
func (h *Handler) UpdateUser(c *gin.Context) {
	uid, ok := h.actorID(c)
	if !ok {
		return
	}
	var in updateUserReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email != "" && !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}
	if err := h.Store.UpdateUserProfile(c.Request.Context(), uid, strings.TrimSpace(in.Name), email); err != nil {
		if repo.IsDup(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "email is already in use"})
			return
		}
		h.featureErr(c, err)
		return
	}
	u, err := h.Store.FindUserByID(c.Request.Context(), uid)
	if err != nil || u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User updated successfully", "user": userDetails(u)})
}

type updatePasswordReq struct {
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// UpdatePassword godoc
// @Summary Change password
// @Tags users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body updatePasswordReq true "newPassword, confirmPassword"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /api/v1/users/updatePassword [patch]
func (h *Handler) UpdatePassword(c *gin.Context) {
	uid, ok := h.actorID(c)
	if !ok {
		return
	}
	var in updatePasswordReq
	if err := c.ShouldBindJSON(&in); err != nil || len(in.NewPassword) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email or weak password"})
		return
	}
	if in.NewPassword != in.ConfirmPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "new password and confirm password do not match"})
		return
	}
	hash, err := security.HashPassword(in.NewPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash failed"})
		return
	}
	if err := h.Store.UpdateUserPassword(c.Request.Context(), uid, hash); err != nil {
		h.featureErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password Updated Successfully"})
}
