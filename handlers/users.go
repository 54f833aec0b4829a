package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/auth"
	"github.com/movieservice/auth-service/internal/storage"
	"github.com/movieservice/auth-service/internal/users"
	"github.com/movieservice/auth-service/pkg/middleware"
)

type CreateUserRequest struct {
	Email    string `json:"email"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

// UpdateUserRequest fields are optional; absent fields are left unchanged.
type UpdateUserRequest struct {
	Email    *string `json:"email"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	Name     *string `json:"name"`
}

// UsersHandler serves registration and the current user's profile.
type UsersHandler struct {
	auth    *auth.Service
	users   *users.Service
	avatars storage.AvatarStore
}

// NewUsersHandler wires the handler. avatars may be nil when object storage
// is not configured.
func NewUsersHandler(a *auth.Service, u *users.Service, avatars storage.AvatarStore) *UsersHandler {
	return &UsersHandler{auth: a, users: u, avatars: avatars}
}

// Register routes under /users
func (h *UsersHandler) Register(rg *gin.RouterGroup) {
	u := rg.Group("/users")
	u.POST("/", h.Create)

	me := u.Group("/me", middleware.RequireAuth(h.auth))
	me.GET("", h.Me)
	me.PUT("", h.UpdateMe)
	me.POST("/avatar", h.UploadAvatar)
}

func (h *UsersHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid("username and password are required"))
		return
	}
	u, err := h.users.Register(c.Request.Context(), users.Registration{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *UsersHandler) Me(c *gin.Context) {
	sub, _ := middleware.SubjectFrom(c)
	u, err := h.auth.CurrentUser(c.Request.Context(), sub)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *UsersHandler) UpdateMe(c *gin.Context) {
	sub, _ := middleware.SubjectFrom(c)
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid("invalid request body"))
		return
	}
	if _, err := h.auth.CurrentUser(c.Request.Context(), sub); err != nil {
		writeError(c, err)
		return
	}
	u, err := h.users.UpdateProfile(c.Request.Context(), sub.UserID, users.ProfileUpdate{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// UploadAvatar stores a multipart "file" image and sets it as the profile image.
func (h *UsersHandler) UploadAvatar(c *gin.Context) {
	if h.avatars == nil {
		writeError(c, &apperr.Error{Kind: apperr.ErrUnavailable, Message: "avatar storage is not configured"})
		return
	}
	sub, _ := middleware.SubjectFrom(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxAvatarSize+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, apperr.Invalid("an image file is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, apperr.Invalid("could not read uploaded file"))
		return
	}
	defer f.Close()

	link, err := h.avatars.UploadAvatar(c.Request.Context(), sub.UserID, f, fh.Size, fh.Header.Get("Content-Type"))
	if err != nil {
		writeError(c, err)
		return
	}
	u, err := h.users.SetProfileImage(c.Request.Context(), sub.UserID, link)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
