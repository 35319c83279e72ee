package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"socialhub/internal/auth"
	"socialhub/internal/common"
	"socialhub/internal/friends"
	"socialhub/internal/media"
	"socialhub/internal/users"
	"socialhub/pkg/models"
)

type registerRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=30"`
	DisplayName string `json:"displayName" binding:"omitempty,max=50"`
	Password    string `json:"password" binding:"required,min=6,max=72"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token string         `json:"token"`
	User  models.Profile `json:"user"`
}

type updateProfileRequest struct {
	DisplayName *string `json:"displayName"`
	Bio         *string `json:"bio"`
	Location    *string `json:"location"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	u, err := s.deps.Users.Register(c.Request.Context(), users.RegisterInput{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		fail(c, err)
		return
	}
	s.issueToken(c, http.StatusCreated, "registered", u)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	u, err := s.deps.Users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	s.issueToken(c, http.StatusOK, "logged in", u)
}

func (s *Server) issueToken(c *gin.Context, status int, message string, u *models.User) {
	token, err := auth.SignJWT(s.cfg.JWTSecret, u.ID, u.Username, s.cfg.JWTExpiresIn)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, status, message, authResponse{Token: token, User: u.Profile()})
}

func (s *Server) handleMe(c *gin.Context) {
	s.writeProfile(c, auth.UserID(c), auth.UserID(c))
}

func (s *Server) handleGetUser(c *gin.Context) {
	s.writeProfile(c, auth.UserID(c), c.Param("id"))
}

// writeProfile renders id's profile as seen by viewer.
func (s *Server) writeProfile(c *gin.Context, viewer, id string) {
	ctx := c.Request.Context()
	u, err := s.deps.Users.Get(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	rel, err := s.deps.Friends.Relation(ctx, viewer, id)
	if err != nil {
		fail(c, err)
		return
	}
	friendIDs, err := s.deps.Friends.FriendIDs(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	p := u.Profile()
	p.Relationship = rel
	p.IsFriend = rel == friends.RelationFriends
	p.FriendCount = len(friendIDs)
	respond(c, http.StatusOK, "", p)
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if !bind(c, &req) {
		return
	}
	u, err := s.deps.Users.UpdateProfile(c.Request.Context(), auth.UserID(c), users.ProfileUpdate{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		Location:    req.Location,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "profile updated", u.Profile())
}

func (s *Server) handleUploadAvatar(c *gin.Context) {
	ctx := c.Request.Context()
	fh, err := c.FormFile("avatar")
	if err != nil {
		fail(c, common.Invalid("avatar", "an image file is required"))
		return
	}
	files := media.FromMultipart(fh)
	avatar, err := s.deps.Uploader.Save(ctx, "avatar", "avatars", files[0], models.MediaImage)
	if err != nil {
		fail(c, err)
		return
	}
	u, old, err := s.deps.Users.SetAvatar(ctx, auth.UserID(c), *avatar)
	if err != nil {
		s.deps.Uploader.Release(ctx, *avatar)
		fail(c, err)
		return
	}
	if old != nil {
		s.deps.Uploader.Release(ctx, *old)
	}
	respond(c, http.StatusOK, "avatar updated", u.Profile())
}

func (s *Server) handleSearchUsers(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		fail(c, err)
		return
	}
	found, err := s.deps.Users.Search(c.Request.Context(), auth.UserID(c), c.Query("q"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", found)
}

// queryInt reads an optional integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, common.Invalid(name, "must be a non-negative integer")
	}
	return v, nil
}
