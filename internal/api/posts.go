package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"socialhub/internal/auth"
	"socialhub/internal/media"
	"socialhub/internal/posts"
	"socialhub/pkg/models"
)

type createPostRequest struct {
	Content    string `json:"content" form:"content"`
	Visibility string `json:"visibility" form:"visibility" binding:"omitempty,oneof=public friends private"`
}

type commentRequest struct {
	Text string `json:"text" binding:"required,max=1000"`
}

func (s *Server) handleFeed(c *gin.Context) {
	limit, offset, ok := paging(c)
	if !ok {
		return
	}
	feed, err := s.deps.Posts.Feed(c.Request.Context(), auth.UserID(c), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", feed)
}

func (s *Server) handleUserPosts(c *gin.Context) {
	limit, offset, ok := paging(c)
	if !ok {
		return
	}
	list, err := s.deps.Posts.ByUser(c.Request.Context(), auth.UserID(c), c.Param("userId"), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", list)
}

func paging(c *gin.Context) (limit, offset int, valid bool) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		fail(c, err)
		return 0, 0, false
	}
	offset, err = queryInt(c, "offset", 0)
	if err != nil {
		fail(c, err)
		return 0, 0, false
	}
	return limit, offset, true
}

// handleCreatePost accepts multipart with media[] files, or plain JSON for
// text-only posts. Input is validated before anything is uploaded.
func (s *Server) handleCreatePost(c *gin.Context) {
	ctx := c.Request.Context()
	var req createPostRequest
	var files []media.File

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			fail(c, bindingError(err))
			return
		}
		form, err := c.MultipartForm()
		if err != nil {
			fail(c, bindingError(err))
			return
		}
		files = media.FromMultipart(form.File["media"]...)
	} else if !bind(c, &req) {
		return
	}

	in := posts.CreateInput{
		AuthorID:   auth.UserID(c),
		Content:    req.Content,
		Visibility: models.Visibility(req.Visibility),
	}
	if err := in.Validate(len(files)); err != nil {
		fail(c, err)
		return
	}

	if len(files) > 0 {
		saved, err := s.deps.Uploader.SaveAll(ctx, "media", "posts", files, models.MediaImage, models.MediaVideo)
		if err != nil {
			fail(c, err)
			return
		}
		in.Media = saved
	}

	view, err := s.deps.Posts.Create(ctx, in)
	if err != nil {
		if len(in.Media) > 0 {
			s.deps.Uploader.Release(ctx, in.Media...)
		}
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "post created", view)
}

func (s *Server) handleGetPost(c *gin.Context) {
	view, err := s.deps.Posts.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", view)
}

func (s *Server) handleDeletePost(c *gin.Context) {
	if err := s.deps.Posts.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "post deleted", nil)
}

func (s *Server) handleToggleLike(c *gin.Context) {
	view, err := s.deps.Posts.ToggleLike(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", view)
}

func (s *Server) handleAddComment(c *gin.Context) {
	var req commentRequest
	if !bind(c, &req) {
		return
	}
	view, err := s.deps.Posts.AddComment(c.Request.Context(), auth.UserID(c), c.Param("id"), req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "comment added", view)
}
