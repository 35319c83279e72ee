package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"socialhub/internal/auth"
)

func (s *Server) handleFriends(c *gin.Context) {
	ov, err := s.deps.Friends.Overview(c.Request.Context(), auth.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", ov)
}

func (s *Server) handleSendFriendRequest(c *gin.Context) {
	rel, err := s.deps.Friends.SendRequest(c.Request.Context(), auth.UserID(c), c.Param("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "friend request sent", rel)
}

func (s *Server) handleAcceptFriendRequest(c *gin.Context) {
	rel, err := s.deps.Friends.Accept(c.Request.Context(), auth.UserID(c), c.Param("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "friend request accepted", rel)
}

func (s *Server) handleDeclineFriendRequest(c *gin.Context) {
	if err := s.deps.Friends.Decline(c.Request.Context(), auth.UserID(c), c.Param("userId")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "friend request declined", nil)
}

func (s *Server) handleCancelFriendRequest(c *gin.Context) {
	if err := s.deps.Friends.Cancel(c.Request.Context(), auth.UserID(c), c.Param("userId")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "friend request cancelled", nil)
}

func (s *Server) handleUnfriend(c *gin.Context) {
	if err := s.deps.Friends.Unfriend(c.Request.Context(), auth.UserID(c), c.Param("userId")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "friend removed", nil)
}
