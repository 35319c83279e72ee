package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"socialhub/internal/auth"
	"socialhub/internal/common"
	"socialhub/internal/media"
	"socialhub/internal/messages"
	"socialhub/pkg/models"
)

type sendMessageRequest struct {
	Content string `json:"content" form:"content"`
	Type    string `json:"type" form:"type" binding:"omitempty,oneof=text image video file"`
}

func (s *Server) handleConversations(c *gin.Context) {
	rows, err := s.deps.Messages.Conversations(c.Request.Context(), auth.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", rows)
}

func (s *Server) handleUnreadCount(c *gin.Context) {
	n, err := s.deps.Messages.UnreadCount(c.Request.Context(), auth.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"count": n})
}

// handleConversation returns the conversation with :userId. Viewing marks
// the counterpart's messages as read unless markRead=false.
func (s *Server) handleConversation(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		fail(c, err)
		return
	}
	markRead := true
	if raw := c.Query("markRead"); raw != "" {
		markRead, err = strconv.ParseBool(raw)
		if err != nil {
			fail(c, common.Invalid("markRead", "must be true or false"))
			return
		}
	}
	msgs, err := s.deps.Messages.Conversation(c.Request.Context(), auth.UserID(c), c.Param("userId"), messages.ConversationQuery{
		After:    c.Query("after"),
		Limit:    limit,
		MarkRead: markRead,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", msgs)
}

// handleSendMessage accepts JSON, or multipart with an optional attachment.
func (s *Server) handleSendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	var req sendMessageRequest
	var attachment *models.Media

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			fail(c, bindingError(err))
			return
		}
		if fh, err := c.FormFile("attachment"); err == nil {
			saved, err := s.deps.Uploader.Save(ctx, "attachment", "messages", media.FromMultipart(fh)[0])
			if err != nil {
				fail(c, err)
				return
			}
			attachment = saved
		}
	} else if !bind(c, &req) {
		return
	}

	m, err := s.deps.Messages.Send(ctx, messages.SendInput{
		SenderID:   auth.UserID(c),
		ReceiverID: c.Param("userId"),
		Content:    req.Content,
		Type:       models.MessageType(req.Type),
		Attachment: attachment,
		Transport:  messages.TransportREST,
	})
	if err != nil {
		if attachment != nil {
			s.deps.Uploader.Release(ctx, *attachment)
		}
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "message sent", m)
}

func (s *Server) handleMarkRead(c *gin.Context) {
	n, err := s.deps.Messages.MarkRead(c.Request.Context(), auth.UserID(c), c.Param("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"count": n})
}

func (s *Server) handleDeleteMessage(c *gin.Context) {
	if err := s.deps.Messages.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "message deleted", nil)
}
