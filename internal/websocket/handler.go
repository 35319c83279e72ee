package websocket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"socialhub/internal/auth"
	"socialhub/internal/log"
	"socialhub/pkg/models"
)

// OriginChecker builds an upgrader origin check from the allowed client
// origins. "*" allows any origin; requests without an Origin header (native
// clients) are always allowed.
func OriginChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// HandleWebSocket authenticates the request with the JWT from the
// Authorization header or the token query parameter and upgrades it.
func HandleWebSocket(hub *Hub, msgs Messenger, secret []byte, checkOrigin func(r *http.Request) bool) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	return func(c *gin.Context) {
		claims, err := auth.ParseJWT(secret, auth.TokenFromRequest(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.Envelope{Message: "invalid token"})
			return
		}

		logger := log.WithComponent("ws")
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := &Client{
			hub:    hub,
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
			userID: claims.UserID,
			msgs:   msgs,
			logger: logger.With().Str("user_id", claims.UserID).Logger(),
		}
		hub.attach(client)

		go client.writePump()
		go client.readPump()
	}
}
