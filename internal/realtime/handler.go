package realtime

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"intranet/internal/pkg/jwt"
	"intranet/internal/pkg/response"
)

// WSHandler upgrades authenticated requests onto the hub.
type WSHandler struct {
	hub      *Hub
	jwt      *jwt.Service
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewWSHandler builds the handler. An empty allowedOrigins list accepts any origin.
func NewWSHandler(hub *Hub, jwtService *jwt.Service, allowedOrigins []string, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		hub: hub,
		jwt: jwtService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

// HandleWebSocket authenticates once at handshake.
//
// Endpoint: GET /ws/notifications?token=JWT_TOKEN
//
// Browsers cannot set headers on a websocket handshake, so the query token is accepted;
// an Authorization header wins when both are present.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if header := c.GetHeader("Authorization"); header != "" {
		if t, err := jwt.BearerToken(header); err == nil {
			token = t
		}
	}
	if token == "" {
		response.Error(c, http.StatusUnauthorized, "AUTH_MISSING", "Token is required")
		return
	}

	claims, err := h.jwt.ValidateToken(token)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.hub.ServeWS(c.Request.Context(), conn, claims.UserID)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.TrimSpace(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// non-browser clients send no Origin
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
