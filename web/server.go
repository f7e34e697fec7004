// Package web exposes the REST surface and the authenticated real-time
// channel. All failures are translated at this boundary into caller-visible
// error signals; none of them is fatal to the process.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"babble/auth"
	"babble/services"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

type Server struct {
	addr                 string
	log                  *slog.Logger
	httpServer           *http.Server
	hub                  *Hub
	authService          services.IAuthService
	chatService          services.IChatService
	upgrader             websocket.Upgrader
	connectionBufferSize int
}

func NewServer(log *slog.Logger, addr string, hub *Hub,
	authService services.IAuthService, chatService services.IChatService,
	connectionBufferSize int) *Server {
	return &Server{
		addr:        addr,
		log:         log,
		hub:         hub,
		authService: authService,
		chatService: chatService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Relevance filtering is the client's job; so is origin policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connectionBufferSize: connectionBufferSize,
	}
}

// Router wires every route. Kept separate from Start so tests can mount
// the handler on an httptest server.
func (s *Server) Router() http.Handler {
	router := httprouter.New()

	router.POST("/api/register", s.handleRegister)
	router.POST("/api/login", s.handleLogin)
	router.POST("/api/add-friend", s.handleAddFriend)
	router.POST("/api/get-chat-messages", s.handleGetChatMessages)
	router.POST("/api/get-friends", s.handleGetFriends)
	router.POST("/api/search-messages", s.handleSearchMessages)

	router.GET("/ws", s.handleWebSocket)

	return router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:        s.addr,
		Handler:     s.Router(),
		ReadTimeout: 60 * time.Second,
		// No WriteTimeout: it would sever long-lived websocket sessions.
	}

	s.log.Info("HTTP server listening", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleWebSocket is the session gateway. The bearer token is verified
// before the upgrade: a missing, malformed, or expired token closes the
// connection attempt with no event handler ever attached.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "authorization token is missing")
		return
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, claims.Email, s.chatService, s.connectionBufferSize, s.log)
	s.hub.Register(client)
	s.log.Info("Session connected", "email", claims.Email)

	go client.WritePump()
	go client.ReadPump()
}

// bearerToken accepts the token either as a query parameter (browser
// websocket clients cannot set headers) or as an Authorization header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
