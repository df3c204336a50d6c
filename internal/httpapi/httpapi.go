// Package httpapi implements the HTTP endpoints from spec.md §6: player
// registration/login, chat send/subscribe, the asset index, and the
// WebSocket upgrade route.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/starhold/server/internal/accounts"
	"github.com/starhold/server/internal/assets"
	"github.com/starhold/server/internal/command"
	"github.com/starhold/server/internal/gateway"
	"github.com/starhold/server/internal/ratelimit"
	"github.com/starhold/server/internal/session"
	"golang.org/x/crypto/bcrypt"
)

const maxChatMessageLen = 2048

// Server bundles every dependency the HTTP routes need.
type Server struct {
	Accounts *accounts.DB
	Profiles *session.Store
	Sessions *session.Sessions
	Assets   *assets.Index
	Bridge   *command.Bridge
	Gateway  *gateway.Gateway
	RateLim  *ratelimit.Limiter

	chatMu   sync.Mutex
	chatSubs map[chan string]struct{}
}

// NewServer wires a Server's internal chat fan-out state.
func NewServer() *Server {
	return &Server{chatSubs: make(map[chan string]struct{})}
}

// Mux builds the full routed handler, with per-IP rate limiting applied
// to every player-facing route.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /players/ephemeral", s.handleEphemeral)
	mux.HandleFunc("POST /players/username", s.handleRegisterUsername)
	mux.HandleFunc("POST /players/login", s.handleLogin)
	mux.HandleFunc("GET /players/validate", s.handleValidate)
	mux.HandleFunc("POST /chat/send", s.handleChatSend)
	mux.HandleFunc("GET /chat/subscribe", s.handleChatSubscribe)
	mux.HandleFunc("GET /assets", s.handleAssetIndex)
	mux.HandleFunc("GET /assets/{name}", s.handleAssetGet)
	mux.HandleFunc("GET /ws", s.Gateway.ServeHTTP)

	var h http.Handler = mux
	if s.RateLim != nil {
		h = s.RateLim.Middleware(h)
	}
	return h
}

func (s *Server) handleEphemeral(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	token := uuid.NewString()
	if _, err := s.Profiles.CreateBasicTokenProfile(id, token); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "token": token})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegisterUsername(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if s.Accounts != nil {
		if _, err := s.Accounts.CreateAccount(req.Username, hash); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	}
	id := uuid.NewString()
	if _, err := s.Profiles.CreateUsernamePasswordProfile(id, req.Username, req.Password); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// loginRequest is the AuthType tagged union from spec.md §6: exactly one
// of Token or Username+Password is set.
type loginRequest struct {
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	var profile *session.Profile
	var err error
	if req.Token != "" {
		profile, err = s.Profiles.Login(session.BasicToken{Token: req.Token})
	} else {
		profile, err = s.Profiles.Login(session.UsernameAndPassword{Username: req.Username, Password: req.Password})
	}
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	sess, err := s.Sessions.CreateSession(profile.ID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_token": sess.Token})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if !s.Sessions.ExtendSession(token) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chatSendRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" || !s.Sessions.ExtendSession(token) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var req chatSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if len(req.Message) > maxChatMessageLen {
		http.Error(w, "message too long", http.StatusBadRequest)
		return
	}
	s.broadcastChat(req.Message)
	w.WriteHeader(http.StatusNoContent)
}

// handleChatSubscribe streams chat messages as a text/event-stream,
// grounded on the same long-lived-connection style the gateway uses for
// the WebSocket upgrade, but over plain HTTP for simple chat clients
// (spec.md §6).
func (s *Server) handleChatSubscribe(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" || !s.Sessions.ExtendSession(token) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	ch := s.subscribeChat()
	defer s.unsubscribeChat(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-ch:
			if _, err := w.Write([]byte("data: " + msg + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) subscribeChat() chan string {
	ch := make(chan string, 32)
	s.chatMu.Lock()
	s.chatSubs[ch] = struct{}{}
	s.chatMu.Unlock()
	return ch
}

func (s *Server) unsubscribeChat(ch chan string) {
	s.chatMu.Lock()
	delete(s.chatSubs, ch)
	s.chatMu.Unlock()
}

func (s *Server) broadcastChat(msg string) {
	s.chatMu.Lock()
	defer s.chatMu.Unlock()
	for ch := range s.chatSubs {
		select {
		case ch <- msg:
		default:
			// Slow subscriber: drop rather than block the sender.
		}
	}
}

func (s *Server) handleAssetIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"asset_index_list": s.Assets.List()})
}

func (s *Server) handleAssetGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, mime, ok := s.Assets.Get(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if mime != "" {
		w.Header().Set("Content-Type", mime)
	}
	w.Write(data)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	return strings.TrimPrefix(h, "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
