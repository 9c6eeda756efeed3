package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rentport/internal/constants"
	"rentport/internal/realtime"
	"rentport/internal/resource"
	"rentport/internal/security"
	"rentport/internal/session"
	"rentport/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  constants.WSBufferSize,
	WriteBufferSize: constants.WSBufferSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func writeJSON(w http.ResponseWriter, status int, envelope types.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope)
}

func publicUser(u *resource.User) types.User {
	return types.User{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

// validTabID accepts an absent tab id (legacy "default" cookie) or a
// UUID; anything else never reaches CookieName.
func validTabID(tabID string) bool {
	return tabID == "" || security.ValidateUUID(tabID)
}

// HandleLogin authenticates one tab. The issued cookie is scoped to
// exactly this tab's id; other tabs' cookies are never observed.
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, types.Fail(constants.MsgMethodNotAllowed))
		return
	}

	clientIP := security.GetClientIP(r)
	if !s.BruteProtector.Check(clientIP) {
		if s.AuditLogger != nil {
			s.AuditLogger.LogBruteForce(clientIP, "", constants.MaxAuthAttempts)
		}
		writeJSON(w, http.StatusTooManyRequests, types.Fail("Too many failed attempts. Try again later."))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxBodySize)

	var req types.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, types.Fail(constants.MsgInvalidJSON))
		return
	}

	if !validTabID(req.TabID) {
		writeJSON(w, http.StatusBadRequest, types.Fail(constants.MsgInvalidTabID))
		return
	}

	user, err := s.Resources.Authenticate(req.Email, req.Password)
	if err != nil {
		s.BruteProtector.RecordFailure(clientIP)
		if s.AuditLogger != nil {
			s.AuditLogger.LogAuthFailure(clientIP, req.TabID, "Invalid email or password")
		}
		writeJSON(w, http.StatusUnauthorized, types.Fail(constants.MsgUnauthenticated))
		return
	}

	s.BruteProtector.RecordSuccess(clientIP)
	if s.AuditLogger != nil {
		s.AuditLogger.LogAuthSuccess(clientIP, req.TabID)
	}

	token := uuid.New().String()
	sess := &session.Session{
		TokenHash: session.HashSHA256(token),
		UserID:    user.ID,
		TabID:     req.TabID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(constants.SessionDuration),
	}
	s.Store.Save(sess)

	cookieName := session.CookieName(req.TabID)
	http.SetCookie(w, session.NewSessionCookie(cookieName, token, s.Production))

	log.Printf("🔑 Login: %s (tab %s)", user.Email, req.TabID)

	writeJSON(w, http.StatusOK, types.OK(types.LoginData{
		User:        publicUser(user),
		AccessToken: token,
		TabID:       req.TabID,
		CookieName:  cookieName,
	}))
}

// HandleMe resolves the requesting tab's cookie to its identity.
func (s *Server) HandleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, types.Fail(constants.MsgMethodNotAllowed))
		return
	}

	tabID := r.Header.Get(constants.TabIDHeader)
	if !validTabID(tabID) {
		writeJSON(w, http.StatusBadRequest, types.Fail(constants.MsgInvalidTabID))
		return
	}

	sess, user, token, ok := s.sessionFromCookie(r, tabID)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, types.Fail(constants.MsgUnauthenticated))
		return
	}

	writeJSON(w, http.StatusOK, types.OK(types.MeData{
		User:        publicUser(user),
		AccessToken: token,
		TabID:       sess.TabID,
	}))
}

// HandleLogout deletes this tab's cookie unconditionally. The cookie
// deletion succeeds even when backend revocation has nothing to revoke.
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, types.Fail(constants.MsgMethodNotAllowed))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxBodySize)

	var req types.LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, types.Fail(constants.MsgInvalidJSON))
		return
	}

	if !validTabID(req.TabID) {
		writeJSON(w, http.StatusBadRequest, types.Fail(constants.MsgInvalidTabID))
		return
	}

	cookieName := session.CookieName(req.TabID)

	// Best-effort token revocation before the cookie goes.
	if cookie, err := r.Cookie(cookieName); err == nil {
		if token, valid := session.VerifyCookieValue(cookie.Value); valid {
			s.Store.Delete(session.HashSHA256(token))
		}
	}

	http.SetCookie(w, session.ExpiredCookie(cookieName, s.Production))

	log.Printf("👋 Logout: tab %s", req.TabID)
	writeJSON(w, http.StatusOK, types.OK(nil))
}

// sessionFromCookie authenticates a request by its tab's own cookie.
func (s *Server) sessionFromCookie(r *http.Request, tabID string) (*session.Session, *resource.User, string, bool) {
	cookie, err := r.Cookie(session.CookieName(tabID))
	if err != nil {
		return nil, nil, "", false
	}
	token, valid := session.VerifyCookieValue(cookie.Value)
	if !valid {
		return nil, nil, "", false
	}
	return s.sessionFromToken(token)
}

func (s *Server) sessionFromToken(token string) (*session.Session, *resource.User, string, bool) {
	sess, ok := s.Store.Get(session.HashSHA256(token))
	if !ok {
		return nil, nil, "", false
	}
	user, err := s.Resources.UserByID(sess.UserID)
	if err != nil {
		return nil, nil, "", false
	}
	return sess, user, token, true
}

// authenticate accepts either the tab cookie (x-tab-id header) or a
// bearer token.
func (s *Server) authenticate(r *http.Request) (*session.Session, *resource.User, bool) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token := strings.TrimPrefix(auth, "Bearer ")
		sess, user, _, ok := s.sessionFromToken(token)
		return sess, user, ok
	}

	tabID := r.Header.Get(constants.TabIDHeader)
	if !validTabID(tabID) {
		return nil, nil, false
	}
	sess, user, _, ok := s.sessionFromCookie(r, tabID)
	return sess, user, ok
}

// HandleResource serves the uniform REST verbs for every resource type
// and broadcasts a realtime event for every successful mutation.
func (s *Server) HandleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, constants.EndpointResources)
	parts := strings.SplitN(strings.Trim(path, "/"), "/", 2)
	resourceName := parts[0]
	id := ""
	if len(parts) == 2 {
		id = parts[1]
	}

	switch resourceName {
	case constants.ResourceInvoices, constants.ResourceProperties, constants.ResourceRooms, constants.ResourceTenants:
	default:
		writeJSON(w, http.StatusNotFound, types.Fail(constants.MsgNotFound))
		return
	}

	_, _, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, types.Fail(constants.MsgUnauthenticated))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxBodySize)

	switch {
	case r.Method == http.MethodGet && id == "":
		records, err := s.Resources.List(resourceName)
		if err != nil {
			s.writeResourceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.OK(records))

	case r.Method == http.MethodPost && id == "":
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, types.Fail(constants.MsgInvalidJSON))
			return
		}
		record, err := s.Resources.Create(resourceName, body)
		if err != nil {
			s.writeResourceError(w, err)
			return
		}
		s.Hub.BroadcastResource(resourceName, realtime.EventCreate, record)
		writeJSON(w, http.StatusOK, types.OK(record))

	case r.Method == http.MethodPut && id != "":
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, types.Fail(constants.MsgInvalidJSON))
			return
		}
		record, err := s.Resources.Update(resourceName, id, body)
		if err != nil {
			s.writeResourceError(w, err)
			return
		}
		s.Hub.BroadcastResource(resourceName, realtime.EventUpdate, record)
		writeJSON(w, http.StatusOK, types.OK(record))

	case r.Method == http.MethodDelete && id != "":
		record, err := s.Resources.Delete(resourceName, id)
		if err != nil {
			s.writeResourceError(w, err)
			return
		}
		s.Hub.BroadcastResource(resourceName, realtime.EventDelete, record)
		writeJSON(w, http.StatusOK, types.OK(record))

	default:
		writeJSON(w, http.StatusMethodNotAllowed, types.Fail(constants.MsgMethodNotAllowed))
	}
}

func (s *Server) writeResourceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resource.ErrValidation):
		writeJSON(w, http.StatusBadRequest, types.Fail(err.Error()))
	case errors.Is(err, resource.ErrNotFound):
		writeJSON(w, http.StatusNotFound, types.Fail(constants.MsgNotFound))
	default:
		log.Printf("Resource store error: %v", err)
		writeJSON(w, http.StatusInternalServerError, types.Fail("Internal error"))
	}
}

// HandleWebSocket upgrades an authenticated connection and registers it
// with the hub for resource pushes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := security.GetClientIP(r)

	if !s.ConnLimiter.TryConnect(clientIP) {
		if s.AuditLogger != nil {
			s.AuditLogger.LogConnectionLimit(clientIP)
		}
		http.Error(w, "Connection limit exceeded", http.StatusTooManyRequests)
		return
	}
	defer s.ConnLimiter.Disconnect(clientIP)

	token := r.URL.Query().Get("token")
	if !security.ValidateToken(token) {
		http.Error(w, "Unauthorized: invalid or missing token", http.StatusUnauthorized)
		return
	}

	sess, _, _, ok := s.sessionFromToken(token)
	if !ok {
		if s.AuditLogger != nil {
			s.AuditLogger.LogAuthFailure(clientIP, "", "Invalid realtime token")
		}
		http.Error(w, "Unauthorized: invalid or missing token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade error: %v", err)
		return
	}

	if s.AuditLogger != nil {
		s.AuditLogger.LogChannelConnect(clientIP, sess.TabID)
	}
	log.Printf("🔌 Realtime channel connected: tab %s", sess.TabID)

	client := s.Hub.Register(conn, sess.UserID, sess.TabID, sess.TokenHash)
	client.ReadLoop(s.handleClientFrame)

	if s.AuditLogger != nil {
		s.AuditLogger.LogChannelDisconnect(clientIP, sess.TabID, "read loop ended")
	}
	log.Printf("🔌 Realtime channel disconnected: tab %s", sess.TabID)
}

// handleClientFrame processes frames the tab sends back, e.g. marking a
// notification read.
func (s *Server) handleClientFrame(from *realtime.Client, frame realtime.Frame) {
	switch frame.Type {
	case "notification:read":
		var ack struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(frame.Payload, &ack); err != nil || ack.ID == "" {
			return
		}
		log.Printf("📬 Notification %s read by %s (tab %s)", ack.ID, from.UserID, from.TabID)
	}
}
