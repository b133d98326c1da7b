package intercept

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"moray/internal/httputil"
)

const maxEmbedBody = 5 << 20

// sourceMessage is the frame-to-host wire format.
type sourceMessage struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	SourceTag string `json:"sourceTag"`
}

// Server hosts the same-origin embed proxy and the interception channel.
type Server struct {
	client *http.Client
	logger *slog.Logger

	// embedHosts maps a provider id to the host its embed pages live on.
	// Only listed providers can be proxied.
	embedHosts map[string]string

	// publicOrigin is the origin browsers reach this server at. WebSocket
	// upgrades from any other origin are refused.
	publicOrigin string

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewServer builds the interception server.
func NewServer(client *http.Client, logger *slog.Logger, embedHosts map[string]string, publicOrigin string) *Server {
	s := &Server{
		client:       client,
		logger:       logger,
		embedHosts:   embedHosts,
		publicOrigin: strings.TrimSuffix(publicOrigin, "/"),
		sessions:     make(map[string]*Session),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.checkOrigin,
	}
	return s
}

// Routes mounts the server's endpoints on r.
func (s *Server) Routes(r *mux.Router) {
	r.HandleFunc("/intercept/sessions", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/intercept/sessions/{id}", s.handleSessionState).Methods(http.MethodGet)
	r.HandleFunc("/intercept/sessions/{id}", s.handleCloseSession).Methods(http.MethodDelete)
	r.HandleFunc("/intercept/ws", s.handleChannel)
	r.HandleFunc("/embed/{provider}/{path:.*}", s.handleEmbed).Methods(http.MethodGet)
}

// checkOrigin accepts same-origin requests only. Pages we did not serve have
// no business reporting sources.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	if s.publicOrigin == "" {
		// No configured origin: fall back to matching the request host.
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
	return strings.TrimSuffix(origin, "/") == s.publicOrigin
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AudioTracks []string `json:"audioTracks"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req)
	}

	id := newSessionID()
	session := NewSession(SessionConfig{AudioTracks: req.AudioTracks})

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	s.logger.Info("interception session opened", "session", id, "state", session.State())
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "state": session.State()})
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	session := s.session(mux.Vars(r)["id"])
	if session == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":      session.State(),
		"candidates": session.Candidates(),
	})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	session := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if session == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	session.Close()
	s.logger.Info("interception session closed", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleChannel upgrades the message channel and feeds reported URLs into
// the session's collector.
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	session := s.session(r.URL.Query().Get("session"))
	if session == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("channel upgrade refused", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(4096)
	for {
		var msg sourceMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "VIDEO_SOURCE" {
			continue
		}
		if session.Report(msg.URL, msg.SourceTag) {
			s.logger.Info("source intercepted", "url", msg.URL, "tag", msg.SourceTag)
		}
	}
}

// handleEmbed proxies one provider embed page through our origin and injects
// the reporter script so the page's media requests reach the channel.
func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	host, ok := s.embedHosts[vars["provider"]]
	if !ok {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	target := "https://" + host + "/" + vars["path"]
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	resp, err := httputil.GetAsFrame(r.Context(), s.client, target, "https://"+host+"/")
	if err != nil {
		s.logger.Warn("embed fetch failed", "target", target, "error", err)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("embed fetch failed", "target", target, "status", resp.StatusCode)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEmbedBody))
	if err != nil {
		http.Error(w, "upstream read failed", http.StatusBadGateway)
		return
	}

	page := rewriteEmbedPage(string(body), host, r.URL.Query().Get("session"))

	// Frame-busting headers from upstream never reach the client; the page
	// is served from our origin with our own policy.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Frame-Options", "SAMEORIGIN")
	fmt.Fprint(w, page)
}

// rewriteEmbedPage anchors relative references back at the provider host and
// injects the reporter script.
func rewriteEmbedPage(page, host, sessionID string) string {
	base := `<base href="https://` + host + `/">`
	if i := indexFold(page, "<head>"); i >= 0 {
		page = page[:i+len("<head>")] + base + page[i+len("<head>"):]
	} else {
		page = base + page
	}

	script := reporterScript(sessionID)
	if i := indexFold(page, "</body>"); i >= 0 {
		return page[:i] + script + page[i:]
	}
	return page + script
}

// reporterScript hooks the page's media loads and posts each URL over the
// channel as a VIDEO_SOURCE message.
func reporterScript(sessionID string) string {
	return `<script>(function(){
var ws=new WebSocket((location.protocol==="https:"?"wss://":"ws://")+location.host+"/intercept/ws?session=` + sessionID + `");
function report(url,tag){try{ws.send(JSON.stringify({type:"VIDEO_SOURCE",url:String(url),sourceTag:tag}))}catch(e){}}
var of=window.fetch;window.fetch=function(u){report(u&&u.url?u.url:u,"fetch");return of.apply(this,arguments)};
var oo=XMLHttpRequest.prototype.open;XMLHttpRequest.prototype.open=function(m,u){report(u,"xhr");return oo.apply(this,arguments)};
document.addEventListener("loadstart",function(e){var t=e.target;if(t&&(t.tagName==="VIDEO"||t.tagName==="SOURCE")&&t.src)report(t.src,"media")},true);
})()</script>`
}

func (s *Server) session(id string) *Session {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func newSessionID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// indexFold finds needle in haystack case-insensitively.
func indexFold(haystack, needle string) int {
	return strings.Index(strings.ToLower(haystack), strings.ToLower(needle))
}
