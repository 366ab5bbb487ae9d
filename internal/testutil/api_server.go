package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eventmatch/chat-client/internal/models"
)

// APIServer is an in-memory chat backend for client tests. It serves the
// envelope shapes of the real API and counts calls so tests can observe
// resynchronization.
type APIServer struct {
	*httptest.Server

	mu           sync.Mutex
	groups       []models.EventConversations
	histories    map[int][]models.Message
	nextID       int
	loadAllCalls int
	readCalls    map[int]int
	failSends    bool
}

func NewAPIServer() *APIServer {
	s := &APIServer{
		histories: make(map[int][]models.Message),
		readCalls: make(map[int]int),
		nextID:    1000,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/conversations", s.handleConversations)
	mux.HandleFunc("/chat/conversations/", s.handleConversation)
	s.Server = httptest.NewServer(mux)
	return s
}

// SetGroups replaces the snapshot fixture.
func (s *APIServer) SetGroups(groups []models.EventConversations) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = groups
}

// SetHistory replaces one conversation's message page.
func (s *APIServer) SetHistory(matchID int, messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[matchID] = messages
}

// FailSends makes subsequent send calls return an error envelope.
func (s *APIServer) FailSends(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSends = fail
}

// LoadAllCalls returns how many snapshot fetches were served.
func (s *APIServer) LoadAllCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadAllCalls
}

// ReadCalls returns how many mark-read calls were served for a conversation.
func (s *APIServer) ReadCalls(matchID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readCalls[matchID]
}

func (s *APIServer) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.mu.Lock()
	s.loadAllCalls++
	groups := s.groups
	s.mu.Unlock()
	writeData(w, groups)
}

func (s *APIServer) handleConversation(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/chat/conversations/")
	parts := strings.Split(rest, "/")
	matchID, err := strconv.Atoi(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.serveDetail(w, matchID)
	case len(parts) == 2 && parts[1] == "messages" && r.Method == http.MethodPost:
		s.serveSend(w, r, matchID)
	case len(parts) == 2 && parts[1] == "read" && r.Method == http.MethodPost:
		s.mu.Lock()
		s.readCalls[matchID]++
		s.mu.Unlock()
		writeData(w, nil)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *APIServer) serveDetail(w http.ResponseWriter, matchID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		for _, c := range g.Conversations {
			if c.MatchID == matchID {
				writeData(w, models.ConversationDetail{
					Conversation: c,
					Messages:     s.histories[matchID],
				})
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, "conversation not found")
}

func (s *APIServer) serveSend(w http.ResponseWriter, r *http.Request, matchID int) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	if s.failSends {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "sending is not permitted")
		return
	}
	s.nextID++
	msg := models.Message{
		ID:       s.nextID,
		SenderID: senderIDFromAuth(r),
		Content:  body.Content,
		SentAt:   time.Now().UTC(),
	}
	s.histories[matchID] = append(s.histories[matchID], msg)
	s.mu.Unlock()

	writeData(w, msg)
}

// senderIDFromAuth is a fixture convention: tests encode the sender id as
// the bearer token itself when they need one.
func senderIDFromAuth(r *http.Request) int {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if id, err := strconv.Atoi(token); err == nil {
		return id
	}
	return 1
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
