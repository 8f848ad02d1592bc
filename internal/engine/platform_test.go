package engine

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/nkkko/verse/pkg/proto"
)

const (
	goodToken  = "good-token"
	testUserID = 7
)

// platform is an in-process stand-in for the poetry platform: REST
// endpoints plus the /ws push channel
type platform struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	hits      map[string]int
	failPaths map[string]bool
	wsTokens  []string
	conns     []*websocket.Conn
	refuseWS  bool
}

func newPlatform(t *testing.T) *platform {
	t.Helper()
	p := &platform{
		t:         t,
		hits:      map[string]int{},
		failPaths: map[string]bool{},
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(func() {
		p.mu.Lock()
		for _, c := range p.conns {
			c.Close()
		}
		p.mu.Unlock()
		p.server.Close()
	})
	return p
}

func (p *platform) URL() string { return p.server.URL }

func (p *platform) fail(path string) {
	p.mu.Lock()
	p.failPaths[path] = true
	p.mu.Unlock()
}

func (p *platform) hitCount(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[path]
}

func (p *platform) tokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.wsTokens...)
}

// push sends a frame to every open push connection
func (p *platform) push(topic proto.Topic) {
	frame, _ := json.Marshal(proto.Envelope{Type: topic, Payload: json.RawMessage(`{}`)})
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		_ = c.WriteMessage(websocket.TextMessage, frame)
	}
}

var upgrader = websocket.Upgrader{}

func (p *platform) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.hits[r.URL.Path]++
	failing := p.failPaths[r.URL.Path]
	refuse := p.refuseWS
	p.mu.Unlock()

	if r.URL.Path == "/ws" {
		if refuse {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p.mu.Lock()
		p.wsTokens = append(p.wsTokens, r.URL.Query().Get("token"))
		p.conns = append(p.conns, conn)
		p.mu.Unlock()
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		return
	}

	if failing {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"Sunucu hatası"}`))
		return
	}

	if cookie, err := r.Cookie("token"); err != nil || cookie.Value != goodToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Yetkisiz"}`))
		return
	}

	switch {
	case r.URL.Path == "/user":
		_, _ = w.Write([]byte(`{"user":{"id":7,"username":"ahmet","email":"ahmet@example.com"}}`))
	case r.URL.Path == "/get-liked-poems-id/7":
		_, _ = w.Write([]byte(`[1,2]`))
	case r.URL.Path == "/get-bookmark-id/7":
		_, _ = w.Write([]byte(`[3]`))
	case r.URL.Path == "/get-reads-books-ids/7":
		_, _ = w.Write([]byte(`[]`))
	case r.URL.Path == "/get-friends":
		_, _ = w.Write([]byte(`[{"friendship_id":1,"user_id":2,"username":"leyla"}]`))
	case r.URL.Path == "/get-friend-requests":
		_, _ = w.Write([]byte(`[{"id":10,"user_id":3,"friend_id":7,"status":"pending"}]`))
	case r.URL.Path == "/get-sent-requests":
		_, _ = w.Write([]byte(`[]`))
	case strings.HasPrefix(r.URL.Path, "/add-"), strings.HasPrefix(r.URL.Path, "/undo-"),
		strings.HasPrefix(r.URL.Path, "/delete-"), strings.HasSuffix(r.URL.Path, "friend-request"),
		strings.Contains(r.URL.Path, "-friend"):
		_, _ = w.Write([]byte(`{"message":"Tamam"}`))
	default:
		http.NotFound(w, r)
	}
}
