package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/spotmeet/spotmeet/internal/cache"
	"github.com/spotmeet/spotmeet/internal/cache/redisstore"
	"github.com/spotmeet/spotmeet/internal/chat"
	"github.com/spotmeet/spotmeet/internal/model"
	"github.com/spotmeet/spotmeet/internal/query"
	"github.com/spotmeet/spotmeet/internal/store/memstore"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	grids []string
}

func (r *recordingInvalidator) PublishInvalidation(gridID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grids = append(r.grids, gridID)
}

func (r *recordingInvalidator) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.grids...)
}

type recordingChatPublisher struct {
	mu   sync.Mutex
	msgs []chat.Message
}

func (p *recordingChatPublisher) PublishChat(m chat.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, m)
	return nil
}

func (p *recordingChatPublisher) last() (chat.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.msgs) == 0 {
		return chat.Message{}, false
	}
	return p.msgs[len(p.msgs)-1], true
}

type fixture struct {
	srv     *httptest.Server
	store   *memstore.Store
	inval   *recordingInvalidator
	chatPub *recordingChatPublisher
	hub     *chat.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	st := memstore.New()
	q := query.New(nil, cache.NewRedis(cli, 250*time.Millisecond), st, 10*time.Minute)
	inval := &recordingInvalidator{}
	chatPub := &recordingChatPublisher{}
	hub := chat.NewHub()

	s := New(nil, q, st, inval, hub, chatPub)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, store: st, inval: inval, chatPub: chatPub, hub: hub}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func samplePayload(lat, lng float64) map[string]any {
	return map[string]any{
		"title":           "evening run",
		"description":     "easy 5k",
		"maxParticipants": 8,
		"latitude":        lat,
		"longitude":       lng,
		"isPublic":        true,
		"host":            map[string]any{"userId": 1, "name": "mina"},
		"categories":      []string{"ACTIVITY"},
	}
}

func TestCreateGetEvent(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/events", samplePayload(37.564, 127.014))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decode[model.Event](t, resp)
	if created.ID == "" || created.GridID == "" || created.ChatroomID == 0 {
		t.Fatalf("incomplete event: %+v", created)
	}
	if created.Participants != 1 {
		t.Fatalf("host should auto-join, participants = %d", created.Participants)
	}
	if got := f.inval.published(); len(got) != 1 || got[0] != created.GridID {
		t.Fatalf("invalidations = %v, want [%s]", got, created.GridID)
	}

	resp = f.do(t, http.MethodGet, "/events/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	got := decode[model.Event](t, resp)
	if got.Title != "evening run" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestGetEventNotFound(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/events/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t)

	bad := samplePayload(37.5, 127.0)
	bad["title"] = "  "
	if resp := f.do(t, http.MethodPost, "/events", bad); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank title: status = %d", resp.StatusCode)
	}

	bad = samplePayload(91, 127.0)
	if resp := f.do(t, http.MethodPost, "/events", bad); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("latitude out of range: status = %d", resp.StatusCode)
	}

	if len(f.inval.published()) != 0 {
		t.Fatal("rejected creates must not publish invalidations")
	}
}

func TestUpdateEventMoveInvalidatesBothCells(t *testing.T) {
	f := newFixture(t)

	created := decode[model.Event](t, f.do(t, http.MethodPost, "/events", samplePayload(37.564, 127.014)))
	oldGrid := created.GridID

	moved := samplePayload(37.7, 127.2)
	resp := f.do(t, http.MethodPut, "/events/"+created.ID, moved)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	updated := decode[model.Event](t, resp)
	if updated.GridID == oldGrid {
		t.Fatal("move should land in a different cell")
	}

	got := f.inval.published()
	if len(got) != 3 || got[1] != oldGrid || got[2] != updated.GridID {
		t.Fatalf("invalidations = %v, want create + old + new", got)
	}
}

func TestDeleteEvent(t *testing.T) {
	f := newFixture(t)
	created := decode[model.Event](t, f.do(t, http.MethodPost, "/events", samplePayload(37.564, 127.014)))

	resp := f.do(t, http.MethodDelete, "/events/"+created.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodGet, "/events/"+created.ID, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted event still readable: %d", resp.StatusCode)
	}

	got := f.inval.published()
	if len(got) != 2 || got[1] != created.GridID {
		t.Fatalf("invalidations = %v", got)
	}
}

func TestJoinLeaveAndCapacity(t *testing.T) {
	f := newFixture(t)

	payload := samplePayload(37.564, 127.014)
	payload["maxParticipants"] = 2
	created := decode[model.Event](t, f.do(t, http.MethodPost, "/events", payload))

	resp := f.do(t, http.MethodPost, "/events/"+created.ID+"/join", membershipPayload{UserID: 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join status = %d", resp.StatusCode)
	}
	if ev := decode[model.Event](t, resp); ev.Participants != 2 {
		t.Fatalf("participants = %d, want 2", ev.Participants)
	}

	resp = f.do(t, http.MethodPost, "/events/"+created.ID+"/join", membershipPayload{UserID: 3})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("full event join status = %d, want 409", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPost, "/events/"+created.ID+"/leave", membershipPayload{UserID: 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leave status = %d", resp.StatusCode)
	}
	if ev := decode[model.Event](t, resp); ev.Participants != 1 {
		t.Fatalf("participants after leave = %d", ev.Participants)
	}

	// create + join + leave each dirty the cell (the failed join must not)
	if got := f.inval.published(); len(got) != 3 {
		t.Fatalf("invalidations = %v", got)
	}
}

func TestJoinRequiresUserID(t *testing.T) {
	f := newFixture(t)
	created := decode[model.Event](t, f.do(t, http.MethodPost, "/events", samplePayload(37.564, 127.014)))

	resp := f.do(t, http.MethodPost, "/events/"+created.ID+"/join", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListEvents(t *testing.T) {
	f := newFixture(t)

	for i := 1; i <= 3; i++ {
		p := samplePayload(37.560+0.001*float64(i), 127.010+0.001*float64(i))
		p["title"] = fmt.Sprintf("event-%d", i)
		f.do(t, http.MethodPost, "/events", p)
	}

	resp := f.do(t, http.MethodGet, "/events?swLat=37.5605&swLng=127.0105&neLat=37.5625&neLng=127.0125", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	events := decode[[]model.Event](t, resp)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}

	resp = f.do(t, http.MethodGet, "/events?swLat=37.5605&swLng=127.0105&neLat=37.5625&neLng=127.0125&categories=TALKING", nil)
	events = decode[[]model.Event](t, resp)
	if len(events) != 0 {
		t.Fatalf("category filter should exclude all, got %+v", events)
	}
}

func TestListEventsBadParams(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{
		"/events",                                        // all params missing
		"/events?swLat=abc&swLng=1&neLat=2&neLng=3",      // not a number
		"/events?swLat=95&swLng=1&neLat=2&neLng=3",       // out of range
		"/events?swLat=37.5&swLng=127&neLat=37.6",        // neLng missing
	} {
		resp := f.do(t, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, resp.StatusCode)
		}
	}
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestChatSocketPublishes(t *testing.T) {
	f := newFixture(t)

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL(f.srv, "/ws/chat?userId=7&name=mina"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer resp.Body.Close()
	defer ws.Close()

	frame, _ := json.Marshal(chat.Frame{ChatroomID: 42, SenderID: 7, Message: "hello"})
	if err := ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if msg, ok := f.chatPub.last(); ok {
			if msg.ChatroomID != 42 || msg.SenderID != 7 || msg.SenderName != "mina" || msg.Content != "hello" {
				t.Fatalf("unexpected message: %+v", msg)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("message never published")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !f.hub.Connected(7) {
		t.Fatal("connection not registered in hub")
	}
}

func TestChatSocketRejectsMissingIdentity(t *testing.T) {
	f := newFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(f.srv, "/ws/chat"), nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("resp = %+v, want 400 before upgrade", resp)
	}
}

func TestChatSocketClosesOnTextFrame(t *testing.T) {
	f := newFixture(t)

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL(f.srv, "/ws/chat?userId=7"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer resp.Body.Close()
	defer ws.Close()

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not binary")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	if err == nil {
		t.Fatal("expected close")
	}
	if !websocket.IsCloseError(err, websocket.CloseProtocolError) {
		t.Fatalf("err = %v, want protocol error close", err)
	}
}
