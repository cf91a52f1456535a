package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/excel-interviewer/internal/a2a"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
)

func newTestRouter(t *testing.T, dial DialFunc, limit int) http.Handler {
	t.Helper()
	reg := NewRegistryWithDialer(map[string]string{"excel-interviewer": "http://agent.test"}, dial, nil)
	t.Cleanup(reg.Close)
	h := NewHandler(reg, NewPoller(time.Millisecond, 20, nil), NewRateLimiter(limit, time.Minute), NewConnManager(), 0, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func completingDialer(text string) DialFunc {
	return func(context.Context, string) (AgentClient, error) {
		return &scriptedClient{statuses: []a2a.TaskStatus{
			status(a2a.TaskStateWorking, "Calling tool: `get_next_question`..."),
			status(a2a.TaskStateCompleted, text),
		}}, nil
	}
}

type sseEvent struct {
	Name string
	Data Event
}

func readSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	var name string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var ev Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				t.Fatalf("decode SSE data %q: %v", line, err)
			}
			out = append(out, sseEvent{Name: name, Data: ev})
		}
	}
	return out
}

func TestHandleMessageStreamsEvents(t *testing.T) {
	router := newTestRouter(t, completingDialer("Question 2: ..."), 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/excel-interviewer/messages?context_id=ctx-9", strings.NewReader(`{"content":"=SUM(A1:A3)"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	want := []sseEvent{
		{Name: EventThought, Data: Event{Type: EventThought, Content: "Calling tool: `get_next_question`...", ContextID: "ctx-9"}},
		{Name: EventFinal, Data: Event{Type: EventFinal, Content: "Question 2: ...", ContextID: "ctx-9"}},
	}
	if diff := cmp.Diff(want, readSSE(t, w.Body.String())); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleMessageContextFromBody(t *testing.T) {
	router := newTestRouter(t, completingDialer("ok"), 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/excel-interviewer/messages", strings.NewReader(`{"content":"hi","context_id":"body-ctx"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	events := readSSE(t, w.Body.String())
	if len(events) == 0 || events[len(events)-1].Data.ContextID != "body-ctx" {
		t.Fatalf("events = %+v", events)
	}
}

func TestHandleMessageRejects(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		limit      int
		wantStatus int
	}{
		{name: "unknown agent", path: "/api/v1/chats/nope/messages", body: `{"content":"hi"}`, wantStatus: http.StatusNotFound},
		{name: "bad json", path: "/api/v1/chats/excel-interviewer/messages", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "empty content", path: "/api/v1/chats/excel-interviewer/messages", body: `{"content":"  "}`, wantStatus: http.StatusBadRequest},
		{name: "too large", path: "/api/v1/chats/excel-interviewer/messages", body: `{"content":"` + strings.Repeat("x", 2<<20) + `"}`, wantStatus: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, completingDialer("ok"), tt.limit)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body)))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleMessageRateLimited(t *testing.T) {
	router := newTestRouter(t, completingDialer("ok"), 1)
	send := func() int {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/chats/excel-interviewer/messages", strings.NewReader(`{"content":"hi"}`)))
		return w.Code
	}
	if code := send(); code != http.StatusOK {
		t.Fatalf("first status = %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", code)
	}
}

func TestHandleMessageAgentUnavailable(t *testing.T) {
	router := newTestRouter(t, func(context.Context, string) (AgentClient, error) {
		return nil, context.DeadlineExceeded
	}, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/chats/excel-interviewer/messages", strings.NewReader(`{"content":"hi"}`)))

	events := readSSE(t, w.Body.String())
	if len(events) != 1 || events[0].Data.Type != EventError || events[0].Data.Content != TransportText || events[0].Data.ContextID == "" {
		t.Fatalf("events = %+v", events)
	}
}

func TestHandleWebSocket(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t, completingDialer("Question 1: ..."), 0))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/chats/excel-interviewer/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = ws.Close(websocket.StatusNormalClosure, "") }()

	readUntilTerminal := func() []Event {
		var got []Event
		for {
			var ev Event
			if err := wsjson.Read(ctx, ws, &ev); err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			got = append(got, ev)
			if ev.Terminal() {
				return got
			}
		}
	}

	if err := wsjson.Write(ctx, ws, ChatMessageInput{Content: ""}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := readUntilTerminal(); len(got) != 1 || got[0].Content != "content is required" {
		t.Fatalf("events = %+v", got)
	}

	if err := wsjson.Write(ctx, ws, ChatMessageInput{Content: "hi"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	first := readUntilTerminal()
	final := first[len(first)-1]
	if final.Type != EventFinal || final.Content != "Question 1: ..." || final.ContextID == "" {
		t.Fatalf("events = %+v", first)
	}

	if err := wsjson.Write(ctx, ws, ChatMessageInput{Content: "next"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	second := readUntilTerminal()
	if second[len(second)-1].ContextID != final.ContextID {
		t.Fatalf("context id %q did not carry over, got %+v", final.ContextID, second)
	}
}
