package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerServesChatPage(t *testing.T) {
	tests := []struct {
		path     string
		contains string
	}{
		{path: "/", contains: "AI Excel Interviewer"},
		{path: "/chat.js", contains: "/api/v1/chats/"},
		{path: "/interview/anything", contains: "AI Excel Interviewer"},
	}
	h := Handler()
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Fatalf("body does not contain %q", tt.contains)
			}
		})
	}
}
