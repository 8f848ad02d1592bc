package actions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/nkkko/verse/pkg/client"
	"github.com/stretchr/testify/assert"
)

func TestErrorHandlerMessage(t *testing.T) {
	h := NewErrorHandler(nil)

	tests := []struct {
		name     string
		err      error
		fallback string
		want     string
	}{
		{"api message", &client.APIError{Status: 400, Message: "Geçersiz istek"}, "fb", "Geçersiz istek"},
		{"wrapped api message", fmt.Errorf("like: %w", &client.APIError{Status: 400, Message: "x"}), "fb", "x"},
		{"api without message", &client.APIError{Status: 500}, "fb", "fb"},
		{"transport error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("refused")}, "fb", "fb"},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), "fb", "fb"},
		{"generic error", errors.New("disk full"), "fb", "disk full"},
		{"empty generic error", errors.New(""), "fb", "fb"},
		{"default fallback", &client.APIError{Status: 500}, "", DefaultErrorMessage},
		{"nil error", nil, "fb", "fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Message(tt.err, tt.fallback))
		})
	}
}

func TestErrorHandlerHandlePublishes(t *testing.T) {
	p := &recordingPublisher{}
	h := NewErrorHandler(p)

	got := h.Handle(errors.New("boom"), "fb")
	assert.Equal(t, "boom", got)
	assert.Equal(t, "boom", p.lastError())
}

func TestErrorHandlerHandleStatus(t *testing.T) {
	p := &recordingPublisher{}
	h := NewErrorHandler(p)
	custom := map[int]string{
		http.StatusUnauthorized: "Oturum süresi doldu",
		http.StatusForbidden:    "Yetkiniz yok",
	}

	got := h.HandleStatus(&client.APIError{Status: http.StatusUnauthorized, Message: "unauthenticated"}, custom)
	assert.Equal(t, "Oturum süresi doldu", got)
	assert.Equal(t, "Oturum süresi doldu", p.lastError())

	got = h.HandleStatus(&client.APIError{Status: http.StatusNotFound, Message: "yok"}, custom)
	assert.Equal(t, "yok", got)

	got = h.HandleStatus(&client.APIError{Status: http.StatusNotFound}, nil)
	assert.Equal(t, DefaultErrorMessage, got)

	got = h.HandleStatus(errors.New("plain"), custom)
	assert.Equal(t, "plain", got)
}
