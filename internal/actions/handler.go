package actions

import (
	"context"
	"errors"
	"net/url"

	"github.com/nkkko/verse/internal/notifier"
	"github.com/nkkko/verse/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultErrorMessage is shown when neither the error nor the caller offers a message
const DefaultErrorMessage = "Bir hata oluştu"

// ErrorHandler turns action failures into user-facing messages and shows
// them as error notifications
type ErrorHandler struct {
	publisher notifier.Publisher
	logger    zerolog.Logger
}

// NewErrorHandler creates an error handler publishing to p. A nil publisher
// only logs.
func NewErrorHandler(p notifier.Publisher) *ErrorHandler {
	return &ErrorHandler{
		publisher: p,
		logger:    log.With().Str("component", "actions").Logger(),
	}
}

// Message derives the user-facing message for err. A structured API error
// contributes its message field; transport failures carry nothing worth
// showing; any other error contributes its text. The fallback fills the gaps.
func (h *ErrorHandler) Message(err error, fallback string) string {
	if fallback == "" {
		fallback = DefaultErrorMessage
	}
	if err == nil {
		return fallback
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fallback
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// Handle derives the message for err, shows it and returns it
func (h *ErrorHandler) Handle(err error, fallback string) string {
	message := h.Message(err, fallback)
	h.show(err, message)
	return message
}

// HandleStatus shows the custom message registered for the API status
// carried by err, and otherwise behaves like Handle with the default message
func (h *ErrorHandler) HandleStatus(err error, custom map[int]string) string {
	if status := client.StatusCode(err); status != 0 {
		if message, ok := custom[status]; ok && message != "" {
			h.show(err, message)
			return message
		}
	}
	return h.Handle(err, "")
}

func (h *ErrorHandler) show(err error, message string) {
	h.logger.Debug().Err(err).Str("message", message).Msg("Action failed")
	if h.publisher != nil {
		h.publisher.Error(message)
	}
}
