package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/rahul/veritas/internal/agent"
)

// Messenger defines the interface for chat gateways (Telegram, etc.)
type Messenger interface {
	// Start begins the message listening loop and blocks until ctx is done
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Answerer is the question-answering pipeline behind every gateway.
type Answerer interface {
	Answer(ctx context.Context, q agent.Query) (*agent.Response, error)
}

// StatusFor maps an Answer error to the HTTP status the API returns.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, agent.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, agent.ErrPlanning):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// userMessage is the text a chat user sees for a failed question.
func userMessage(err error) string {
	switch StatusFor(err) {
	case http.StatusBadRequest:
		return "Please send a question."
	case http.StatusBadGateway:
		return "I couldn't work out a plan for that question. Try rephrasing it."
	case http.StatusRequestTimeout:
		return "That took too long. Try a narrower question."
	}
	return "I'm having trouble answering right now..."
}
