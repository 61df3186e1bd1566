// Package chat answers free-text questions about county fire danger, either by
// forwarding them to the upstream API or through an OpenAI model grounded on the
// current fire data.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/lox/firerisk/internal/htmlutil"
	"github.com/lox/firerisk/internal/metrics"
)

// MaxMessageLength bounds a single question.
const MaxMessageLength = 2000

// ErrEmptyMessage is returned for blank questions.
var ErrEmptyMessage = errors.New("message is empty")

// ErrMessageTooLong is returned for questions over MaxMessageLength.
var ErrMessageTooLong = errors.New("message too long")

// Responder answers one message.
type Responder interface {
	Reply(ctx context.Context, message string) (string, error)
	Name() string
}

// Validate trims message and rejects blank or oversized input.
func Validate(message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}
	if len(message) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return message, nil
}

// UpstreamChat is the upstream chat endpoint. *upstream.Client implements it.
type UpstreamChat interface {
	Chat(ctx context.Context, message string) (string, error)
}

// Passthrough forwards messages to the upstream API unchanged.
type Passthrough struct {
	up UpstreamChat
}

func NewPassthrough(up UpstreamChat) *Passthrough {
	return &Passthrough{up: up}
}

func (p *Passthrough) Name() string { return "upstream" }

func (p *Passthrough) Reply(ctx context.Context, message string) (string, error) {
	reply, err := p.up.Chat(ctx, message)
	observe(p.Name(), err)
	if err != nil {
		return "", err
	}
	return htmlutil.Condense(reply), nil
}

func observe(backend string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ChatRequestsTotal.WithLabelValues(backend, outcome).Inc()
}
