package dispatcher

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Handler processes workflow events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo pairs a handler with the name it is logged under
type HandlerInfo struct {
	Name    string
	Handler Handler
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
