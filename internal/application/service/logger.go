package service

import "time"

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Clock returns the current time; tests substitute a fixed one
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}
