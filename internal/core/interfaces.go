// Package core defines the shared domain types and interfaces for the
// bakery operations reconciliation engine.
package core

import "time"

// ILogger defines the structured logging interface used across the engine
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// Clock abstracts wall-clock reads so components that bucket or expire by
// time stay deterministic under test.
type Clock func() time.Time

// SystemClock is the production clock.
func SystemClock() time.Time { return time.Now() }
