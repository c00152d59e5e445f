// Package subscription keeps realtime listeners alive.
//
// A Manager owns a set of named listeners. Each listener is created from a
// Factory that (re)issues the underlying store subscription, so the manager
// can tear a broken listener down and build a fresh one. Retryable errors
// are retried with exponential backoff (delay, 2*delay, 4*delay, ...) up to
// MaxRetries; anything else, or running out of retries, is reported once to
// the listener's OnError handler.
//
// Timers run on an injected clock so tests can drive retries in virtual
// time.
package subscription
