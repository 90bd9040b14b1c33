// Package notify delivers pathway change notifications from the outbox to
// external systems.
//
// A Worker pulls tasks from an outbox queue and hands them to a Sink.
// Failed deliveries are put back on the queue with exponential backoff
// until the retry policy is exhausted. Multiple workers can safely share
// one queue.
//
// WebhookSink posts each notification as JSON to a configured URL;
// LogSink only logs it and is useful in development.
package notify
