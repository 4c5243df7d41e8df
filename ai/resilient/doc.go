// Package resilient wraps an ai.AIProvider with call discipline: a per-call
// timeout, bounded retries with exponential backoff for retryable failures,
// a circuit breaker per operation, a global cap on in-flight calls and an
// optional request-rate limit.
//
// Failures that survive the retry policy are returned as *core.CollaboratorError,
// which names the collaborator, the operation and the number of attempts.
package resilient
