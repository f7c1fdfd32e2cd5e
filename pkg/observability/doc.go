/*
Package observability provides ready-made machine observers for monitoring:
Prometheus counters for transitions and rejections, a queue depth gauge, and
structured log observers built on slog.

Observers run synchronously on the dispatcher goroutine, so everything here
is cheap and non-blocking.
*/
package observability
