// Package redis holds the Redis-backed infrastructure: client construction
// with metrics and circuit breaker hooks, the connection registry, and the
// presence event queue built on Redis Streams.
package redis
