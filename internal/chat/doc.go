// Package chat holds the application services: message receipt and
// persistence, connection lifecycle bookkeeping, and the presence event
// consumer that turns queued status changes into broadcasts.
package chat
