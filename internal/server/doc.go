// Package server is the HTTP surface: the websocket endpoint that feeds the
// hub and the presence bookkeeping, the REST API for users, channels, and
// message history, and the health/metrics endpoints.
package server
