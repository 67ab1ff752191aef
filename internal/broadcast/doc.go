// Package broadcast implements the fan-out engine: one payload, serialized
// once, delivered to every registered connection with bounded concurrency.
// Stale connections discovered during delivery are pruned from the registry
// as a side effect.
package broadcast
