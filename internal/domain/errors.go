package domain

import "errors"

var (
	// ErrNotFound is returned by registry and repository lookups for absent keys.
	ErrNotFound = errors.New("not found")

	// ErrConnectionGone marks a delivery target whose transport channel no
	// longer exists. It is the Go rendition of a "410 Gone" from a managed
	// websocket endpoint: a cleanup signal, not a delivery failure.
	ErrConnectionGone = errors.New("connection gone")

	// ErrMalformedPayload is returned when input cannot be parsed into a
	// known payload variant.
	ErrMalformedPayload = errors.New("malformed payload")
)
