package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// PayloadKind discriminates the tagged union exchanged over the wire.
type PayloadKind string

const (
	KindMessage      PayloadKind = "Message"
	KindStatusChange PayloadKind = "StatusChangeEvent"
)

// Payload is one member of the wire payload union.
type Payload interface {
	PayloadKind() PayloadKind
}

// Status is the derived presence of a user: ONLINE iff at least one open
// connection exists.
type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// Message is one chat message scoped to a channel. MessageID is assigned by
// the server at receipt time; any client-supplied value is discarded.
type Message struct {
	Type      PayloadKind `json:"type"`
	MessageID string      `json:"messageId,omitempty"`
	ChannelID string      `json:"channelId"`
	Sender    string      `json:"sender"`
	Text      string      `json:"text"`
	SentAt    time.Time   `json:"sentAt"`
}

func (*Message) PayloadKind() PayloadKind { return KindMessage }

// StatusChangeEvent is a transient presence notification. It travels through
// the presence queue and the broadcast path but is never persisted.
type StatusChangeEvent struct {
	Type          PayloadKind `json:"type"`
	UserID        string      `json:"userId"`
	CurrentStatus Status      `json:"currentStatus"`
	EventDate     time.Time   `json:"eventDate"`
}

func (*StatusChangeEvent) PayloadKind() PayloadKind { return KindStatusChange }

// NewStatusChangeEvent builds a presence event with the discriminator set.
func NewStatusChangeEvent(userID string, status Status, at time.Time) *StatusChangeEvent {
	return &StatusChangeEvent{
		Type:          KindStatusChange,
		UserID:        userID,
		CurrentStatus: status,
		EventDate:     at,
	}
}

// ParsePayload decodes raw JSON into the matching payload variant.
// A missing or unknown discriminator yields ErrMalformedPayload; callers
// never see a half-decoded value.
func ParsePayload(raw []byte) (Payload, error) {
	var probe struct {
		Type PayloadKind `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch probe.Type {
	case KindMessage:
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return &m, nil
	case KindStatusChange:
		var e StatusChangeEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return &e, nil
	case "":
		return nil, fmt.Errorf("%w: missing type discriminator", ErrMalformedPayload)
	default:
		return nil, fmt.Errorf("%w: unknown payload type %q", ErrMalformedPayload, probe.Type)
	}
}
