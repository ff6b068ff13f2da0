package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/medidrop-backend/pkg/enums"
)

// EnvelopeVersion is the newest envelope layout Emit writes. The publisher
// refuses rows written by a newer binary.
const EnvelopeVersion = 1

// ActorRef is the customer, vendor, volunteer or admin behind an event.
type ActorRef struct {
	UserID uuid.UUID       `json:"userId"`
	Role   enums.ActorRole `json:"role,omitempty"`
}

// PayloadEnvelope is what lands in outbox_events.payload and, re-encoded, in
// the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload and rejects envelopes that cannot be
// delivered as-is.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	switch {
	case envelope.Version < 1 || envelope.Version > EnvelopeVersion:
		return PayloadEnvelope{}, fmt.Errorf("unsupported envelope version %d", envelope.Version)
	case envelope.EventID == "":
		return PayloadEnvelope{}, errors.New("envelope missing eventId")
	}
	return envelope, nil
}

// HasData reports whether the envelope carries a non-null payload.
func (e PayloadEnvelope) HasData() bool {
	trimmed := bytes.TrimSpace(e.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
