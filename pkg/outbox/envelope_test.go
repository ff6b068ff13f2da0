package outbox

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/medidrop-backend/pkg/enums"
)

func TestDecodeEnvelope(t *testing.T) {
	actor := uuid.New()
	raw, err := json.Marshal(PayloadEnvelope{
		Version: EnvelopeVersion,
		EventID: "evt-1",
		Actor:   &ActorRef{UserID: actor, Role: enums.ActorRoleVolunteer},
		Data:    json.RawMessage(`{"orderId":"ord-1"}`),
	})
	require.NoError(t, err)

	envelope, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	require.Equal(t, "evt-1", envelope.EventID)
	require.Equal(t, enums.ActorRoleVolunteer, envelope.Actor.Role)
	require.True(t, envelope.HasData())
}

func TestDecodeEnvelopeRejects(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"future version": `{"version":2,"eventId":"evt-1","data":{}}`,
		"zero version":   `{"version":0,"eventId":"evt-1","data":{}}`,
		"no event id":    `{"version":1,"data":{}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestEnvelopeHasData(t *testing.T) {
	require.False(t, PayloadEnvelope{}.HasData())
	require.False(t, PayloadEnvelope{Data: json.RawMessage(" null ")}.HasData())
	require.True(t, PayloadEnvelope{Data: json.RawMessage(`{}`)}.HasData())
}
