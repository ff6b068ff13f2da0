package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/medidrop-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		name      string
		projectID string
		topic     string
		want      string
	}{
		{name: "short id", projectID: "medidrop-dev", topic: "medidrop-order-events", want: "projects/medidrop-dev/topics/medidrop-order-events"},
		{name: "full resource", projectID: "other", topic: "projects/p1/topics/t1", want: "projects/p1/topics/t1"},
		{name: "blank topic", projectID: "medidrop-dev", topic: "  ", want: ""},
		{name: "missing project", projectID: "", topic: "t1", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, topicResourceName(tc.projectID, tc.topic))
		})
	}
}

func TestTopicResourcesDeduplicates(t *testing.T) {
	topics, err := topicResources("p", config.PubSubConfig{OrdersTopic: "events", NotificationTopic: " events "})
	require.NoError(t, err)
	require.Equal(t, []string{"projects/p/topics/events"}, topics)

	topics, err = topicResources("p", config.PubSubConfig{OrdersTopic: "orders", NotificationTopic: "projects/q/topics/notices"})
	require.NoError(t, err)
	require.Equal(t, []string{"projects/p/topics/orders", "projects/q/topics/notices"}, topics)

	_, err = topicResources("p", config.PubSubConfig{})
	require.Error(t, err)
}

func TestClientOptionsPrefersInlineCredentials(t *testing.T) {
	require.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/sa.json"}), 1)
	require.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/sa.json"}), 1)
	require.Nil(t, clientOptions(config.GCPConfig{}))
}

func TestZeroClient(t *testing.T) {
	var c *Client
	require.ErrorIs(t, c.Ping(context.Background()), ErrNotInitialized)
	require.Nil(t, c.Publisher("orders"))
	require.NoError(t, c.Close())
}
