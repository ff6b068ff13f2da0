// Package pubsub owns the Pub/Sub connection used by the outbox publisher.
// Topics are provisioned out of band; the client only verifies they exist.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/medidrop-backend/pkg/config"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

var ErrNotInitialized = errors.New("pubsub client not initialized")

// Client caches one publisher per topic.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string
	settings  config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// clientOptions prefers inline credentials, then a credentials file, then
// application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	default:
		return nil
	}
}

// NewClient connects to Pub/Sub and fails when a configured topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	topics, err := topicResources(projectID, cfg)
	if err != nil {
		return nil, err
	}

	psClient, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:     psClient,
		projectID:  projectID,
		topics:     topics,
		settings:   cfg,
		publishers: make(map[string]*pubsub.Publisher),
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project_id": projectID,
			"topics":     topics,
		}), "pubsub.connected")
	}
	return c, nil
}

// topicResources returns the distinct fully qualified topics in cfg.
func topicResources(projectID string, cfg config.PubSubConfig) ([]string, error) {
	var topics []string
	for _, name := range []string{cfg.OrdersTopic, cfg.NotificationTopic} {
		if resource := topicResourceName(projectID, name); resource != "" {
			topics = append(topics, resource)
		}
	}
	if len(topics) == 0 {
		return nil, errors.New("pubsub topic name is required")
	}
	slices.Sort(topics)
	return slices.Compact(topics), nil
}

// Ping checks every configured topic concurrently.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrNotInitialized
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for _, topic := range c.topics {
		group.Go(func() error {
			_, err := c.client.TopicAdminClient.GetTopic(groupCtx, &pubsubpb.GetTopicRequest{Topic: topic})
			switch {
			case err == nil:
				return nil
			case status.Code(err) == codes.NotFound:
				return fmt.Errorf("topic %s does not exist", topic)
			default:
				return fmt.Errorf("checking topic %s: %w", topic, err)
			}
		})
	}
	return group.Wait()
}

// Publisher returns the cached publisher for a topic id or resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	resource := topicResourceName(c.projectID, name)
	if resource == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[resource]; ok {
		return pub
	}
	pub := c.client.Publisher(resource)
	if c.settings.PublishDelay > 0 {
		pub.PublishSettings.DelayThreshold = c.settings.PublishDelay
	}
	c.publishers[resource] = pub
	return pub
}

// Close flushes pending messages on every publisher and closes the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for resource, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, resource)
	}
	c.mu.Unlock()
	return c.client.Close()
}

func topicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + name
}
