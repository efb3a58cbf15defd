// Package pubsub holds the Pub/Sub connection the outbox publisher fans
// order and customer events out through.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	gax "github.com/googleapis/gax-go/v2"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-sync/pkg/config"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
)

// ErrTopicMissing marks a configured topic that does not exist in the
// project. Topics are provisioned by infrastructure, never created here.
var ErrTopicMissing = errors.New("pubsub topic does not exist")

type topicGetter interface {
	GetTopic(ctx context.Context, req *pubsubpb.GetTopicRequest, opts ...gax.CallOption) (*pubsubpb.Topic, error)
}

type Client struct {
	client    *pubsub.Client
	topics    topicGetter
	projectID string
	names     []string
}

// NewClient connects to the project and fails unless every configured topic
// exists. PUBSUB_EMULATOR_HOST is honoured by the underlying library.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	names := TopicNames(cfg)
	if len(names) == 0 {
		return nil, errors.New("at least one pubsub topic is required")
	}

	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	c := &Client{client: raw, topics: raw.TopicAdminClient, projectID: projectID, names: names}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project": projectID, "topics": names}), "pubsub client initialized")
	}
	return c, nil
}

// TopicNames lists the distinct non-empty configured topics. Customers may
// share the orders topic.
func TopicNames(cfg config.PubSubConfig) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, name := range []string{cfg.OrdersTopic, cfg.CustomersTopic} {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Ping looks every configured topic up and reports all failures together.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.topics == nil {
		return errors.New("pubsub client not initialized")
	}
	var errs error
	for _, name := range c.names {
		_, err := c.topics.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: TopicResourceName(c.projectID, name)})
		switch {
		case err == nil:
		case status.Code(err) == codes.NotFound:
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", ErrTopicMissing, name))
		default:
			errs = multierr.Append(errs, fmt.Errorf("get topic %s: %w", name, err))
		}
	}
	return errs
}

// Publisher returns a handle for a topic id or full resource name. The
// caller owns it and must Stop it.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	resource := TopicResourceName(c.projectID, name)
	if resource == "" {
		return nil
	}
	return c.client.Publisher(resource)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// TopicResourceName expands a bare topic id into projects/<p>/topics/<id>.
func TopicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/"):
		return name
	case strings.TrimSpace(projectID) == "":
		return ""
	}
	return "projects/" + strings.TrimSpace(projectID) + "/topics/" + name
}
