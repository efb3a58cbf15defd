package pubsub

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	gax "github.com/googleapis/gax-go/v2"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-sync/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := map[string]struct {
		project string
		name    string
		want    string
	}{
		"bare id":       {project: "proj", name: "orders", want: "projects/proj/topics/orders"},
		"full resource": {project: "proj", name: "projects/other/topics/orders", want: "projects/other/topics/orders"},
		"blank name":    {project: "proj", name: "  ", want: ""},
		"no project":    {project: "", name: "orders", want: ""},
	}
	for name, tc := range cases {
		if got := TopicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("%s: got %q want %q", name, got, tc.want)
		}
	}
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := TopicNames(config.PubSubConfig{OrdersTopic: "orders", CustomersTopic: " "})
	if len(names) != 1 || names[0] != "orders" {
		t.Fatalf("unexpected topics %v", names)
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil); err == nil {
		t.Fatalf("expected error without project id")
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("orders") != nil {
		t.Fatalf("expected nil publisher")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

type fakeTopics struct {
	missing map[string]bool
	err     error
}

func (f *fakeTopics) GetTopic(_ context.Context, req *pubsubpb.GetTopicRequest, _ ...gax.CallOption) (*pubsubpb.Topic, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.missing[req.GetTopic()] {
		return nil, status.Error(codes.NotFound, "topic not found")
	}
	return &pubsubpb.Topic{Name: req.GetTopic()}, nil
}

func TestPingReportsEveryMissingTopic(t *testing.T) {
	c := &Client{
		projectID: "proj",
		names:     []string{"orders", "customers"},
		topics: &fakeTopics{missing: map[string]bool{
			"projects/proj/topics/orders":    true,
			"projects/proj/topics/customers": true,
		}},
	}
	err := c.Ping(context.Background())
	if !errors.Is(err, ErrTopicMissing) {
		t.Fatalf("expected ErrTopicMissing, got %v", err)
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Fatalf("expected both topics reported, got %d: %v", n, err)
	}

	c.topics = &fakeTopics{}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("expected healthy ping, got %v", err)
	}

	c.topics = &fakeTopics{err: status.Error(codes.PermissionDenied, "denied")}
	if err := c.Ping(context.Background()); err == nil || errors.Is(err, ErrTopicMissing) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestTopicNamesDedupesSharedTopic(t *testing.T) {
	names := TopicNames(config.PubSubConfig{OrdersTopic: "events", CustomersTopic: "events"})
	if len(names) != 1 {
		t.Fatalf("expected shared topic once, got %v", names)
	}
}
