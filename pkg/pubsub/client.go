package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type resourceKind string

const (
	kindTopic        resourceKind = "topics"
	kindSubscription resourceKind = "subscriptions"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client owns the Pub/Sub connection shared by the outbox publisher, the
// fleet dispatcher and the analytics worker.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

// NewClient connects and verifies every configured topic and subscription.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: psClient, projectID: projectID, cfg: cfg}
	if err := c.verify(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":      projectID,
			"ordersTopic":  cfg.OrdersTopic,
			"fleetTopic":   cfg.FleetDispatchTopic,
			"subscription": cfg.AnalyticsSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

type resourceRef struct {
	kind resourceKind
	name string
}

// resources lists what must exist before the process starts. The orders
// topic is always required; the rest only when configured.
func resources(cfg config.PubSubConfig) []resourceRef {
	refs := []resourceRef{{kind: kindTopic, name: cfg.OrdersTopic}}
	if strings.TrimSpace(cfg.FleetDispatchTopic) != "" {
		refs = append(refs, resourceRef{kind: kindTopic, name: cfg.FleetDispatchTopic})
	}
	for _, sub := range []string{cfg.OrdersSubscription, cfg.AnalyticsSubscription} {
		if strings.TrimSpace(sub) != "" {
			refs = append(refs, resourceRef{kind: kindSubscription, name: sub})
		}
	}
	return refs
}

func (c *Client) verify(ctx context.Context) error {
	for _, ref := range resources(c.cfg) {
		fullName, err := resourceName(c.projectID, ref.kind, ref.name)
		if err != nil {
			return err
		}
		if err := c.lookup(ctx, ref.kind, fullName); err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("pubsub %s %q does not exist", strings.TrimSuffix(string(ref.kind), "s"), ref.name)
			}
			return fmt.Errorf("checking pubsub %s %q: %w", strings.TrimSuffix(string(ref.kind), "s"), ref.name, err)
		}
	}
	return nil
}

func (c *Client) lookup(ctx context.Context, kind resourceKind, fullName string) error {
	var err error
	switch kind {
	case kindTopic:
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
	case kindSubscription:
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: fullName})
	default:
		err = fmt.Errorf("unknown pubsub resource kind %q", kind)
	}
	return err
}

// resourceName expands a short id into projects/<p>/<kind>/<id>. Names that
// are already fully qualified for the same kind pass through untouched.
func resourceName(projectID string, kind resourceKind, name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", fmt.Errorf("pubsub %s name is required", strings.TrimSuffix(string(kind), "s"))
	}
	if strings.HasPrefix(n, "projects/") {
		if !strings.Contains(n, "/"+string(kind)+"/") {
			return "", fmt.Errorf("pubsub name %q is not a %s resource", n, strings.TrimSuffix(string(kind), "s"))
		}
		return n, nil
	}
	if strings.Contains(n, "/") {
		return "", fmt.Errorf("pubsub name %q is malformed", n)
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return "", errProjectIDRequired
	}
	return "projects/" + p + "/" + string(kind) + "/" + n, nil
}

// Subscription returns a subscriber for name, or nil when it cannot be resolved.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	fullName, err := resourceName(c.projectID, kindSubscription, name)
	if err != nil {
		return nil
	}
	return c.client.Subscriber(fullName)
}

func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.AnalyticsSubscription)
}

// Publisher returns a publisher for name, or nil when it cannot be resolved.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName, err := resourceName(c.projectID, kindTopic, name)
	if err != nil {
		return nil
	}
	return c.client.Publisher(fullName)
}

// OrderedPublisher returns a publisher that keeps per-key publish order.
// The outbox uses the order id as key.
func (c *Client) OrderedPublisher(name string) *pubsub.Publisher {
	publisher := c.Publisher(name)
	if publisher == nil {
		return nil
	}
	publisher.EnableMessageOrdering = true
	return publisher
}

func (c *Client) FleetDispatchPublisher() *pubsub.Publisher {
	return c.Publisher(c.cfg.FleetDispatchTopic)
}

// Ping re-runs the startup resource checks.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.verify(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
