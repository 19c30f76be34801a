package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		name    string
		kind    resourceKind
		input   string
		want    string
		wantErr bool
	}{
		{name: "short topic", kind: kindTopic, input: "orders", want: "projects/proj/topics/orders"},
		{name: "trims", kind: kindSubscription, input: "  analytics ", want: "projects/proj/subscriptions/analytics"},
		{name: "qualified passthrough", kind: kindTopic, input: "projects/other/topics/orders", want: "projects/other/topics/orders"},
		{name: "qualified wrong kind", kind: kindTopic, input: "projects/other/subscriptions/orders", wantErr: true},
		{name: "malformed", kind: kindTopic, input: "a/b", wantErr: true},
		{name: "empty", kind: kindSubscription, input: " ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resourceName("proj", tc.kind, tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResourceNameNeedsProject(t *testing.T) {
	_, err := resourceName("", kindTopic, "orders")
	assert.ErrorIs(t, err, errProjectIDRequired)
}

func TestResourcesOnlyListsConfigured(t *testing.T) {
	refs := resources(config.PubSubConfig{OrdersTopic: "orders", AnalyticsSubscription: "analytics"})
	assert.Equal(t, []resourceRef{
		{kind: kindTopic, name: "orders"},
		{kind: kindSubscription, name: "analytics"},
	}, refs)

	refs = resources(config.PubSubConfig{OrdersTopic: "orders", FleetDispatchTopic: "fleet", OrdersSubscription: "downstream"})
	assert.Len(t, refs, 3)
	assert.Equal(t, kindTopic, refs[1].kind)
	assert.Equal(t, kindSubscription, refs[2].kind)
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("orders"))
	assert.Nil(t, c.OrderedPublisher("orders"))
	assert.Nil(t, c.Subscription("analytics"))
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}

func TestClientOptions(t *testing.T) {
	assert.Nil(t, clientOptions(config.GCPConfig{}))
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds.json"}), 1)
}
