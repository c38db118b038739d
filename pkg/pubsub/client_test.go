package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/greenline-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/p1/topics/gl-order-events", resourceName("p1", "topics", " gl-order-events "))
	assert.Equal(t, "projects/other/topics/t", resourceName("p1", "topics", "projects/other/topics/t"))
	assert.Equal(t, "projects/p1/subscriptions/sub", resourceName("p1", "subscriptions", "sub"))
	assert.Empty(t, resourceName("p1", "topics", "  "))
	assert.Empty(t, resourceName("", "topics", "t"))
}

func TestClientOptions(t *testing.T) {
	assert.Empty(t, clientOptions(config.GCPConfig{ProjectID: "p1"}))
	assert.Len(t, clientOptions(config.GCPConfig{ProjectID: "p1", CredentialsJSON: `{"type":"service_account"}`}), 1)
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{OrdersTopic: "t"}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("t"))
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}

func TestLookupErr(t *testing.T) {
	assert.NoError(t, lookupErr("topic", "t", nil))
	assert.EqualError(t, lookupErr("topic", "t", status.Error(codes.NotFound, "gone")), `topic "t" does not exist`)

	err := lookupErr("subscription", "s", status.Error(codes.PermissionDenied, "denied"))
	assert.ErrorContains(t, err, `checking subscription "s"`)
	assert.Equal(t, codes.PermissionDenied, status.Code(errors.Unwrap(err)))
}
