package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type readyEvent struct {
	Phase string `json:"phase"`
}

func (e readyEvent) Attributes() map[string]string {
	return map[string]string{"event_type": "server.ready"}
}

func fakeServerOptions(t *testing.T) (*pstest.Server, []option.ClientOption) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	return srv, []option.ClientOption{
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
}

func TestPublisherPublishesJSON(t *testing.T) {
	ctx := context.Background()
	srv, opts := fakeServerOptions(t)

	admin, err := pubsub.NewClient(ctx, "empire", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })
	_, err = admin.CreateTopic(ctx, "server-ready")
	require.NoError(t, err)

	pub, err := Connect(ctx, Config{ProjectID: "empire", TopicID: "server-ready"}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pub.Close()) })

	id, err := pub.Publish(ctx, "server-ready", readyEvent{Phase: "normal_ready"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.JSONEq(t, `{"phase":"normal_ready"}`, string(msgs[0].Data))
	require.Equal(t, "server.ready", msgs[0].Attributes["event_type"])
}

func TestConnectMissingTopic(t *testing.T) {
	_, opts := fakeServerOptions(t)

	_, err := Connect(context.Background(), Config{ProjectID: "empire", TopicID: "absent"}, opts...)
	require.ErrorContains(t, err, "does not exist")

	_, err = Connect(context.Background(), Config{ProjectID: "empire"}, opts...)
	require.Error(t, err)
}

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), "server-ready", nil)
	require.ErrorContains(t, err, "not configured")
	require.NoError(t, (&Publisher{}).Close())
}
