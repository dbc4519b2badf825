package pubsub_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	publisher "github.com/JakeFAU/scholarship-finder/internal/publisher/pubsub"
)

type event struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

func (e event) Attributes() map[string]string {
	return map[string]string{"kind": e.Kind}
}

func TestPublisherDeliversJSONWithAttributes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "refreshes")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "refreshes-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	pub := publisher.New(client)
	id, err := pub.Publish(ctx, "refreshes", event{Kind: "refresh.completed", Count: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	received := make(chan *pubsub.Message, 1)
	recvCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case received <- msg:
			default:
			}
			stop()
		})
	}()

	select {
	case msg := <-received:
		assert.JSONEq(t, `{"kind":"refresh.completed","count":3}`, string(msg.Data))
		assert.Equal(t, "refresh.completed", msg.Attributes["kind"])
		assert.Equal(t, "application/json", msg.Attributes["content-type"])
	case <-ctx.Done():
		t.Fatal("message was not delivered")
	}
}

func TestPublisherRejectsMissingTopicAndClient(t *testing.T) {
	t.Parallel()

	_, err := publisher.New(nil).Publish(context.Background(), "topic", event{})
	assert.ErrorContains(t, err, "not configured")

	_, err = publisher.Dial(context.Background(), "")
	assert.ErrorContains(t, err, "project id")
}

func TestPublisherRejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	srv := pstest.NewServer()
	defer srv.Close()
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client, err := pubsub.NewClient(context.Background(), "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	pub := publisher.New(client)
	_, err = pub.Publish(context.Background(), "refreshes", map[string]any{"bad": make(chan int)})
	assert.ErrorContains(t, err, "marshal payload")
	_, err = pub.Publish(context.Background(), "", event{})
	assert.ErrorContains(t, err, "topic is required")
}
