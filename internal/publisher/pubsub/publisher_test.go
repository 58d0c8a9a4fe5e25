package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pspublisher "github.com/JakeFAU/scrape-gateway/internal/publisher/pubsub"
)

type taggedPayload struct {
	RunID string `json:"run_id"`
}

func (p taggedPayload) Attributes() map[string]string {
	return map[string]string{"run_id": p.RunID}
}

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "scrape-runs")
	require.NoError(t, err)
	return srv, topic
}

func TestPublisherPublishesJSON(t *testing.T) {
	srv, topic := newTestTopic(t)
	pub := pspublisher.New(topic)
	defer pub.Stop()

	id, err := pub.Publish(context.Background(), "scrape-runs", taggedPayload{RunID: "run-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got taggedPayload
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "run-1", msgs[0].Attributes["run_id"])
}

func TestPublisherRejectsUnmarshalablePayload(t *testing.T) {
	_, topic := newTestTopic(t)
	pub := pspublisher.New(topic)
	defer pub.Stop()

	_, err := pub.Publish(context.Background(), "scrape-runs", make(chan int))
	assert.ErrorContains(t, err, "marshal payload")
}

func TestPublisherWithoutTopic(t *testing.T) {
	_, err := pspublisher.New(nil).Publish(context.Background(), "scrape-runs", taggedPayload{})
	assert.ErrorContains(t, err, "not configured")
}
