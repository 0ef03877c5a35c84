package awsclient

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usedatabrew/kinesis-producer/internal/integration"
	"github.com/usedatabrew/kinesis-producer/internal/producer"
)

// TestKinesisClientIntegration exercises PutRecords and ListShards against a
// real kinesis-local container with a freshly created two-shard stream.
func TestKinesisClientIntegration(t *testing.T) {
	integration.CheckSkip(t)

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("could not connect to docker: %s", err)
	}
	pool.MaxWait = 30 * time.Second

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "vsouza/kinesis-local",
		Cmd:        []string{"--createStreamMs=5"},
	})
	require.NoError(t, err)
	defer func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("failed to clean up docker resource: %v", err)
		}
	}()

	port, err := strconv.ParseInt(resource.GetPort("4567/tcp"), 10, 64)
	require.NoError(t, err)
	endpoint := fmt.Sprintf("http://localhost:%d", port)

	sess := session.Must(session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials("xxxxx", "xxxxx", "xxxxx"),
		Endpoint:    aws.String(endpoint),
		Region:      aws.String("us-east-1"),
	}))
	rawClient := kinesis.New(sess)

	require.NoError(t, pool.Retry(func() error {
		_, err := rawClient.CreateStream(&kinesis.CreateStreamInput{
			ShardCount: aws.Int64(2),
			StreamName: aws.String("test-stream"),
		})
		return err
	}))

	client := NewFromAPI(rawClient)
	ctx := context.Background()

	shards, err := client.ListShards(ctx, "test-stream")
	require.NoError(t, err)
	require.Len(t, shards, 2)

	results, err := client.PutRecords(ctx, "test-stream", []producer.PutRecordsEntry{
		{PartitionKey: "k1", Data: []byte("hello")},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].SequenceNumber)
	assert.NotEmpty(t, results[0].ShardID)
	assert.Empty(t, results[0].ErrorCode)
}
