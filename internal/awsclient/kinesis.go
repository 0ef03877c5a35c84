// Package awsclient implements producer.StreamClient over the AWS SDK v1
// Kinesis client, the only concrete stream-service binding this repository
// ships. Producer code depends only on the producer.StreamClient interface;
// this package is the one place that imports aws-sdk-go's kinesis service.
package awsclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"

	"github.com/usedatabrew/kinesis-producer/internal/producer"
)

// KinesisClient adapts kinesisiface.KinesisAPI to producer.StreamClient.
type KinesisClient struct {
	api kinesisiface.KinesisAPI
}

// New wraps an existing session into a KinesisClient.
func New(sess *session.Session) *KinesisClient {
	return &KinesisClient{api: kinesis.New(sess)}
}

// NewFromAPI wraps an already-constructed kinesisiface.KinesisAPI, chiefly
// useful for tests that substitute a mock or a kinesis-local session.
func NewFromAPI(api kinesisiface.KinesisAPI) *KinesisClient {
	return &KinesisClient{api: api}
}

// PutRecords issues a single put_records RPC, translating entries and
// results across the producer.PutRecordsEntry / PutRecordsResultEntry
// boundary. Results are returned in the same positional order the API
// guarantees.
func (c *KinesisClient) PutRecords(ctx context.Context, streamName string, entries []producer.PutRecordsEntry) ([]producer.PutRecordsResultEntry, error) {
	req := &kinesis.PutRecordsInput{
		StreamName: aws.String(streamName),
		Records:    make([]*kinesis.PutRecordsRequestEntry, len(entries)),
	}
	for i, e := range entries {
		entry := &kinesis.PutRecordsRequestEntry{
			PartitionKey: aws.String(e.PartitionKey),
			Data:         e.Data,
		}
		if e.ExplicitHashKey != "" {
			entry.ExplicitHashKey = aws.String(e.ExplicitHashKey)
		}
		req.Records[i] = entry
	}

	out, err := c.api.PutRecordsWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("awsclient: put_records: %w", err)
	}

	results := make([]producer.PutRecordsResultEntry, len(out.Records))
	for i, r := range out.Records {
		results[i] = producer.PutRecordsResultEntry{
			SequenceNumber: aws.StringValue(r.SequenceNumber),
			ShardID:        aws.StringValue(r.ShardId),
			ErrorCode:      aws.StringValue(r.ErrorCode),
			ErrorMessage:   aws.StringValue(r.ErrorMessage),
		}
	}
	return results, nil
}

// ListShards enumerates every shard of streamName, following the NextToken
// pagination cursor, and parses each shard's starting hash key (a decimal
// uint128 string) into the big-endian 16-byte form the topology cache uses.
func (c *KinesisClient) ListShards(ctx context.Context, streamName string) ([]producer.ShardDescriptor, error) {
	var descriptors []producer.ShardDescriptor

	req := &kinesis.ListShardsInput{StreamName: aws.String(streamName)}
	for {
		out, err := c.api.ListShardsWithContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("awsclient: list_shards: %w", err)
		}

		for _, shard := range out.Shards {
			hashKey, err := parseHashKey(aws.StringValue(shard.HashKeyRange.StartingHashKey))
			if err != nil {
				return nil, fmt.Errorf("awsclient: parsing starting hash key of shard %q: %w", aws.StringValue(shard.ShardId), err)
			}
			descriptors = append(descriptors, producer.ShardDescriptor{
				ShardID:         aws.StringValue(shard.ShardId),
				StartingHashKey: hashKey,
			})
		}

		if out.NextToken == nil {
			break
		}
		req = &kinesis.ListShardsInput{NextToken: out.NextToken}
	}

	return descriptors, nil
}

// parseHashKey parses a decimal uint128 string (as returned in
// HashKeyRange.StartingHashKey) into its big-endian 16-byte representation.
func parseHashKey(decimal string) ([16]byte, error) {
	var out [16]byte

	n, ok := new(big.Int).SetString(decimal, 10)
	if !ok {
		return out, fmt.Errorf("invalid uint128 decimal %q", decimal)
	}

	b := n.Bytes() // big-endian, no leading zero padding
	if len(b) > 16 {
		return out, fmt.Errorf("hash key %q overflows 128 bits", decimal)
	}
	copy(out[16-len(b):], b)
	return out, nil
}
