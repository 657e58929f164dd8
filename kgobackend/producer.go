package kgobackend

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is a streams.LogProducer backed by one kgo.Client, tracking the
// number of produced-but-not-yet-acknowledged records so PartitionSink can
// enforce its own backpressure ceiling independent of kgo's internal buffer.
type Producer struct {
	client      *kgo.Client
	outstanding int64
}

// NewProducer builds a Producer over seedBrokers. opts is forwarded to
// kgo.NewClient verbatim, so callers can set idempotence, compression,
// acks, etc. Since PartitionSink always picks the destination partition
// itself, callers must include kgo.RecordPartitioner(kgo.ManualPartitioner())
// so kgo respects kgo.Record.Partition instead of re-hashing the key.
func NewProducer(seedBrokers []string, opts ...kgo.Opt) (*Producer, error) {
	full := append([]kgo.Opt{kgo.SeedBrokers(seedBrokers...)}, opts...)
	client, err := kgo.NewClient(full...)
	if err != nil {
		return nil, fmt.Errorf("kgobackend: new producer client: %w", err)
	}
	return &Producer{client: client}, nil
}

// Close releases the underlying kgo.Client.
func (p *Producer) Close() { p.client.Close() }

// Produce asynchronously ships one record, invoking onDelivery once the
// broker acknowledges it (or rejects it). A nil valueBytes produces a
// tombstone.
func (p *Producer) Produce(ctx context.Context, topic string, partition int32, keyBytes, valueBytes []byte, eventTimeMs int64, onDelivery func(ec int32)) error {
	rec := &kgo.Record{
		Topic:     topic,
		Partition: partition,
		Key:       keyBytes,
		Value:     valueBytes,
		Timestamp: time.UnixMilli(eventTimeMs),
	}
	atomic.AddInt64(&p.outstanding, 1)
	p.client.Produce(ctx, rec, func(_ *kgo.Record, err error) {
		atomic.AddInt64(&p.outstanding, -1)
		if err != nil {
			onDelivery(1)
			return
		}
		onDelivery(0)
	})
	return nil
}

// Outstanding reports how many records have been handed to Produce without
// their delivery callback having fired yet.
func (p *Producer) Outstanding() int {
	return int(atomic.LoadInt64(&p.outstanding))
}

// Flush blocks until every outstanding produce request has been
// acknowledged or failed.
func (p *Producer) Flush(ctx context.Context) error {
	return p.client.Flush(ctx)
}
