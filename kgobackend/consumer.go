// Package kgobackend adapts github.com/twmb/franz-go/pkg/kgo to the core
// engine's streams.LogConsumer/streams.LogProducer interfaces, the only
// seam the core knows about. Broker protocol, partition assignment, and
// topic metadata all live here; the core package never imports kgo
// directly.
package kgobackend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/5l1v3r1/kspp-go/streams"
)

const defaultFetchTimeout = 2 * time.Second

// partitionBuffer holds records fetched for one partition that have not yet
// been handed out through Poll.
type partitionBuffer struct {
	records []*kgo.Record
	atEnd   bool
}

// Consumer is a streams.LogConsumer backed by one shared kgo.Client reading
// a single fixed topic, with partitions added to and removed from direct
// consumption as the topology starts and stops them —
// the same AddConsumePartitions/RemoveConsumePartitions pattern the wider
// franz-go ecosystem uses to hand one partition's worth of records to its
// own worker.
type Consumer struct {
	client       *kgo.Client
	admin        *kadm.Client
	topic        string
	groupID      string
	fetchTimeout time.Duration

	mu      sync.Mutex
	buffers map[int32]*partitionBuffer
}

// NewConsumer builds a Consumer over seedBrokers reading topic, with no
// partitions assigned yet; partitions are added on Start and removed on
// Stop. groupID is a bookkeeping label only — partitions are assigned
// directly rather than through kgo's group-balancing protocol, the same
// manual-assignment style the wider franz-go ecosystem uses when an
// external scheduler (here, the topology driver) already owns partition
// placement.
func NewConsumer(seedBrokers []string, topic, groupID string, opts ...kgo.Opt) (*Consumer, error) {
	full := append([]kgo.Opt{kgo.SeedBrokers(seedBrokers...)}, opts...)
	client, err := kgo.NewClient(full...)
	if err != nil {
		return nil, fmt.Errorf("kgobackend: new consumer client: %w", err)
	}
	return &Consumer{
		client:       client,
		admin:        kadm.NewClient(client),
		topic:        topic,
		groupID:      groupID,
		fetchTimeout: defaultFetchTimeout,
		buffers:      make(map[int32]*partitionBuffer),
	}, nil
}

// Close releases the underlying kgo.Client.
func (c *Consumer) Close() { c.client.Close() }

func (c *Consumer) Start(ctx context.Context, partition int32, offset int64) error {
	at := kgo.NewOffset().At(offset)
	if offset == int64(streams.Stored) {
		// Resolve the stored consumer-group position; fall back to the
		// earliest retained offset when the group has none.
		at = kgo.NewOffset().AtStart()
		resp, err := c.admin.FetchOffsets(ctx, c.groupID)
		if err != nil {
			return fmt.Errorf("kgobackend: fetch stored offsets: %w", err)
		}
		if o, ok := resp.Lookup(c.topic, partition); ok && o.At >= 0 {
			at = kgo.NewOffset().At(o.At)
		}
	}
	c.mu.Lock()
	c.buffers[partition] = &partitionBuffer{}
	c.mu.Unlock()
	c.client.AddConsumePartitions(map[string]map[int32]kgo.Offset{
		c.topic: {partition: at},
	})
	return nil
}

func (c *Consumer) Stop(partition int32) {
	c.client.RemoveConsumePartitions(map[string][]int32{c.topic: {partition}})
	c.mu.Lock()
	delete(c.buffers, partition)
	c.mu.Unlock()
}

// Poll returns the next fetched record for partition, or (nil, nil) if
// nothing is currently available. It services every assigned partition's
// buffer from a single shared PollFetches call, since kgo multiplexes all
// directly-consumed partitions over one client.
func (c *Consumer) Poll(ctx context.Context, partition int32) (*streams.Message, error) {
	c.mu.Lock()
	buf, ok := c.buffers[partition]
	if ok && len(buf.records) > 0 {
		rec := buf.records[0]
		buf.records = buf.records[1:]
		buf.atEnd = false
		c.mu.Unlock()
		return recordToMessage(rec), nil
	}
	c.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	fetches := c.client.PollFetches(fetchCtx)
	if err := fetches.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("kgobackend: poll fetches: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fetches.EachPartition(func(fp kgo.FetchTopicPartition) {
		b, ok := c.buffers[fp.Partition]
		if !ok {
			return
		}
		b.records = append(b.records, fp.FetchPartition.Records...)
	})

	buf, ok = c.buffers[partition]
	if !ok || len(buf.records) == 0 {
		if ok {
			buf.atEnd = true
		}
		return nil, nil
	}
	rec := buf.records[0]
	buf.records = buf.records[1:]
	return recordToMessage(rec), nil
}

func (c *Consumer) EOF(partition int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf, ok := c.buffers[partition]
	return ok && buf.atEnd && len(buf.records) == 0
}

// Commit persists nextOffset (the next offset to read, not the last one
// handled) as partition's durable consumer position. flush=false fires the
// commit in the background and returns immediately; flush=true blocks for
// the broker's acknowledgment.
func (c *Consumer) Commit(ctx context.Context, partition int32, nextOffset int64, flush bool) error {
	offsets := kadm.Offsets{}
	offsets.Add(kadm.Offset{Topic: c.topic, Partition: partition, At: nextOffset})
	if !flush {
		go c.admin.CommitOffsets(context.Background(), c.groupID, offsets)
		return nil
	}
	_, err := c.admin.CommitOffsets(ctx, c.groupID, offsets)
	return err
}

func (c *Consumer) QueryWatermarks(ctx context.Context, topic string, partition int32) (low, high int64, err error) {
	startOffsets, err := c.admin.ListStartOffsets(ctx, topic)
	if err != nil {
		return 0, 0, fmt.Errorf("kgobackend: list start offsets: %w", err)
	}
	endOffsets, err := c.admin.ListEndOffsets(ctx, topic)
	if err != nil {
		return 0, 0, fmt.Errorf("kgobackend: list end offsets: %w", err)
	}
	lo, ok := startOffsets.Lookup(topic, partition)
	if !ok {
		return 0, 0, fmt.Errorf("kgobackend: no start offset for %s[%d]", topic, partition)
	}
	hi, ok := endOffsets.Lookup(topic, partition)
	if !ok {
		return 0, 0, fmt.Errorf("kgobackend: no end offset for %s[%d]", topic, partition)
	}
	return lo.Offset, hi.Offset, nil
}

func (c *Consumer) PartitionCount(ctx context.Context, topic string) (int32, error) {
	metadata, err := c.admin.Metadata(ctx, topic)
	if err != nil {
		return 0, fmt.Errorf("kgobackend: metadata: %w", err)
	}
	details, ok := metadata.Topics[topic]
	if !ok {
		return 0, fmt.Errorf("kgobackend: topic %s not found", topic)
	}
	return int32(len(details.Partitions)), nil
}

func recordToMessage(rec *kgo.Record) *streams.Message {
	return &streams.Message{
		KeyBytes:    rec.Key,
		ValueBytes:  rec.Value,
		EventTimeMs: rec.Timestamp.UnixMilli(),
		Offset:      rec.Offset,
	}
}
