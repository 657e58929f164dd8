package main

import (
	"context"
	"strings"

	"github.com/5l1v3r1/kspp-go/streams"
)

// fixedLog is a trivial streams.LogConsumer over a fixed in-memory slice of
// messages, standing in for a real broker so this example runs without one.
// A single partition 0 is served.
type fixedLog struct {
	messages []streams.Message
	cursor   int
}

func newFixedLog(values []string, eventTimeMs []int64) *fixedLog {
	msgs := make([]streams.Message, len(values))
	for i, v := range values {
		msgs[i] = streams.Message{
			KeyBytes:    nil,
			ValueBytes:  []byte(v),
			EventTimeMs: eventTimeMs[i],
			Offset:      int64(i),
		}
	}
	return &fixedLog{messages: msgs}
}

func (f *fixedLog) Start(ctx context.Context, partition int32, offset int64) error {
	f.cursor = int(offset)
	return nil
}

func (f *fixedLog) Stop(partition int32) {}

func (f *fixedLog) Poll(ctx context.Context, partition int32) (*streams.Message, error) {
	if f.cursor >= len(f.messages) {
		return nil, nil
	}
	msg := f.messages[f.cursor]
	f.cursor++
	return &msg, nil
}

func (f *fixedLog) EOF(partition int32) bool { return f.cursor >= len(f.messages) }

func (f *fixedLog) Commit(ctx context.Context, partition int32, nextOffset int64, flush bool) error {
	return nil
}

func (f *fixedLog) QueryWatermarks(ctx context.Context, topic string, partition int32) (low, high int64, err error) {
	return 0, int64(len(f.messages)), nil
}

func (f *fixedLog) PartitionCount(ctx context.Context, topic string) (int32, error) { return 1, nil }

// splitWhitespace is the flat-map split function used by the word-count
// scenario.
func splitWhitespace(s string) []string {
	return strings.Fields(s)
}
