package streams

import (
	"context"
	"errors"
	"testing"
)

// scriptedLog is an in-memory LogConsumer serving a fixed message slice for
// one partition, with a committable stored position so restart semantics can
// be exercised without a broker.
type scriptedLog struct {
	messages  []Message
	low, high int64
	cursor    int
	started   int64 // offset the last Start resolved to
	stored    int64
	hasStored bool
	flushed   int
}

func newScriptedLog(messages ...Message) *scriptedLog {
	l := &scriptedLog{messages: messages, started: -1}
	if len(messages) > 0 {
		l.low = messages[0].Offset
		l.high = messages[len(messages)-1].Offset + 1
	}
	return l
}

func (l *scriptedLog) Start(_ context.Context, _ int32, offset int64) error {
	if offset == int64(Stored) {
		offset = l.low
		if l.hasStored {
			offset = l.stored
		}
	}
	l.started = offset
	l.cursor = 0
	for l.cursor < len(l.messages) && l.messages[l.cursor].Offset < offset {
		l.cursor++
	}
	return nil
}

func (l *scriptedLog) Stop(int32) {}

func (l *scriptedLog) Poll(context.Context, int32) (*Message, error) {
	if l.cursor >= len(l.messages) {
		return nil, nil
	}
	msg := l.messages[l.cursor]
	l.cursor++
	return &msg, nil
}

func (l *scriptedLog) EOF(int32) bool { return l.cursor >= len(l.messages) }

func (l *scriptedLog) Commit(_ context.Context, _ int32, nextOffset int64, flush bool) error {
	l.stored = nextOffset
	l.hasStored = true
	if flush {
		l.flushed++
	}
	return nil
}

func (l *scriptedLog) QueryWatermarks(context.Context, string, int32) (int64, int64, error) {
	return l.low, l.high, nil
}

func (l *scriptedLog) PartitionCount(context.Context, string) (int32, error) { return 1, nil }

// textCodec round-trips strings as raw bytes, the minimal codec the
// source/sink tests need.
type textCodec struct{}

func (textCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }
func (textCodec) Decode(b []byte) (string, error) { return string(b), nil }

// rejectCodec fails to encode or decode one specific string, for exercising
// the decode-error and encode-error paths.
type rejectCodec struct{ bad string }

func (c rejectCodec) Encode(v string) ([]byte, error) {
	if v == c.bad {
		return nil, errors.New("unrepresentable value")
	}
	return []byte(v), nil
}

func (c rejectCodec) Decode(b []byte) (string, error) {
	if string(b) == c.bad {
		return "", errors.New("undecodable value")
	}
	return string(b), nil
}

func newTestSource(log LogConsumer, valueCodec Codec[string], queueSize int) *PartitionSource[string, string] {
	return NewPartitionSource(PartitionSourceConfig[string, string]{
		Name:       "events",
		Topic:      "events",
		Partition:  0,
		Consumer:   log,
		KeyCodec:   textCodec{},
		ValueCodec: valueCodec,
		QueueSize:  queueSize,
	})
}

func msg(key, value string, eventTimeMs, offset int64) Message {
	return Message{KeyBytes: []byte(key), ValueBytes: []byte(value), EventTimeMs: eventTimeMs, Offset: offset}
}

// Out-of-order downstream completion must hold the committed position at the
// contiguous prefix, and a restart from Stored must resume exactly where the
// last commit left off.
func TestPartitionSourceCommitAndRestart(t *testing.T) {
	log := newScriptedLog(
		msg("k", "a", 1, 10),
		msg("k", "b", 2, 11),
		msg("k", "c", 3, 12),
	)
	src := newTestSource(log, textCodec{}, 0)
	if err := src.Start(ExplicitOffset(10)); err != nil {
		t.Fatal(err)
	}
	if log.started != 10 {
		t.Fatalf("consumer started at %d, want 10", log.started)
	}
	if n := src.Process(10); n != 3 {
		t.Fatalf("handled %d, want 3", n)
	}

	var envs []Envelope[string, string]
	for {
		env, ok := src.Output().Pop()
		if !ok {
			break
		}
		envs = append(envs, env)
	}
	if len(envs) != 3 {
		t.Fatalf("got %d envelopes, want 3", len(envs))
	}

	chain := src.CommitChainRef()
	envs[0].Release()
	if got := chain.LastGoodOffset(); got != 10 {
		t.Fatalf("after 10 completes: last good %d, want 10", got)
	}
	envs[2].Release()
	if got := chain.LastGoodOffset(); got != 10 {
		t.Fatalf("after 12 completes out of order: last good %d, want 10", got)
	}
	if err := src.Commit(false); err != nil {
		t.Fatal(err)
	}
	if log.stored != 11 {
		t.Fatalf("mid-flight commit stored %d, want 11", log.stored)
	}
	envs[1].Release()
	if got := chain.LastGoodOffset(); got != 12 {
		t.Fatalf("after 11 completes: last good %d, want 12", got)
	}
	if err := src.Commit(true); err != nil {
		t.Fatal(err)
	}
	if log.stored != 13 {
		t.Fatalf("final commit stored %d, want 13", log.stored)
	}
	if log.flushed != 1 {
		t.Fatalf("flushed %d times, want 1", log.flushed)
	}

	restarted := newTestSource(log, textCodec{}, 0)
	if err := restarted.Start(Stored); err != nil {
		t.Fatal(err)
	}
	if log.started != 13 {
		t.Fatalf("restart from Stored resumed at %d, want 13", log.started)
	}
}

func TestPartitionSourceStoredFallsBackToBeginning(t *testing.T) {
	log := newScriptedLog(msg("k", "a", 1, 5), msg("k", "b", 2, 6))
	src := newTestSource(log, textCodec{}, 0)
	if err := src.Start(Stored); err != nil {
		t.Fatal(err)
	}
	if log.started != 5 {
		t.Fatalf("started at %d, want the low watermark 5", log.started)
	}
}

// A value that fails to decode is skipped with the commit chain advancing
// past its offset, so one poison record never wedges the consumer position.
func TestPartitionSourceDecodeErrorSkips(t *testing.T) {
	log := newScriptedLog(
		msg("k", "good", 1, 0),
		msg("k", "bad", 2, 1),
		msg("k", "good", 3, 2),
	)
	src := newTestSource(log, rejectCodec{bad: "bad"}, 0)
	if err := src.Start(Beginning); err != nil {
		t.Fatal(err)
	}
	if n := src.Process(10); n != 2 {
		t.Fatalf("handled %d, want 2", n)
	}
	if got := src.QueueSize(); got != 2 {
		t.Fatalf("queued %d envelopes, want 2", got)
	}
	for {
		env, ok := src.Output().Pop()
		if !ok {
			break
		}
		env.Release()
	}
	if got := src.CommitChainRef().LastGoodOffset(); got != 2 {
		t.Fatalf("last good %d, want 2 (chain advances past the bad offset)", got)
	}
}

// A polled message whose event-time is beyond now is held for the next tick,
// not dropped.
func TestPartitionSourceHoldsMessageAheadOfNow(t *testing.T) {
	log := newScriptedLog(msg("k", "late", 100, 0))
	src := newTestSource(log, textCodec{}, 0)
	if err := src.Start(Beginning); err != nil {
		t.Fatal(err)
	}
	if n := src.Process(50); n != 0 {
		t.Fatalf("handled %d before the event-time boundary, want 0", n)
	}
	if src.EOF() {
		t.Fatal("EOF with a held message")
	}
	if n := src.Process(100); n != 1 {
		t.Fatalf("handled %d once the boundary passed, want 1", n)
	}
}

// A full output queue refuses further pulls from the consumer, bounding the
// source's memory regardless of how much the log has buffered.
func TestPartitionSourceBackpressure(t *testing.T) {
	log := newScriptedLog(
		msg("k", "a", 1, 0),
		msg("k", "b", 1, 1),
		msg("k", "c", 1, 2),
		msg("k", "d", 1, 3),
		msg("k", "e", 1, 4),
	)
	src := newTestSource(log, textCodec{}, 2)
	if err := src.Start(Beginning); err != nil {
		t.Fatal(err)
	}
	if n := src.Process(10); n != 2 {
		t.Fatalf("handled %d with a full queue downstream, want 2", n)
	}
	if got := src.QueueSize(); got != 2 {
		t.Fatalf("queue plateaued at %d, want 2", got)
	}
	env, _ := src.Output().Pop()
	env.Release()
	if n := src.Process(10); n != 1 {
		t.Fatalf("handled %d after draining one slot, want 1", n)
	}
}
