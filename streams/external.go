package streams

import "context"

// StartOffset selects where a PartitionSource begins reading.
type StartOffset int64

const (
	// Beginning reads from the earliest retained offset.
	Beginning StartOffset = -2
	// End reads only records produced after the source starts.
	End StartOffset = -1
	// Stored reads from the stored consumer-group position, falling back
	// to Beginning if none exists.
	Stored StartOffset = -3
)

// ExplicitOffset wraps a non-negative literal offset for StartOffset use;
// any int64 >= 0 is also a legal StartOffset value.
func ExplicitOffset(o int64) StartOffset {
	if o < 0 {
		panic("streams: explicit start offset must be >= 0")
	}
	return StartOffset(o)
}

// Message is a single fetched record from the external log, prior to
// decoding.
type Message struct {
	KeyBytes    []byte
	ValueBytes  []byte
	EventTimeMs int64
	Offset      int64
}

// LogConsumer is the external collaborator a PartitionSource pulls from. Its
// broker protocol, partition assignment, and metadata handling are out of
// scope for the core; the core only depends on this interface.
type LogConsumer interface {
	Start(ctx context.Context, partition int32, offset int64) error
	Stop(partition int32)
	Poll(ctx context.Context, partition int32) (*Message, error)
	EOF(partition int32) bool
	Commit(ctx context.Context, partition int32, nextOffset int64, flush bool) error
	QueryWatermarks(ctx context.Context, topic string, partition int32) (low, high int64, err error)
	PartitionCount(ctx context.Context, topic string) (int32, error)
}

// DeliveryCallback is invoked by a LogProducer once a produced message's
// outcome is known. ec == 0 means success; any other value is an
// implementation-defined delivery error code.
type DeliveryCallback func(ec int32)

// LogProducer is the external collaborator a PartitionSink (partition- or
// topic-level) hands
// encoded records to.
type LogProducer interface {
	Produce(ctx context.Context, topic string, partition int32, keyBytes, valueBytes []byte, eventTimeMs int64, onDelivery DeliveryCallback) error
	Outstanding() int
	Flush(ctx context.Context) error
}

// Codec encodes and decodes values of type V to and from wire bytes. Key and
// value each get their own codec instance; V may be the empty struct for
// void keys/values.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(b []byte) (V, error)
}
