package streams

import "testing"

// Vectors from the Apache Kafka client's own murmur2 test suite, so any
// drift from broker-compatible partitioning fails loudly.
func TestMurmur2KafkaVectors(t *testing.T) {
	cases := []struct {
		key  string
		hash uint32
	}{
		{"", 0x106e08d9},
		{"21", 0xc5f2f8ec},
		{"abc", 0x1c94221b},
		{"foobar", 0xd0e47bbe},
		{"a-little-bit-long-string", 0xc53b1da0},
		{"a-little-bit-longer-string", 0xa768c9c3},
		{"lkjh234lh9fiuh90y23oiuhsafujhadof229phr9h19h89h8", 0xfc7d49cd},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			if got := murmur2([]byte(tc.key)); got != tc.hash {
				t.Fatalf("murmur2(%q) = %#x, want %#x", tc.key, got, tc.hash)
			}
		})
	}
}

func TestKafkaPartitionHashClearsSignBit(t *testing.T) {
	if got := kafkaPartitionHash([]byte("21")); got != 0x45f2f8ec {
		t.Fatalf("kafkaPartitionHash(\"21\") = %#x, want %#x", got, 0x45f2f8ec)
	}
	for _, key := range []string{"", "21", "foobar", "partition-me"} {
		if got := kafkaPartitionHash([]byte(key)); got > 0x7fffffff {
			t.Fatalf("kafkaPartitionHash(%q) = %#x has the sign bit set", key, got)
		}
	}
}
