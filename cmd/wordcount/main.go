// Command wordcount is a minimal, runnable word-count
// topology: a void-keyed source of sentences is
// split into individual words by a flat-map, counted by key, and the
// counts are punctuated every second of event-time.
package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/5l1v3r1/kspp-go/codec"
	"github.com/5l1v3r1/kspp-go/store"
	"github.com/5l1v3r1/kspp-go/streams"
)

func main() {
	registry := prometheus.NewRegistry()

	log := newFixedLog(
		[]string{"hello world", "hello", "world world"},
		[]int64{0, 0, 0},
	)

	source := streams.NewPartitionSource(streams.PartitionSourceConfig[struct{}, string]{
		Name:       "sentences",
		Topic:      "sentences",
		Partition:  0,
		Consumer:   log,
		KeyCodec:   codec.Void{},
		ValueCodec: codec.Text{},
		Registry:   registry,
	})

	split := streams.NewFlatMap[struct{}, string, string, any]("split", source, func(rec streams.Record[struct{}, string], push streams.Pusher[string, any]) {
		if rec.Value == nil {
			return
		}
		for _, word := range splitWhitespace(*rec.Value) {
			push.Push(word, struct{}{}, rec.EventTimeMs)
		}
	}, registry)

	counterStore := store.NewMemCounter[string]("")
	const punctuateIntervalMs = 1000
	count := streams.NewCountByKey[string]("word_count", split, counterStore, punctuateIntervalMs, registry)

	topo := streams.NewTopology(streams.TopologyConfig{AppID: "wordcount-example", Registry: registry})
	topo.AddLeaf(count)

	if err := topo.Start(streams.Beginning); err != nil {
		panic(err)
	}
	defer topo.Close()

	// Drive event-time past the 1s punctuation boundary so the counts
	// accumulated at t=0 are emitted.
	for _, now := range []int64{0, punctuateIntervalMs} {
		topo.Tick(now)
		drain(count)
	}
}

func drain(count *streams.CountByKey[string]) {
	out := count.Output()
	for {
		env, ok := out.Pop()
		if !ok {
			return
		}
		if env.HasRecord() {
			fmt.Printf("(%q, %d)\n", env.Record.Key, *env.Record.Value)
		}
	}
}
