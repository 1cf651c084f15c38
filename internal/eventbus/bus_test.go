package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/v4poolindex/indexer/internal/store"
)

func TestPublishSwapCreatedDeliversInOrder(t *testing.T) {
	bus := New()
	sub := bus.SubscribeSwapCreated()

	first := &store.SwapEventRecord{TransactionHash: "0x1", LogIndex: 0}
	second := &store.SwapEventRecord{TransactionHash: "0x2", LogIndex: 1}
	bus.PublishSwapCreated(first)
	bus.PublishSwapCreated(second)

	assert.Equal(t, first, <-sub)
	assert.Equal(t, second, <-sub)
}

func TestPublishCandleFinalizedDeliversToAllSubscribers(t *testing.T) {
	bus := New()
	subA := bus.SubscribeCandleFinalized()
	subB := bus.SubscribeCandleFinalized()

	msg := CandleFinalized{Interval: store.IntervalMinute, Candle: store.CandleFields{TokenAddress: "0xabc"}}
	bus.PublishCandleFinalized(msg)

	assert.Equal(t, msg, <-subA)
	assert.Equal(t, msg, <-subB)
}

func TestSlowSubscriberDoesNotBlockProducer(t *testing.T) {
	bus := New()
	sub := bus.SubscribeSwapCreated()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+10; i++ {
			bus.PublishSwapCreated(&store.SwapEventRecord{TransactionHash: "0x1", LogIndex: uint(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PublishSwapCreated blocked on a full subscriber buffer")
	}

	// the buffer should hold entries without the publisher having
	// blocked; drop-oldest means the most recent publish is retained.
	assert.LessOrEqual(t, len(sub), subscriberBuffer)
}

func TestNoSubscribersIsANoop(t *testing.T) {
	bus := New()
	assert.NotPanics(t, func() {
		bus.PublishSwapCreated(&store.SwapEventRecord{})
		bus.PublishCandleFinalized(CandleFinalized{})
	})
}
