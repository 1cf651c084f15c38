// Package eventbus is the in-process pub/sub for swap.created and
// candle.finalized, built on plain typed channels with one bounded
// buffer per subscriber.
package eventbus

import (
	"log"

	"github.com/v4poolindex/indexer/internal/store"
)

// subscriberBuffer bounds each subscriber's backlog; on overflow the
// oldest buffered entry is dropped.
const subscriberBuffer = 256

// CandleFinalized is the candle.finalized payload: the promoted
// Candle row plus its interval tag.
type CandleFinalized struct {
	Interval store.CandleInterval
	Candle   store.CandleFields
}

// Bus delivers swap.created and candle.finalized in order, per topic,
// to every registered subscriber, without letting a slow subscriber
// back-pressure the producer.
type Bus struct {
	swapSubs   []chan *store.SwapEventRecord
	candleSubs []chan CandleFinalized
}

func New() *Bus {
	return &Bus{}
}

// SubscribeSwapCreated registers a new swap.created subscriber and
// returns its receive channel.
func (b *Bus) SubscribeSwapCreated() <-chan *store.SwapEventRecord {
	ch := make(chan *store.SwapEventRecord, subscriberBuffer)
	b.swapSubs = append(b.swapSubs, ch)
	return ch
}

// SubscribeCandleFinalized registers a new candle.finalized subscriber
// and returns its receive channel.
func (b *Bus) SubscribeCandleFinalized() <-chan CandleFinalized {
	ch := make(chan CandleFinalized, subscriberBuffer)
	b.candleSubs = append(b.candleSubs, ch)
	return ch
}

// PublishSwapCreated fans a persisted SwapEvent out to every
// subscriber, dropping the oldest buffered entry for any subscriber
// that can't keep up rather than blocking the caller.
func (b *Bus) PublishSwapCreated(rec *store.SwapEventRecord) {
	for _, ch := range b.swapSubs {
		publishNonBlocking(ch, rec)
	}
}

// PublishCandleFinalized fans a finalized candle out to every
// subscriber under the same drop-oldest policy.
func (b *Bus) PublishCandleFinalized(msg CandleFinalized) {
	for _, ch := range b.candleSubs {
		publishNonBlocking(ch, msg)
	}
}

func publishNonBlocking[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	// buffer full: drop the oldest entry, then retry once. A second
	// concurrent drainer could race this dequeue, so fall back to a
	// dropped-send warning rather than looping.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
		log.Printf("eventbus: subscriber buffer full, dropped a message")
	}
}
