package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishRunsRegisteredHandlers(t *testing.T) {
	b := NewBus()
	var calls int
	b.Subscribe(TopicSignalsChanged, func() { calls++ })

	b.Publish(TopicSignalsChanged)
	assert.Equal(t, 1, calls)
}

func TestPublishRunsAllHandlersForATopic(t *testing.T) {
	b := NewBus()
	var a, c int
	b.Subscribe(TopicNarrativesChanged, func() { a++ })
	b.Subscribe(TopicNarrativesChanged, func() { c++ })

	b.Publish(TopicNarrativesChanged)
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, c)
}

func TestPublishDoesNotTriggerHandlersOnOtherTopics(t *testing.T) {
	b := NewBus()
	var calls int
	b.Subscribe(TopicSignalsChanged, func() { calls++ })

	b.Publish(TopicNarrativesChanged)
	assert.Equal(t, 0, calls)
}

func TestPublishWithNoSubscribersIsANoop(t *testing.T) {
	b := NewBus()
	assert.NotPanics(t, func() { b.Publish(TopicSignalsChanged) })
}

func TestBusIsSafeForConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewBus()
	var mu sync.Mutex
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Subscribe(TopicSignalsChanged, func() {
				mu.Lock()
				count++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	b.Publish(TopicSignalsChanged)
	assert.Equal(t, 20, count)
}
