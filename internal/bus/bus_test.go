package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var got []any

	unsub1 := b.Subscribe("ride:1", func(p any) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, p)
	})
	defer unsub1()
	unsub2 := b.Subscribe("ride:1", func(p any) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, p)
	})
	defer unsub2()

	b.Publish("ride:1", "hello")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	count := 0
	unsub := b.Subscribe("ride:1", func(p any) { count++ })
	unsub()
	b.Publish("ride:1", "x")
	require.Equal(t, 0, count)
	require.Equal(t, 0, b.SubscriberCount("ride:1"))
}

func TestPublishInOrderPerTopic(t *testing.T) {
	b := New()
	var order []int
	b.Subscribe("location:d1", func(p any) {
		order = append(order, p.(int))
	})
	for i := 0; i < 100; i++ {
		b.Publish("location:d1", i)
	}
	for i := 0; i < 100; i++ {
		require.Equal(t, i, order[i])
	}
}

func TestHandlerPanicDoesNotStopOtherHandlers(t *testing.T) {
	b := New()
	secondCalled := false
	b.Subscribe("ride:1", func(p any) { panic("boom") })
	b.Subscribe("ride:1", func(p any) { secondCalled = true })

	require.NotPanics(t, func() { b.Publish("ride:1", "x") })
	require.True(t, secondCalled)
}

func TestPublishToTopicWithNoSubscribers(t *testing.T) {
	b := New()
	require.NotPanics(t, func() { b.Publish("ride:unknown", "x") })
}

func TestTopicHelpers(t *testing.T) {
	require.Equal(t, "ride:abc", RideTopic("abc"))
	require.Equal(t, "location:d1", LocationTopic("d1"))
}
