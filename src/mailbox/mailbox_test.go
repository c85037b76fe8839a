package mailbox

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDrainAllEmpty(t *testing.T) {
	m := New()
	require.Empty(t, m.DrainAll())
}

func TestDrainAllFIFO(t *testing.T) {
	m := New()
	m.Log("one")
	m.Status("two")
	m.Log("three %d", 3)

	got := m.DrainAll()
	require.Equal(t, []Event{
		{Kind: KindLog, Message: "one"},
		{Kind: KindStatus, Message: "two"},
		{Kind: KindLog, Message: "three 3"},
	}, got)
	require.Empty(t, m.DrainAll(), "events must be delivered exactly once")
	require.Equal(t, 0, m.Pending())
}

func TestConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	const producers = 8
	const perProducer = 500

	m := New()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				m.Enqueue(LogEvent(fmt.Sprintf("%d:%d", p, i)))
			}
		}(p)
	}

	// Drain concurrently with the producers, as the presentation tick would.
	var all []Event
	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			all = append(all, m.DrainAll()...)
			select {
			case <-stop:
				all = append(all, m.DrainAll()...)
				return
			default:
			}
		}
	}()
	wg.Wait()
	close(stop)
	<-drained

	require.Len(t, all, producers*perProducer)
	next := make([]int, producers)
	for _, ev := range all {
		var p, i int
		_, err := fmt.Sscanf(ev.Message, "%d:%d", &p, &i)
		require.NoError(t, err)
		require.Equal(t, next[p], i, "producer %d out of order", p)
		next[p]++
	}
}

func TestPumpRendersBatchesAndFinalDrain(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var rendered []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Pump(ctx, 5*time.Millisecond, func(evs []Event) {
			require.NotEmpty(t, evs)
			mu.Lock()
			rendered = append(rendered, evs...)
			mu.Unlock()
		})
	}()

	m.Log("first")
	m.Status("Ready")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(rendered) == 2
	}, time.Second, 5*time.Millisecond)

	m.Log("during shutdown")
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "during shutdown", rendered[len(rendered)-1].Message)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "log", KindLog.String())
	require.Equal(t, "status", KindStatus.String())
}
