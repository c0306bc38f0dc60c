// MODUL: scheduler_test
// ZWECK: Tests fuer Batch-Bildung, Timeouts, Backlog-Grenzen und die
//        Split-Policy des SharedBatchSchedulers
// NEBENEFFEKTE: startet Worker-Goroutinen je Scheduler

package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// sizedTask ist der minimale Task fuer Scheduler-Tests
type sizedTask struct {
	id   int
	size int
}

func (t *sizedTask) Size() int { return t.size }

// batchCollector sammelt verarbeitete Batches
type batchCollector struct {
	mu      sync.Mutex
	batches [][]int
	notify  chan struct{}
}

func newBatchCollector() *batchCollector {
	return &batchCollector{notify: make(chan struct{}, 64)}
}

func (c *batchCollector) process(b *Batch) {
	ids := make([]int, 0, b.NumTasks())
	for _, task := range b.Tasks() {
		ids = append(ids, task.(*sizedTask).id)
	}

	c.mu.Lock()
	c.batches = append(c.batches, ids)
	c.mu.Unlock()
	c.notify <- struct{}{}
}

func (c *batchCollector) wait(t *testing.T, numBatches int) [][]int {
	t.Helper()
	for range numBatches {
		select {
		case <-c.notify:
		case <-time.After(5 * time.Second):
			t.Fatalf("Batch wurde nicht verarbeitet")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]int, len(c.batches))
	copy(out, c.batches)
	return out
}

func TestBatchClosesWhenFull(t *testing.T) {
	s, err := New(Options{NumBatchThreads: 1})
	require.NoError(t, err)
	defer s.Close()

	c := newBatchCollector()
	q, err := s.AddQueue(QueueOptions{
		InputBatchSizeLimit: 4,
		MaxEnqueuedBatches:  10,
		BatchTimeout:        time.Second,
	}, c.process)
	require.NoError(t, err)

	require.NoError(t, q.Schedule(&sizedTask{id: 1, size: 2}))
	require.NoError(t, q.Schedule(&sizedTask{id: 2, size: 1}))
	require.NoError(t, q.Schedule(&sizedTask{id: 3, size: 1}))

	batches := c.wait(t, 1)
	require.Equal(t, [][]int{{1, 2, 3}}, batches)
}

func TestBatchClosesOnTimeout(t *testing.T) {
	s, err := New(Options{NumBatchThreads: 1})
	require.NoError(t, err)
	defer s.Close()

	c := newBatchCollector()
	q, err := s.AddQueue(QueueOptions{
		InputBatchSizeLimit: 8,
		MaxEnqueuedBatches:  10,
		BatchTimeout:        5 * time.Millisecond,
	}, c.process)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, q.Schedule(&sizedTask{id: 1, size: 2}))

	batches := c.wait(t, 1)
	require.Equal(t, [][]int{{1}}, batches)
	require.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestOversizeTaskRejected(t *testing.T) {
	s, err := New(Options{NumBatchThreads: 1})
	require.NoError(t, err)
	defer s.Close()

	q, err := s.AddQueue(QueueOptions{
		InputBatchSizeLimit: 4,
		MaxEnqueuedBatches:  10,
		BatchTimeout:        time.Second,
	}, func(*Batch) {})
	require.NoError(t, err)

	require.Error(t, q.Schedule(&sizedTask{id: 1, size: 5}))
	require.Error(t, q.Schedule(&sizedTask{id: 2, size: 0}))
}

// Ohne Splitting wird ein nicht passender Task nie mit dem offenen
// Batch kombiniert: der offene Batch schliesst, der Task beginnt neu
func TestNoSplitClosesOpenBatch(t *testing.T) {
	s, err := New(Options{NumBatchThreads: 1})
	require.NoError(t, err)
	defer s.Close()

	c := newBatchCollector()
	q, err := s.AddQueue(QueueOptions{
		InputBatchSizeLimit: 4,
		MaxEnqueuedBatches:  10,
		BatchTimeout:        5 * time.Millisecond,
	}, c.process)
	require.NoError(t, err)

	require.NoError(t, q.Schedule(&sizedTask{id: 1, size: 3}))
	require.NoError(t, q.Schedule(&sizedTask{id: 2, size: 4}))

	batches := c.wait(t, 2)
	require.Equal(t, [][]int{{1}, {2}}, batches)
}

func TestQueueBacklogLimit(t *testing.T) {
	block := make(chan struct{})
	s, err := New(Options{NumBatchThreads: 1})
	require.NoError(t, err)
	defer s.Close()

	c := newBatchCollector()
	q, err := s.AddQueue(QueueOptions{
		InputBatchSizeLimit: 1,
		MaxEnqueuedBatches:  1,
		BatchTimeout:        0,
	}, func(b *Batch) {
		<-block
		c.process(b)
	})
	require.NoError(t, err)

	var scheduled, rejected int
	for i := range 10 {
		err := q.Schedule(&sizedTask{id: i, size: 1})
		if errors.Is(err, ErrQueueFull) {
			rejected++
			continue
		}
		require.NoError(t, err)
		scheduled++
	}
	close(block)

	require.Greater(t, rejected, 0, "Backlog-Grenze muss greifen")
	c.wait(t, scheduled)
}

// Split-Policy: der offene Slot wird zuerst gefuellt, dann volle
// Ausfuehrungs-Batches, dann der Rest
func TestSplitFillsOpenSlotFirst(t *testing.T) {
	s, err := New(Options{NumBatchThreads: 1})
	require.NoError(t, err)
	defer s.Close()

	var splitSizes []int
	split := func(task Task, openSlot, maxExec int) ([]Task, error) {
		input := task.(*sizedTask)
		var out []Task
		if openSlot > 0 {
			out = append(out, &sizedTask{id: input.id, size: openSlot})
		}
		for left := input.size - openSlot; left > 0; left -= maxExec {
			out = append(out, &sizedTask{id: input.id, size: min(left, maxExec)})
		}
		for _, part := range out {
			splitSizes = append(splitSizes, part.Size())
		}
		return out, nil
	}

	c := newBatchCollector()
	q, err := s.AddQueue(QueueOptions{
		InputBatchSizeLimit:       16,
		MaxEnqueuedBatches:        10,
		BatchTimeout:              100 * time.Millisecond,
		EnableLargeBatchSplitting: true,
		MaxExecutionBatchSize:     4,
		SplitInputTask:            split,
	}, c.process)
	require.NoError(t, err)

	require.NoError(t, q.Schedule(&sizedTask{id: 1, size: 3}))
	require.NoError(t, q.Schedule(&sizedTask{id: 2, size: 9}))

	batches := c.wait(t, 3)
	require.Equal(t, []int{1, 4, 4}, splitSizes)
	require.Equal(t, [][]int{{1, 2}, {2}, {2}}, batches)
}

func TestAddQueueValidation(t *testing.T) {
	s, err := New(Options{NumBatchThreads: 1})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AddQueue(QueueOptions{InputBatchSizeLimit: 0, MaxEnqueuedBatches: 1}, func(*Batch) {})
	require.Error(t, err)

	_, err = s.AddQueue(QueueOptions{InputBatchSizeLimit: 1, MaxEnqueuedBatches: 0}, func(*Batch) {})
	require.Error(t, err)

	_, err = s.AddQueue(QueueOptions{
		InputBatchSizeLimit:       1,
		MaxEnqueuedBatches:        1,
		EnableLargeBatchSplitting: true,
	}, func(*Batch) {})
	require.Error(t, err, "Splitting ohne SplitInputTask muss abgelehnt werden")

	_, err = New(Options{NumBatchThreads: 0})
	require.Error(t, err)
}
