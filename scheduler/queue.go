// queue.go - Batch-Bildung je Queue
//
// Diese Datei enthaelt:
// - Batch: Geordnete, nicht-leere Task-Sammlung
// - Queue: Batch-Deque mit Groessen-, Zeit- und Kapazitaetsgrenzen
// - Schedule: Task einreihen, ggf. splitten
package scheduler

import (
	"time"

	"github.com/7blacky7/tensorbatch/api"
)

// Batch ist eine geordnete, nicht-leere Sammlung von Tasks. Mit dem
// Dispatch ist der Batch geschlossen und unveraenderlich.
type Batch struct {
	tasks    []Task
	size     int
	closed   bool
	openedAt time.Time
}

// NumTasks gibt die Anzahl der Tasks zurueck
func (b *Batch) NumTasks() int { return len(b.tasks) }

// Task gibt den i-ten Task zurueck
func (b *Batch) Task(i int) Task { return b.tasks[i] }

// Tasks gibt die Task-Liste in Einreihungs-Reihenfolge zurueck
func (b *Batch) Tasks() []Task { return b.tasks }

// Size gibt die Summe der Task-Groessen zurueck
func (b *Batch) Size() int { return b.size }

func (b *Batch) addLocked(task Task) {
	if len(b.tasks) == 0 {
		b.openedAt = time.Now()
	}
	b.tasks = append(b.tasks, task)
	b.size += task.Size()
}

// Queue sammelt Tasks zu Batches. Der letzte Batch der Deque ist offen,
// alle davor sind geschlossen und warten auf einen Worker.
type Queue struct {
	sched   *Scheduler
	opts    QueueOptions
	process ProcessBatchFunc

	// Von sched.mu geschuetzt
	batches   []*Batch
	scheduled int64
	processed int64
}

// executionLimitLocked gibt die Kapazitaet eines Ausfuehrungs-Batches zurueck
func (q *Queue) executionLimitLocked() int {
	if q.opts.EnableLargeBatchSplitting {
		return q.opts.MaxExecutionBatchSize
	}
	return q.opts.InputBatchSizeLimit
}

// Schedule reiht einen Task ein. Bei vollem Backlog wird der Fehler
// synchron an den Aufrufer gemeldet.
func (q *Queue) Schedule(task Task) error {
	size := task.Size()
	if size < 1 {
		return api.InvalidArgumentf("batching task size must be positive; was %d", size)
	}
	if size > q.opts.InputBatchSizeLimit {
		return api.InvalidArgumentf("task size %d is larger than maximum input batch size %d", size, q.opts.InputBatchSizeLimit)
	}

	s := q.sched
	s.mu.Lock()

	if q.closedCountLocked() >= q.opts.MaxEnqueuedBatches {
		s.mu.Unlock()
		return ErrQueueFull
	}

	limit := q.executionLimitLocked()
	open := q.openBatchLocked()
	remaining := limit - open.size

	closedAny := false
	switch {
	case size <= remaining:
		open.addLocked(task)

	case q.opts.EnableLargeBatchSplitting:
		parts, err := q.opts.SplitInputTask(task, remaining, q.opts.MaxExecutionBatchSize)
		if err != nil {
			s.mu.Unlock()
			return api.Internalf("when splitting input: %v", err)
		}
		for _, part := range parts {
			open = q.openBatchLocked()
			open.addLocked(part)
			if open.size >= limit {
				open.closed = true
				closedAny = true
			}
		}

	default:
		// Ohne Splitting: offenen Batch schliessen, neu beginnen
		if open.size > 0 {
			open.closed = true
			closedAny = true
		}
		open = q.openBatchLocked()
		open.addLocked(task)
	}

	if last := q.lastBatchLocked(); last != nil && !last.closed && last.size >= limit {
		last.closed = true
		closedAny = true
	}

	// Timeout 0: sofort dispatchen
	if q.opts.BatchTimeout <= 0 {
		if last := q.lastBatchLocked(); last != nil && !last.closed && last.size > 0 {
			last.closed = true
			closedAny = true
		}
	}

	q.scheduled++
	s.mu.Unlock()

	if closedAny {
		s.cond.Broadcast()
	}
	return nil
}

// openBatchLocked gibt den offenen Batch zurueck und legt bei Bedarf
// einen neuen an
func (q *Queue) openBatchLocked() *Batch {
	if last := q.lastBatchLocked(); last != nil && !last.closed {
		return last
	}
	b := &Batch{}
	q.batches = append(q.batches, b)
	return b
}

func (q *Queue) lastBatchLocked() *Batch {
	if len(q.batches) == 0 {
		return nil
	}
	return q.batches[len(q.batches)-1]
}

func (q *Queue) closedCountLocked() int {
	n := 0
	for _, b := range q.batches {
		if b.closed {
			n++
		}
	}
	return n
}

// popClosedLocked entnimmt den vordersten geschlossenen Batch
func (q *Queue) popClosedLocked() *Batch {
	if len(q.batches) == 0 || !q.batches[0].closed {
		return nil
	}
	b := q.batches[0]
	q.batches = q.batches[1:]
	return b
}

// closeExpiredLocked schliesst den offenen Batch wenn sein Timeout
// abgelaufen ist
func (q *Queue) closeExpiredLocked(now time.Time) bool {
	open := q.lastBatchLocked()
	if open == nil || open.closed || open.size == 0 {
		return false
	}
	if q.opts.BatchTimeout > 0 && now.Sub(open.openedAt) < q.opts.BatchTimeout {
		return false
	}
	open.closed = true
	return true
}

// Stats gibt Queue-Statistiken zurueck: wartende Batches, eingereihte
// Tasks, verarbeitete Batches
func (q *Queue) Stats() (pending int, scheduled, processed int64) {
	q.sched.mu.Lock()
	defer q.sched.mu.Unlock()
	return q.closedCountLocked(), q.scheduled, q.processed
}
