// scheduler.go - Gemeinsamer Batch-Scheduler mit benannten Queues
//
// Diese Datei enthaelt:
// - Task/Batch: Einheiten der Batch-Bildung
// - Options/QueueOptions: Konfiguration von Scheduler und Queues
// - Scheduler: Fester Worker-Pool ueber alle Queues
// - New/AddQueue/Close: Lifecycle
//
// Batches werden pro Queue in FIFO-Reihenfolge gebildet und genau
// einmal an den process-Callback der Queue uebergeben. Ein Worker
// bearbeitet einen Batch zur Zeit und blockiert bis der Callback
// zurueckkehrt; das haelt die Worker zurueck und gibt dem Upstream
// Zeit, den naechsten Batch zu sammeln.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/7blacky7/tensorbatch/api"
)

// Task ist eine Einheit der Batch-Bildung mit einer Dim-0-Groesse
type Task interface {
	Size() int
}

// SplitFunc teilt einen Task, der nicht in den offenen Batch passt.
// openBatchRemainingSlot ist der freie Platz im offenen Batch,
// maxExecutionBatchSize die Obergrenze je Ausfuehrungs-Batch.
// Vorbedingung: task.Size() > openBatchRemainingSlot.
type SplitFunc func(task Task, openBatchRemainingSlot, maxExecutionBatchSize int) ([]Task, error)

// ProcessBatchFunc verarbeitet einen geschlossenen Batch
type ProcessBatchFunc func(*Batch)

// Options konfiguriert den Scheduler
type Options struct {
	// NumBatchThreads ist die Groesse des Worker-Pools
	NumBatchThreads int
}

// QueueOptions konfiguriert eine Queue
type QueueOptions struct {
	// InputBatchSizeLimit begrenzt die Groesse eines einzelnen Tasks
	InputBatchSizeLimit int

	// MaxEnqueuedBatches begrenzt die Anzahl geschlossener, noch nicht
	// verarbeiteter Batches
	MaxEnqueuedBatches int

	// BatchTimeout schliesst einen nicht-leeren offenen Batch nach
	// Ablauf, auch wenn er nicht voll ist
	BatchTimeout time.Duration

	// EnableLargeBatchSplitting teilt Tasks die nicht in den offenen
	// Batch passen via SplitInputTask
	EnableLargeBatchSplitting bool

	// MaxExecutionBatchSize begrenzt die Groesse eines
	// Ausfuehrungs-Batches; nur mit Splitting wirksam
	MaxExecutionBatchSize int

	SplitInputTask SplitFunc
}

// ErrQueueFull wird zurueckgegeben wenn die Queue ihre maximale Anzahl
// wartender Batches erreicht hat
var ErrQueueFull = api.Unavailablef("too many enqueued batches, please try again")

// Scheduler verwaltet Queues und den Worker-Pool.
// mu schuetzt die Queue-Liste und alle Batch-Deques.
type Scheduler struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queues []*Queue
	next   int
	closed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New erstellt einen Scheduler und startet dessen Worker
func New(opts Options) (*Scheduler, error) {
	if opts.NumBatchThreads < 1 {
		return nil, api.InvalidArgumentf("num_batch_threads must be positive; was %d", opts.NumBatchThreads)
	}

	s := &Scheduler{}
	s.cond = sync.NewCond(&s.mu)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for range opts.NumBatchThreads {
		s.wg.Add(1)
		go s.worker()
	}

	s.wg.Add(1)
	go s.enforceTimeouts(ctx)

	return s, nil
}

// AddQueue registriert eine Queue mit eigenem process-Callback
func (s *Scheduler) AddQueue(opts QueueOptions, process ProcessBatchFunc) (*Queue, error) {
	if opts.InputBatchSizeLimit < 1 {
		return nil, api.InvalidArgumentf("input_batch_size_limit must be positive; was %d", opts.InputBatchSizeLimit)
	}
	if opts.MaxEnqueuedBatches < 1 {
		return nil, api.InvalidArgumentf("max_enqueued_batches must be positive; was %d", opts.MaxEnqueuedBatches)
	}
	if opts.EnableLargeBatchSplitting {
		if opts.SplitInputTask == nil {
			return nil, api.InvalidArgumentf("split_input_task_func must be set when large batch splitting is enabled")
		}
		if opts.MaxExecutionBatchSize < 1 {
			return nil, api.InvalidArgumentf("max_execution_batch_size must be positive; was %d", opts.MaxExecutionBatchSize)
		}
	}

	q := &Queue{sched: s, opts: opts, process: process}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, api.Unavailablef("batch scheduler is shut down")
	}
	s.queues = append(s.queues, q)
	return q, nil
}

// Close stoppt Worker und Timeout-Enforcer. Bereits geschlossene
// Batches werden nicht mehr verarbeitet.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.cond.Broadcast()
	s.wg.Wait()
}

// worker verarbeitet geschlossene Batches, einen zur Zeit
func (s *Scheduler) worker() {
	defer s.wg.Done()

	s.mu.Lock()
	for {
		if s.closed {
			s.mu.Unlock()
			return
		}

		q, batch := s.nextReadyLocked()
		if batch == nil {
			s.cond.Wait()
			continue
		}
		s.mu.Unlock()

		// Blockiert bis der Batch vollstaendig verarbeitet ist
		q.process(batch)

		s.mu.Lock()
		q.processed++
	}
}

// nextReadyLocked waehlt den naechsten geschlossenen Batch im
// Round-Robin ueber die Queues
func (s *Scheduler) nextReadyLocked() (*Queue, *Batch) {
	for range s.queues {
		q := s.queues[s.next%len(s.queues)]
		s.next = (s.next + 1) % len(s.queues)

		if batch := q.popClosedLocked(); batch != nil {
			return q, batch
		}
	}
	return nil, nil
}

// enforceTimeouts schliesst abgelaufene offene Batches im 1ms-Takt
func (s *Scheduler) enforceTimeouts(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			woke := false
			for _, q := range s.queues {
				if q.closeExpiredLocked(time.Now()) {
					woke = true
				}
			}
			s.mu.Unlock()
			if woke {
				s.cond.Broadcast()
			}
		}
	}
}
