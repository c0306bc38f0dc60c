// barrier.go - Fan-In von N asynchronen Abschluessen in einen Callback
//
// Dieses Modul enthaelt:
// - IncrementalBarrier: Referenzgezaehlter Abschluss-Sammler
//
// Der Zaehler startet bei 1; jedes Inc liefert ein Token das genau
// einmal aufgerufen werden muss. Done gibt die Anfangsreferenz frei.
// Erreicht der Zaehler null, laeuft der Terminal-Callback genau einmal
// auf der Goroutine des letzten Dekrements. Es wird keine eigene
// Goroutine zum Warten verwendet.
package batching

import (
	"sync"
	"sync/atomic"
)

// IncrementalBarrier sammelt N asynchrone Abschluesse in einem
// Terminal-Callback
type IncrementalBarrier struct {
	counter  atomic.Int64
	terminal func()
}

// NewIncrementalBarrier erstellt eine Barrier mit Terminal-Callback f
func NewIncrementalBarrier(f func()) *IncrementalBarrier {
	b := &IncrementalBarrier{terminal: f}
	b.counter.Store(1)
	return b
}

// Inc registriert einen ausstehenden Abschluss und gibt das zugehoerige
// Token zurueck. Mehrfaches Aufrufen des Tokens ist wirkungslos.
func (b *IncrementalBarrier) Inc() func() {
	b.counter.Add(1)

	var once sync.Once
	return func() {
		once.Do(b.decrement)
	}
}

// Done gibt die Anfangsreferenz der Barrier frei. Muss genau einmal
// aufgerufen werden, nachdem alle Inc-Tokens verteilt sind.
func (b *IncrementalBarrier) Done() {
	b.decrement()
}

func (b *IncrementalBarrier) decrement() {
	if b.counter.Add(-1) == 0 {
		b.terminal()
	}
}
