// status.go - Thread-sicherer First-Error-Status
//
// Dieses Modul enthaelt:
// - ThreadSafeStatus: Gemeinsame Status-Zelle mit First-Error-Semantik
//
// Parallele Splits eines Aufrufs koennen unabhaengig voneinander
// fehlschlagen; dem Aufrufer wird genau der zuerst beobachtete Fehler
// gemeldet.
package batching

import "sync"

// ThreadSafeStatus ist eine geteilte Status-Zelle. Der erste nicht-nil
// Fehler bleibt erhalten, spaetere Updates sind No-Ops.
type ThreadSafeStatus struct {
	mu  sync.RWMutex
	err error
}

func NewThreadSafeStatus() *ThreadSafeStatus {
	return &ThreadSafeStatus{}
}

// Update ersetzt den aktuellen Status durch err, wenn err nicht nil ist
// und noch kein Fehler gespeichert wurde
func (s *ThreadSafeStatus) Update(err error) {
	if err == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Err gibt den gespeicherten Fehler zurueck, nil wenn keiner vorliegt
func (s *ThreadSafeStatus) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
