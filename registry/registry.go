// registry.go - Resource-Registry mit Lookup-or-Create Semantik
//
// Dieses Modul enthaelt:
// - Registry: Instanzen-Tabelle keyed auf (container, shared_name)
// - LookupOrCreate: Gibt die Instanz zurueck, erstellt sie beim ersten Zugriff
// - Cleanup/Close: Gibt Instanzen frei (io.Closer wird geschlossen)
// - Range: Iteriert ueber alle registrierten Instanzen
package registry

import (
	"fmt"
	"io"
	"sync"
)

// Registry haelt benannte Instanzen fuer die Lebensdauer ihrer
// (container, shared_name)-Registrierung
type Registry struct {
	mu         sync.Mutex
	containers map[string]map[string]any
}

func New() *Registry {
	return &Registry{containers: make(map[string]map[string]any)}
}

// LookupOrCreate gibt die Instanz unter (container, name) zurueck und
// erstellt sie via create, wenn sie noch nicht existiert. create laeuft
// unter dem Registry-Lock, hoechstens einmal je Schluessel.
func LookupOrCreate[T any](r *Registry, container, name string, create func() (T, error)) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.containers[container]
	if !ok {
		c = make(map[string]any)
		r.containers[container] = c
	}

	if existing, ok := c[name]; ok {
		resource, ok := existing.(T)
		if !ok {
			var zero T
			return zero, fmt.Errorf("resource %q/%q exists with a different type %T", container, name, existing)
		}
		return resource, nil
	}

	resource, err := create()
	if err != nil {
		var zero T
		return zero, err
	}
	c[name] = resource
	return resource, nil
}

// Range ruft fn fuer jede registrierte Instanz auf
func (r *Registry) Range(fn func(container, name string, resource any)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for container, c := range r.containers {
		for name, resource := range c {
			fn(container, name, resource)
		}
	}
}

// Cleanup entfernt alle Instanzen eines Containers und schliesst
// Instanzen die io.Closer implementieren
func (r *Registry) Cleanup(container string) error {
	r.mu.Lock()
	c := r.containers[container]
	delete(r.containers, container)
	r.mu.Unlock()

	var err error
	for _, resource := range c {
		if closer, ok := resource.(io.Closer); ok {
			if cerr := closer.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}
	return err
}

// Close entfernt alle Container
func (r *Registry) Close() error {
	r.mu.Lock()
	containers := make([]string, 0, len(r.containers))
	for container := range r.containers {
		containers = append(containers, container)
	}
	r.mu.Unlock()

	var err error
	for _, container := range containers {
		if cerr := r.Cleanup(container); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
