// MODUL: registry_test
// ZWECK: Tests fuer Lookup-or-Create, Typ-Konflikte und Cleanup
// NEBENEFFEKTE: keine

package registry

import (
	"testing"
)

type fakeResource struct {
	closed bool
}

func (f *fakeResource) Close() error {
	f.closed = true
	return nil
}

type otherResource struct{}

func TestLookupOrCreateReturnsSameInstance(t *testing.T) {
	r := New()

	created := 0
	create := func() (*fakeResource, error) {
		created++
		return &fakeResource{}, nil
	}

	first, err := LookupOrCreate(r, "", "shared", create)
	if err != nil {
		t.Fatalf("LookupOrCreate: %v", err)
	}
	second, err := LookupOrCreate(r, "", "shared", create)
	if err != nil {
		t.Fatalf("LookupOrCreate: %v", err)
	}

	if first != second {
		t.Errorf("zweiter Lookup lieferte eine andere Instanz")
	}
	if created != 1 {
		t.Errorf("create lief %d mal, erwartet 1", created)
	}
}

func TestContainersAreIsolated(t *testing.T) {
	r := New()

	a, _ := LookupOrCreate(r, "a", "shared", func() (*fakeResource, error) { return &fakeResource{}, nil })
	b, _ := LookupOrCreate(r, "b", "shared", func() (*fakeResource, error) { return &fakeResource{}, nil })

	if a == b {
		t.Errorf("gleicher shared_name in verschiedenen Containern muss getrennte Instanzen ergeben")
	}
}

func TestTypeConflict(t *testing.T) {
	r := New()

	if _, err := LookupOrCreate(r, "", "shared", func() (*fakeResource, error) { return &fakeResource{}, nil }); err != nil {
		t.Fatalf("LookupOrCreate: %v", err)
	}

	_, err := LookupOrCreate(r, "", "shared", func() (*otherResource, error) { return &otherResource{}, nil })
	if err == nil {
		t.Errorf("Typ-Konflikt unter demselben Schluessel sollte fehlschlagen")
	}
}

func TestCleanupClosesResources(t *testing.T) {
	r := New()

	res, _ := LookupOrCreate(r, "c", "shared", func() (*fakeResource, error) { return &fakeResource{}, nil })
	if err := r.Cleanup("c"); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if !res.closed {
		t.Errorf("Cleanup muss io.Closer-Instanzen schliessen")
	}

	// Nach Cleanup wird neu erstellt
	again, _ := LookupOrCreate(r, "c", "shared", func() (*fakeResource, error) { return &fakeResource{}, nil })
	if again == res {
		t.Errorf("nach Cleanup muss eine frische Instanz entstehen")
	}
}

func TestCloseAllContainers(t *testing.T) {
	r := New()

	res1, _ := LookupOrCreate(r, "x", "one", func() (*fakeResource, error) { return &fakeResource{}, nil })
	res2, _ := LookupOrCreate(r, "y", "two", func() (*fakeResource, error) { return &fakeResource{}, nil })

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !res1.closed || !res2.closed {
		t.Errorf("Close muss alle Instanzen schliessen")
	}
}
