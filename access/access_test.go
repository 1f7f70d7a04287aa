package access_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ufo-kit/uca-net/access"
)

func TestSerializerExcludesConcurrentHolders(t *testing.T) {
	s := access.New()
	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Lock()
			defer s.Unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("expected at most one concurrent holder, saw %d", maxActive)
	}
}

func TestWithLockReleasesOnError(t *testing.T) {
	s := access.New()
	wantErr := errors.New("camera busy")

	err := s.WithLock(func() error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}

	// the lock must be free again; this should not block.
	done := make(chan struct{})
	go func() {
		s.Lock()
		s.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock still held after WithLock returned an error")
	}
}
