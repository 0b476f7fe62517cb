package pipeline

import (
	"sync"
	"testing"
	"time"
)

func TestUserLocksSerializeSameUser(t *testing.T) {
	t.Parallel()

	locks := newUserLocks()
	var inCritical, maxInCritical int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(1)
			defer unlock()
			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInCritical != 1 {
		t.Fatalf("observed %d concurrent holders for one user, want 1", maxInCritical)
	}
	locks.mu.Lock()
	defer locks.mu.Unlock()
	if len(locks.locks) != 0 {
		t.Fatalf("lock map holds %d entries after release, want 0", len(locks.locks))
	}
}

func TestUserLocksDifferentUsersRunConcurrently(t *testing.T) {
	t.Parallel()

	locks := newUserLocks()
	unlock1 := locks.lock(1)
	defer unlock1()

	done := make(chan struct{})
	go func() {
		unlock2 := locks.lock(2)
		unlock2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a second user blocked on the first user's lock")
	}
}
