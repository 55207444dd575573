package resilience

import (
	"sync"
	"testing"
)

func TestQuota_SpendsAllowance(t *testing.T) {
	q := NewQuota(2)
	if !q.Take() || !q.Take() {
		t.Fatal("first two operations should be allowed")
	}
	if q.Take() {
		t.Fatal("third operation should be refused")
	}
	if !q.Exhausted() {
		t.Error("quota should be exhausted")
	}
	if q.Used() != 2 {
		t.Errorf("used = %d, want 2", q.Used())
	}
}

func TestQuota_GiveReturnsUnusedOperation(t *testing.T) {
	q := NewQuota(1)
	if !q.Take() {
		t.Fatal("first operation should be allowed")
	}
	q.Give()
	if q.Exhausted() || q.Used() != 0 {
		t.Fatalf("after give: exhausted=%v used=%d", q.Exhausted(), q.Used())
	}
	if !q.Take() {
		t.Fatal("returned operation should be available again")
	}

	q.Give()
	q.Give()
	if q.Used() != 0 {
		t.Errorf("used = %d, want 0", q.Used())
	}
	if !q.Take() || q.Take() {
		t.Error("giving more than was taken must not grow the allowance")
	}
}

func TestQuota_Unlimited(t *testing.T) {
	q := NewQuota(-1)
	for i := 0; i < 100; i++ {
		if !q.Take() {
			t.Fatalf("operation %d refused", i+1)
		}
	}
	if q.Exhausted() {
		t.Error("unlimited quota reported exhausted")
	}

	var nilQuota *Quota
	if !nilQuota.Take() || nilQuota.Exhausted() || nilQuota.Used() != 0 {
		t.Error("nil quota should be unlimited")
	}
}

func TestQuota_Concurrent(t *testing.T) {
	q := NewQuota(50)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if q.Take() {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	if granted != 50 {
		t.Errorf("granted = %d, want 50", granted)
	}
}
