package resilience

import "sync"

// Quota is a fixed allowance of operations shared by concurrent workers.
// A negative allowance is unlimited. A nil *Quota is also unlimited.
type Quota struct {
	mu        sync.Mutex
	remaining int
	used      int
}

// NewQuota returns a quota of n operations.
func NewQuota(n int) *Quota {
	return &Quota{remaining: n}
}

// Take spends one operation. It returns false once the allowance is spent.
func (q *Quota) Take() bool {
	if q == nil {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.remaining == 0 {
		return false
	}
	if q.remaining > 0 {
		q.remaining--
	}
	q.used++
	return true
}

// Give returns one operation taken but not used.
func (q *Quota) Give() {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.used == 0 {
		return
	}
	q.used--
	if q.remaining >= 0 {
		q.remaining++
	}
}

// Exhausted reports whether no operation is left.
func (q *Quota) Exhausted() bool {
	if q == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remaining == 0
}

// Used returns the number of operations taken.
func (q *Quota) Used() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}
