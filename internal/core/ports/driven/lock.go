package driven

import "context"

// ProcessLock coordinates the processes sharing a data directory. Processes
// writing documents hold it shared; the recovery sweep needs it exclusively,
// so a sweep only runs while no other process is mid-write. The lock must be
// released when its owner exits, even without Unlock, so a crashed owner
// never blocks recovery.
type ProcessLock interface {
	// Share takes the lock shared. Shared holders do not exclude each other.
	// It waits while another process holds the lock exclusively, and returns
	// nil when this process already holds it shared.
	Share(ctx context.Context) error

	// TryLock takes the lock exclusively without blocking. It reports false
	// while any other process holds it, shared or exclusive, and true when
	// this process already holds it exclusively.
	TryLock() (bool, error)

	// Unlock releases the lock. Unlocking a lock that is not held is a no-op.
	Unlock() error
}
