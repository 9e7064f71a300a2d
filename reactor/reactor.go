// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral readiness reactor. The selector registers raw file
// descriptors and polls for accept/read readiness; the ready list is a
// reused slice so iteration is allocation-free and resetting it is O(1).

package reactor

// Op flags describe interest and readiness.
const (
	OpRead  uint32 = 1 << 0
	OpWrite uint32 = 1 << 1
	OpError uint32 = 1 << 2
)

// Event is one readiness notification.
type Event struct {
	FD  int32
	Ops uint32
}

// Poller multiplexes non-blocking file descriptors.
type Poller interface {
	// Add registers fd for the given interest ops.
	Add(fd int, ops uint32) error

	// Mod changes the interest set of a registered fd.
	Mod(fd int, ops uint32) error

	// Delete removes fd from the interest set.
	Delete(fd int) error

	// Wait blocks up to timeoutMs for readiness and returns the internal
	// ready slice. The slice is valid until the next Wait call.
	Wait(timeoutMs int) ([]Event, error)

	// Wake interrupts a concurrent Wait.
	Wake() error

	// Close releases the poller.
	Close() error
}
