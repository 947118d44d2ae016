// ABOUTME: Local TCP port discovery in a bounded range starting at a preferred port
// ABOUTME: Probe-and-release lookups plus Reserve, which binds and holds the listener until handed off

package ports

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// ScanWidth is the number of candidate ports probed from a starting port.
const ScanWidth = 100

const (
	loopback = "127.0.0.1"
	maxPort  = 65535
)

// ErrNoPortAvailable is returned when the scan range holds too few free ports.
var ErrNoPortAvailable = errors.New("no available port")

// FindAvailablePort returns the first port in [start, start+ScanWidth) that
// can be bound on the loopback interface. The probe socket is closed before
// returning, so another process may take the port before the caller binds it.
func FindAvailablePort(start int) (int, error) {
	found, err := FindAvailablePorts(1, start)
	if err != nil {
		return 0, err
	}
	return found[0], nil
}

// FindAvailablePorts returns the first count distinct free ports found in
// [start, start+ScanWidth), in ascending order.
func FindAvailablePorts(count, start int) ([]int, error) {
	held, err := ReserveN(count, start)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(held))
	for i, r := range held {
		out[i] = r.Port()
		r.Release()
	}
	return out, nil
}

// Reservation is a bound loopback listener on a port selected by the scan.
// Hand Listener to an in-process server to use the port without a race, or
// Release it right before an external process binds the port itself.
type Reservation struct {
	port int
	ln   net.Listener

	mu       sync.Mutex
	released bool
	taken    bool
}

// Reserve binds and holds the first free port in [start, start+ScanWidth).
func Reserve(start int) (*Reservation, error) {
	held, err := ReserveN(1, start)
	if err != nil {
		return nil, err
	}
	return held[0], nil
}

// ReserveN binds and holds the first count free ports in the scan range.
// On failure nothing stays bound.
func ReserveN(count, start int) ([]*Reservation, error) {
	if count <= 0 {
		return nil, fmt.Errorf("reserving %d ports: count must be positive", count)
	}
	if start <= 0 || start > maxPort {
		return nil, fmt.Errorf("reserving ports from %d: start out of range", start)
	}

	held := make([]*Reservation, 0, count)
	for port := start; port < start+ScanWidth && port <= maxPort && len(held) < count; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(loopback, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		held = append(held, &Reservation{port: port, ln: ln})
	}

	if len(held) < count {
		for _, r := range held {
			r.Release()
		}
		return nil, fmt.Errorf("need %d ports in %d-%d, found %d: %w",
			count, start, start+ScanWidth-1, len(held), ErrNoPortAvailable)
	}
	return held, nil
}

// Port returns the reserved port number.
func (r *Reservation) Port() int {
	return r.port
}

// Listener transfers ownership of the bound listener to the caller, who
// becomes responsible for closing it. Release is a no-op afterwards.
func (r *Reservation) Listener() net.Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil
	}
	r.taken = true
	return r.ln
}

// Release closes the held listener unless it was handed off. Safe to call
// more than once.
func (r *Reservation) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released || r.taken {
		return
	}
	r.released = true
	_ = r.ln.Close()
}
