package process

import (
	"fmt"
	"net"
	"strconv"

	"github.com/puzpuzpuz/xsync/v4"
)

// DefaultBasePort is the port the host application listens on by default.
const DefaultBasePort = 8188

// PortAllocator hands out non-colliding listen ports to concurrent runs.
type PortAllocator struct {
	base     int
	span     int
	reserved *xsync.Map[int, struct{}]
	// isFree is replaced in tests.
	isFree func(port int) bool
}

// NewPortAllocator creates an allocator searching [base, base+span).
func NewPortAllocator(base, span int) *PortAllocator {
	return &PortAllocator{
		base:     base,
		span:     span,
		reserved: xsync.NewMap[int, struct{}](),
		isFree:   portIsFree,
	}
}

// DefaultPorts is shared by all runs of one invocation.
var DefaultPorts = NewPortAllocator(DefaultBasePort, 100)

// Allocate reserves the first port that is neither reserved nor bound.
func (a *PortAllocator) Allocate() (int, error) {
	for port := a.base; port < a.base+a.span; port++ {
		if _, loaded := a.reserved.LoadOrStore(port, struct{}{}); loaded {
			continue
		}
		if a.isFree(port) {
			return port, nil
		}
		a.reserved.Delete(port)
	}
	return 0, fmt.Errorf("no available ports found starting from %d", a.base)
}

// Release returns port to the pool.
func (a *PortAllocator) Release(port int) {
	a.reserved.Delete(port)
}

func portIsFree(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
