package topology

import (
	"fmt"

	"k8s.io/utils/cpuset"
)

// Core represents a physical CPU core.
type Core struct {
	Threads map[int]int `json:"threads"` // Threads maps thread ID to logical CPU ID.
}

// CPUs returns the logical CPUs of the core.
func (c Core) CPUs() cpuset.CPUSet {
	cpus := make([]int, 0, len(c.Threads))
	for _, cpu := range c.Threads {
		cpus = append(cpus, cpu)
	}
	return cpuset.New(cpus...)
}

// Socket represents a CPU socket.
type Socket struct {
	Cores map[int]Core `json:"cores"` // Cores is a map of core ID to Core.
}

// Topology is the socket -> core -> thread -> logical CPU mapping of a host.
// Sockets double as NUMA nodes.
type Topology struct {
	Sockets map[int]Socket `json:"sockets"` // Sockets is a map of socket ID to Socket.
}

// NewTopology returns an empty Topology.
func NewTopology() *Topology {
	return &Topology{Sockets: make(map[int]Socket)}
}

// NumNodes is the number of distinct sockets.
func (t *Topology) NumNodes() int {
	return len(t.Sockets)
}

func (t *Topology) ensureSocket(socketID int) Socket {
	socket, ok := t.Sockets[socketID]
	if !ok {
		socket = Socket{Cores: make(map[int]Core)}
		t.Sockets[socketID] = socket
	}
	return socket
}

func (t *Topology) set(socketID, coreID, threadID, cpu int) {
	socket := t.ensureSocket(socketID)
	core, ok := socket.Cores[coreID]
	if !ok {
		core = Core{Threads: make(map[int]int)}
		socket.Cores[coreID] = core
	}
	core.Threads[threadID] = cpu
}

// NUMANode is the placeholder record reported for each socket seen.
type NUMANode struct {
	ID           int               `json:"numaNode"`
	Capabilities map[string]string `json:"capabilities"`
}

// LogicalCPU is one logical processor as reported to inventory.
type LogicalCPU struct {
	ID           int               `json:"cpu"`
	NUMANode     int               `json:"numaNode"`
	Core         int               `json:"core"`
	Thread       int               `json:"thread"`
	Family       string            `json:"cpuFamily,omitempty"`
	Model        string            `json:"cpuModel,omitempty"`
	Revision     string            `json:"revision,omitempty"`
	Capabilities map[string]string `json:"capabilities"`
}

// Equal compares placement only; family, model and revision are ignored.
func (c LogicalCPU) Equal(o LogicalCPU) bool {
	return c.ID == o.ID && c.NUMANode == o.NUMANode && c.Core == o.Core && c.Thread == o.Thread
}

func (c LogicalCPU) String() string {
	return fmt.Sprintf("%d [%d] [%d] [%d]", c.ID, c.NUMANode, c.Core, c.Thread)
}

// CPUInfo is the result of one scan of the CPU info source.
type CPUInfo struct {
	Topology  *Topology    `json:"topology"`
	NUMANodes []NUMANode   `json:"numaNodes"`
	CPUs      []LogicalCPU `json:"cpus"`
	NumCPUs   int          `json:"numCpus"` // NumCPUs counts processor lines.
}

// NumNodes is the number of NUMA nodes (sockets) found.
func (i *CPUInfo) NumNodes() int {
	return i.Topology.NumNodes()
}
