package topology

import (
	"sort"

	"golang.org/x/exp/maps"
	"k8s.io/utils/cpuset"
)

// GetCPUParentInfo returns the socket, core and thread holding targetCPU,
// or -1s when the CPU is not part of the topology.
func (t *Topology) GetCPUParentInfo(targetCPU int) (int, int, int) {
	for socketID, socket := range t.Sockets {
		for coreID, core := range socket.Cores {
			for threadID, cpu := range core.Threads {
				if cpu == targetCPU {
					return socketID, coreID, threadID
				}
			}
		}
	}
	return -1, -1, -1
}

// GetAllCPUsInSocket returns the sorted logical CPUs of one socket.
func (t *Topology) GetAllCPUsInSocket(socketID int) []int {
	return t.socketCPUs(socketID).List()
}

// GetAllCPUsInNUMA returns the sorted logical CPUs of a NUMA node. Sockets
// and NUMA nodes are the same thing in this topology.
func (t *Topology) GetAllCPUsInNUMA(numaID int) []int {
	return t.GetAllCPUsInSocket(numaID)
}

func (t *Topology) socketCPUs(socketID int) cpuset.CPUSet {
	cpus := cpuset.New()
	for _, core := range t.Sockets[socketID].Cores {
		cpus = cpus.Union(core.CPUs())
	}
	return cpus
}

// GetNUMANodeForCPU returns the NUMA node of cpu or -1.
func (t *Topology) GetNUMANodeForCPU(cpu int) int {
	socketID, _, _ := t.GetCPUParentInfo(cpu)
	return socketID
}

// GetNUMANodesForCPUs returns the sorted NUMA nodes spanned by cpus.
func (t *Topology) GetNUMANodesForCPUs(cpus []int) []int {
	nodes := make(map[int]struct{})
	for _, cpu := range cpus {
		nodeID := t.GetNUMANodeForCPU(cpu)
		if nodeID != -1 {
			nodes[nodeID] = struct{}{}
		}
	}
	ids := maps.Keys(nodes)
	sort.Ints(ids)
	return ids
}

// SocketIDs returns the socket IDs in ascending order.
func (t *Topology) SocketIDs() []int {
	ids := maps.Keys(t.Sockets)
	sort.Ints(ids)
	return ids
}

// CPUSet returns every logical CPU in the topology.
func (t *Topology) CPUSet() cpuset.CPUSet {
	cpus := cpuset.New()
	for socketID := range t.Sockets {
		cpus = cpus.Union(t.socketCPUs(socketID))
	}
	return cpus
}
