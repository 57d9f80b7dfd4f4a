package memory

import "github.com/go-logr/logr"

// ScanPlain reports total and available memory of nodes 0..numNodes-1 for
// hosts without hugepage reservations. Nodes whose meminfo is missing
// report zeros.
func ScanPlain(sysRoot string, numNodes int, logger logr.Logger) []Node {
	if sysRoot == "" {
		sysRoot = DefaultSysRoot
	}
	nodes := make([]Node, 0, numNodes)
	for node := 0; node < numNodes; node++ {
		m, err := readNodeMeminfo(sysRoot, node)
		if err != nil {
			logger.V(2).Info("No node meminfo", "node", node, "reason", err.Error())
		}
		nodes = append(nodes, Node{
			NUMANode:    node,
			MemTotalMiB: m.TotalKB / SizeKB,
			MemAvailMiB: m.FreeKB / SizeKB,
		})
	}
	return nodes
}
