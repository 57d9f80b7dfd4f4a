package memory

import (
	"github.com/go-logr/logr"

	"github.com/stefanaki/node-inventory/pkg/reserve"
)

// Markers is the state of the compute configuration markers at scan time.
type Markers struct {
	// InitialConfigComplete is set once the first compute configuration ran.
	InitialConfigComplete bool
	// VolatileConfigComplete is set once configuration finished this boot.
	VolatileConfigComplete bool
}

// initialReport is true before hugepages were ever allocated.
func (m Markers) initialReport() bool {
	return !m.InitialConfigComplete
}

// suppress is true after a reboot until hugepages are allocated again.
func (m Markers) suppress() bool {
	return m.InitialConfigComplete && !m.VolatileConfigComplete
}

// initialReportRatio is the share of possible 2M pages projected on the
// initial report.
const initialReportRatio = 0.9

// HugepageScanner reports node memory split into vswitch and guest
// hugepages. It carries configuration only; Scan keeps no state between
// calls.
type HugepageScanner struct {
	SysRoot    string
	Overcommit OvercommitProbe
	PSS        PSSProbe
	Reserved   reserve.Table
	Policy     reserve.Policy
	Controller bool
	Markers    Markers
	Logger     logr.Logger
}

// Scan reports nodes 0..numNodes-1 in order. Sources that are missing are
// skipped; Scan never fails. It returns an empty list while the hugepage
// state is in flux after a reboot.
func (s *HugepageScanner) Scan(numNodes int) []Node {
	logger := s.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	policy := s.Policy
	if policy.IsZero() {
		policy = reserve.DefaultPolicy()
	}
	sysRoot := s.SysRoot
	if sysRoot == "" {
		sysRoot = DefaultSysRoot
	}

	nodes := []Node{}
	if s.Markers.suppress() {
		logger.Info("Compute configuration incomplete since boot, suppressing memory report")
		return nodes
	}
	strict := isStrict(s.Overcommit, logger)

	for node := 0; node < numNodes; node++ {
		n := Node{NUMANode: node, HugepagesConfigured: true, Hugepages: &Hugepages{}}

		var totalHPMB, freeHPMB int64
		if pools, err := readHugepagePools(sysRoot, node); err == nil {
			totalHPMB, freeHPMB = applyHugepagePools(&n, pools)
		} else {
			logger.V(2).Info("No hugepage pools", "node", node, "reason", err.Error())
		}

		var freeKB, totalKB int64
		if m, err := readNodeMeminfo(sysRoot, node); err == nil {
			totalKB, freeKB = m.TotalKB, m.availableKB(strict)
		} else {
			logger.V(2).Info("No node meminfo", "node", node, "reason", err.Error())
		}

		var pssMB int64
		if node == 0 {
			pssMB = estimatePSS(s.PSS, logger)
		}

		nodeTotalKB := totalHPMB*SizeKB + freeKB + pssMB*SizeKB

		baseMB := policy.BaseReservedMB(node, totalKB, s.Reserved.Lookup(node), s.Controller)
		engKB := nodeTotalKB - baseMB*SizeKB
		vswitchKB := n.VSwitchHugepagesSizeMiB * n.VSwitchHugepagesNr * SizeKB
		vmKB := engKB - vswitchKB

		n.VMHugepagesPossible2M = vmKB / Size2MKB
		n.VMHugepagesPossible1G = vmKB / Size1GKB

		if s.Markers.initialReport() {
			projected := float64(n.VMHugepagesPossible2M) * initialReportRatio
			totalHPMB += int64(projected * float64(Size2MMB))
			freeHPMB = totalHPMB
			n.VMHugepagesNr2M = int64(projected)
			n.VMHugepagesAvail2M = int64(projected)
			n.VMHugepagesNr1G = 0
		}

		n.MemTotalMiB = totalHPMB
		n.MemAvailMiB = freeHPMB
		n.NodeMemTotalMiB = nodeTotalKB / SizeKB

		logger.V(1).Info("Scanned node memory", "node", node, "strict", strict,
			"baseReservedMB", baseMB, "nodeTotalKB", nodeTotalKB, "pssMB", pssMB,
			"possible2M", n.VMHugepagesPossible2M, "possible1G", n.VMHugepagesPossible1G)
		nodes = append(nodes, n)
	}
	return nodes
}
