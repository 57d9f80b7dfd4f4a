// Package inventory takes one snapshot of a host's CPU topology and NUMA
// memory for the inventory reporting layer.
package inventory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	k8scpuset "k8s.io/utils/cpuset"

	"github.com/stefanaki/node-inventory/pkg/config"
	"github.com/stefanaki/node-inventory/pkg/cpuset"
	"github.com/stefanaki/node-inventory/pkg/memory"
	"github.com/stefanaki/node-inventory/pkg/reserve"
	"github.com/stefanaki/node-inventory/pkg/topology"
)

// Snapshot is everything one scan reports. OnlineNUMANodes is the kernel's
// view of online nodes and may disagree with the socket count, e.g. with
// sub-NUMA clustering.
type Snapshot struct {
	NUMANodes       []topology.NUMANode   `json:"numaNodes"`
	CPUs            []topology.LogicalCPU `json:"cpus"`
	Memory          []memory.Node         `json:"memory"`
	Topology        *topology.Topology    `json:"topology"`
	HugepageMode    bool                  `json:"hugepageMode"`
	OnlineNUMANodes []int                 `json:"onlineNumaNodes,omitempty"`
}

// Scanner runs inventory scans against the files named by its config.
type Scanner struct {
	conf       *config.Config
	overcommit memory.OvercommitProbe
	pss        memory.PSSProbe
	logger     logr.Logger
}

// Option customizes a Scanner.
type Option func(*Scanner)

// WithProbes replaces the procfs backed overcommit and PSS probes.
func WithProbes(overcommit memory.OvercommitProbe, pss memory.PSSProbe) Option {
	return func(s *Scanner) {
		s.overcommit = overcommit
		s.pss = pss
	}
}

// NewScanner returns a Scanner for conf. Probes not given through
// WithProbes read conf.ProcRoot through procfs; if that cannot be opened
// they are left out and the scan degrades to "not strict" and no PSS.
func NewScanner(conf *config.Config, logger logr.Logger, opts ...Option) *Scanner {
	s := &Scanner{conf: conf, logger: logger.WithName("inventory")}
	for _, opt := range opts {
		opt(s)
	}
	if s.overcommit != nil && s.pss != nil {
		return s
	}
	probe, err := memory.NewProcfsProbe(conf.ProcRoot, s.logger)
	if err != nil {
		s.logger.Error(err, "Memory probes unavailable")
		return s
	}
	if s.overcommit == nil {
		s.overcommit = probe
	}
	if s.pss == nil {
		s.pss = probe
	}
	return s
}

// Scan reads the CPU topology and then the memory of every node it found.
// Only an unreadable CPU info source fails the scan.
func (s *Scanner) Scan() (*Snapshot, error) {
	cpus, err := topology.ReadCPUInfo(s.conf.CPUInfoPath())
	if err != nil {
		return nil, err
	}
	s.logger.V(1).Info("Scanned cpu topology", "nodes", cpus.NumNodes(), "cpus", cpus.NumCPUs, "cpuset", cpus.Topology.CPUSet().String())

	snapshot := &Snapshot{
		NUMANodes: cpus.NUMANodes,
		CPUs:      cpus.CPUs,
		Topology:  cpus.Topology,
	}
	if online, err := readOnlineNodes(s.conf.SysRoot); err == nil {
		snapshot.OnlineNUMANodes = online
		if len(online) != cpus.NumNodes() {
			s.logger.Info("Socket count differs from online NUMA nodes", "sockets", cpus.NumNodes(), "online", online)
		}
	} else {
		s.logger.V(2).Info("Online NUMA nodes unknown", "reason", err.Error())
	}
	s.checkNodeCPUs(cpus.Topology)
	if !s.conf.HugepagesEnabled() {
		snapshot.Memory = memory.ScanPlain(s.conf.SysRoot, cpus.NumNodes(), s.logger)
		return snapshot, nil
	}

	snapshot.HugepageMode = true
	snapshot.Memory = s.hugepageScanner().Scan(cpus.NumNodes())
	return snapshot, nil
}

func readOnlineNodes(sysRoot string) ([]int, error) {
	data, err := os.ReadFile(filepath.Join(sysRoot, "devices/system/node/online"))
	if err != nil {
		return nil, err
	}
	return cpuset.ParseList(string(data))
}

// checkNodeCPUs compares each node's kernel cpulist with the CPUs cpuinfo
// placed on it and returns the nodes that disagree. Nodes without a
// readable cpulist are not compared.
func (s *Scanner) checkNodeCPUs(topo *topology.Topology) []int {
	mismatched := []int{}
	for _, node := range topo.SocketIDs() {
		path := filepath.Join(s.conf.SysRoot, "devices/system/node", fmt.Sprintf("node%d", node), "cpulist")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		kernel, err := cpuset.ToCPUSet(string(data))
		if err != nil {
			s.logger.V(2).Info("Skipping malformed node cpulist", "node", node, "reason", err.Error())
			continue
		}
		parsed := k8scpuset.New(topo.GetAllCPUsInNUMA(node)...)
		if !kernel.Equals(parsed) {
			s.logger.Info("NUMA node CPUs differ from cpuinfo", "node", node,
				"kernel", kernel.String(), "cpuinfo", parsed.String(),
				"cpuinfoNodes", topo.GetNUMANodesForCPUs(kernel.List()))
			mismatched = append(mismatched, node)
		}
	}
	return mismatched
}

func (s *Scanner) hugepageScanner() *memory.HugepageScanner {
	table, err := reserve.ReadTable(s.conf.ComputeReservedConf, s.logger)
	if err != nil {
		s.logger.Error(err, "Ignoring base memory reservations")
	}
	nodeType, err := s.conf.ResolveNodeType()
	if err != nil {
		s.logger.V(2).Info("Node type unknown, assuming non-controller", "reason", err.Error())
	}
	markers := s.conf.Markers()
	return &memory.HugepageScanner{
		SysRoot:    s.conf.SysRoot,
		Overcommit: s.overcommit,
		PSS:        s.pss,
		Reserved:   table,
		Policy:     reserve.DefaultPolicy(),
		Controller: nodeType == config.NodeTypeController,
		Markers: memory.Markers{
			InitialConfigComplete:  markers.InitialConfigComplete(),
			VolatileConfigComplete: markers.VolatileConfigComplete(),
		},
		Logger: s.logger,
	}
}
