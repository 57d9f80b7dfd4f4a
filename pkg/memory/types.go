// Package memory reports per NUMA node memory capacity, optionally split
// into hugepage pools for the virtual switch and for guests.
package memory

import (
	"fmt"
	"path/filepath"
)

// Page and reservation sizes.
const (
	SizeKB   int64 = 1024
	Size2MKB int64 = 2048
	Size1GKB int64 = 1048576
	Size2MMB       = Size2MKB / SizeKB
	Size1GMB       = Size1GKB / SizeKB

	// VSwitchMemoryMB is the hugepage backed memory set aside on every node
	// for the virtual switch.
	VSwitchMemoryMB int64 = 1024
)

// DefaultSysRoot is the sysfs mount point.
const DefaultSysRoot = "/sys"

// Node is the memory report of one NUMA node. Hugepages is only set when
// HugepagesConfigured is; its fields are then always written out, zeros
// included.
type Node struct {
	NUMANode            int   `json:"numa_node"`
	MemTotalMiB         int64 `json:"memtotal_mib"`
	MemAvailMiB         int64 `json:"memavail_mib"`
	HugepagesConfigured bool  `json:"hugepages_configured"`

	*Hugepages
}

// Hugepages is the vswitch and guest hugepage split of a node.
type Hugepages struct {
	VSwitchHugepagesSizeMiB int64 `json:"vswitch_hugepages_size_mib"`
	VSwitchHugepagesNr      int64 `json:"vswitch_hugepages_nr"`
	VSwitchHugepagesAvail   int64 `json:"vswitch_hugepages_avail"`
	VMHugepagesNr2M         int64 `json:"vm_hugepages_nr_2M"`
	VMHugepagesNr1G         int64 `json:"vm_hugepages_nr_1G"`
	VMHugepagesAvail2M      int64 `json:"vm_hugepages_avail_2M"`
	VMHugepagesAvail1G      int64 `json:"vm_hugepages_avail_1G"`
	VMHugepagesPossible2M   int64 `json:"vm_hugepages_possible_2M"`
	VMHugepagesPossible1G   int64 `json:"vm_hugepages_possible_1G"`
	VMHugepagesUse1G        bool  `json:"vm_hugepages_use_1G"`
	NodeMemTotalMiB         int64 `json:"node_memtotal_mib"`
}

func nodeDir(sysRoot string, node int) string {
	return filepath.Join(sysRoot, "devices/system/node", fmt.Sprintf("node%d", node))
}
