package memory

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// hugepagePool is one hugepages-<size>kB directory of a node.
type hugepagePool struct {
	Name   string
	SizeMB int64
	Nr     int64
	Free   int64
}

// readHugepagePools lists the node's hugepage pools in directory order.
// Counter files that are missing or unparsable read as 0.
func readHugepagePools(sysRoot string, node int) ([]hugepagePool, error) {
	dir := filepath.Join(nodeDir(sysRoot, node), "hugepages")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var pools []hugepagePool
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		_, size, ok := strings.Cut(entry.Name(), "-")
		if !ok {
			continue
		}
		pool := hugepagePool{Name: entry.Name(), SizeMB: Size2MMB}
		if strings.HasPrefix(size, strconv.FormatInt(Size1GKB, 10)+"kB") {
			pool.SizeMB = Size1GMB
		}
		pool.Nr = readSysfsInt(filepath.Join(dir, entry.Name(), "nr_hugepages"))
		pool.Free = readSysfsInt(filepath.Join(dir, entry.Name(), "free_hugepages"))
		pools = append(pools, pool)
	}
	return pools, nil
}

// readSysfsInt reads the integer on the first line of path, 0 on any error.
func readSysfsInt(path string) int64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	line, _, _ := strings.Cut(string(data), "\n")
	value, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil {
		return 0
	}
	return value
}

// applyHugepagePools accounts pools into n and returns the configured and
// free hugepage memory in MB. The vswitch reservation comes out of the 1G
// pool when there is one. A lone 2M pool gives it 2M pages instead; next to
// a 1G pool the 2M pool keeps all its pages for guests.
func applyHugepagePools(n *Node, pools []hugepagePool) (totalMB, freeMB int64) {
	for _, pool := range pools {
		totalMB += pool.Nr * pool.SizeMB
		freeMB += pool.Free * pool.SizeMB

		if pool.SizeMB == Size1GMB {
			vswitchNr := VSwitchMemoryMB / Size1GMB
			n.VSwitchHugepagesSizeMiB = Size1GMB
			n.VSwitchHugepagesNr = vswitchNr
			n.VSwitchHugepagesAvail = 0
			n.VMHugepagesNr1G = pool.Nr - vswitchNr
			n.VMHugepagesAvail1G = pool.Free
			n.VMHugepagesUse1G = true
			continue
		}

		var vswitchNr int64
		if len(pools) == 1 {
			vswitchNr = VSwitchMemoryMB / Size2MMB
			n.VSwitchHugepagesSizeMiB = Size2MMB
			n.VSwitchHugepagesNr = vswitchNr
			n.VSwitchHugepagesAvail = 0
			n.VMHugepagesUse1G = false
		}
		n.VMHugepagesNr2M = pool.Nr - vswitchNr
		n.VMHugepagesAvail2M = pool.Free
	}
	return totalMB, freeMB
}
