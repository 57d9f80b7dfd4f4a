package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanaki/node-inventory/pkg/reserve"
)

var configured = Markers{InitialConfigComplete: true, VolatileConfigComplete: true}

// writeSyntheticFile creates a file at path within root, creating parent
// directories as needed.
func writeSyntheticFile(t *testing.T, root, path, content string) {
	t.Helper()
	fullPath := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
	require.NoError(t, os.WriteFile(fullPath, []byte(content), 0644))
}

func writeHugepages(t *testing.T, root string, node int, sizeKB string, nr, free int) {
	t.Helper()
	dir := fmt.Sprintf("devices/system/node/node%d/hugepages/hugepages-%skB", node, sizeKB)
	writeSyntheticFile(t, root, dir+"/nr_hugepages", fmt.Sprintf("%d\n", nr))
	writeSyntheticFile(t, root, dir+"/free_hugepages", fmt.Sprintf("%d\n", free))
	writeSyntheticFile(t, root, dir+"/surplus_hugepages", "0\n")
}

func writeMeminfo(t *testing.T, root string, node int, fields map[string]int64) {
	t.Helper()
	var b strings.Builder
	for _, name := range []string{"MemTotal", "MemFree", "MemUsed", "FilePages", "SReclaimable", "CommitLimit", "Committed_AS", "HugePages_Total"} {
		if kb, ok := fields[name]; ok {
			fmt.Fprintf(&b, "Node %d %s:%s%d kB\n", node, name, strings.Repeat(" ", 16-len(name)), kb)
		}
	}
	writeSyntheticFile(t, root, fmt.Sprintf("devices/system/node/node%d/meminfo", node), b.String())
}

func overcommit(mode int) OvercommitProbe {
	return OvercommitFunc(func() (int, error) { return mode, nil })
}

func pss(mb int64) PSSProbe {
	return PSSFunc(func() (int64, error) { return mb, nil })
}

func TestParseNodeMeminfo(t *testing.T) {
	src := "Node 0 MemTotal:       16384000 kB\n" +
		"Node 0 MemFree:         1000000 kB\n" +
		"Node 0 MemUsed:        15384000 kB\n" +
		"Node 0 FilePages:        200000 kB\n" +
		"Node 0 SReclaimable:      30000 kB\n" +
		"Node 0 CommitLimit:        1000 kB\n" +
		"Node 0 Committed_AS:        400 kB\n"
	m, err := parseNodeMeminfo(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, nodeMeminfo{TotalKB: 16384000, FreeKB: 1230000, CommitLimitKB: 1000, CommittedKB: 400}, m)

	assert.Equal(t, int64(1230000), m.availableKB(false))
	assert.Equal(t, int64(600), m.availableKB(true))
}

func TestHugepagesTwoMegOnly(t *testing.T) {
	root := t.TempDir()
	writeHugepages(t, root, 0, "2048", 1100, 1000)

	s := &HugepageScanner{SysRoot: root, Markers: configured}
	nodes := s.Scan(1)
	require.Len(t, nodes, 1)
	n := nodes[0]
	assert.True(t, n.HugepagesConfigured)
	assert.Equal(t, int64(2), n.VSwitchHugepagesSizeMiB)
	assert.Equal(t, int64(512), n.VSwitchHugepagesNr)
	assert.Equal(t, int64(588), n.VMHugepagesNr2M)
	assert.Equal(t, int64(1000), n.VMHugepagesAvail2M)
	assert.False(t, n.VMHugepagesUse1G)
	assert.Equal(t, int64(2200), n.MemTotalMiB)
	assert.Equal(t, int64(2000), n.MemAvailMiB)
}

func mixedHost(t *testing.T) string {
	root := t.TempDir()
	writeHugepages(t, root, 0, "1048576", 4, 3)
	writeHugepages(t, root, 0, "2048", 1100, 1100)
	writeMeminfo(t, root, 0, map[string]int64{
		"MemTotal":     16777216,
		"MemFree":      4000000,
		"MemUsed":      12777216,
		"FilePages":    1000000,
		"SReclaimable": 48576,
		"CommitLimit":  1,
		"Committed_AS": 1,
	})
	return root
}

func TestHugepagesScanConfigured(t *testing.T) {
	s := &HugepageScanner{
		SysRoot:    mixedHost(t),
		Overcommit: overcommit(0),
		PSS:        pss(1000),
		Reserved:   reserve.Table{0: 8000},
		Markers:    configured,
		Logger:     logr.Discard(),
	}
	nodes := s.Scan(1)
	require.Len(t, nodes, 1)
	assert.Equal(t, Node{
		NUMANode:            0,
		MemTotalMiB:         6296,
		MemAvailMiB:         5272,
		HugepagesConfigured: true,
		Hugepages: &Hugepages{
			VSwitchHugepagesSizeMiB: 1024,
			VSwitchHugepagesNr:      1,
			VMHugepagesNr2M:         1100,
			VMHugepagesNr1G:         3,
			VMHugepagesAvail2M:      1100,
			VMHugepagesAvail1G:      3,
			VMHugepagesPossible2M:   1601,
			VMHugepagesPossible1G:   3,
			VMHugepagesUse1G:        true,
			NodeMemTotalMiB:         12226,
		},
	}, nodes[0])
}

func TestHugepagesInitialReport(t *testing.T) {
	s := &HugepageScanner{
		SysRoot:  mixedHost(t),
		PSS:      pss(1000),
		Reserved: reserve.Table{0: 8000},
	}
	nodes := s.Scan(1)
	require.Len(t, nodes, 1)
	n := nodes[0]
	assert.Equal(t, int64(1601), n.VMHugepagesPossible2M)
	assert.Equal(t, int64(1440), n.VMHugepagesNr2M)
	assert.Equal(t, int64(1440), n.VMHugepagesAvail2M)
	assert.Equal(t, int64(0), n.VMHugepagesNr1G)
	// 1601 * 0.9 * 2 MiB, truncated after doubling.
	assert.Equal(t, int64(6296+2881), n.MemTotalMiB)
	assert.Equal(t, n.MemTotalMiB, n.MemAvailMiB)

	data, err := json.Marshal(n)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	require.Contains(t, fields, "vm_hugepages_nr_1G")
	assert.Equal(t, float64(0), fields["vm_hugepages_nr_1G"])
	require.Contains(t, fields, "vswitch_hugepages_avail")
	assert.Equal(t, float64(0), fields["vswitch_hugepages_avail"])
}

func TestNodeJSONFields(t *testing.T) {
	root := t.TempDir()
	writeHugepages(t, root, 0, "2048", 1100, 1000)
	n := (&HugepageScanner{SysRoot: root, Markers: configured}).Scan(1)[0]

	data, err := json.Marshal(n)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, false, fields["vm_hugepages_use_1G"])
	assert.Contains(t, fields, "vm_hugepages_avail_1G")

	var decoded Node
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, n, decoded)

	data, err = json.Marshal(Node{NUMANode: 1, MemTotalMiB: 10})
	require.NoError(t, err)
	assert.JSONEq(t, `{"numa_node":1,"memtotal_mib":10,"memavail_mib":0,"hugepages_configured":false}`, string(data))
}

func TestHugepagesSuppressedAfterReboot(t *testing.T) {
	s := &HugepageScanner{
		SysRoot: mixedHost(t),
		Markers: Markers{InitialConfigComplete: true},
	}
	nodes := s.Scan(2)
	assert.NotNil(t, nodes)
	assert.Empty(t, nodes)
}

func TestHugepagesStrictOvercommit(t *testing.T) {
	root := t.TempDir()
	writeMeminfo(t, root, 0, map[string]int64{
		"MemTotal":     8388608,
		"MemFree":      100,
		"FilePages":    100,
		"SReclaimable": 100,
		"CommitLimit":  6144000,
		"Committed_AS": 2048000,
	})

	strict := &HugepageScanner{SysRoot: root, Overcommit: overcommit(OvercommitStrict), Markers: configured}
	n := strict.Scan(1)[0]
	assert.Equal(t, int64(4000), n.NodeMemTotalMiB)
	assert.Equal(t, int64(2000), n.VMHugepagesPossible2M)
	assert.Equal(t, int64(3), n.VMHugepagesPossible1G)

	relaxed := &HugepageScanner{SysRoot: root, Overcommit: overcommit(1), Markers: configured}
	assert.Equal(t, int64(0), relaxed.Scan(1)[0].NodeMemTotalMiB)

	failing := &HugepageScanner{
		SysRoot:    root,
		Overcommit: OvercommitFunc(func() (int, error) { return 0, errors.New("no procfs") }),
		Markers:    configured,
	}
	assert.Equal(t, int64(0), failing.Scan(1)[0].NodeMemTotalMiB)
}

func TestHugepagesPSSOnlyOnNodeZero(t *testing.T) {
	root := t.TempDir()
	calls := 0
	s := &HugepageScanner{
		SysRoot: root,
		PSS: PSSFunc(func() (int64, error) {
			calls++
			return 100, nil
		}),
		Markers: configured,
	}
	nodes := s.Scan(2)
	require.Len(t, nodes, 2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(100), nodes[0].NodeMemTotalMiB)
	assert.Equal(t, int64(0), nodes[1].NodeMemTotalMiB)
	assert.Equal(t, 1, nodes[1].NUMANode)

	s.PSS = PSSFunc(func() (int64, error) { return 0, errors.New("smaps unreadable") })
	assert.Equal(t, int64(0), s.Scan(1)[0].NodeMemTotalMiB)
}

func TestHugepagesClipsReservationOnSmallNodes(t *testing.T) {
	root := t.TempDir()
	writeMeminfo(t, root, 0, map[string]int64{"MemTotal": 4096000, "MemFree": 4096000})
	writeMeminfo(t, root, 1, map[string]int64{"MemTotal": 2048000, "MemFree": 2048000})

	s := &HugepageScanner{
		SysRoot:    root,
		Reserved:   reserve.Table{0: 3500, 1: 1500},
		Controller: true,
		Markers:    configured,
	}
	nodes := s.Scan(2)
	// node 0 clipped to 1600+6000 MB, node 1 to 500 MB.
	assert.Equal(t, (4096000-7600*1024)/Size2MKB, nodes[0].VMHugepagesPossible2M)
	assert.Equal(t, (2048000-500*1024)/Size2MKB, nodes[1].VMHugepagesPossible2M)
}

func TestHugepagesIdempotent(t *testing.T) {
	s := &HugepageScanner{
		SysRoot:  mixedHost(t),
		PSS:      pss(10),
		Reserved: reserve.Table{0: 2000},
		Markers:  configured,
	}
	assert.Equal(t, s.Scan(2), s.Scan(2))
}

func TestScanPlain(t *testing.T) {
	root := t.TempDir()
	writeMeminfo(t, root, 0, map[string]int64{
		"MemTotal":     16384000,
		"MemFree":      1024000,
		"FilePages":    2048000,
		"SReclaimable": 1024,
	})
	nodes := ScanPlain(root, 2, logr.Discard())
	assert.Equal(t, []Node{
		{NUMANode: 0, MemTotalMiB: 16000, MemAvailMiB: 3001},
		{NUMANode: 1},
	}, nodes)
}

func TestProcfsProbe(t *testing.T) {
	root := t.TempDir()
	rollup := "00400000-7ffd1c3f5000 ---p 00000000 00:00 0          [rollup]\n" +
		"Rss:             2097152 kB\n" +
		"Pss:             %d kB\n" +
		"Swap:                  0 kB\n"
	writeSyntheticFile(t, root, "1/smaps_rollup", fmt.Sprintf(rollup, 1048576))
	writeSyntheticFile(t, root, "22/smaps_rollup", fmt.Sprintf(rollup, 524288))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "33"), 0755))
	writeSyntheticFile(t, root, "sys/vm/overcommit_memory", "2\n")

	probe, err := NewProcfsProbe(root, logr.Discard())
	require.NoError(t, err)

	mb, err := probe.TotalPSSMiB()
	require.NoError(t, err)
	assert.Equal(t, int64(1536), mb)

	mode, err := probe.OvercommitMode()
	require.NoError(t, err)
	assert.Equal(t, OvercommitStrict, mode)
}
