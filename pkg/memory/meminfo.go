package memory

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// nodeMeminfo holds the fields of a node's meminfo, in KB.
type nodeMeminfo struct {
	TotalKB       int64
	FreeKB        int64 // MemFree + FilePages + SReclaimable
	CommitLimitKB int64
	CommittedKB   int64
}

type meminfoRule struct {
	pattern *regexp.Regexp
	apply   func(m *nodeMeminfo, kb int64)
}

func nodeField(name string) *regexp.Regexp {
	return regexp.MustCompile(`^Node\s+\d+\s+` + name + `:\s+(\d+)`)
}

var meminfoRules = []meminfoRule{
	{nodeField("MemTotal"), func(m *nodeMeminfo, kb int64) { m.TotalKB += kb }},
	{nodeField("MemFree"), func(m *nodeMeminfo, kb int64) { m.FreeKB += kb }},
	{nodeField("FilePages"), func(m *nodeMeminfo, kb int64) { m.FreeKB += kb }},
	{nodeField("SReclaimable"), func(m *nodeMeminfo, kb int64) { m.FreeKB += kb }},
	{nodeField("CommitLimit"), func(m *nodeMeminfo, kb int64) { m.CommitLimitKB = kb }},
	{nodeField("Committed_AS"), func(m *nodeMeminfo, kb int64) { m.CommittedKB = kb }},
}

func parseNodeMeminfo(r io.Reader) (nodeMeminfo, error) {
	var m nodeMeminfo
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		for _, rule := range meminfoRules {
			match := rule.pattern.FindStringSubmatch(line)
			if match == nil {
				continue
			}
			if kb, err := strconv.ParseInt(match[1], 10, 64); err == nil {
				rule.apply(&m, kb)
			}
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nodeMeminfo{}, fmt.Errorf("failed to scan node meminfo: %w", err)
	}
	return m, nil
}

func readNodeMeminfo(sysRoot string, node int) (nodeMeminfo, error) {
	f, err := os.Open(filepath.Join(nodeDir(sysRoot, node), "meminfo"))
	if err != nil {
		return nodeMeminfo{}, err
	}
	defer f.Close()
	return parseNodeMeminfo(f)
}

// availableKB is the free memory of the node. Under strict overcommit
// accounting it is the commit headroom instead.
func (m nodeMeminfo) availableKB(strict bool) int64 {
	if strict {
		return m.CommitLimitKB - m.CommittedKB
	}
	return m.FreeKB
}
