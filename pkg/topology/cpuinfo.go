package topology

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// DefaultCPUInfoPath is the kernel's CPU info source.
const DefaultCPUInfoPath = "/proc/cpuinfo"

// unknown marks a socket, core or thread not yet seen in the current block.
const unknown = -1

// scanState is the per-scan state machine. It never outlives ParseCPUInfo.
type scanState struct {
	info        *CPUInfo
	cpu         int
	socketID    int
	coreID      int
	threadID    int
	pending     LogicalCPU
	sockets     map[int]bool
	threadCount map[[2]int]int
}

type lineRule struct {
	name    string
	pattern *regexp.Regexp
	apply   func(s *scanState, match []string, line string)
}

// cpuInfoRules are tried in order; the first match consumes the line.
var cpuInfoRules = []lineRule{
	{
		name:    "processor",
		pattern: regexp.MustCompile(`^[Pp]rocessor\s*:\s*(\d+)`),
		apply: func(s *scanState, match []string, _ string) {
			s.cpu, _ = strconv.Atoi(match[1])
			s.socketID, s.coreID, s.threadID = unknown, unknown, unknown
			s.pending = LogicalCPU{}
			s.info.NumCPUs++
		},
	},
	{
		name:    "cpu family",
		pattern: regexp.MustCompile(`^cpu family\s*:\s*(\d+)`),
		apply: func(s *scanState, _ []string, line string) {
			s.pending.Family = lineValue(line)
		},
	},
	{
		name:    "model name",
		pattern: regexp.MustCompile(`^model name\s*:\s*(\w+)`),
		apply: func(s *scanState, _ []string, line string) {
			s.pending.Model = lineValue(line)
		},
	},
	{
		name:    "stepping",
		pattern: regexp.MustCompile(`^stepping\s*:\s*(\d+)`),
		apply: func(s *scanState, _ []string, line string) {
			s.pending.Revision = lineValue(line)
		},
	},
	{
		name:    "physical id",
		pattern: regexp.MustCompile(`^physical id\s*:\s*(\d+)`),
		apply: func(s *scanState, match []string, _ string) {
			s.socketID, _ = strconv.Atoi(match[1])
			s.addSocket(s.socketID)
		},
	},
	{
		name:    "core id",
		pattern: regexp.MustCompile(`^core id\s*:\s*(\d+)`),
		apply: func(s *scanState, match []string, _ string) {
			s.coreID, _ = strconv.Atoi(match[1])
			if s.socketID == unknown {
				s.socketID = 0
				s.addSocket(0)
			}
			key := [2]int{s.socketID, s.coreID}
			if seen, ok := s.threadCount[key]; ok {
				s.threadCount[key] = seen + 1
			} else {
				s.threadCount[key] = 0
			}
			s.threadID = s.threadCount[key]
			s.info.Topology.set(s.socketID, s.coreID, s.threadID, s.cpu)

			record := s.pending
			record.ID = s.cpu
			record.NUMANode = s.socketID
			record.Core = s.coreID
			record.Thread = s.threadID
			record.Capabilities = map[string]string{}
			s.info.CPUs = append(s.info.CPUs, record)
			s.pending = LogicalCPU{}
		},
	},
}

func lineValue(line string) string {
	_, value, _ := strings.Cut(line, ":")
	return strings.TrimSpace(value)
}

func (s *scanState) addSocket(socketID int) {
	if s.sockets[socketID] {
		return
	}
	s.sockets[socketID] = true
	s.info.NUMANodes = append(s.info.NUMANodes, NUMANode{ID: socketID, Capabilities: map[string]string{}})
}

func (s *scanState) feed(line string) {
	for _, rule := range cpuInfoRules {
		if match := rule.pattern.FindStringSubmatch(line); match != nil {
			rule.apply(s, match, line)
			return
		}
	}
}

// ParseCPUInfo builds the logical CPU topology from CPU info text.
// Hyperthread siblings are numbered by how often a (socket, core) pair
// has already been seen. When the source carries no socket/core data the
// topology is synthesized, see synthesize.
func ParseCPUInfo(r io.Reader) (*CPUInfo, error) {
	s := &scanState{
		info: &CPUInfo{
			Topology:  NewTopology(),
			NUMANodes: []NUMANode{},
			CPUs:      []LogicalCPU{},
		},
		cpu:         unknown,
		socketID:    unknown,
		coreID:      unknown,
		threadID:    unknown,
		sockets:     make(map[int]bool),
		threadCount: make(map[[2]int]int),
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.feed(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cpu info: %w", err)
	}
	if s.info.Topology.NumNodes() == 0 {
		s.synthesize()
	}
	return s.info, nil
}

// synthesize fills in one socket with one single-threaded core per
// counted processor. CPU IDs are handed out thread-outer, core-middle,
// socket-inner, which is not the order the regular path produces.
// Existing consumers depend on it, keep it.
func (s *scanState) synthesize() {
	nSockets, nCores, nThreads := 1, s.info.NumCPUs, 1
	s.info.CPUs = []LogicalCPU{}
	for socketID := 0; socketID < nSockets; socketID++ {
		s.addSocket(socketID)
		s.info.Topology.ensureSocket(socketID)
	}
	cpu := 0
	for threadID := 0; threadID < nThreads; threadID++ {
		for coreID := 0; coreID < nCores; coreID++ {
			for socketID := 0; socketID < nSockets; socketID++ {
				s.info.Topology.set(socketID, coreID, threadID, cpu)
				s.info.CPUs = append(s.info.CPUs, LogicalCPU{
					ID:           cpu,
					NUMANode:     socketID,
					Core:         coreID,
					Thread:       threadID,
					Capabilities: map[string]string{},
				})
				cpu++
			}
		}
	}
}

// ReadCPUInfo parses the CPU info file at path.
func ReadCPUInfo(path string) (*CPUInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cpu info: %w", err)
	}
	defer f.Close()
	return ParseCPUInfo(f)
}
