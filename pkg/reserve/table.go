package reserve

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
)

const (
	// DefaultConfPath is where the compute reservation config lives.
	DefaultConfPath = "/etc/nova/compute_reserved.conf"
	// BaseReservedDirective names the per-node base reservation list, e.g.
	//
	//	COMPUTE_BASE_RESERVED=("node0:8000MB" "node1:2000MB")
	BaseReservedDirective = "COMPUTE_BASE_RESERVED"
)

// Table maps NUMA node index to its configured base reservation in MB.
type Table map[int]int64

// Lookup returns the reservation for node, 0 when none is configured.
func (t Table) Lookup(node int) int64 {
	return t[node]
}

// ParseTable reads the base reservation directive. Entries that do not
// parse are skipped and reported through logger at V(2).
func ParseTable(r io.Reader, logger logr.Logger) (Table, error) {
	table := Table{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") || !strings.Contains(line, BaseReservedDirective) {
			continue
		}
		_, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), "()")
		for _, entry := range strings.Fields(value) {
			node, mb, err := parseEntry(entry)
			if err != nil {
				logger.V(2).Info("Skipping base reservation entry", "entry", entry, "reason", err.Error())
				continue
			}
			table[node] = mb
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reservation config: %w", err)
	}
	return table, nil
}

// parseEntry parses one `nodeN:valueMB` pair. Quotes around the pair or
// either half are tolerated.
func parseEntry(entry string) (int, int64, error) {
	parts := strings.Split(strings.Trim(entry, `"'`), ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("missing separator")
	}
	key := strings.Trim(parts[0], `"'`)
	if !strings.HasPrefix(key, "node") {
		return 0, 0, fmt.Errorf("unknown key %q", key)
	}
	node, err := strconv.Atoi(strings.TrimPrefix(key, "node"))
	if err != nil || node < 0 {
		return 0, 0, fmt.Errorf("bad node index %q", key)
	}
	value := strings.TrimSuffix(strings.Trim(parts[1], `"'`), "MB")
	mb, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad size %q", parts[1])
	}
	return node, mb, nil
}

// ReadTable parses the reservation config at path.
func ReadTable(path string, logger logr.Logger) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reservation config: %w", err)
	}
	defer f.Close()
	return ParseTable(f, logger)
}
