package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// NodeType is the role of the host in the cloud.
type NodeType int

// Supported node types.
const (
	NodeTypeUnknown NodeType = iota
	NodeTypeController
	NodeTypeWorker
	NodeTypeStorage
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeController:
		return "controller"
	case NodeTypeWorker:
		return "worker"
	case NodeTypeStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// ParseNodeType parses a node type name and returns the corresponding NodeType.
func ParseNodeType(name string) (NodeType, error) {
	val, ok := map[string]NodeType{
		"controller": NodeTypeController,
		"worker":     NodeTypeWorker,
		"compute":    NodeTypeWorker,
		"storage":    NodeTypeStorage,
	}[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return NodeTypeUnknown, fmt.Errorf("unknown node type: %s", name)
	}
	return val, nil
}

// ReadNodeType returns the nodetype= entry of a platform.conf file.
func ReadNodeType(path string) (NodeType, error) {
	f, err := os.Open(path)
	if err != nil {
		return NodeTypeUnknown, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || strings.TrimSpace(key) != "nodetype" {
			continue
		}
		return ParseNodeType(strings.Trim(strings.TrimSpace(value), `"'`))
	}
	if err := scanner.Err(); err != nil {
		return NodeTypeUnknown, err
	}
	return NodeTypeUnknown, fmt.Errorf("no nodetype in %s", path)
}

// ResolveNodeType returns the configured override or the platform.conf
// node type.
func (c *Config) ResolveNodeType() (NodeType, error) {
	if c.NodeType != "" {
		return ParseNodeType(c.NodeType)
	}
	return ReadNodeType(c.PlatformConf)
}
