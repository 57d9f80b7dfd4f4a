package reserve

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTable(t *testing.T) {
	tests := []struct {
		name string
		conf string
		want Table
	}{
		{
			name: "quoted pairs",
			conf: "# reserved memory\nCOMPUTE_BASE_RESERVED=(\"node0:8000MB\" \"node1:2000MB\")\n",
			want: Table{0: 8000, 1: 2000},
		},
		{
			name: "quoted halves",
			conf: `COMPUTE_BASE_RESERVED=("node0":"1500MB" "node1":"800MB")`,
			want: Table{0: 1500, 1: 800},
		},
		{
			name: "trailing fields ignored",
			conf: `COMPUTE_BASE_RESERVED=("node0:8000MB:1" "node1:2000MB:1")`,
			want: Table{0: 8000, 1: 2000},
		},
		{
			name: "malformed entries skipped",
			conf: `COMPUTE_BASE_RESERVED=("node0:lots" "socket1:200MB" "node2" "nodeX:10MB" "node3:300MB")`,
			want: Table{3: 300},
		},
		{
			name: "commented directive ignored",
			conf: "#COMPUTE_BASE_RESERVED=(\"node0:9MB\")\nCOMPUTE_CPU_LIST=\"0-3\"\n",
			want: Table{},
		},
		{
			name: "later entry wins",
			conf: `COMPUTE_BASE_RESERVED=("node0:100MB" "node0:200MB")`,
			want: Table{0: 200},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTable(strings.NewReader(tt.conf), logr.Discard())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compute_reserved.conf")
	require.NoError(t, os.WriteFile(path, []byte(`COMPUTE_BASE_RESERVED=("node0:4000MB")`+"\n"), 0644))

	table, err := ReadTable(path, logr.Discard())
	require.NoError(t, err)
	assert.Equal(t, int64(4000), table.Lookup(0))
	assert.Equal(t, int64(0), table.Lookup(1))

	_, err = ReadTable(filepath.Join(t.TempDir(), "absent.conf"), logr.Discard())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPolicyBaseReservedMB(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name       string
		node       int
		totalKB    int64
		configured int64
		controller bool
		want       int64
	}{
		{name: "enough memory keeps configured", node: 0, totalKB: 16000 * 1024, configured: 8000, want: 8000},
		{name: "exactly at threshold keeps configured", node: 1, totalKB: 3000 * 1024, configured: 2000, want: 2000},
		{name: "node 0 compute floor", node: 0, totalKB: 8500 * 1024, configured: 8000, want: 1600},
		{name: "node 0 controller floor", node: 0, totalKB: 8500 * 1024, configured: 8000, controller: true, want: 7600},
		{name: "secondary node floor", node: 1, totalKB: 2500 * 1024, configured: 2000, want: 500},
		{name: "secondary node ignores controller", node: 1, totalKB: 100, configured: 0, controller: true, want: 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BaseReservedMB(tt.node, tt.totalKB, tt.configured, tt.controller))
		})
	}
	assert.True(t, Policy{}.IsZero())
	assert.False(t, p.IsZero())
}
