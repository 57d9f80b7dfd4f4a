package memory

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/prometheus/procfs"
)

// OvercommitStrict is the vm.overcommit_memory value of strict accounting.
const OvercommitStrict = 2

// OvercommitProbe reports the kernel's vm.overcommit_memory mode.
type OvercommitProbe interface {
	OvercommitMode() (int, error)
}

// PSSProbe estimates the proportional set size of every process, in MiB.
type PSSProbe interface {
	TotalPSSMiB() (int64, error)
}

// OvercommitFunc adapts a function to OvercommitProbe.
type OvercommitFunc func() (int, error)

func (f OvercommitFunc) OvercommitMode() (int, error) { return f() }

// PSSFunc adapts a function to PSSProbe.
type PSSFunc func() (int64, error)

func (f PSSFunc) TotalPSSMiB() (int64, error) { return f() }

// ProcfsProbe implements both probes on top of a procfs mount.
type ProcfsProbe struct {
	fs     procfs.FS
	logger logr.Logger
}

// NewProcfsProbe returns a probe reading from the procfs mounted at procRoot.
func NewProcfsProbe(procRoot string, logger logr.Logger) (*ProcfsProbe, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs at %s: %w", procRoot, err)
	}
	return &ProcfsProbe{fs: fs, logger: logger.WithName("procfs")}, nil
}

func (p *ProcfsProbe) OvercommitMode() (int, error) {
	vm, err := p.fs.VM()
	if err != nil {
		return 0, fmt.Errorf("failed to read vm sysctls: %w", err)
	}
	if vm.OvercommitMemory == nil {
		return 0, errors.New("overcommit_memory not available")
	}
	return int(*vm.OvercommitMemory), nil
}

// TotalPSSMiB sums Pss over all processes. Processes that exit or deny
// access while being walked are skipped.
func (p *ProcfsProbe) TotalPSSMiB() (int64, error) {
	procs, err := p.fs.AllProcs()
	if err != nil {
		return 0, fmt.Errorf("failed to list processes: %w", err)
	}
	var total uint64
	skipped := 0
	for _, proc := range procs {
		rollup, err := proc.ProcSMapsRollup()
		if err != nil {
			skipped++
			continue
		}
		total += rollup.Pss
	}
	p.logger.V(2).Info("Summed proportional set size", "processes", len(procs), "skipped", skipped)
	return int64(total / 1024 / 1024), nil
}

func isStrict(probe OvercommitProbe, logger logr.Logger) bool {
	if probe == nil {
		return false
	}
	mode, err := probe.OvercommitMode()
	if err != nil {
		logger.Info("Failed to check for overcommit", "error", err.Error())
		return false
	}
	return mode == OvercommitStrict
}

func estimatePSS(probe PSSProbe, logger logr.Logger) int64 {
	if probe == nil {
		return 0
	}
	mb, err := probe.TotalPSSMiB()
	if err != nil {
		logger.Error(err, "Cannot calculate PSS")
		return 0
	}
	return mb
}
