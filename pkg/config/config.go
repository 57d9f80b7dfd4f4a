package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config locates the kernel interfaces and platform files the inventory
// scan reads. Roots are overridable so scans can run against a copy of a
// host's /proc and /sys.
type Config struct {
	ProcRoot             string `yaml:"procRoot"`
	SysRoot              string `yaml:"sysRoot"`
	ComputeReservedConf  string `yaml:"computeReservedConf"`
	PlatformConf         string `yaml:"platformConf"`
	InitialConfigMarker  string `yaml:"initialConfigMarker"`
	VolatileConfigMarker string `yaml:"volatileConfigMarker"`
	NodeType             string `yaml:"nodeType"` // NodeType overrides the platform.conf value.
	StateFile            string `yaml:"stateFile"`
}

// Default returns the configuration of a stock host.
func Default() *Config {
	return &Config{
		ProcRoot:             "/proc",
		SysRoot:              "/sys",
		ComputeReservedConf:  "/etc/nova/compute_reserved.conf",
		PlatformConf:         "/etc/platform/platform.conf",
		InitialConfigMarker:  "/etc/platform/.initial_compute_config_complete",
		VolatileConfigMarker: "/var/run/.compute_config_complete",
	}
}

// Load reads a YAML config file. Unset fields take their Default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read configuration file: %w", err)
	}
	conf := &Config{}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}
	conf.applyDefaults()
	return conf, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	for _, field := range []struct {
		value *string
		def   string
	}{
		{&c.ProcRoot, d.ProcRoot},
		{&c.SysRoot, d.SysRoot},
		{&c.ComputeReservedConf, d.ComputeReservedConf},
		{&c.PlatformConf, d.PlatformConf},
		{&c.InitialConfigMarker, d.InitialConfigMarker},
		{&c.VolatileConfigMarker, d.VolatileConfigMarker},
	} {
		if *field.value == "" {
			*field.value = field.def
		}
	}
}

// CPUInfoPath is the cpuinfo file under ProcRoot.
func (c *Config) CPUInfoPath() string {
	return filepath.Join(c.ProcRoot, "cpuinfo")
}

// HugepagesEnabled reports whether the reservation config is present, which
// switches memory reporting to hugepage accounting.
func (c *Config) HugepagesEnabled() bool {
	info, err := os.Stat(c.ComputeReservedConf)
	return err == nil && info.Mode().IsRegular()
}

// Markers returns the compute configuration markers named by c.
func (c *Config) Markers() Markers {
	return Markers{Initial: c.InitialConfigMarker, Volatile: c.VolatileConfigMarker}
}
