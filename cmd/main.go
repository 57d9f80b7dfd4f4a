package main

import (
	"context"
	"encoding/json"
	goflag "flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/stefanaki/node-inventory/pkg/config"
	"github.com/stefanaki/node-inventory/pkg/inventory"
)

func main() {
	configFile := pflag.String("config", "", "Path to the agent configuration file (YAML)")
	procRoot := pflag.String("procfs-root", "", "Root point where procfs is mounted (overrides config)")
	sysRoot := pflag.String("sysfs-root", "", "Root point where sysfs is mounted (overrides config)")
	output := pflag.StringP("output", "o", "", "Write the snapshot to this file instead of stdout (overrides config stateFile)")
	waitTimeout := pflag.Duration("wait-for-config", 0, "Wait up to this long for compute configuration to finish after a reboot")
	klog.InitFlags(nil)
	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	pflag.Parse()

	logger := klog.NewKlogr()

	conf := config.Default()
	if *configFile != "" {
		var err error
		if conf, err = config.Load(*configFile); err != nil {
			logger.Error(err, "Failed to load configuration", "path", *configFile)
			os.Exit(1)
		}
	}
	if *procRoot != "" {
		conf.ProcRoot = *procRoot
	}
	if *sysRoot != "" {
		conf.SysRoot = *sysRoot
	}
	if *output != "" {
		conf.StateFile = *output
	}
	logger.V(1).Info("Loaded configuration", "config", conf)

	if *waitTimeout > 0 {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		ctx, cancel := context.WithTimeout(ctx, *waitTimeout)
		err := conf.Markers().WaitForVolatile(ctx)
		cancel()
		stop()
		if err != nil {
			logger.Info("Compute configuration not finished, memory report may be empty", "error", err.Error())
		}
	}

	start := time.Now()
	snapshot, err := inventory.NewScanner(conf, logger).Scan()
	if err != nil {
		logger.Error(err, "Failed to scan host inventory")
		os.Exit(1)
	}
	for _, node := range snapshot.Memory {
		logger.Info("NUMA node memory", "node", node.NUMANode,
			"total", humanize.IBytes(uint64(node.MemTotalMiB)*humanize.MiByte),
			"available", humanize.IBytes(uint64(node.MemAvailMiB)*humanize.MiByte),
			"hugepages", node.HugepagesConfigured)
	}
	logger.Info("Scanned host inventory", "cpus", len(snapshot.CPUs), "numaNodes", len(snapshot.NUMANodes),
		"hugepageMode", snapshot.HugepageMode, "elapsed", time.Since(start).String())

	if conf.StateFile != "" {
		if err := snapshot.SaveToFile(conf.StateFile); err != nil {
			logger.Error(err, "Failed to write snapshot", "path", conf.StateFile)
			os.Exit(1)
		}
		return
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snapshot); err != nil {
		logger.Error(err, "Failed to encode snapshot")
		os.Exit(1)
	}
}
