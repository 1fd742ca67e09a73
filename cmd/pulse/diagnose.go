package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/process"
	"github.com/spf13/cobra"

	"github.com/pulselab/pulse/agent"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Report on the host, process, and agent configuration.",
	Long: `Diagnose prints the information needed to debug an agent ` +
		`installation: host identity, Go runtime, process resources, the ` +
		`configuration as resolved from the environment, and whether the ` +
		`output path is writable.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runDiagnose()
	},
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
}

func runDiagnose() error {
	fmt.Println("=== Host ===")

	hostname, err := os.Hostname()
	if err == nil {
		fmt.Printf("Hostname:       %s\n", hostname)
	}

	info, err := host.Info()
	if err == nil {
		fmt.Printf("OS:             %s %s\n", info.Platform, info.PlatformVersion)
		fmt.Printf("Kernel:         %s\n", info.KernelVersion)
		fmt.Printf("Uptime:         %ds\n", info.Uptime)
	}

	fmt.Printf("Architecture:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("Go version:     %s\n", runtime.Version())

	fmt.Println()
	fmt.Println("=== Process ===")
	fmt.Printf("PID:            %d\n", os.Getpid())

	wd, err := os.Getwd()
	if err == nil {
		fmt.Printf("Working dir:    %s\n", wd)
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			fmt.Printf("CPU:            %.2f%%\n", cpu)
		}

		if mem, err := proc.MemoryInfo(); err == nil {
			fmt.Printf("RSS:            %d bytes\n", mem.RSS)
		}
	}

	fmt.Println()
	fmt.Println("=== Configuration ===")

	cfg := agent.ConfigFromEnv()
	fmt.Printf("App name:       %s\n", cfg.AppName)
	fmt.Printf("Environment:    %s\n", cfg.Environment)
	fmt.Printf("Active:         %t\n", cfg.Active)
	fmt.Printf("Monitor:        %t (port %d)\n", cfg.MonitorOn, cfg.MonitorPort)
	fmt.Printf("Output:         %s\n", displayOutput(cfg.OutputFileName))

	fmt.Println()
	fmt.Println("=== Output path ===")
	fmt.Printf("Writable:       %t\n", outputWritable(cfg.OutputFileName))

	return nil
}

func displayOutput(name string) string {
	if name == "" {
		return "(generated)"
	}

	return name + ".sqlite3"
}

// outputWritable probes whether the recorder would be able to create its
// database file.
func outputWritable(name string) bool {
	dir := filepath.Dir(name + ".sqlite3")

	f, err := os.CreateTemp(dir, ".pulse_diagnose_*")
	if err != nil {
		return false
	}

	f.Close()
	os.Remove(f.Name())

	return true
}
