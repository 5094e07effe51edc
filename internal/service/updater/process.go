package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/auto-updater/internal/logger"
)

// linuxCommLimit is the length at which Linux truncates the process name go-ps reports.
const linuxCommLimit = 15

// processLister returns running processes. Tests replace it.
var processLister = ps.Processes

// stopProcesses kills every process whose executable is in names, except this one.
// Names are matched with and without the ".exe" suffix on Windows.
func stopProcesses(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[executableName(name)] = struct{}{}
	}

	processList, err := processLister()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()
	stopped := 0

	for _, process := range processList {
		processID := process.Pid()
		if processID == thisProcessID {
			continue
		}

		if _, found := wanted[executableName(process.Executable())]; !found {
			continue
		}

		logger.InfoKV(ctx, "Stopping process", "executable", process.Executable(), "pid", processID)

		runningProcess, err := os.FindProcess(processID)
		if err != nil {
			return fmt.Errorf("find process %d: %w", processID, err)
		}

		if err = runningProcess.Kill(); err != nil {
			return fmt.Errorf("kill process %d: %w", processID, err)
		}

		stopped++
	}

	if stopped == 0 {
		logger.DebugKV(ctx, "No running process matched", "names", names)
	}

	return nil
}

// executableName normalizes a process or configured name for comparison.
func executableName(name string) string {
	return normalizeExecutable(runtime.GOOS, name)
}

func normalizeExecutable(goos, name string) string {
	name = filepath.Base(strings.TrimSpace(name))

	switch goos {
	case "windows":
		name = strings.TrimSuffix(strings.ToLower(name), ".exe")
	case "linux":
		if len(name) > linuxCommLimit {
			name = name[:linuxCommLimit]
		}
	}

	return name
}
