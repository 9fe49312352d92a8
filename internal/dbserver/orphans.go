package dbserver

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/dumplift/internal/common"
	"github.com/loykin/dumplift/internal/constants"
)

// RecoverOrphans scans tempRoot for data directories left behind by crashed
// previous runs. Any directory with a recorded server pid gets a kill
// attempt; directories older than the age threshold are force-deleted
// whether or not the kill succeeded. Everything here is best effort.
func RecoverOrphans(tempRoot string) {
	log := common.GetLogger().WithComponent("dbserver")

	entries, err := os.ReadDir(tempRoot)
	if err != nil {
		log.Warn("orphan scan failed", "root", tempRoot, "error", err)
		return
	}

	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), constants.DataDirPrefix) {
			continue
		}
		dir := filepath.Join(tempRoot, e.Name())

		if pid, ok := readPidFile(filepath.Join(dir, constants.PidFileName)); ok {
			if proc, err := os.FindProcess(pid); err == nil {
				if err := proc.Kill(); err == nil {
					log.Info("terminated orphaned server", "pid", pid, "dir", dir)
				}
			}
		}

		info, err := e.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > constants.OrphanAgeThreshold {
			if err := os.RemoveAll(dir); err != nil {
				log.Warn("orphan removal failed", "dir", dir, "error", err)
			} else {
				log.Info("removed orphaned data dir", "dir", dir)
			}
		}
	}
}

func readPidFile(path string) (int, bool) {
	data, err := os.ReadFile(path) // #nosec G304 -- path under the scanned temp root
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
