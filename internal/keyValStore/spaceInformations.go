package keyValStore

import (
	"errors"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

const bytesPerGB = 1024 * 1024 * 1024

func (sc *StoreConfig) checkConfig() error {
	if len(sc.Paths) == 0 {
		return errors.New("no path provided in configuration")
	}

	path := sc.Paths[0] // Currently only the first path is utilized
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return errors.New("path does not exist")
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("path is not a directory")
	}

	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("unable to read disk usage for %s: %w", path, err)
	}
	if int(usage.Free/bytesPerGB) < sc.MinimumFreeGB {
		return errors.New("not enough space available on disk")
	}

	return nil
}

// logDiskUsage reports the disk situation of every data path at startup.
func logDiskUsage(log *logrus.Logger, paths []string) error {
	for _, path := range paths {
		usage, err := disk.Usage(path)
		if err != nil {
			log.WithFields(logrus.Fields{
				"path": path,
			}).Errorf("Error retrieving disk usage stats: %v", err)
			return err
		}

		log.WithFields(logrus.Fields{
			"path":        path,
			"totalGB":     usage.Total / bytesPerGB,
			"freeGB":      usage.Free / bytesPerGB,
			"usedPercent": fmt.Sprintf("%.1f", usage.UsedPercent),
		}).Info("Disk usage for data path")
	}
	return nil
}
