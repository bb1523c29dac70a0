package services

import (
	"fmt"
	"syscall"
)

// DiskUsage — состояние файловой системы с папкой загрузок
type DiskUsage struct {
	Total     uint64
	Used      uint64
	Available uint64
}

// UsedPercent возвращает занятость в процентах
func (d DiskUsage) UsedPercent() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Used) / float64(d.Total) * 100
}

// DiskUsageFunc измеряет занятость диска по пути. Подменяется в тестах.
type DiskUsageFunc func(path string) (DiskUsage, error)

// StatfsDiskUsage измеряет занятость диска через syscall.Statfs
func StatfsDiskUsage(path string) (DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return DiskUsage{}, fmt.Errorf("statfs %s: %v", path, err)
	}

	total := stat.Blocks * uint64(stat.Bsize)
	available := stat.Bavail * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)

	return DiskUsage{
		Total:     total,
		Used:      total - free,
		Available: available,
	}, nil
}
