// Package hoststats reads machine uptime and memory from procfs.
package hoststats

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/procfs"

	"github.com/sweeney/garage-monitor/internal/status"
)

// ErrNoMeminfo is returned when meminfo lacks MemTotal or MemFree.
var ErrNoMeminfo = errors.New("meminfo missing MemTotal or MemFree")

// Reader reads host stats from a proc filesystem.
type Reader struct {
	fs  procfs.FS
	now func() time.Time
}

// New opens the proc filesystem at mountPoint, or procfs.DefaultMountPoint
// when empty. If now is nil, time.Now is used.
func New(mountPoint string, now func() time.Time) (*Reader, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	if now == nil {
		now = time.Now
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", mountPoint, err)
	}
	return &Reader{fs: fs, now: now}, nil
}

// Read returns the time since boot and the total and free memory in bytes.
func (r *Reader) Read() (status.HostStats, error) {
	st, err := r.fs.Stat()
	if err != nil {
		return status.HostStats{}, fmt.Errorf("read stat: %w", err)
	}
	mi, err := r.fs.Meminfo()
	if err != nil {
		return status.HostStats{}, fmt.Errorf("read meminfo: %w", err)
	}
	if mi.MemTotal == nil || mi.MemFree == nil {
		return status.HostStats{}, ErrNoMeminfo
	}

	uptime := r.now().Sub(time.Unix(int64(st.BootTime), 0))
	if uptime < 0 {
		uptime = 0
	}
	// meminfo reports kB.
	return status.HostStats{
		Uptime:   uptime.Truncate(time.Second),
		MemTotal: *mi.MemTotal * 1024,
		MemFree:  *mi.MemFree * 1024,
	}, nil
}
