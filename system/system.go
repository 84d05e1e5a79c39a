package system

import (
	"runtime"
	"time"
)

var startedAt = time.Now()

type Information struct {
	Version      string `json:"version"`
	GoVersion    string `json:"go_version"`
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
	CpuCount     int    `json:"cpu_count"`
	Uptime       int64  `json:"uptime"`
}

// GetSystemInformation returns details about the running daemon and the host
// it is running on. Uptime is reported in seconds.
func GetSystemInformation() *Information {
	return &Information{
		Version:      Version,
		GoVersion:    runtime.Version(),
		Architecture: runtime.GOARCH,
		OS:           runtime.GOOS,
		CpuCount:     runtime.NumCPU(),
		Uptime:       int64(time.Since(startedAt).Seconds()),
	}
}
