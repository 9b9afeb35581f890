// Package clientinfo detects the host description attached to every event.
package clientinfo

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
)

// Detect describes the running process for app name and version. Fields
// gopsutil cannot determine are filled from the Go runtime.
func Detect(ctx context.Context, name, version string) domain.ClientInfo {
	info := domain.ClientInfo{
		Name:    name,
		Version: version,
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
		Runtime: runtime.Version(),
	}

	if h, err := host.InfoWithContext(ctx); err == nil && h != nil {
		info.Hostname = h.Hostname
		if h.OS != "" {
			info.OS = h.OS
		}
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		if h.KernelArch != "" {
			info.Arch = h.KernelArch
		}
	}
	if info.Hostname == "" {
		info.Hostname, _ = os.Hostname()
	}
	return info
}
