package ui

import (
	"fmt"

	"paneldash/internal/serial"
)

// Status label colors.
const (
	ColorReady   = 0x00ff88
	ColorSyncing = 0x00e0e0
	ColorFailed  = 0xff4444
	ColorNeutral = 0xaaaaaa
)

const naField = "--"

func FormatPercent(v int) string {
	return fmt.Sprintf("%d%%", v)
}

func FormatTemp(v int) string {
	return fmt.Sprintf("%d°C", v)
}

func FormatFan(rpm int) string {
	return fmt.Sprintf("%d", rpm)
}

// FormatGPUMemPercent renders GPU memory usage with integer truncation,
// or "--" when the total is unknown.
func FormatGPUMemPercent(g serial.GPUStats) string {
	pct := g.MemUsagePercent()
	if pct < 0 {
		return naField
	}
	return FormatPercent(pct)
}

func FormatMemDetail(m serial.MemStats) string {
	return fmt.Sprintf("(%.1f GB / %.1f GB)", m.Used, m.Total)
}

func FormatHAStatus(text string) string {
	return fmt.Sprintf("HA: %s", text)
}

func FormatUptime(seconds uint64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// StatusColor picks the label color for the coordinator status.
func StatusColor(ready, syncing bool) int {
	switch {
	case syncing:
		return ColorSyncing
	case ready:
		return ColorReady
	default:
		return ColorFailed
	}
}
