package ui

import (
	"testing"

	"paneldash/internal/serial"

	"github.com/stretchr/testify/assert"
)

func TestFormatters(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("43%", FormatPercent(43))
	assert.Equal("61°C", FormatTemp(61))
	assert.Equal("900", FormatFan(900))
	assert.Equal("HA: Ready", FormatHAStatus("Ready"))
	assert.Equal("(18.6 GB / 32.0 GB)", FormatMemDetail(serial.MemStats{Used: 18.6, Total: 32.0}))
}

func TestFormatGPUMemPercent(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("65%", FormatGPUMemPercent(serial.GPUStats{MemUsed: 5.2, MemTotal: 8.0}))
	assert.Equal("--", FormatGPUMemPercent(serial.GPUStats{MemUsed: 5.2}))
}

func TestFormatUptime(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("00:00:00", FormatUptime(0))
	assert.Equal("00:01:05", FormatUptime(65))
	assert.Equal("27:46:39", FormatUptime(99999))
}

func TestStatusColor(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(ColorSyncing, StatusColor(true, true), "syncing wins over ready")
	assert.Equal(ColorReady, StatusColor(true, false))
	assert.Equal(ColorFailed, StatusColor(false, false))
}
