package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Slot indices are the compile-time contract between entity ids and the
// dashboard switch widgets. They must not be reordered.
const (
	SlotSwitchA = 0
	SlotSwitchB = 1
	SlotSwitchC = 2

	SwitchCount = 3
)

type Config struct {
	LogLevel      zapcore.Level
	Serial        SerialConfig   `mapstructure:"serial"`
	HomeAssistant HAConfig       `mapstructure:"homeassistant"`
	Wifi          WifiConfig     `mapstructure:"wifi"`
	CrashLog      CrashLogConfig `mapstructure:"crash_log"`

	Port    uint `mapstructure:"port"`
	HttpLog bool `mapstructure:"http_log"`
}

type SerialConfig struct {
	Device              string `mapstructure:"device"`
	BaudRate            int    `mapstructure:"baud_rate"`
	FrameIntervalMillis uint32 `mapstructure:"frame_interval_millis"`
	MaxFrameSize        int    `mapstructure:"max_frame_size"`
}

type HAConfig struct {
	Host                 string `mapstructure:"host"`
	Port                 uint   `mapstructure:"port"`
	Token                string `mapstructure:"token"`
	RequestTimeoutMillis uint32 `mapstructure:"request_timeout_millis"`
	MaxResponseSize      int    `mapstructure:"max_response_size"`
	RetryCount           int    `mapstructure:"retry_count"`
	PollIntervalMillis   uint32 `mapstructure:"poll_interval_millis"`

	Entities EntityConfig `mapstructure:"entities"`
}

type EntityConfig struct {
	SwitchA string `mapstructure:"switch_a"`
	SwitchB string `mapstructure:"switch_b"`
	SwitchC string `mapstructure:"switch_c"`
	Scene   string `mapstructure:"scene"`

	SwitchALabel string `mapstructure:"switch_a_label"`
	SwitchBLabel string `mapstructure:"switch_b_label"`
	SwitchCLabel string `mapstructure:"switch_c_label"`
	SceneLabel   string `mapstructure:"scene_label"`
}

type WifiConfig struct {
	SSID     string `mapstructure:"ssid"`
	Password string `mapstructure:"password"`
}

type CrashLogConfig struct {
	Path       string `mapstructure:"path"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// BaseURL returns the REST API root, e.g. "http://host:8123/api".
func (c HAConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d/api", c.Host, c.Port)
}

// SwitchIDs returns the polled switch entity ids in slot order.
func (c EntityConfig) SwitchIDs() []string {
	return []string{c.SwitchA, c.SwitchB, c.SwitchC}
}

// SwitchLabels returns the display labels in slot order.
func (c EntityConfig) SwitchLabels() []string {
	return []string{c.SwitchALabel, c.SwitchBLabel, c.SwitchCLabel}
}

func CheckEntityID(id string) (string, error) {
	// check and normalize entity id
	lowerID := strings.ToLower(strings.TrimSpace(id))
	entityIDRegexp := regexp.MustCompile(`^[a-z_]+\.[a-z0-9_]+$`)
	matches := entityIDRegexp.FindAllStringSubmatch(lowerID, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid entity id. expected form: domain.object_id")
	}
	return lowerID, nil
}
