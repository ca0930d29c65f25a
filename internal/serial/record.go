package serial

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const maxNameLen = 31

// Record is one decoded telemetry frame from the host PC. Unknown fields
// in the frame are ignored.
type Record struct {
	Timestamp int64    `json:"timestamp"`
	CPU       CPUStats `json:"cpu"`
	GPU       GPUStats `json:"gpu"`
	Memory    MemStats `json:"mem"`
}

type CPUStats struct {
	Usage int    `json:"usage"`
	Temp  int    `json:"temp"`
	Freq  int    `json:"freq"`
	Fan   int    `json:"fan"`
	Name  string `json:"name"`
}

type GPUStats struct {
	Usage    int     `json:"usage"`
	Temp     int     `json:"temp"`
	Name     string  `json:"name"`
	MemUsed  float64 `json:"mem_used"`
	MemTotal float64 `json:"mem_total"`
}

type MemStats struct {
	Usage int     `json:"usage"`
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
	Avail float64 `json:"avail"`
}

// MemUsagePercent returns GPU memory usage as a truncated integer percent,
// or -1 when the total is unknown.
func (g GPUStats) MemUsagePercent() int {
	if g.MemTotal <= 0 {
		return -1
	}
	return int(g.MemUsed * 100 / g.MemTotal)
}

var errEmptyFrame = errors.New("empty frame")

// DecodeFrame parses one framed JSON object into a Record.
func DecodeFrame(frame []byte) (Record, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 {
		return Record{}, errEmptyFrame
	}
	var rec Record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return Record{}, fmt.Errorf("decode telemetry frame: %w", err)
	}
	if len(rec.CPU.Name) > maxNameLen {
		rec.CPU.Name = rec.CPU.Name[:maxNameLen]
	}
	if len(rec.GPU.Name) > maxNameLen {
		rec.GPU.Name = rec.GPU.Name[:maxNameLen]
	}
	return rec, nil
}
