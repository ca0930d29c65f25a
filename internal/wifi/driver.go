package wifi

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// ProbeDriver backs the lifecycle with a plain TCP reachability probe
// against the smart-home server. It stands in for the radio on builds
// where the network is managed by the host OS.
type ProbeDriver struct {
	addr string
	ssid string

	mu        sync.Mutex
	connected bool
	localIP   string
}

func NewProbeDriver(host string, port uint, ssid string) *ProbeDriver {
	return &ProbeDriver{
		addr: fmt.Sprintf("%s:%d", host, port),
		ssid: ssid,
	}
}

func (d *ProbeDriver) Connect(ctx context.Context, ssid, password string) error {
	dialer := net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		d.mu.Lock()
		d.connected = false
		d.mu.Unlock()
		return err
	}
	local := conn.LocalAddr().String()
	_ = conn.Close()

	d.mu.Lock()
	d.connected = true
	if host, _, err := net.SplitHostPort(local); err == nil {
		d.localIP = host
	}
	d.mu.Unlock()
	return nil
}

func (d *ProbeDriver) Disconnect() error {
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
	return nil
}

func (d *ProbeDriver) Status() Link {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Link{
		Connected: d.connected,
		SSID:      d.ssid,
		IP:        d.localIP,
	}
}
