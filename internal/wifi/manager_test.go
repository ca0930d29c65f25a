package wifi

import (
	"context"
	"errors"
	"sync"
	"testing"

	"paneldash/internal/config"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeDriver struct {
	mu        sync.Mutex
	failures  int
	attempts  int
	connected bool
	link      Link
}

func (d *fakeDriver) Connect(ctx context.Context, ssid, password string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.attempts <= d.failures {
		return errors.New("association timeout")
	}
	d.connected = true
	d.link.Connected = true
	d.link.SSID = ssid
	return nil
}

func (d *fakeDriver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	d.link.Connected = false
	return nil
}

func (d *fakeDriver) Status() Link {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.link
}

func testManager(driver Driver) *Manager {
	cfg := config.WifiConfig{SSID: "homenet", Password: "hunter2"}
	return NewManager(cfg, driver, zap.Must(zap.NewDevelopment()))
}

func TestManagerConnects(t *testing.T) {
	assert := assert.New(t)

	driver := &fakeDriver{link: Link{RSSI: -55}}
	m := testManager(driver)
	defer m.Stop()

	var edges []bool
	m.RegisterStatusCallback(func(connected bool, text string) {
		edges = append(edges, connected)
	})
	firsts := 0
	m.RegisterConnectedOnce(func() { firsts++ })

	assert.NoError(m.Connect())
	assert.Equal(StateConnected, m.State())
	assert.True(m.Associated())
	assert.Equal([]bool{true}, edges)
	assert.Equal(1, firsts)
}

func TestManagerRetriesInBand(t *testing.T) {
	assert := assert.New(t)

	driver := &fakeDriver{failures: 3}
	m := testManager(driver)
	defer m.Stop()

	assert.NoError(m.Connect())
	assert.Equal(StateConnected, m.State())
	assert.Equal(4, driver.attempts, "three failures then success")
}

func TestManagerGivesUpAfterRetries(t *testing.T) {
	assert := assert.New(t)

	driver := &fakeDriver{failures: 100}
	m := testManager(driver)
	defer m.Stop()

	var lastText string
	m.RegisterStatusCallback(func(connected bool, text string) { lastText = text })

	assert.NoError(m.Connect())
	assert.Equal(StateFailed, m.State())
	assert.False(m.Associated())
	assert.Equal("Failed", lastText)
	assert.Equal(maxInBandRetries, driver.attempts)
}

func TestManagerNoCredentials(t *testing.T) {
	assert := assert.New(t)

	m := NewManager(config.WifiConfig{}, &fakeDriver{}, zap.Must(zap.NewDevelopment()))
	defer m.Stop()

	assert.Error(m.Connect())
	assert.Equal(StateFailed, m.State())
}

func TestManagerLostLink(t *testing.T) {
	assert := assert.New(t)

	driver := &fakeDriver{}
	m := testManager(driver)
	defer m.Stop()

	assert.NoError(m.Connect())
	assert.Equal(StateConnected, m.State())

	var edges []bool
	m.RegisterStatusCallback(func(connected bool, text string) {
		edges = append(edges, connected)
	})

	m.NotifyLost()
	assert.NotEqual(StateConnected, m.State())
	assert.False(m.Associated())
	assert.NotEmpty(edges)
	assert.False(edges[0])
}

func TestManagerFirstConnectIsOneShot(t *testing.T) {
	assert := assert.New(t)

	driver := &fakeDriver{}
	m := testManager(driver)
	defer m.Stop()

	firsts := 0
	m.RegisterConnectedOnce(func() { firsts++ })

	assert.NoError(m.Connect())
	m.NotifyLost()
	assert.NoError(m.Connect())

	assert.Equal(1, firsts, "first-association callback fires once")
}

func TestSignalDescription(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("excellent", SignalDescription(-40))
	assert.Equal("good", SignalDescription(-55))
	assert.Equal("fair", SignalDescription(-65))
	assert.Equal("weak", SignalDescription(-80))
}
