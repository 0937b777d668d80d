package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

// mockCharacteristic records writes and allows subscribing.
type mockCharacteristic struct {
	mu         sync.Mutex
	writes     [][]byte
	callback   func([]byte)
	subscribed bool
	writeErr   error

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (c *mockCharacteristic) Write(data []byte) error {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		m := c.maxInFlight.Load()
		if n <= m || c.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *mockCharacteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
	c.subscribed = true
	return nil
}

func (c *mockCharacteristic) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = nil
	c.subscribed = false
	return nil
}

// SimulateNotification sends a notification to the subscriber.
func (c *mockCharacteristic) SimulateNotification(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

func (c *mockCharacteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *mockCharacteristic) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

// mockConnection simulates a BLE connection.
type mockConnection struct {
	mu           sync.Mutex
	writeChar    *mockCharacteristic
	dataChar     *mockCharacteristic
	confirmChar  *mockCharacteristic
	missing      map[string]bool
	disconnectCb func()
	disconnected bool
}

func newMockConnection() *mockConnection {
	return &mockConnection{
		writeChar:   &mockCharacteristic{},
		dataChar:    &mockCharacteristic{},
		confirmChar: &mockCharacteristic{},
		missing:     make(map[string]bool),
	}
}

func (c *mockConnection) DiscoverCharacteristic(charUUID string) (Characteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.missing[charUUID] {
		return nil, fmt.Errorf("mock: characteristic %s not found", charUUID)
	}
	switch charUUID {
	case WriteCharUUID:
		return c.writeChar, nil
	case DataCharUUID:
		return c.dataChar, nil
	case ConfirmCharUUID:
		return c.confirmChar, nil
	default:
		return nil, fmt.Errorf("mock: unknown characteristic UUID %q", charUUID)
	}
}

func (c *mockConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *mockConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *mockConnection) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// SimulateDisconnect triggers the disconnect callback.
func (c *mockConnection) SimulateDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

var errMockConnect = errors.New("mock: connect refused")

// mockAdapter simulates the BLE adapter.
type mockAdapter struct {
	mu              sync.Mutex
	devices         []Device
	scanErr         error
	connectFailures int // number of Connect calls that fail before succeeding
	connectCalls    int
	lastAddress     string
	missing         []string // characteristics absent on new connections
	connection      *mockConnection
}

func newMockAdapter(devices []Device) *mockAdapter {
	return &mockAdapter{devices: devices}
}

func (a *mockAdapter) Enable() error { return nil }

func (a *mockAdapter) Scan(ctx context.Context, _ string) ([]Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scanErr != nil {
		return nil, a.scanErr
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	out := make([]Device, len(a.devices))
	copy(out, a.devices)
	return out, nil
}

func (a *mockAdapter) Connect(_ context.Context, address string) (Connection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connectCalls++
	a.lastAddress = address
	if a.connectFailures > 0 {
		a.connectFailures--
		return nil, errMockConnect
	}
	conn := newMockConnection()
	for _, uuid := range a.missing {
		conn.missing[uuid] = true
	}
	a.connection = conn
	return conn, nil
}

// latestConnection returns the most recently created connection (thread-safe).
func (a *mockAdapter) latestConnection() *mockConnection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connection
}

func TestMockAdapterImplementsInterface(t *testing.T) {
	var _ Adapter = (*mockAdapter)(nil)
}

func TestMockConnectionImplementsInterface(t *testing.T) {
	var _ Connection = (*mockConnection)(nil)
}

func TestMockCharacteristicImplementsInterface(t *testing.T) {
	var _ Characteristic = (*mockCharacteristic)(nil)
}
