package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/corentings/chess/v2"
	"golang.org/x/time/rate"

	"github.com/chaz8081/ecbridge/internal/board"
)

// ErrUnknownDevice is returned by Connect for an index the last scan did
// not produce.
var ErrUnknownDevice = errors.New("ble: unknown device")

// SessionOptions configures the session behavior.
type SessionOptions struct {
	ScanTimeout     time.Duration // how long Discover listens
	NamePrefix      string        // only list peripherals whose name starts with this
	ConnectAttempts int           // connection tries before giving up
	ReconnectMax    int           // max connect backoff in seconds
	BackoffUnit     time.Duration // base of the exponential backoff (default 1s)
	LEDRate         float64       // max LED frame writes per second, <= 0 for no limit
	LEDBurst        int
}

// DefaultSessionOptions returns sensible defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		ScanTimeout:     5 * time.Second,
		ConnectAttempts: 3,
		ReconnectMax:    30,
		BackoffUnit:     time.Second,
		LEDRate:         20,
		LEDBurst:        4,
	}
}

// Status is a snapshot of the link state.
type Status struct {
	Connected bool
	Device    Device
}

func (s Status) String() string {
	if !s.Connected {
		return "disconnected"
	}
	return fmt.Sprintf("connected %s %s", s.Device.Name, s.Device.Address)
}

// Session owns the link to one chessboard. Transport operations are
// serialized: no two of them touch the peripheral at the same time.
type Session struct {
	adapter Adapter
	opts    SessionOptions
	limiter *rate.Limiter

	mu        sync.Mutex
	devices   map[int]Device
	conn      Connection
	device    Device
	writeChar Characteristic
	dataChar  Characteristic
	connected bool
	gen       uint64 // bumped per connection so stale drop callbacks are ignored
	led       board.LEDFrame

	hookMu       sync.Mutex
	onNotify     func(data []byte)
	onDisconnect func()
}

// NewSession creates a disconnected session on adapter.
func NewSession(adapter Adapter, opts SessionOptions) *Session {
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 5 * time.Second
	}
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = 1
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = time.Second
	}
	limit := rate.Inf
	if opts.LEDRate > 0 {
		limit = rate.Limit(opts.LEDRate)
	}
	if opts.LEDBurst <= 0 {
		opts.LEDBurst = 1
	}
	return &Session{
		adapter: adapter,
		opts:    opts,
		limiter: rate.NewLimiter(limit, opts.LEDBurst),
		devices: make(map[int]Device),
		led:     board.NewLEDFrame(),
	}
}

// OnNotification sets the callback for raw sensor notifications. It is
// called on the BLE stack's goroutine, one notification at a time.
func (s *Session) OnNotification(fn func(data []byte)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onNotify = fn
}

// OnDisconnect sets the callback run whenever the link goes down, whether
// requested or not. It must not call back into the Session.
func (s *Session) OnDisconnect(fn func()) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onDisconnect = fn
}

func (s *Session) notify(data []byte) {
	s.hookMu.Lock()
	fn := s.onNotify
	s.hookMu.Unlock()
	if fn != nil {
		fn(data)
	}
}

func (s *Session) disconnected() {
	s.hookMu.Lock()
	fn := s.onDisconnect
	s.hookMu.Unlock()
	if fn != nil {
		fn()
	}
}

// Discover scans for peripherals and replaces the device registry. An
// empty scan is not an error.
func (s *Session) Discover(ctx context.Context) ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ScanTimeout)
	defer cancel()

	found, err := s.adapter.Scan(ctx, s.opts.NamePrefix)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	s.devices = make(map[int]Device, len(found))
	out := make([]Device, 0, len(found))
	for i, d := range found {
		d.Index = i + 1
		s.devices[d.Index] = d
		out = append(out, d)
	}
	slog.Info("[BLE] scan complete", "devices", len(out))
	return out, nil
}

// Devices returns the registry built by the last Discover, by index.
func (s *Session) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Connect drops any current link, connects to the device with the given
// discovery index, enables sensor notifications, and sends the init code.
// The current link is dropped even when index is unknown.
func (s *Session) Connect(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.disconnectLocked(); err != nil {
		slog.Warn("[BLE] dropping previous connection", "error", err)
	}

	dev, ok := s.devices[index]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownDevice, index)
	}

	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	conn, err := s.dial(ctx, dev.Address)
	if err != nil {
		return err
	}

	writeChar, err := conn.DiscoverCharacteristic(WriteCharUUID)
	if err != nil {
		_ = conn.Disconnect()
		return fmt.Errorf("ble: discover write characteristic: %w", err)
	}
	dataChar, err := conn.DiscoverCharacteristic(DataCharUUID)
	if err != nil {
		_ = conn.Disconnect()
		return fmt.Errorf("ble: discover data characteristic: %w", err)
	}
	if _, err := conn.DiscoverCharacteristic(ConfirmCharUUID); err != nil {
		slog.Debug("[BLE] confirmation characteristic not found", "error", err)
	}

	s.gen++
	gen := s.gen
	conn.OnDisconnect(func() {
		// May fire from inside conn.Disconnect while s.mu is held.
		go s.dropped(gen)
	})

	if err := dataChar.Subscribe(s.notify); err != nil {
		_ = conn.Disconnect()
		return fmt.Errorf("ble: subscribe to sensor data: %w", err)
	}
	if err := writeChar.Write(InitCode[:]); err != nil {
		_ = dataChar.Unsubscribe()
		_ = conn.Disconnect()
		return fmt.Errorf("ble: write init code: %w", err)
	}

	s.conn = conn
	s.device = dev
	s.writeChar = writeChar
	s.dataChar = dataChar
	s.connected = true
	s.led.Clear()

	slog.Info("[BLE] connected", "name", dev.Name, "address", dev.Address)
	return nil
}

// dial connects with retries and capped exponential backoff.
func (s *Session) dial(ctx context.Context, address string) (Connection, error) {
	var lastErr error
	for attempt := 0; attempt < s.opts.ConnectAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, s.opts.ReconnectMax, s.opts.BackoffUnit)
			slog.Info("[BLE] connect backoff", "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
			}
		}

		conn, err := s.adapter.Connect(ctx, address)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		slog.Warn("[BLE] connect failed", "error", err, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("ble: connect to %s: %w", address, lastErr)
}

// dropped handles a disconnect the peripheral initiated.
func (s *Session) dropped(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.connected {
		s.mu.Unlock()
		return
	}
	slog.Warn("[BLE] connection lost", "address", s.device.Address)
	s.clearLocked()
	s.mu.Unlock()

	s.disconnected()
}

// Disconnect stops notifications and closes the link. Calling it while
// disconnected is a no-op.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectLocked()
}

// disconnectLocked closes the current link (caller must hold mu).
func (s *Session) disconnectLocked() error {
	if s.conn == nil {
		return nil
	}
	conn, dataChar, addr := s.conn, s.dataChar, s.device.Address
	s.gen++
	s.clearLocked()

	var errs []error
	if dataChar != nil {
		if err := dataChar.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("ble: unsubscribe: %w", err))
		}
	}
	if err := conn.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("ble: disconnect: %w", err))
	}
	slog.Info("[BLE] disconnected", "address", addr)
	s.disconnected()
	return errors.Join(errs...)
}

func (s *Session) clearLocked() {
	s.conn = nil
	s.device = Device{}
	s.writeChar = nil
	s.dataChar = nil
	s.connected = false
}

// Status reports whether a board is connected and which one.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Connected: s.connected, Device: s.device}
}

// Light switches on the LEDs under squares. The frame is only sent while
// connected; lit squares accumulate until ClearLEDs.
func (s *Session) Light(ctx context.Context, squares ...chess.Square) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sq := range squares {
		s.led.Light(sq)
	}
	return s.writeLEDLocked(ctx)
}

// ClearLEDs switches every LED off.
func (s *Session) ClearLEDs(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.led.Clear()
	return s.writeLEDLocked(ctx)
}

// LEDs returns a copy of the current LED frame.
func (s *Session) LEDs() board.LEDFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.led
}

func (s *Session) writeLEDLocked(ctx context.Context) error {
	if !s.connected {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ble: led write: %w", err)
	}
	if err := s.writeChar.Write(s.led.Bytes()); err != nil {
		return fmt.Errorf("ble: write led frame: %w", err)
	}
	return nil
}

// Close disconnects the session.
func (s *Session) Close() error {
	return s.Disconnect(context.Background())
}

// backoffDelay returns the delay before attempt n+1, capped at maxSeconds.
func backoffDelay(attempt int, maxSeconds int, unit time.Duration) time.Duration {
	max := time.Duration(maxSeconds) * unit
	if attempt >= 30 {
		return max
	}
	delay := time.Duration(1<<uint(attempt)) * unit
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}
