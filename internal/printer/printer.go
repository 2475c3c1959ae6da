// Package printer connects to a receipt printer and streams encoded jobs to
// it in small paced chunks, which is what serial-profile thermal printers
// with tiny input buffers need.
package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/till/internal/escpos"
	"github.com/marcus/till/internal/models"
)

// Defaults for the shop's 58mm printer.
const (
	DefaultName       = "MT580P"
	DefaultChunkSize  = 50
	DefaultChunkDelay = 20 * time.Millisecond
)

// DefaultServices are the serial-profile service UUIDs probed for a
// writable characteristic, in order.
var DefaultServices = []string{
	"000018f0-0000-1000-8000-00805f9b34fb",
	"0000ff00-0000-1000-8000-00805f9b34fb",
	"49535343-fe7d-4ae5-8fa9-9fafd205e455",
	"e7810a71-73ae-499d-8c15-faa9aef0c3f2",
}

var (
	ErrNoDevice          = errors.New("no matching printer found")
	ErrHandshake         = errors.New("printer connection failed")
	ErrNoWritableChannel = errors.New("no writable channel on printer")
	ErrNotConnected      = errors.New("printer not connected")
)

// WriteError reports a job that stopped part way. Chunks before Chunk were
// printed; the paper holds a partial document.
type WriteError struct {
	Chunk int // zero-based index of the chunk that failed
	Total int
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("printer write failed at chunk %d of %d: %v", e.Chunk+1, e.Total, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Transport finds printers.
type Transport interface {
	// Discover returns the device whose name matches exactly.
	Discover(ctx context.Context, name string, services []string) (Device, error)
}

// Device is a discovered printer.
type Device interface {
	Name() string
	Connect(ctx context.Context) (Link, error)
	// OnDisconnect registers fn to run when the connection drops,
	// whether the device or Disconnect closed it.
	OnDisconnect(fn func())
	Disconnect() error
}

// Link is an open connection.
type Link interface {
	Services(ctx context.Context) ([]Service, error)
}

// Service groups characteristics.
type Service interface {
	UUID() string
	Characteristics(ctx context.Context) ([]Characteristic, error)
}

// Characteristic is an endpoint bytes can be written to.
type Characteristic interface {
	UUID() string
	Properties() Properties
	Write(ctx context.Context, p []byte) error
}

// Properties are the operations a characteristic supports.
type Properties struct {
	Read                 bool
	Write                bool
	WriteWithoutResponse bool
	Notify               bool
}

// Writable reports whether jobs can be sent through the characteristic.
func (p Properties) Writable() bool {
	return p.Write || p.WriteWithoutResponse
}

// Options configure a Manager. Zero values take the defaults.
type Options struct {
	Name      string
	Services  []string
	ChunkSize int
	// ChunkDelay is the pause between chunks; negative disables it.
	ChunkDelay time.Duration
	Logger     *slog.Logger
	// Sleep waits between chunks. Defaults to a timer honouring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Manager holds at most one printer connection.
type Manager struct {
	transport Transport
	name      string
	services  []string
	chunkSize int
	delay     time.Duration
	sleep     func(context.Context, time.Duration) error
	log       *slog.Logger

	mu      sync.Mutex
	device  Device
	channel Characteristic
	gen     uint64

	sendMu sync.Mutex
}

// NewManager creates a manager over t.
func NewManager(t Transport, opts Options) *Manager {
	m := &Manager{
		transport: t,
		name:      opts.Name,
		services:  opts.Services,
		chunkSize: opts.ChunkSize,
		delay:     opts.ChunkDelay,
		sleep:     opts.Sleep,
		log:       opts.Logger,
	}
	if m.name == "" {
		m.name = DefaultName
	}
	if len(m.services) == 0 {
		m.services = DefaultServices
	}
	if m.chunkSize <= 0 {
		m.chunkSize = DefaultChunkSize
	}
	switch {
	case m.delay == 0:
		m.delay = DefaultChunkDelay
	case m.delay < 0:
		m.delay = 0
	}
	if m.sleep == nil {
		m.sleep = sleepCtx
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Connect discovers the printer by name, connects and keeps the first
// writable characteristic found across its services. A successful connect
// replaces any previous connection; a failed one leaves it untouched.
func (m *Manager) Connect(ctx context.Context) error {
	dev, err := m.transport.Discover(ctx, m.name, m.services)
	if err != nil {
		if errors.Is(err, ErrNoDevice) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	// The handler goes in before the link comes up so a drop during the
	// handshake is not missed. gen stays 0 until the channel is published.
	var gen uint64
	lost := false
	dev.OnDisconnect(func() {
		m.mu.Lock()
		g := gen
		if g == 0 {
			lost = true
		}
		m.mu.Unlock()
		if g != 0 {
			m.dropped(g)
		}
	})

	link, err := dev.Connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	services, err := link.Services(ctx)
	if err != nil {
		_ = dev.Disconnect()
		return fmt.Errorf("%w: list services: %v", ErrHandshake, err)
	}

	channel := findWritable(ctx, services, m.log)
	if channel == nil {
		_ = dev.Disconnect()
		return ErrNoWritableChannel
	}

	m.mu.Lock()
	if lost {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s disconnected during handshake", ErrHandshake, dev.Name())
	}
	prev := m.device
	m.gen++
	gen = m.gen
	m.device, m.channel = dev, channel
	m.mu.Unlock()

	if prev != nil && prev != dev {
		_ = prev.Disconnect()
	}
	m.log.Info("printer: connected", "device", dev.Name(), "channel", channel.UUID())
	return nil
}

func findWritable(ctx context.Context, services []Service, log *slog.Logger) Characteristic {
	for _, svc := range services {
		chars, err := svc.Characteristics(ctx)
		if err != nil {
			log.Debug("printer: skipping service", "service", svc.UUID(), "err", err)
			continue
		}
		for _, c := range chars {
			if c.Properties().Writable() {
				return c
			}
		}
	}
	return nil
}

// dropped clears the channel if connection gen is still the current one.
func (m *Manager) dropped(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.channel == nil {
		return
	}
	m.log.Warn("printer: disconnected", "device", m.device.Name())
	m.device, m.channel = nil, nil
}

// Connected reports whether a write channel is held.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel != nil
}

// DeviceName returns the connected printer's name, or "".
func (m *Manager) DeviceName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return ""
	}
	return m.device.Name()
}

// Disconnect closes the current connection, if any.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	dev := m.device
	m.gen++
	m.device, m.channel = nil, nil
	m.mu.Unlock()
	if dev == nil {
		return nil
	}
	return dev.Disconnect()
}

// Send writes data in chunks of at most ChunkSize bytes, pausing between
// chunks. Jobs are serialized. A failed chunk aborts the rest and returns
// *WriteError.
func (m *Manager) Send(ctx context.Context, data []byte) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	ch := m.channel
	m.mu.Unlock()
	if ch == nil {
		return ErrNotConnected
	}

	total := (len(data) + m.chunkSize - 1) / m.chunkSize
	for i := 0; i < total; i++ {
		start := i * m.chunkSize
		end := min(start+m.chunkSize, len(data))
		if err := ch.Write(ctx, data[start:end]); err != nil {
			m.log.Error("printer: write failed", "chunk", i, "of", total, "err", err)
			return &WriteError{Chunk: i, Total: total, Err: err}
		}
		if i < total-1 {
			if err := m.sleep(ctx, m.delay); err != nil {
				return &WriteError{Chunk: i + 1, Total: total, Err: err}
			}
		}
	}
	m.log.Debug("printer: job sent", "bytes", len(data), "chunks", total)
	return nil
}

// PrintKitchenTicket encodes and sends the kitchen copy of job.
func (m *Manager) PrintKitchenTicket(ctx context.Context, job models.PrintJob) error {
	if !m.Connected() {
		return ErrNotConnected
	}
	return m.Send(ctx, escpos.KitchenTicket(job).Bytes())
}

// PrintCustomerBill encodes and sends the customer's bill.
func (m *Manager) PrintCustomerBill(ctx context.Context, job models.PrintJob) error {
	if !m.Connected() {
		return ErrNotConnected
	}
	return m.Send(ctx, escpos.CustomerBill(job).Bytes())
}
