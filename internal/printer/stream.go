package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// StreamChannelUUID names the single characteristic a stream printer exposes.
const StreamChannelUUID = "stream"

// NewStreamTransport returns a transport for printers reachable as a byte
// stream: "host:port" or "tcp://host:port" for network printers, or a device
// path such as /dev/rfcomm0 for a Bluetooth serial port bound by the OS.
// printers maps device names to addresses.
func NewStreamTransport(printers map[string]string, dialTimeout time.Duration) Transport {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &streamTransport{printers: printers, timeout: dialTimeout}
}

type streamTransport struct {
	printers map[string]string
	timeout  time.Duration
}

func (t *streamTransport) Discover(_ context.Context, name string, services []string) (Device, error) {
	addr, ok := t.printers[name]
	if !ok || strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("%w: %q has no configured address", ErrNoDevice, name)
	}
	svc := StreamChannelUUID
	if len(services) > 0 {
		svc = services[0]
	}
	return &streamDevice{name: name, addr: addr, service: svc, timeout: t.timeout}, nil
}

type streamDevice struct {
	name    string
	addr    string
	service string
	timeout time.Duration

	mu       sync.Mutex
	conn     io.WriteCloser
	handlers []func()
}

func (d *streamDevice) Name() string { return d.name }

func (d *streamDevice) Connect(ctx context.Context) (Link, error) {
	conn, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	old := d.conn
	d.conn = conn
	d.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	// Network printers rarely talk back; a read returning means the peer
	// closed the connection.
	if nc, ok := conn.(net.Conn); ok {
		go func() {
			buf := make([]byte, 64)
			for {
				if _, err := nc.Read(buf); err != nil {
					d.closed(conn)
					return
				}
			}
		}()
	}

	ch := &streamChannel{dev: d, conn: conn}
	return streamLink{svc: streamService{uuid: d.service, ch: ch}}, nil
}

func (d *streamDevice) dial(ctx context.Context) (io.WriteCloser, error) {
	addr := d.addr
	if strings.HasPrefix(addr, "/") {
		f, err := os.OpenFile(addr, os.O_WRONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", addr, err)
		}
		return f, nil
	}
	addr = strings.TrimPrefix(addr, "tcp://")
	dialer := net.Dialer{Timeout: d.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// closed fires the disconnect handlers once per connection.
func (d *streamDevice) closed(conn io.WriteCloser) {
	d.mu.Lock()
	if d.conn != conn {
		d.mu.Unlock()
		return
	}
	d.conn = nil
	handlers := append([]func(){}, d.handlers...)
	d.mu.Unlock()

	_ = conn.Close()
	for _, fn := range handlers {
		fn()
	}
}

func (d *streamDevice) OnDisconnect(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, fn)
}

func (d *streamDevice) Disconnect() error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return nil
	}
	d.closed(conn)
	return nil
}

type streamLink struct{ svc streamService }

func (l streamLink) Services(context.Context) ([]Service, error) {
	return []Service{l.svc}, nil
}

type streamService struct {
	uuid string
	ch   *streamChannel
}

func (s streamService) UUID() string { return s.uuid }

func (s streamService) Characteristics(context.Context) ([]Characteristic, error) {
	return []Characteristic{s.ch}, nil
}

type streamChannel struct {
	dev  *streamDevice
	conn io.WriteCloser
}

func (c *streamChannel) UUID() string { return StreamChannelUUID }

func (c *streamChannel) Properties() Properties {
	return Properties{WriteWithoutResponse: true}
}

func (c *streamChannel) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if nc, ok := c.conn.(net.Conn); ok {
		if dl, ok := ctx.Deadline(); ok {
			_ = nc.SetWriteDeadline(dl)
		} else {
			_ = nc.SetWriteDeadline(time.Time{})
		}
	}
	if _, err := c.conn.Write(p); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
			c.dev.closed(c.conn)
		}
		return err
	}
	return nil
}
