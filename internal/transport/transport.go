package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/muurk/ssdpscan/internal/logging"
)

const (
	// DefaultTTL is the multicast TTL recommended for SSDP.
	DefaultTTL = 2

	// DefaultMaxRetryElapsed bounds how long a transport stays in waiting
	// before it fails.
	DefaultMaxRetryElapsed = 2 * time.Minute
)

// packetConn contains the methods of *ipv4.PacketConn used after setup.
type packetConn interface {
	ReadFrom(b []byte) (int, *ipv4.ControlMessage, net.Addr, error)
	WriteTo(b []byte, cm *ipv4.ControlMessage, dst net.Addr) (int, error)
	Close() error
}

// listenFunc opens the socket and joins the group, returning the interfaces
// that accepted the membership.
type listenFunc func() (packetConn, []net.Interface, error)

// Option configures a MulticastTransport.
type Option func(*MulticastTransport)

// WithInterfaces restricts group membership to the given interfaces.
func WithInterfaces(ifaces []net.Interface) Option {
	return func(t *MulticastTransport) {
		t.ifaces = ifaces
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(t *MulticastTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTTL sets the multicast TTL of outgoing datagrams.
func WithTTL(ttl int) Option {
	return func(t *MulticastTransport) {
		t.ttl = ttl
	}
}

// WithBackOff sets the retry policy used while the transport is waiting.
// The factory is called once per Start.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(t *MulticastTransport) {
		if newBackOff != nil {
			t.newBackOff = newBackOff
		}
	}
}

// MulticastTransport sends and receives datagrams on one multicast group.
type MulticastTransport struct {
	group      *net.UDPAddr
	ifaces     []net.Interface
	ttl        int
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
	listen     listenFunc

	// deliverMu is held while a callback runs, so Cancel can wait for
	// one that is already in flight.
	deliverMu sync.Mutex

	mu        sync.Mutex
	onState   StateFunc
	onReceive ReceiveFunc
	conn      packetConn
	joined    []net.Interface
	started   bool
	readied   bool
	terminal  bool
	cancelled bool
	done      chan struct{}
}

// Join validates the group address and returns an unstarted transport.
// address must be an IPv4 multicast literal such as "239.255.255.250"; host
// names are not resolved. It returns a *GroupJoinError if address is not
// such a literal or port is out of range. No socket is opened until Start.
func Join(address string, port int, opts ...Option) (*MulticastTransport, error) {
	group, err := resolveGroup(address, port)
	if err != nil {
		return nil, &GroupJoinError{Address: address, Port: port, Err: err}
	}

	t := &MulticastTransport{
		group:      group,
		ttl:        DefaultTTL,
		logger:     logging.GetLogger(),
		newBackOff: defaultBackOff,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.listen = t.open

	return t, nil
}

func resolveGroup(address string, port int) (*net.UDPAddr, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("port %d out of range", port)
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return nil, fmt.Errorf("%q is not an IP address", address)
	}

	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%s is not an IPv4 address", address)
	}

	if !ip4.IsMulticast() {
		return nil, fmt.Errorf("%s is not a multicast address", address)
	}

	return &net.UDPAddr{IP: ip4, Port: port}, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = DefaultMaxRetryElapsed
	return b
}

// Group returns the multicast group address.
func (t *MulticastTransport) Group() *net.UDPAddr {
	return t.group
}

// Start begins bringing the transport up on its own goroutine. Calling Start
// more than once, or after Cancel, does nothing.
func (t *MulticastTransport) Start(onState StateFunc, onReceive ReceiveFunc) {
	t.mu.Lock()
	if t.started || t.cancelled {
		t.mu.Unlock()
		t.logger.Debug("Ignoring start of a transport that was already started or cancelled",
			zap.Stringer("group", t.group),
		)
		return
	}
	t.started = true
	if onState == nil {
		onState = func(StateEvent) {}
	}
	if onReceive == nil {
		onReceive = func(Datagram) {}
	}
	t.onState = onState
	t.onReceive = onReceive
	t.mu.Unlock()

	go t.run()
}

// Send writes data to the group without blocking. The datagram goes out on
// the first joined interface that accepts it, falling back to the default
// multicast route. completion, if not nil, receives nil or a *SendError.
func (t *MulticastTransport) Send(data []byte, completion func(error)) {
	payload := append([]byte(nil), data...)

	go func() {
		err := t.send(payload)
		if completion != nil {
			completion(err)
		}
	}()
}

// Cancel releases the socket and group membership. It is idempotent and may
// be called before Start. If the transport was started and had not failed,
// the cancelled state is reported once before Cancel returns. A callback
// that is running when Cancel is called finishes first, and none runs after
// Cancel returns, so Cancel must not be called from inside a callback.
func (t *MulticastTransport) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	conn := t.conn
	t.conn = nil
	notify := t.started && !t.terminal
	t.terminal = true
	onState := t.onState
	close(t.done)
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	t.logger.Debug("Multicast transport cancelled", zap.Stringer("group", t.group))

	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	if notify {
		onState(StateEvent{State: StateCancelled})
	}
}

func (t *MulticastTransport) run() {
	t.emitState(StateEvent{State: StateSetup})

	conn, ok := t.connect()
	if !ok {
		return
	}

	t.emitState(StateEvent{State: StateReady})
	t.readLoop(conn)
}

// connect retries t.listen until it succeeds, the backoff gives up, or the
// transport is cancelled.
func (t *MulticastTransport) connect() (packetConn, bool) {
	b := t.newBackOff()
	b.Reset()

	for {
		conn, joined, err := t.listen()
		if err == nil {
			t.mu.Lock()
			if t.cancelled {
				t.mu.Unlock()
				_ = conn.Close()
				return nil, false
			}
			t.conn = conn
			t.joined = joined
			t.mu.Unlock()

			t.logger.Info("Joined multicast group",
				zap.Stringer("group", t.group),
				zap.Strings("interfaces", interfaceNames(joined)),
			)
			return conn, true
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			t.emitState(StateEvent{
				State: StateFailed,
				Err:   &TransportFailedError{Group: t.group.String(), Err: err},
			})
			return nil, false
		}

		t.emitState(StateEvent{
			State: StateWaiting,
			Err:   &TransientNetworkError{Group: t.group.String(), Err: err, RetryIn: wait},
		})

		timer := time.NewTimer(wait)
		select {
		case <-t.done:
			timer.Stop()
			return nil, false
		case <-timer.C:
		}
	}
}

func (t *MulticastTransport) readLoop(conn packetConn) {
	buf := getBuffer()
	defer putBuffer(buf)

	for {
		n, cm, src, err := conn.ReadFrom(buf)
		if err != nil {
			if t.isCancelled() {
				return
			}
			t.emitState(StateEvent{
				State: StateFailed,
				Err:   &TransportFailedError{Group: t.group.String(), Err: err},
			})
			t.closeConn()
			return
		}

		if n > MaxMessageSize {
			t.logger.Debug("Rejected oversized datagram",
				zap.Stringer("source", src),
				zap.Int("max_size", MaxMessageSize),
			)
			continue
		}

		d := Datagram{Data: append([]byte(nil), buf[:n]...)}
		if udp, ok := src.(*net.UDPAddr); ok {
			d.Source = udp
		}
		if cm != nil {
			d.InterfaceIndex = cm.IfIndex
		}

		t.emitReceive(d)
	}
}

// emitState delivers ev unless the transport already reached a terminal
// state. Ready is delivered at most once.
func (t *MulticastTransport) emitState(ev StateEvent) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	t.mu.Lock()
	if t.terminal || (ev.State == StateReady && t.readied) {
		t.mu.Unlock()
		return
	}
	if ev.State == StateReady {
		t.readied = true
	}
	if ev.State.Terminal() {
		t.terminal = true
	}
	onState := t.onState
	t.mu.Unlock()

	onState(ev)
}

func (t *MulticastTransport) emitReceive(d Datagram) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	t.mu.Lock()
	if t.terminal {
		t.mu.Unlock()
		return
	}
	onReceive := t.onReceive
	t.mu.Unlock()

	onReceive(d)
}

func (t *MulticastTransport) send(payload []byte) error {
	t.mu.Lock()
	conn, joined, cancelled := t.conn, t.joined, t.cancelled
	t.mu.Unlock()

	group := t.group.String()
	switch {
	case cancelled:
		return &SendError{Group: group, Err: ErrCancelled}
	case conn == nil:
		return &SendError{Group: group, Err: ErrNotReady}
	}

	var lastErr error
	for _, i := range joined {
		if _, err := conn.WriteTo(payload, &ipv4.ControlMessage{IfIndex: i.Index}, t.group); err != nil {
			t.logger.Debug("Unable to send on interface",
				zap.String("interface", i.Name),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		return nil
	}

	// Fall back to the system's default multicast interface.
	if _, err := conn.WriteTo(payload, nil, t.group); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return &SendError{Group: group, Err: lastErr}
	}

	return nil
}

func (t *MulticastTransport) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *MulticastTransport) closeConn() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// open binds the group port with address reuse and joins the group.
func (t *MulticastTransport) open() (packetConn, []net.Interface, error) {
	ifaces := t.ifaces
	if len(ifaces) == 0 {
		all, err := net.Interfaces()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list network interfaces: %w", err)
		}
		ifaces = all
	}
	ifaces = multicastInterfaces(ifaces)
	if len(ifaces) == 0 {
		return nil, nil, errNoInterfaces
	}

	lc := net.ListenConfig{Control: reuseControl}
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(t.group.Port))
	c, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	pc := ipv4.NewPacketConn(c)

	if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		// Not supported everywhere; only costs the interface index.
		t.logger.Debug("Interface control messages unavailable", zap.Error(err))
	}
	if err := pc.SetMulticastTTL(t.ttl); err != nil {
		t.logger.Debug("Unable to set multicast TTL", zap.Int("ttl", t.ttl), zap.Error(err))
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		t.logger.Debug("Unable to enable multicast loopback", zap.Error(err))
	}

	joined, err := joinGroup(pc, t.group.IP, ifaces, t.logger)
	if err != nil {
		_ = pc.Close()
		return nil, nil, err
	}

	return pc, joined, nil
}
