package discovery

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/ssdpscan/internal/logging"
	"github.com/muurk/ssdpscan/internal/transport"
)

var (
	// ErrAlreadyActive is carried by EventRejected when StartListening finds a
	// ready session or a pending timeout.
	ErrAlreadyActive = errors.New("SSDP listening is already active")

	// ErrClosed is logged for operations issued after Close.
	ErrClosed = errors.New("discovery client is closed")
)

// Transport is the multicast transport a session drives.
// *transport.MulticastTransport implements it.
type Transport interface {
	Start(onState transport.StateFunc, onReceive transport.ReceiveFunc)
	Send(data []byte, completion func(error))
	Cancel()
}

// JoinFunc creates an unstarted transport for the group.
type JoinFunc func(address string, port int) (Transport, error)

// Phase is the lifecycle phase of a session.
type Phase int

const (
	PhaseSetup Phase = iota
	PhaseWaiting
	PhaseReady
	PhaseFailed
	PhaseCancelled
)

// String returns the lowercase phase name
func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhaseWaiting:
		return "waiting"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// session is one discovery attempt. It is only touched on the client queue.
type session struct {
	id        string
	transport Transport
	timer     *time.Timer
	phase     Phase
	sent      bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithGroup overrides the multicast group address and port.
func WithGroup(address string, port int) Option {
	return func(c *Client) {
		c.address = address
		c.port = port
	}
}

// WithInterfaces restricts the default transport to the given interfaces.
func WithInterfaces(ifaces []net.Interface) Option {
	return func(c *Client) {
		c.ifaces = ifaces
	}
}

// WithJoinFunc replaces how transports are created.
func WithJoinFunc(join JoinFunc) Option {
	return func(c *Client) {
		if join != nil {
			c.join = join
		}
	}
}

// WithEventHandler registers a function that receives session events. It
// runs on the client's task queue and should not block.
func WithEventHandler(fn func(Event)) Option {
	return func(c *Client) {
		c.onEvent = fn
	}
}

// WithOutput sets where the default handler writes decoded messages.
func WithOutput(w io.Writer) Option {
	return func(c *Client) {
		if w != nil {
			c.output = w
		}
	}
}

// Client is an SSDP discovery client. It runs at most one discovery session
// at a time. All methods return immediately; their effects are applied in
// call order on the client's task queue.
type Client struct {
	queue   *serialQueue
	logger  *zap.Logger
	address string
	port    int
	ifaces  []net.Interface
	join    JoinFunc
	onEvent func(Event)
	output  io.Writer

	// Only accessed on the queue
	searchMessage string
	handler       MessageHandler
	session       *session
}

// NewClient creates a client for the standard SSDP group that prints every
// response to stdout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		logger:        logging.GetLogger(),
		address:       DefaultGroupAddress,
		port:          DefaultPort,
		output:        os.Stdout,
		searchMessage: DefaultSearchMessage,
	}
	c.join = c.joinMulticast

	for _, opt := range opts {
		opt(c)
	}

	c.handler = DefaultHandler(c.output, c.logger)
	c.queue = newSerialQueue(c.logger)

	return c
}

func (c *Client) joinMulticast(address string, port int) (Transport, error) {
	t, err := transport.Join(address, port,
		transport.WithLogger(c.logger),
		transport.WithInterfaces(c.ifaces),
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// SetSearchMessage replaces the payload sent by future sessions.
func (c *Client) SetSearchMessage(text string) {
	c.submit("set search message", func() {
		c.searchMessage = text
	})
}

// SetMessageHandler replaces the handler for datagrams received after the
// call. A nil handler restores the default.
func (c *Client) SetMessageHandler(handler MessageHandler) {
	c.submit("set message handler", func() {
		if handler == nil {
			handler = DefaultHandler(c.output, c.logger)
		}
		c.handler = handler
	})
}

// StartListening starts a session with no timeout. It is ignored when a
// session is already ready or has a pending timeout; otherwise any previous
// session is torn down first.
func (c *Client) StartListening() {
	c.submit("start listening", c.startUntimed)
}

// StartListeningFor tears down any previous session and starts a new one
// that stops itself after timeout. A non-positive timeout still tears down
// the previous session but starts nothing.
func (c *Client) StartListeningFor(timeout time.Duration) {
	c.submit("start listening", func() {
		c.startTimed(timeout)
	})
}

// StopListening cancels the session's timeout and transport. It does
// nothing if no session is active.
func (c *Client) StopListening() {
	c.submit("stop listening", func() {
		c.stopSession(false)
	})
}

// Close stops the active session and shuts the client down. Later calls are
// ignored. Done is closed once every queued operation has run.
func (c *Client) Close() {
	c.submit("close", func() {
		c.stopSession(false)
		c.queue.close()
	})
}

// Done returns a channel that is closed after Close has taken effect.
func (c *Client) Done() <-chan struct{} {
	return c.queue.done
}

func (c *Client) submit(operation string, task func()) {
	if !c.queue.enqueue(task) {
		c.logger.Warn("Ignoring operation on closed discovery client",
			zap.String("operation", operation),
			zap.Error(ErrClosed),
		)
	}
}

func (c *Client) startUntimed() {
	if s := c.session; s != nil && (s.phase == PhaseReady || s.timer != nil) {
		c.logger.Warn("Can't start SSDP listening, already active",
			zap.String("session", s.id),
			zap.Stringer("phase", s.phase),
			zap.Bool("timeout_pending", s.timer != nil),
		)
		c.emit(Event{Kind: EventRejected, SessionID: s.id, Err: ErrAlreadyActive})
		return
	}

	c.stopSession(true)
	c.startSession()
}

func (c *Client) startTimed(timeout time.Duration) {
	c.stopSession(true)

	if timeout <= 0 {
		err := fmt.Errorf("listen timeout must be positive, got %s", timeout)
		c.logger.Warn("Can't start SSDP listening", zap.Error(err))
		c.emit(Event{Kind: EventRejected, Err: err})
		return
	}

	s := c.startSession()
	if s == nil {
		return
	}

	s.timer = time.AfterFunc(timeout, func() {
		c.queue.enqueue(func() {
			c.expire(s)
		})
	})

	c.logger.Debug("Listen timeout scheduled",
		zap.String("session", s.id),
		zap.Duration("timeout", timeout),
	)
}

// startSession joins the group and starts the transport. It returns nil if
// the join failed, leaving no active session.
func (c *Client) startSession() *session {
	t, err := c.join(c.address, c.port)
	if err != nil {
		c.logger.Error("Could not join multicast group",
			zap.String("address", c.address),
			zap.Int("port", c.port),
			zap.Error(err),
		)
		c.emit(Event{Kind: EventJoinFailed, Err: err})
		return nil
	}

	s := &session{
		id:        uuid.NewString(),
		transport: t,
		phase:     PhaseSetup,
	}
	c.session = s

	c.logger.Info("SSDP discovery session started",
		zap.String("session", s.id),
		zap.String("group", net.JoinHostPort(c.address, strconv.Itoa(c.port))),
	)
	c.emit(Event{Kind: EventStarted, SessionID: s.id})

	t.Start(
		func(ev transport.StateEvent) {
			c.queue.enqueue(func() {
				c.handleState(s, ev)
			})
		},
		func(d transport.Datagram) {
			c.queue.enqueue(func() {
				c.dispatch(s, d)
			})
		},
	)

	return s
}

// stopSession tears down the active session, if any. replacement only
// changes the diagnostic.
func (c *Client) stopSession(replacement bool) {
	s := c.session
	if s == nil {
		c.logger.Debug("No active SSDP session to stop")
		return
	}
	c.session = nil

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.transport != nil {
		s.transport.Cancel()
		s.transport = nil
	}

	if replacement {
		c.logger.Info("Old SSDP session cleared", zap.String("session", s.id))
		c.emit(Event{Kind: EventReplaced, SessionID: s.id})
		return
	}

	c.logger.Info("SSDP scan stopped", zap.String("session", s.id))
	c.emit(Event{Kind: EventStopped, SessionID: s.id})
}

func (c *Client) expire(s *session) {
	if c.session != s || s.timer == nil {
		return
	}
	s.timer = nil

	c.logger.Info("SSDP listen timeout elapsed", zap.String("session", s.id))
	c.stopSession(false)
}

func (c *Client) handleState(s *session, ev transport.StateEvent) {
	if c.session != s {
		c.logger.Debug("Ignoring state change from inactive session",
			zap.String("session", s.id),
			zap.Stringer("state", ev.State),
		)
		return
	}

	fields := []zap.Field{
		zap.String("session", s.id),
		zap.Stringer("state", ev.State),
	}
	if ev.Err != nil {
		fields = append(fields, zap.Error(ev.Err))
	}

	switch ev.State {
	case transport.StateSetup:
		s.phase = PhaseSetup
		c.logger.Debug("Multicast transport setting up", fields...)
	case transport.StateWaiting:
		s.phase = PhaseWaiting
		c.logger.Warn("Multicast transport waiting", fields...)
	case transport.StateReady:
		s.phase = PhaseReady
		c.logger.Info("Multicast transport ready", fields...)
	case transport.StateFailed:
		s.phase = PhaseFailed
		c.logger.Error("Multicast transport failed", fields...)
	case transport.StateCancelled:
		s.phase = PhaseCancelled
		c.logger.Info("Multicast transport cancelled", fields...)
	}

	c.emit(Event{Kind: EventStateChanged, SessionID: s.id, State: ev.State, Err: ev.Err})

	if ev.State == transport.StateReady && !s.sent {
		s.sent = true
		c.sendSearch(s)
	}
}

func (c *Client) sendSearch(s *session) {
	payload := []byte(c.searchMessage)
	c.logger.Debug("Sending M-SEARCH", append(
		logging.PayloadFields(c.logger, payload),
		zap.String("session", s.id),
	)...)

	s.transport.Send(payload, func(err error) {
		c.queue.enqueue(func() {
			c.reportSend(s, len(payload), err)
		})
	})
}

func (c *Client) reportSend(s *session, length int, err error) {
	if err != nil {
		c.logger.Error("Error with M-SEARCH", zap.String("session", s.id), zap.Error(err))
	} else {
		c.logger.Info("Sent M-SEARCH", zap.String("session", s.id), zap.Int("length", length))
	}

	if c.session != s {
		return
	}

	if err != nil {
		c.emit(Event{Kind: EventSendFailed, SessionID: s.id, Err: err})
		return
	}
	c.emit(Event{Kind: EventSearchSent, SessionID: s.id})
}

// dispatch hands a datagram to the current handler if its session is
// still active.
func (c *Client) dispatch(s *session, d transport.Datagram) {
	if c.session != s {
		c.logger.Debug("Dropping datagram for inactive session", zap.String("session", s.id))
		return
	}

	fields := logging.PayloadFields(c.logger, d.Data)
	fields = append(fields, zap.String("session", s.id))
	if d.Source != nil {
		fields = append(fields, zap.Stringer("source", d.Source))
	}
	c.logger.Debug("Datagram received", fields...)

	c.handler(d.Data)
}

func (c *Client) emit(ev Event) {
	if c.onEvent == nil {
		return
	}
	ev.Time = time.Now()
	c.onEvent(ev)
}
