package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/muurk/ssdpscan/internal/transport"
)

// DefaultScanTimeout is how long a scan listens for responses. It leaves
// room for the default MX of 3 seconds.
const DefaultScanTimeout = 5 * time.Second

// Scanner runs blocking, one-shot scans on top of a Client.
type Scanner struct {
	// Timeout is how long each scan listens
	Timeout time.Duration

	// Message is the search payload; empty means DefaultSearchMessage
	Message string

	// Options are passed to every Client the scanner creates
	Options []Option

	// OnEvent, if not nil, receives every session event
	OnEvent func(Event)

	// OnResponse, if not nil, receives each new responder as it is found
	OnResponse func(*Response)
}

// NewScanner creates a scanner with default settings
func NewScanner(opts ...Option) *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		Options: opts,
	}
}

// Scan sends one search and collects responses until the timeout elapses.
// It returns early with an error if the group cannot be joined or the
// transport fails. If ctx is cancelled, the responses collected so far are
// returned with ctx.Err().
func (s *Scanner) Scan(ctx context.Context) ([]*Response, error) {
	collector := NewCollector(s.OnResponse)
	err := s.run(ctx, collector.Handle, nil)
	return collector.Responses(), err
}

// WaitFor scans until a responder whose ST or NT equals target answers. The
// comparison ignores case.
func (s *Scanner) WaitFor(ctx context.Context, target string) (*Response, error) {
	var (
		once  sync.Once
		match *Response
	)
	found := make(chan struct{})
	collector := NewCollector(func(r *Response) {
		if strings.EqualFold(r.Target, target) {
			once.Do(func() {
				match = r
				close(found)
			})
		}
	})

	err := s.run(ctx, collector.Handle, found)

	select {
	case <-found:
		return match, nil
	default:
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no responder for %s within %s", target, s.Timeout)
}

// run drives one timed session. It returns when the session stops, fails,
// ctx is done, or stop (if not nil) is closed.
func (s *Scanner) run(ctx context.Context, handler MessageHandler, stop <-chan struct{}) error {
	finished := make(chan error, 1)
	finish := func(err error) {
		select {
		case finished <- err:
		default:
		}
	}

	opts := append(append([]Option(nil), s.Options...), WithEventHandler(func(ev Event) {
		if s.OnEvent != nil {
			s.OnEvent(ev)
		}
		switch {
		case ev.Kind == EventStopped:
			finish(nil)
		case ev.Kind == EventJoinFailed, ev.Kind == EventRejected:
			finish(ev.Err)
		case ev.Kind == EventStateChanged && ev.State == transport.StateFailed:
			finish(ev.Err)
		}
	}))

	c := NewClient(opts...)
	defer func() {
		c.Close()
		<-c.Done()
	}()

	if s.Message != "" {
		c.SetSearchMessage(s.Message)
	}
	c.SetMessageHandler(handler)
	c.StartListeningFor(s.Timeout)

	select {
	case err := <-finished:
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		return nil
	case <-stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
