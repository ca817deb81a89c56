package discovery

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/ssdpscan/internal/transport"
)

// fakeTransport records what a session does with its transport and lets the
// test play the network's part.
type fakeTransport struct {
	mu        sync.Mutex
	onState   transport.StateFunc
	onReceive transport.ReceiveFunc
	started   bool
	cancels   int
	sends     [][]byte
	sendErr   error
}

func (f *fakeTransport) Start(onState transport.StateFunc, onReceive transport.ReceiveFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	f.onState = onState
	f.onReceive = onReceive
}

func (f *fakeTransport) Send(data []byte, completion func(error)) {
	f.mu.Lock()
	f.sends = append(f.sends, append([]byte(nil), data...))
	err := f.sendErr
	f.mu.Unlock()
	completion(err)
}

func (f *fakeTransport) Cancel() {
	f.mu.Lock()
	f.cancels++
	first := f.cancels == 1
	onState := f.onState
	f.mu.Unlock()

	if first && onState != nil {
		onState(transport.StateEvent{State: transport.StateCancelled})
	}
}

func (f *fakeTransport) emit(state transport.State, err error) {
	f.mu.Lock()
	onState := f.onState
	f.mu.Unlock()
	onState(transport.StateEvent{State: state, Err: err})
}

func (f *fakeTransport) receive(data string) {
	f.mu.Lock()
	onReceive := f.onReceive
	f.mu.Unlock()
	onReceive(transport.Datagram{Data: []byte(data)})
}

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeTransport) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

// harness wires a Client to fake transports and records its events.
type harness struct {
	t      *testing.T
	client *Client
	output bytes.Buffer

	mu         sync.Mutex
	transports []*fakeTransport
	events     []Event
	joinErr    error
	liveAtJoin []int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t}
	h.client = NewClient(
		WithLogger(zap.NewNop()),
		WithOutput(&h.output),
		WithJoinFunc(h.join),
		WithEventHandler(h.record),
	)
	t.Cleanup(func() {
		h.client.Close()
		<-h.client.Done()
	})
	return h
}

func (h *harness) join(address string, port int) (Transport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if address != DefaultGroupAddress || port != DefaultPort {
		h.t.Errorf("join(%q, %d), want default group", address, port)
	}
	if h.joinErr != nil {
		return nil, h.joinErr
	}

	live := 0
	for _, ft := range h.transports {
		if ft.cancelCount() == 0 {
			live++
		}
	}
	h.liveAtJoin = append(h.liveAtJoin, live)

	ft := &fakeTransport{}
	h.transports = append(h.transports, ft)
	return ft, nil
}

func (h *harness) record(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *harness) sync() {
	h.t.Helper()
	if !h.client.queue.sync() {
		h.t.Fatal("client queue is closed")
	}
}

func (h *harness) transport(i int) *fakeTransport {
	h.t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.transports) {
		h.t.Fatalf("transport %d was never joined (have %d)", i, len(h.transports))
	}
	return h.transports[i]
}

func (h *harness) transportCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.transports)
}

func (h *harness) countEvents(kind EventKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ev := range h.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (h *harness) lastEvent(kind EventKind) (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Kind == kind {
			return h.events[i], true
		}
	}
	return Event{}, false
}

func eventually(t *testing.T, within time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestClient_TimedScanSendsOnceAndStops(t *testing.T) {
	h := newHarness(t)

	h.client.StartListeningFor(100 * time.Millisecond)
	h.sync()

	ft := h.transport(0)
	ft.emit(transport.StateSetup, nil)
	ft.emit(transport.StateReady, nil)
	h.sync()

	if got := ft.sendCount(); got != 1 {
		t.Fatalf("sends after ready = %d, want 1", got)
	}
	ft.mu.Lock()
	payload := string(ft.sends[0])
	ft.mu.Unlock()
	if payload != DefaultSearchMessage {
		t.Errorf("sent payload = %q, want DefaultSearchMessage", payload)
	}
	if h.countEvents(EventSearchSent) != 1 {
		t.Errorf("search_sent events = %d, want 1", h.countEvents(EventSearchSent))
	}

	if !eventually(t, 2*time.Second, func() bool { return ft.cancelCount() == 1 }) {
		t.Fatal("transport was not cancelled after the timeout")
	}
	h.sync()

	if h.client.session != nil {
		t.Error("session still active after timeout")
	}
	if h.countEvents(EventStopped) != 1 {
		t.Errorf("stopped events = %d, want 1", h.countEvents(EventStopped))
	}
}

func TestClient_RepeatedReadySendsOnce(t *testing.T) {
	h := newHarness(t)

	h.client.StartListening()
	h.sync()

	ft := h.transport(0)
	ft.emit(transport.StateReady, nil)
	ft.emit(transport.StateWaiting, errors.New("interface went away"))
	ft.emit(transport.StateReady, nil)
	ft.emit(transport.StateReady, nil)
	h.sync()
	h.sync()

	if got := ft.sendCount(); got != 1 {
		t.Errorf("sends = %d, want exactly 1", got)
	}
}

func TestClient_NoSendBeforeReady(t *testing.T) {
	h := newHarness(t)

	h.client.StartListening()
	h.sync()

	ft := h.transport(0)
	ft.emit(transport.StateSetup, nil)
	ft.emit(transport.StateWaiting, errors.New("no route"))
	h.sync()

	if got := ft.sendCount(); got != 0 {
		t.Errorf("sends before ready = %d, want 0", got)
	}
}

func TestClient_StartListeningRejectedWhileReady(t *testing.T) {
	h := newHarness(t)

	h.client.StartListening()
	h.sync()
	ft := h.transport(0)
	ft.emit(transport.StateReady, nil)
	h.sync()

	h.client.StartListening()
	h.sync()

	if got := h.transportCount(); got != 1 {
		t.Errorf("transports joined = %d, want 1", got)
	}
	if got := ft.cancelCount(); got != 0 {
		t.Errorf("original transport cancelled %d times, want 0", got)
	}
	if got := ft.sendCount(); got != 1 {
		t.Errorf("sends = %d, want 1 (no resend)", got)
	}

	ev, ok := h.lastEvent(EventRejected)
	if !ok {
		t.Fatal("no rejected event")
	}
	if !errors.Is(ev.Err, ErrAlreadyActive) {
		t.Errorf("rejected event error = %v, want ErrAlreadyActive", ev.Err)
	}
}

func TestClient_StartListeningRejectedWhileTimerPending(t *testing.T) {
	h := newHarness(t)

	h.client.StartListeningFor(time.Hour)
	h.sync()

	h.client.StartListening()
	h.sync()

	if got := h.transportCount(); got != 1 {
		t.Errorf("transports joined = %d, want 1", got)
	}
	if h.countEvents(EventRejected) != 1 {
		t.Errorf("rejected events = %d, want 1", h.countEvents(EventRejected))
	}
}

func TestClient_StartListeningReplacesSessionThatIsNotReady(t *testing.T) {
	h := newHarness(t)

	h.client.StartListening()
	h.sync()
	first := h.transport(0)
	first.emit(transport.StateWaiting, errors.New("no interfaces"))
	h.sync()

	h.client.StartListening()
	h.sync()

	if got := h.transportCount(); got != 2 {
		t.Fatalf("transports joined = %d, want 2", got)
	}
	if first.cancelCount() != 1 {
		t.Errorf("first transport cancelled %d times, want 1", first.cancelCount())
	}
	if h.countEvents(EventReplaced) != 1 {
		t.Errorf("replaced events = %d, want 1", h.countEvents(EventReplaced))
	}
}

func TestClient_TimedStartAlwaysReplaces(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 5; i++ {
		h.client.StartListeningFor(time.Hour)
	}
	h.sync()

	if got := h.transportCount(); got != 5 {
		t.Fatalf("transports joined = %d, want 5", got)
	}

	h.mu.Lock()
	liveAtJoin := append([]int(nil), h.liveAtJoin...)
	h.mu.Unlock()
	for i, live := range liveAtJoin {
		if live != 0 {
			t.Errorf("join %d happened with %d live transports, want 0", i, live)
		}
	}

	for i := 0; i < 4; i++ {
		if got := h.transport(i).cancelCount(); got != 1 {
			t.Errorf("transport %d cancelled %d times, want 1", i, got)
		}
	}
	if got := h.transport(4).cancelCount(); got != 0 {
		t.Errorf("newest transport cancelled %d times, want 0", got)
	}

	// Only the newest timer is pending, and it belongs to the active session
	if h.client.session == nil || h.client.session.timer == nil {
		t.Fatal("active session has no pending timer")
	}
	if h.client.session.transport != h.transport(4) {
		t.Error("active session does not own the newest transport")
	}
}

func TestClient_ReplacedTimerDoesNotStopNewSession(t *testing.T) {
	h := newHarness(t)

	h.client.StartListeningFor(30 * time.Millisecond)
	h.client.StartListeningFor(time.Hour)
	h.sync()

	time.Sleep(80 * time.Millisecond)
	h.sync()

	if got := h.transport(1).cancelCount(); got != 0 {
		t.Errorf("new transport cancelled by the replaced timer")
	}
	if h.countEvents(EventStopped) != 0 {
		t.Errorf("stopped events = %d, want 0", h.countEvents(EventStopped))
	}
}

func TestClient_StopListeningIsIdempotent(t *testing.T) {
	h := newHarness(t)

	// Never started
	h.client.StopListening()
	h.sync()
	if h.countEvents(EventStopped) != 0 {
		t.Errorf("stop without session emitted %d stopped events", h.countEvents(EventStopped))
	}

	h.client.StartListeningFor(time.Hour)
	h.sync()
	ft := h.transport(0)

	h.client.StopListening()
	h.client.StopListening()
	h.sync()

	if got := ft.cancelCount(); got != 1 {
		t.Errorf("transport cancelled %d times, want 1", got)
	}
	if got := h.countEvents(EventStopped); got != 1 {
		t.Errorf("stopped events = %d, want 1", got)
	}
	if h.client.session != nil {
		t.Error("session still active after StopListening")
	}
}

func TestClient_JoinFailureLeavesNoSession(t *testing.T) {
	h := newHarness(t)
	h.joinErr = &transport.GroupJoinError{Address: "bad", Port: 1900, Err: errors.New("not an IP")}

	h.client.StartListeningFor(time.Hour)
	h.sync()

	if h.client.session != nil {
		t.Error("session created despite join failure")
	}
	ev, ok := h.lastEvent(EventJoinFailed)
	if !ok {
		t.Fatal("no join_failed event")
	}
	var joinErr *transport.GroupJoinError
	if !errors.As(ev.Err, &joinErr) {
		t.Errorf("join_failed error = %T, want *transport.GroupJoinError", ev.Err)
	}
}

func TestClient_NonPositiveTimeoutRejected(t *testing.T) {
	h := newHarness(t)

	h.client.StartListeningFor(0)
	h.client.StartListeningFor(-time.Second)
	h.sync()

	if got := h.transportCount(); got != 0 {
		t.Errorf("transports joined = %d, want 0", got)
	}
	if got := h.countEvents(EventRejected); got != 2 {
		t.Errorf("rejected events = %d, want 2", got)
	}
}

func TestClient_NonPositiveTimeoutTearsDownReadySession(t *testing.T) {
	h := newHarness(t)

	h.client.StartListening()
	h.sync()
	ft := h.transport(0)
	ft.emit(transport.StateReady, nil)
	h.sync()

	h.client.StartListeningFor(0)
	h.sync()

	if got := ft.cancelCount(); got != 1 {
		t.Errorf("ready transport cancelled %d times, want 1", got)
	}
	if got := h.countEvents(EventReplaced); got != 1 {
		t.Errorf("replaced events = %d, want 1", got)
	}
	if got := h.countEvents(EventRejected); got != 1 {
		t.Errorf("rejected events = %d, want 1", got)
	}
	if got := h.transportCount(); got != 1 {
		t.Errorf("transports joined = %d, want 1", got)
	}

	// The session is gone, so an untimed start is accepted again
	h.client.StartListening()
	h.sync()

	if got := h.transportCount(); got != 2 {
		t.Errorf("transports joined after restart = %d, want 2", got)
	}
	if got := h.countEvents(EventRejected); got != 1 {
		t.Errorf("rejected events after restart = %d, want 1", got)
	}
}

func TestClient_FailuresDoNotStopSession(t *testing.T) {
	h := newHarness(t)

	h.client.StartListening()
	h.sync()
	ft := h.transport(0)

	ft.emit(transport.StateWaiting, &transport.TransientNetworkError{Err: errors.New("no route")})
	ft.emit(transport.StateFailed, &transport.TransportFailedError{Err: errors.New("socket closed")})
	h.sync()

	if ft.cancelCount() != 0 {
		t.Error("transport cancelled automatically after failure")
	}
	if h.client.session == nil {
		t.Fatal("session removed after failure")
	}
	if h.client.session.phase != PhaseFailed {
		t.Errorf("session phase = %v, want failed", h.client.session.phase)
	}
	if h.countEvents(EventStateChanged) != 2 {
		t.Errorf("state_changed events = %d, want 2", h.countEvents(EventStateChanged))
	}
}

func TestClient_SendFailureReported(t *testing.T) {
	h := newHarness(t)

	h.client.StartListening()
	h.sync()
	ft := h.transport(0)
	ft.sendErr = &transport.SendError{Group: "239.255.255.250:1900", Err: errors.New("message too long")}
	ft.emit(transport.StateReady, nil)
	h.sync()
	h.sync()

	if h.countEvents(EventSendFailed) != 1 {
		t.Errorf("send_failed events = %d, want 1", h.countEvents(EventSendFailed))
	}
	if h.client.session == nil {
		t.Error("send failure ended the session")
	}
}

func TestClient_SetSearchMessage(t *testing.T) {
	h := newHarness(t)
	custom := SearchRequest{Target: SearchRootDevice, MX: 1}.String()

	h.client.SetSearchMessage(custom)
	h.client.StartListening()
	h.sync()
	ft := h.transport(0)
	ft.emit(transport.StateReady, nil)
	h.sync()

	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.sends) != 1 || string(ft.sends[0]) != custom {
		t.Errorf("sent %q, want %q", ft.sends, custom)
	}
}

func TestClient_HandlerReplacementOrdering(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var oldGot, newGot []string
	h.client.SetMessageHandler(func(data []byte) {
		mu.Lock()
		oldGot = append(oldGot, string(data))
		mu.Unlock()
	})
	h.client.StartListening()
	h.sync()
	ft := h.transport(0)
	ft.emit(transport.StateReady, nil)

	ft.receive("first")
	h.client.SetMessageHandler(func(data []byte) {
		mu.Lock()
		newGot = append(newGot, string(data))
		mu.Unlock()
	})
	ft.receive("second")
	ft.receive("third")
	h.sync()

	mu.Lock()
	defer mu.Unlock()
	if len(oldGot) != 1 || oldGot[0] != "first" {
		t.Errorf("old handler got %v, want [first]", oldGot)
	}
	if len(newGot) != 2 || newGot[0] != "second" || newGot[1] != "third" {
		t.Errorf("new handler got %v, want [second third]", newGot)
	}
}

func TestClient_DefaultHandlerOutput(t *testing.T) {
	h := newHarness(t)

	h.client.StartListening()
	h.sync()
	ft := h.transport(0)
	ft.emit(transport.StateReady, nil)
	ft.receive("HTTP/1.1 200 OK")
	ft.receive(string([]byte{0xff, 0xfe}))
	h.sync()

	if got := h.output.String(); got != "HTTP/1.1 200 OK\n" {
		t.Errorf("default handler output = %q, want %q", got, "HTTP/1.1 200 OK\n")
	}
}

func TestClient_NoDeliveryAfterStop(t *testing.T) {
	h := newHarness(t)

	delivered := 0
	h.client.SetMessageHandler(func([]byte) { delivered++ })
	h.client.StartListening()
	h.sync()
	ft := h.transport(0)
	ft.emit(transport.StateReady, nil)

	h.client.StopListening()
	h.sync()

	// Late callbacks from the torn-down transport
	ft.receive("late response")
	ft.emit(transport.StateReady, nil)
	h.sync()

	if delivered != 0 {
		t.Errorf("handler invoked %d times after stop, want 0", delivered)
	}
	if got := ft.sendCount(); got != 1 {
		t.Errorf("sends = %d, want 1", got)
	}
}

func TestClient_HandlerPanicDoesNotKillClient(t *testing.T) {
	h := newHarness(t)

	h.client.SetMessageHandler(func([]byte) { panic("bad handler") })
	h.client.StartListening()
	h.sync()
	ft := h.transport(0)
	ft.emit(transport.StateReady, nil)
	ft.receive("boom")
	h.sync()

	h.client.StopListening()
	h.sync()

	if ft.cancelCount() != 1 {
		t.Error("client stopped processing after a handler panic")
	}
}

func TestClient_CloseStopsSessionAndIgnoresLaterCalls(t *testing.T) {
	h := newHarness(t)

	h.client.StartListeningFor(time.Hour)
	h.sync()
	ft := h.transport(0)

	h.client.Close()
	select {
	case <-h.client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done() not closed after Close()")
	}

	if ft.cancelCount() != 1 {
		t.Errorf("transport cancelled %d times on Close, want 1", ft.cancelCount())
	}

	h.client.StartListening()
	h.client.StopListening()
	if got := h.transportCount(); got != 1 {
		t.Errorf("transports joined after Close = %d, want 1", got)
	}
}

func TestEvent_String(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{Event{Kind: EventStarted}, "started"},
		{Event{Kind: EventStateChanged, State: transport.StateReady}, "state_changed ready"},
		{Event{Kind: EventRejected, Err: ErrAlreadyActive}, "rejected: SSDP listening is already active"},
		{Event{Kind: EventKind(99)}, "EventKind(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.event.String(); got != tt.want {
				t.Errorf("Event.String() = %q, want %q", got, tt.want)
			}
		})
	}
}
