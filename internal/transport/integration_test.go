//go:build integration

package transport

import (
	"testing"
	"time"
)

// Requires a network with multicast routing; run with:
// go test -tags=integration ./internal/transport/
func TestTransport_LiveLoopback(t *testing.T) {
	tr, err := Join("239.255.255.250", 1900)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	defer tr.Cancel()

	ready := make(chan struct{}, 1)
	received := make(chan Datagram, 16)

	tr.Start(
		func(ev StateEvent) {
			t.Logf("state: %s %v", ev.State, ev.Err)
			if ev.State == StateReady {
				ready <- struct{}{}
			}
		},
		func(d Datagram) {
			select {
			case received <- d:
			default:
			}
		},
	)

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("transport did not become ready")
	}

	payload := []byte("M-SEARCH * HTTP/1.1\r\nHOST: 239.255.255.250:1900\r\nMAN: \"ssdp:discover\"\r\nMX: 1\r\nST: ssdp:all\r\n\r\n")
	errCh := make(chan error, 1)
	tr.Send(payload, func(err error) { errCh <- err })
	if err := <-errCh; err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// Multicast loopback is enabled, so our own search comes back.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case d := <-received:
			t.Logf("received %d bytes from %v", len(d.Data), d.Source)
			if string(d.Data) == string(payload) {
				return
			}
		case <-deadline:
			t.Fatal("did not receive looped-back search message")
		}
	}
}
