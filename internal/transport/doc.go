// Package transport provides the UDP multicast transport used for SSDP
// discovery.
//
// A MulticastTransport is created with Join, which only validates the group
// address, and is brought up asynchronously by Start. Progress is reported
// through a state callback:
//
//	setup -> waiting(err)* -> ready -> [failed(err) | cancelled]
//
// The transport reports ready at most once. While the socket cannot be opened
// or no interface accepts the group membership it stays in waiting and retries
// with exponential backoff; when the backoff gives up it fails. failed and
// cancelled are terminal.
//
// # Usage Example
//
//	t, err := transport.Join("239.255.255.250", 1900)
//	if err != nil {
//	    return err // *GroupJoinError, nothing to clean up
//	}
//	t.Start(
//	    func(ev transport.StateEvent) {
//	        if ev.State == transport.StateReady {
//	            t.Send(payload, func(err error) { ... })
//	        }
//	    },
//	    func(d transport.Datagram) { handle(d.Data) },
//	)
//	defer t.Cancel()
//
// # Sockets
//
// The socket is bound to the group port on all addresses with address reuse
// enabled, so other SSDP agents on the host can share the port. The group is
// joined on every interface that is up and multicast capable, including
// point-to-point and link-local-only interfaces.
//
// # Thread Safety
//
// Send may be called from any goroutine, including from inside a callback.
// Cancel may be called from any goroutine except from inside a callback: it
// waits for a callback already in flight, and no callback runs after it
// returns. Callbacks are invoked from the transport's own goroutine, except
// for the cancelled notification which is delivered by Cancel itself.
package transport
