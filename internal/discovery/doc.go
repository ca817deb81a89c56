// Package discovery provides an SSDP discovery client for finding UPnP
// devices and services on the local network.
//
// A Client runs at most one discovery session at a time. Each session joins
// the SSDP multicast group (239.255.255.250:1900), sends a single M-SEARCH
// once the transport is ready, and hands every datagram it receives to a
// MessageHandler. A session ends when StopListening is called, when its
// timeout elapses, or when a new timed session replaces it.
//
// # Discovery Process
//
//  1. StartListeningFor joins the group through the multicast transport
//  2. When the transport reports ready, the search message is sent once
//  3. Responses and NOTIFY advertisements are passed to the handler
//  4. After the timeout the transport is cancelled and the session cleared
//
// # Usage Example
//
//	client := discovery.NewClient()
//	defer client.Close()
//
//	collector := discovery.NewCollector(nil)
//	client.SetMessageHandler(collector.Handle)
//	client.StartListeningFor(5 * time.Second)
//
// For a blocking scan use a Scanner:
//
//	responses, err := discovery.NewScanner().Scan(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, r := range responses {
//	    fmt.Println(r)
//	}
//
// # Default Handler
//
// Unless replaced, each datagram is decoded as UTF-8 and printed on its own
// line. Datagrams that are not valid UTF-8 are logged and dropped.
//
// # Thread Safety
//
// Client methods may be called from any goroutine and never block. They are
// applied in call order on a single task queue, which also runs transport
// callbacks, the message handler and the event handler. Callbacks from a
// session that has been stopped or replaced are discarded.
package discovery
