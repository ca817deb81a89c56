package discovery

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// ErrNotSSDP is returned by ParseResponse when the start line is not an SSDP
// response, NOTIFY or M-SEARCH.
var ErrNotSSDP = errors.New("not an SSDP message")

// MessageKind classifies a parsed SSDP message by its start line.
type MessageKind int

const (
	// KindResponse is a unicast reply to an M-SEARCH ("HTTP/1.1 200 OK").
	KindResponse MessageKind = iota
	// KindNotify is an unsolicited advertisement ("NOTIFY * HTTP/1.1").
	KindNotify
	// KindSearch is another client's M-SEARCH seen on the group.
	KindSearch
)

// String returns the lowercase kind name
func (k MessageKind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindNotify:
		return "notify"
	case KindSearch:
		return "search"
	default:
		return fmt.Sprintf("MessageKind(%d)", int(k))
	}
}

// Response is an SSDP message received from the network
type Response struct {
	// StartLine is the first line without its terminator (e.g., "HTTP/1.1 200 OK")
	StartLine string

	Kind MessageKind

	// StatusCode is set for KindResponse only
	StatusCode int

	// Location is the URL of the device description document
	Location string

	// Server identifies the responder's OS, UPnP version and product
	Server string

	// Target is the ST header of a response or the NT header of a NOTIFY
	Target string

	// USN is the unique service name (e.g., "uuid:...::upnp:rootdevice")
	USN string

	// NTS is the notification sub type of a NOTIFY (e.g., "ssdp:alive")
	NTS string

	CacheControl string

	// Headers holds every header in canonical form
	Headers textproto.MIMEHeader

	// ReceivedAt is when the message was first seen
	ReceivedAt time.Time

	// Seen counts how many copies of the message were received
	Seen int
}

// ParseResponse reads an SSDP message. A missing blank line after the last
// header is tolerated.
func ParseResponse(data []byte) (*Response, error) {
	text, err := DecodeText(data)
	if err != nil {
		return nil, err
	}

	tp := textproto.NewReader(bufio.NewReader(strings.NewReader(text)))

	line, err := tp.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("failed to read start line: %w", err)
	}

	r := &Response{StartLine: line, Seen: 1, ReceivedAt: time.Now()}
	if err := r.parseStartLine(); err != nil {
		return nil, err
	}

	headers, err := tp.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}
	r.Headers = headers

	r.Location = headers.Get("Location")
	r.Server = headers.Get("Server")
	r.USN = headers.Get("Usn")
	r.NTS = headers.Get("Nts")
	r.CacheControl = headers.Get("Cache-Control")
	if r.Kind == KindNotify {
		r.Target = headers.Get("Nt")
	} else {
		r.Target = headers.Get("St")
	}

	return r, nil
}

func (r *Response) parseStartLine() error {
	fields := strings.Fields(r.StartLine)
	if len(fields) < 2 {
		return fmt.Errorf("%w: %q", ErrNotSSDP, r.StartLine)
	}

	switch {
	case strings.HasPrefix(fields[0], "HTTP/"):
		code, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("%w: bad status code %q", ErrNotSSDP, fields[1])
		}
		r.Kind = KindResponse
		r.StatusCode = code
	case strings.EqualFold(fields[0], "NOTIFY"):
		r.Kind = KindNotify
	case strings.EqualFold(fields[0], "M-SEARCH"):
		r.Kind = KindSearch
	default:
		return fmt.Errorf("%w: %q", ErrNotSSDP, r.StartLine)
	}

	return nil
}

// Key identifies the responder for deduplication: the USN when present,
// otherwise the location and target together.
func (r *Response) Key() string {
	if r.USN != "" {
		return r.USN
	}
	return r.Location + "|" + r.Target
}

// MaxAge returns the max-age directive of CACHE-CONTROL.
func (r *Response) MaxAge() (time.Duration, bool) {
	for _, directive := range strings.Split(r.CacheControl, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(strings.TrimSpace(name), "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	return 0, false
}

// Header retrieves a header value by name, or returns empty string if not found
func (r *Response) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// String returns a human-readable string representation of the response
func (r *Response) String() string {
	var b bytes.Buffer
	b.WriteString(r.Kind.String())
	if r.Target != "" {
		fmt.Fprintf(&b, " %s", r.Target)
	}
	if r.Location != "" {
		fmt.Fprintf(&b, " at %s", r.Location)
	}
	if r.USN != "" {
		fmt.Fprintf(&b, " (%s)", r.USN)
	}
	return b.String()
}
