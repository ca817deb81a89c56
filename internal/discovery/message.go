package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultGroupAddress is the SSDP IPv4 multicast group.
	DefaultGroupAddress = "239.255.255.250"

	// DefaultPort is the SSDP port.
	DefaultPort = 1900

	// SearchAll is the search target matching every device and service.
	SearchAll = "ssdp:all"

	// SearchRootDevice is the search target matching root devices only.
	SearchRootDevice = "upnp:rootdevice"

	// DefaultMX is the default maximum response delay in seconds.
	DefaultMX = 3

	// DefaultUserAgent is sent in the User-Agent header of searches.
	DefaultUserAgent = "UPnP/1.0"
)

// DefaultSearchMessage is the M-SEARCH request sent when no other message is
// configured. It asks every device on the group to respond within 3 seconds.
const DefaultSearchMessage = "M-SEARCH * HTTP/1.1\r\n" +
	"HOST: 239.255.255.250:1900\r\n" +
	"MAN: \"ssdp:discover\"\r\n" +
	"MX: 3\r\n" +
	"ST: ssdp:all\r\n" +
	"User-Agent: UPnP/1.0\r\n" +
	"\r\n"

// SearchRequest builds an M-SEARCH message. Zero fields take the defaults, so
// SearchRequest{}.String() equals DefaultSearchMessage.
type SearchRequest struct {
	// Host is the HOST header, e.g. "239.255.255.250:1900"
	Host string

	// Target is the ST header, e.g. "ssdp:all" or "urn:schemas-upnp-org:device:MediaRenderer:1"
	Target string

	// MX is the maximum response delay in seconds (1-5)
	MX int

	// UserAgent is the User-Agent header
	UserAgent string
}

// Validate checks that the request can be rendered into a well-formed message.
func (r SearchRequest) Validate() error {
	if r.MX != 0 && (r.MX < 1 || r.MX > 5) {
		return fmt.Errorf("MX must be between 1 and 5 seconds, got %d", r.MX)
	}

	for name, value := range map[string]string{
		"HOST":       r.Host,
		"ST":         r.Target,
		"User-Agent": r.UserAgent,
	} {
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("%s header must not contain line breaks", name)
		}
	}

	return nil
}

// String renders the request with CRLF line endings and a blank line terminator.
func (r SearchRequest) String() string {
	host := r.Host
	if host == "" {
		host = DefaultGroupAddress + ":" + strconv.Itoa(DefaultPort)
	}
	target := r.Target
	if target == "" {
		target = SearchAll
	}
	mx := r.MX
	if mx == 0 {
		mx = DefaultMX
	}
	userAgent := r.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	var b strings.Builder
	b.WriteString("M-SEARCH * HTTP/1.1\r\n")
	b.WriteString("HOST: " + host + "\r\n")
	b.WriteString("MAN: \"ssdp:discover\"\r\n")
	b.WriteString("MX: " + strconv.Itoa(mx) + "\r\n")
	b.WriteString("ST: " + target + "\r\n")
	b.WriteString("User-Agent: " + userAgent + "\r\n")
	b.WriteString("\r\n")
	return b.String()
}
