package discovery

import (
	"errors"
	"testing"
	"time"
)

const rootDeviceResponse = "HTTP/1.1 200 OK\r\n" +
	"CACHE-CONTROL: max-age=1800\r\n" +
	"EXT:\r\n" +
	"LOCATION: http://192.168.1.1:49152/rootDesc.xml\r\n" +
	"SERVER: Linux/3.14 UPnP/1.0 MiniUPnPd/2.1\r\n" +
	"ST: upnp:rootdevice\r\n" +
	"USN: uuid:6b1e1f4a-0000-0000-0000-000000000001::upnp:rootdevice\r\n" +
	"\r\n"

const aliveNotify = "NOTIFY * HTTP/1.1\r\n" +
	"HOST: 239.255.255.250:1900\r\n" +
	"NT: urn:schemas-upnp-org:device:MediaRenderer:1\r\n" +
	"NTS: ssdp:alive\r\n" +
	"LOCATION: http://192.168.1.20:8080/description.xml\r\n" +
	"USN: uuid:renderer-1::urn:schemas-upnp-org:device:MediaRenderer:1\r\n" +
	"\r\n"

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name         string
		data         string
		wantKind     MessageKind
		wantStatus   int
		wantTarget   string
		wantLocation string
		wantUSN      string
	}{
		{
			name:         "search response",
			data:         rootDeviceResponse,
			wantKind:     KindResponse,
			wantStatus:   200,
			wantTarget:   "upnp:rootdevice",
			wantLocation: "http://192.168.1.1:49152/rootDesc.xml",
			wantUSN:      "uuid:6b1e1f4a-0000-0000-0000-000000000001::upnp:rootdevice",
		},
		{
			name:         "notify uses NT as target",
			data:         aliveNotify,
			wantKind:     KindNotify,
			wantTarget:   "urn:schemas-upnp-org:device:MediaRenderer:1",
			wantLocation: "http://192.168.1.20:8080/description.xml",
			wantUSN:      "uuid:renderer-1::urn:schemas-upnp-org:device:MediaRenderer:1",
		},
		{
			name:       "search request",
			data:       DefaultSearchMessage,
			wantKind:   KindSearch,
			wantTarget: SearchAll,
		},
		{
			name:       "no terminating blank line",
			data:       "HTTP/1.1 200 OK\r\nST: ssdp:all",
			wantKind:   KindResponse,
			wantStatus: 200,
			wantTarget: "ssdp:all",
		},
		{
			name:         "lowercase headers and bare LF",
			data:         "HTTP/1.1 200 OK\nst: upnp:rootdevice\nlocation: http://h/\n\n",
			wantKind:     KindResponse,
			wantStatus:   200,
			wantTarget:   "upnp:rootdevice",
			wantLocation: "http://h/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseResponse([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseResponse() error = %v", err)
			}
			if r.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", r.Kind, tt.wantKind)
			}
			if r.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %v, want %v", r.StatusCode, tt.wantStatus)
			}
			if r.Target != tt.wantTarget {
				t.Errorf("Target = %v, want %v", r.Target, tt.wantTarget)
			}
			if r.Location != tt.wantLocation {
				t.Errorf("Location = %v, want %v", r.Location, tt.wantLocation)
			}
			if r.USN != tt.wantUSN {
				t.Errorf("USN = %v, want %v", r.USN, tt.wantUSN)
			}
			if r.Seen != 1 {
				t.Errorf("Seen = %v, want 1", r.Seen)
			}
		})
	}
}

func TestParseResponse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", []byte{}, nil},
		{"not ssdp", []byte("GET / HTTP/1.1\r\n\r\n"), ErrNotSSDP},
		{"single word", []byte("hello\r\n"), ErrNotSSDP},
		{"bad status", []byte("HTTP/1.1 OK\r\n\r\n"), ErrNotSSDP},
		{"invalid utf8", []byte{0xff, 0xfe, 0xfd}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.data)
			if err == nil {
				t.Fatal("ParseResponse() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseResponse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseResponse_InvalidUTF8IsDecodeError(t *testing.T) {
	_, err := ParseResponse([]byte{'H', 0xff})
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("ParseResponse() error = %T, want *DecodeError", err)
	}
}

func TestResponse_Key(t *testing.T) {
	withUSN := &Response{USN: "uuid:a::upnp:rootdevice", Location: "http://x/", Target: "upnp:rootdevice"}
	if got := withUSN.Key(); got != "uuid:a::upnp:rootdevice" {
		t.Errorf("Key() = %v, want USN", got)
	}

	withoutUSN := &Response{Location: "http://x/", Target: "upnp:rootdevice"}
	if got := withoutUSN.Key(); got != "http://x/|upnp:rootdevice" {
		t.Errorf("Key() = %v, want location|target", got)
	}
}

func TestResponse_MaxAge(t *testing.T) {
	tests := []struct {
		cacheControl string
		want         time.Duration
		wantOK       bool
	}{
		{"max-age=1800", 30 * time.Minute, true},
		{"no-cache, max-age = 60", time.Minute, true},
		{"MAX-AGE=5", 5 * time.Second, true},
		{"max-age=abc", 0, false},
		{"max-age=-1", 0, false},
		{"no-cache", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.cacheControl, func(t *testing.T) {
			r := &Response{CacheControl: tt.cacheControl}
			got, ok := r.MaxAge()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("MaxAge() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestResponse_Header(t *testing.T) {
	r, err := ParseResponse([]byte(rootDeviceResponse))
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}

	if got := r.Header("server"); got != "Linux/3.14 UPnP/1.0 MiniUPnPd/2.1" {
		t.Errorf("Header(server) = %v", got)
	}
	if got := r.Header("missing"); got != "" {
		t.Errorf("Header(missing) = %v, want empty", got)
	}
	if _, ok := r.Headers["Ext"]; !ok {
		t.Error("empty EXT header not kept")
	}

	var empty Response
	if got := empty.Header("st"); got != "" {
		t.Errorf("Header() on empty response = %v, want empty", got)
	}
}

func TestResponse_String(t *testing.T) {
	r := &Response{
		Kind:     KindResponse,
		Target:   "upnp:rootdevice",
		Location: "http://192.168.1.1/desc.xml",
		USN:      "uuid:a",
	}

	expected := "response upnp:rootdevice at http://192.168.1.1/desc.xml (uuid:a)"
	if r.String() != expected {
		t.Errorf("Response.String() = %v, want %v", r.String(), expected)
	}

	if got := (&Response{Kind: KindNotify}).String(); got != "notify" {
		t.Errorf("Response.String() = %v, want notify", got)
	}
}
