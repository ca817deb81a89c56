package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/ssdpscan/internal/discovery"
)

// CurrentVersion is the settings schema version written by Save.
const CurrentVersion = 1

// Settings represents the entire user configuration file.
// Discovered devices are never stored here.
type Settings struct {
	Version  int            `yaml:"version"`
	Search   SearchSettings `yaml:"search"`
	Listen   ListenSettings `yaml:"listen"`
	LogLevel string         `yaml:"log_level,omitempty"` // debug, info, warn or error; empty is silent
}

// SearchSettings describes the M-SEARCH sent by scan, watch and listen.
type SearchSettings struct {
	Target    string `yaml:"target"`     // ST header (e.g., "ssdp:all")
	MX        int    `yaml:"mx"`         // Maximum response delay in seconds (1-5)
	UserAgent string `yaml:"user_agent"` // User-Agent header
}

// ListenSettings controls where and how long to listen.
type ListenSettings struct {
	Timeout    int      `yaml:"timeout"`              // Scan duration in seconds
	Interfaces []string `yaml:"interfaces,omitempty"` // Interface names; empty means all multicast interfaces
	Group      string   `yaml:"group,omitempty"`      // Multicast group; empty means 239.255.255.250
	Port       int      `yaml:"port,omitempty"`       // Group port; 0 means 1900
}

// NewSettings creates Settings with default values.
func NewSettings() *Settings {
	return &Settings{
		Version: CurrentVersion,
		Search: SearchSettings{
			Target:    discovery.SearchAll,
			MX:        discovery.DefaultMX,
			UserAgent: discovery.DefaultUserAgent,
		},
		Listen: ListenSettings{
			Timeout: int(discovery.DefaultScanTimeout / time.Second),
		},
	}
}

// applyDefaults fills fields left empty in a loaded file.
func (s *Settings) applyDefaults() {
	defaults := NewSettings()

	if s.Search.Target == "" {
		s.Search.Target = defaults.Search.Target
	}
	if s.Search.MX == 0 {
		s.Search.MX = defaults.Search.MX
	}
	if s.Search.UserAgent == "" {
		s.Search.UserAgent = defaults.Search.UserAgent
	}
	if s.Listen.Timeout == 0 {
		s.Listen.Timeout = defaults.Listen.Timeout
	}
}

// Validate checks that the settings can drive a discovery session.
func (s *Settings) Validate() error {
	if s.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", s.Version, CurrentVersion)
	}

	if err := s.SearchRequest().Validate(); err != nil {
		return fmt.Errorf("invalid search settings: %w", err)
	}

	if s.Listen.Timeout <= 0 {
		return fmt.Errorf("listen timeout must be positive, got %d", s.Listen.Timeout)
	}
	if s.Listen.Port < 0 || s.Listen.Port > 65535 {
		return fmt.Errorf("listen port %d out of range", s.Listen.Port)
	}

	switch strings.ToLower(strings.TrimSpace(s.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", s.LogLevel)
	}

	return nil
}

// SearchRequest returns the M-SEARCH described by the settings. HOST follows
// the configured group when it is not the default.
func (s *Settings) SearchRequest() discovery.SearchRequest {
	req := discovery.SearchRequest{
		Target:    s.Search.Target,
		MX:        s.Search.MX,
		UserAgent: s.Search.UserAgent,
	}
	if s.Listen.Group != "" || s.Listen.Port != 0 {
		address, port := s.GroupAddress()
		req.Host = net.JoinHostPort(address, strconv.Itoa(port))
	}
	return req
}

// ListenTimeout returns the scan duration.
func (s *Settings) ListenTimeout() time.Duration {
	return time.Duration(s.Listen.Timeout) * time.Second
}

// GroupAddress returns the multicast group and port, falling back to the
// SSDP defaults.
func (s *Settings) GroupAddress() (string, int) {
	address, port := s.Listen.Group, s.Listen.Port
	if address == "" {
		address = discovery.DefaultGroupAddress
	}
	if port == 0 {
		port = discovery.DefaultPort
	}
	return address, port
}
