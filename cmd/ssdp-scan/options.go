package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/ssdpscan/internal/config"
	"github.com/muurk/ssdpscan/internal/discovery"
	"github.com/muurk/ssdpscan/internal/logging"
)

// Persistent flags
var (
	configPath string
	logLevel   string
	groupAddr  string
	groupPort  int
	ifaceNames []string
)

// Search flags shared by scan, listen and watch
var (
	searchTarget string
	searchMX     int
	userAgent    string
	messageFile  string
	timeoutSecs  int
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default is the user config directory)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default silent, or $"+logging.LogLevelEnvVar+")")
	flags.StringVar(&groupAddr, "group", discovery.DefaultGroupAddress, "Multicast group address")
	flags.IntVar(&groupPort, "port", discovery.DefaultPort, "Multicast group port")
	flags.StringArrayVar(&ifaceNames, "interface", nil, "Network interface to use (repeatable; default all multicast interfaces)")
}

// addSearchFlags registers the flags that shape the M-SEARCH.
func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&searchTarget, "st", discovery.SearchAll, "Search target (ST header)")
	cmd.Flags().IntVar(&searchMX, "mx", discovery.DefaultMX, "Maximum response delay in seconds (1-5)")
	cmd.Flags().StringVar(&userAgent, "user-agent", discovery.DefaultUserAgent, "User-Agent header")
	cmd.Flags().StringVar(&messageFile, "message-file", "", "Send the contents of this file instead of a generated M-SEARCH")
}

// addTimeoutFlag registers --timeout.
func addTimeoutFlag(cmd *cobra.Command) {
	cmd.Flags().IntVar(&timeoutSecs, "timeout", int(discovery.DefaultScanTimeout/time.Second), "How long to listen, in seconds")
}

// environment is what every discovery command needs after flags and the
// config file have been merged.
type environment struct {
	settings   *config.Settings
	interfaces []net.Interface
}

// setup loads the config file, applies flag overrides and initializes
// logging.
func setup(cmd *cobra.Command) (*environment, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	applyOverrides(cmd, settings)

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	if err := logging.Initialize(resolveLogLevel(cmd, settings)); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	ifaces, err := lookupInterfaces(settings.Listen.Interfaces)
	if err != nil {
		return nil, err
	}

	logging.Debug("Settings resolved",
		zap.String("target", settings.Search.Target),
		zap.Int("mx", settings.Search.MX),
		zap.Duration("timeout", settings.ListenTimeout()),
		zap.Strings("interfaces", settings.Listen.Interfaces),
	)

	return &environment{settings: settings, interfaces: ifaces}, nil
}

func loadSettings() (*config.Settings, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadDefault()
}

// applyOverrides copies every flag the user set into settings. Flags that
// were not given leave the config file values alone.
func applyOverrides(cmd *cobra.Command, s *config.Settings) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("log-level") {
		s.LogLevel = logLevel
	}
	if changed("group") {
		s.Listen.Group = groupAddr
	}
	if changed("port") {
		s.Listen.Port = groupPort
	}
	if changed("interface") {
		s.Listen.Interfaces = ifaceNames
	}
	if changed("st") {
		s.Search.Target = searchTarget
	}
	if changed("mx") {
		s.Search.MX = searchMX
	}
	if changed("user-agent") {
		s.Search.UserAgent = userAgent
	}
	if changed("timeout") {
		s.Listen.Timeout = timeoutSecs
	}
}

// resolveLogLevel prefers --log-level, then the environment, then the
// config file.
func resolveLogLevel(cmd *cobra.Command, s *config.Settings) string {
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		return logLevel
	}
	if env := os.Getenv(logging.LogLevelEnvVar); env != "" {
		return env
	}
	return s.LogLevel
}

func lookupInterfaces(names []string) ([]net.Interface, error) {
	ifaces := make([]net.Interface, 0, len(names))
	for _, name := range names {
		iface, err := net.InterfaceByName(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("unknown interface %q: %w", name, err)
		}
		ifaces = append(ifaces, *iface)
	}
	return ifaces, nil
}

// searchMessage returns the payload to send: the message file if given,
// otherwise the M-SEARCH described by the settings.
func searchMessage(s *config.Settings) (string, error) {
	if messageFile == "" {
		return s.SearchRequest().String(), nil
	}

	data, err := os.ReadFile(messageFile)
	if err != nil {
		return "", fmt.Errorf("failed to read message file: %w", err)
	}
	logging.LogRawBytes("Message file", data)

	text, err := discovery.DecodeText(data)
	if err != nil {
		return "", fmt.Errorf("message file %s: %w", messageFile, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("message file %s is empty", messageFile)
	}
	return text, nil
}

// clientOptions returns the discovery options shared by every command.
func (e *environment) clientOptions() []discovery.Option {
	address, port := e.settings.GroupAddress()
	return []discovery.Option{
		discovery.WithLogger(logging.GetLogger()),
		discovery.WithGroup(address, port),
		discovery.WithInterfaces(e.interfaces),
	}
}

func (e *environment) groupString() string {
	address, port := e.settings.GroupAddress()
	return net.JoinHostPort(address, strconv.Itoa(port))
}
