package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/ssdpscan/internal/discovery"
	"github.com/muurk/ssdpscan/internal/logging"
	"github.com/muurk/ssdpscan/internal/transport"
	"github.com/muurk/ssdpscan/internal/tui"
	"github.com/muurk/ssdpscan/internal/ui"
)

var outputFormat string

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(watchCmd)

	addSearchFlags(scanCmd)
	addTimeoutFlag(scanCmd)
	scanCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format (table, json, raw)")

	addSearchFlags(listenCmd)

	addSearchFlags(watchCmd)
	addTimeoutFlag(watchCmd)
}

// scanCmd runs one timed discovery session
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the network for SSDP devices",
	Long: `Send one M-SEARCH and collect responses until the timeout elapses.

Responses are deduplicated by USN (or by LOCATION and ST when a device sends
no USN) and printed when the scan ends. NOTIFY advertisements heard during
the scan are included.`,
	Example: `  # Find everything (default 5 second scan)
  ssdp-scan scan

  # Only root devices, waiting up to 10 seconds
  ssdp-scan scan --st upnp:rootdevice --timeout 10

  # Machine-readable output
  ssdp-scan scan --format json

  # Print every datagram as it arrives
  ssdp-scan scan --format raw`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	switch outputFormat {
	case "table", "json", "raw":
	default:
		return fmt.Errorf("unknown output format %q (expected table, json or raw)", outputFormat)
	}

	env, err := setup(cmd)
	if err != nil {
		return err
	}
	message, err := searchMessage(env.settings)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeout := env.settings.ListenTimeout()

	if outputFormat == "raw" {
		return runSession(ctx, env, message, timeout)
	}

	scanner := discovery.NewScanner(env.clientOptions()...)
	scanner.Timeout = timeout
	scanner.Message = message

	printer := ui.NewPrinter(os.Stdout)
	if outputFormat == "table" {
		printer.Header(ui.NewHeader("SSDP Scan", cmd.CommandPath(),
			ui.Param{Key: "Group", Value: env.groupString()},
			ui.Param{Key: "Target", Value: env.settings.Search.Target},
			ui.Param{Key: "Timeout", Value: timeout.String()},
		))
	}

	start := time.Now()
	responses, err := scanner.Scan(ctx)
	interrupted := errors.Is(err, context.Canceled)
	if err != nil && !interrupted {
		if outputFormat == "table" {
			printer.Result(ui.NewFailureResult("Scan failed", err, scanTroubleshooting(err)))
		}
		return err
	}

	if outputFormat == "json" {
		return printJSON(responses)
	}

	if len(responses) == 0 {
		printer.Result(ui.NewWarningResult("No responders", ui.DiscoveryTroubleshooting,
			ui.Param{Key: "Duration", Value: time.Since(start).Round(time.Millisecond).String()},
		))
		return nil
	}

	printer.Println(ui.RenderResponses(responses, printer.Width()))

	title := "Scan complete"
	if interrupted {
		title = "Scan interrupted"
	}
	printer.Result(ui.NewSuccessResult(title,
		ui.Param{Key: "Responders", Value: strconv.Itoa(len(responses))},
		ui.Param{Key: "Duration", Value: time.Since(start).Round(time.Millisecond).String()},
	))

	return nil
}

func scanTroubleshooting(err error) []string {
	var joinErr *transport.GroupJoinError
	if errors.As(err, &joinErr) {
		return []string{
			"Use an IPv4 multicast group address (224.0.0.0/4) with --group",
			"Use a port between 1 and 65535 with --port",
		}
	}
	return ui.DiscoveryTroubleshooting
}

// jsonResponse is the --format json representation of a responder
type jsonResponse struct {
	Kind       string              `json:"kind"`
	StatusCode int                 `json:"status_code,omitempty"`
	Target     string              `json:"target,omitempty"`
	USN        string              `json:"usn,omitempty"`
	Location   string              `json:"location,omitempty"`
	Server     string              `json:"server,omitempty"`
	NTS        string              `json:"nts,omitempty"`
	MaxAge     int                 `json:"max_age,omitempty"`
	Seen       int                 `json:"seen"`
	ReceivedAt time.Time           `json:"received_at"`
	Headers    map[string][]string `json:"headers"`
}

func printJSON(responses []*discovery.Response) error {
	out := make([]jsonResponse, 0, len(responses))
	for _, r := range responses {
		jr := jsonResponse{
			Kind:       r.Kind.String(),
			StatusCode: r.StatusCode,
			Target:     r.Target,
			USN:        r.USN,
			Location:   r.Location,
			Server:     r.Server,
			NTS:        r.NTS,
			Seen:       r.Seen,
			ReceivedAt: r.ReceivedAt,
			Headers:    r.Headers,
		}
		if maxAge, ok := r.MaxAge(); ok {
			jr.MaxAge = int(maxAge / time.Second)
		}
		out = append(out, jr)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// listenCmd runs an untimed session
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Search once and print every datagram until interrupted",
	Long: `Send one M-SEARCH and print every datagram received on the group until
Ctrl+C is pressed. Each datagram is printed as text on its own line;
datagrams that are not valid UTF-8 are dropped.`,
	Example: `  # Listen for responses and advertisements
  ssdp-scan listen

  # Send a hand-written request
  ssdp-scan listen --message-file search.txt`,
	RunE: runListen,
}

func runListen(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	env, err := setup(cmd)
	if err != nil {
		return err
	}
	message, err := searchMessage(env.settings)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runSession(ctx, env, message, 0)
}

// runSession drives a client with the default handler, which prints each
// datagram to stdout. A zero timeout listens until ctx is done.
func runSession(ctx context.Context, env *environment, message string, timeout time.Duration) error {
	finished := make(chan error, 1)
	finish := func(err error) {
		select {
		case finished <- err:
		default:
		}
	}

	opts := append(env.clientOptions(), discovery.WithEventHandler(func(ev discovery.Event) {
		switch {
		case ev.Kind == discovery.EventStopped:
			finish(nil)
		case ev.Kind == discovery.EventJoinFailed:
			finish(ev.Err)
		case ev.Kind == discovery.EventStateChanged && ev.State == transport.StateFailed:
			finish(ev.Err)
		case ev.Kind == discovery.EventStateChanged && ev.State == transport.StateWaiting:
			fmt.Fprintf(os.Stderr, "Waiting for network: %v\n", ev.Err)
		case ev.Kind == discovery.EventSendFailed:
			fmt.Fprintf(os.Stderr, "Could not send search: %v\n", ev.Err)
		}
	}))

	client := discovery.NewClient(opts...)
	defer func() {
		client.Close()
		<-client.Done()
	}()

	client.SetSearchMessage(message)
	if timeout > 0 {
		client.StartListeningFor(timeout)
	} else {
		client.StartListening()
	}

	select {
	case err := <-finished:
		return err
	case <-ctx.Done():
		logging.Debug("Interrupted, stopping session")
		client.StopListening()
		return nil
	}
}

// watchCmd runs the interactive screen
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive discovery screen",
	Long: `Show responders live as they answer.

Keys: r rescans (restarting the session), s stops listening, q quits.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	env, err := setup(cmd)
	if err != nil {
		return err
	}
	message, err := searchMessage(env.settings)
	if err != nil {
		return err
	}

	return tui.RunWatch(tui.WatchConfig{
		Timeout:       env.settings.ListenTimeout(),
		Message:       message,
		Group:         env.groupString(),
		ClientOptions: env.clientOptions(),
	})
}
