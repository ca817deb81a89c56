// Package logging provides structured logging for ssdpscan.
//
// This package wraps zap logger with convenience functions for the logging
// patterns used by the discovery client and the ssdp-scan command. Logging is
// silent unless a level is passed to Initialize or the SSDPSCAN_LOG_LEVEL
// environment variable is set, so library users see no output by default.
//
// # Log Levels
//
//   - Debug: datagram dumps, stale callbacks, backoff retries
//   - Info: session lifecycle (started, search sent, stopped)
//   - Warn: transient network conditions, rejected starts, undecodable datagrams
//   - Error: join failures, failed transports, send failures
//
// # Structured Logging
//
//	logging.Info("Search message sent",
//	    zap.String("session", id),
//	    zap.Int("length", len(payload)),
//	)
//
// # Specialized Logging
//
//	logger.Debug("Datagram received", logging.PayloadFields(logger, data)...)
//	logging.LogRawBytes("M-SEARCH payload", payload)
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Output goes to stderr so that discovered responses written to stdout can be
// piped cleanly.
package logging
