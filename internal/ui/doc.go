// Package ui renders the styled, non-interactive output of ssdp-scan.
//
// Components follow a "render once and print" pattern:
//
//   - Header: command banner showing the operation and its parameters
//   - RenderResponses: aligned table of discovered responders
//   - Result: success, warning or failure box with details and tips
//
// A Printer writes them at the terminal width reported by golang.org/x/term.
//
// Example:
//
//	p := ui.NewPrinter(os.Stdout)
//	p.Header(ui.NewHeader("SSDP Scan", "ssdp-scan scan",
//	    ui.Param{Key: "Target", Value: "ssdp:all"},
//	))
//	p.Println(ui.RenderResponses(responses, p.Width()))
//	p.Result(ui.NewSuccessResult("Scan complete",
//	    ui.Param{Key: "Responders", Value: "4"},
//	))
//
// Logging is controlled by the SSDPSCAN_LOG_LEVEL environment variable and
// is silent by default so it does not interleave with this output.
package ui
