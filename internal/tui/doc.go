// Package tui implements the interactive "ssdp-scan watch" screen.
//
// The screen is a Bubble Tea program. It starts a timed discovery session on
// launch and lists responders as they answer. Pressing r forces a new scan,
// s stops the current one and q quits.
//
// Client events and new responders are forwarded into the program with
// tea.Program.Send, so the model never touches the client's state directly.
package tui
