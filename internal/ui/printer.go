package ui

import (
	"fmt"
	"io"
	"os"
)

// Printer writes UI components to a writer at a fixed width.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a Printer for w. If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the width components are rendered at
func (p *Printer) Width() int {
	return p.width
}

// SetWidth overrides the detected terminal width
func (p *Printer) SetWidth(width int) *Printer {
	p.width = clampWidth(width)
	return p
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// Header prints a command header
func (p *Printer) Header(h *Header) {
	p.Println(h.SetWidth(p.width).Render())
}

// Result prints a result box
func (p *Printer) Result(r *Result) {
	p.Println(r.SetWidth(p.width).Render())
}
