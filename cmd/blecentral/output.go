package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/srg/blecentral/internal/device"
	"golang.org/x/term"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printer writes command output, colouring it only on a terminal.
type printer struct {
	w      io.Writer
	header *color.Color
	addr   *color.Color
	value  *color.Color
	warn   *color.Color
}

func newPrinter(w io.Writer) *printer {
	p := &printer{
		w:      w,
		header: color.New(color.Bold),
		addr:   color.New(color.FgCyan),
		value:  color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
	}
	if !isTerminal(w) {
		for _, c := range []*color.Color{p.header, p.addr, p.value, p.warn} {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) devicesTable(devices []device.Device) error {
	if len(devices) == 0 {
		fmt.Fprintln(p.w, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, p.header.Sprint("NAME\tADDRESS"))
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, dev := range devices {
		name := dev.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\n", name, p.addr.Sprint(dev.Address))
	}
	return w.Flush()
}

func (p *printer) devicesJSON(devices []device.Device) error {
	type jsonDevice struct {
		Address string `json:"address"`
		Name    string `json:"name"`
	}
	out := make([]jsonDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, jsonDevice{Address: d.Address, Name: d.Name})
	}
	encoder := json.NewEncoder(p.w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// notification prints one value, hex encoded or raw.
func (p *printer) notification(charUUID string, data []byte, asHex bool, withPrefix bool) {
	var prefix string
	if withPrefix {
		prefix = p.addr.Sprint(charUUID) + ": "
	}
	if asHex {
		fmt.Fprintf(p.w, "%s%s\n", prefix, p.value.Sprint(hex.EncodeToString(data)))
		return
	}
	fmt.Fprint(p.w, prefix)
	_, _ = p.w.Write(data)
	fmt.Fprintln(p.w)
}

func (p *printer) warning(format string, args ...any) {
	fmt.Fprintln(p.w, p.warn.Sprintf(format, args...))
}
