package eda

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/k0kubun/pp"
)

var (
	success = color.New(color.FgGreen, color.Bold).SprintFunc()
	warning = color.New(color.FgYellow, color.Bold).SprintFunc()
	failure = color.New(color.FgRed, color.Bold).SprintFunc()
	heading = color.New(color.FgCyan, color.Bold).SprintFunc()
	muted   = color.New(color.Faint).SprintFunc()
)

// debugDump pretty-prints v when --debug is on.
func debugDump(out io.Writer, label string, v any) {
	if !DebugEnabled() {
		return
	}
	fmt.Fprintln(out, muted(label+":"))
	_, _ = pp.Fprintln(out, v)
}
