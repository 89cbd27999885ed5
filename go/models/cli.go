package models

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// PrintFlags writes a usage listing for flags to w, wrapping each usage
// string to fit an 80 column terminal.
func PrintFlags(w io.Writer, flags []*flag.Flag) {
	wname := 0
	wdef := 0
	for _, f := range flags {
		if len(f.Name) > wname {
			wname = len(f.Name)
		}
		if len(f.DefValue) > wdef {
			wdef = len(f.DefValue)
		}
	}
	wdesc := 80 - wname - wdef - 7
	if wdesc < 20 {
		wdesc = 20
	}

	namefmt := fmt.Sprintf("%%-%ds", wname)
	deffmt := fmt.Sprintf("%%-%ds ", wdef+2)
	lpad := strings.Repeat(" ", wname+wdef+7)
	for _, f := range flags {
		fmt.Fprintf(w, "  -"+namefmt, f.Name)
		if f.DefValue != "" && f.DefValue != "[]" && f.DefValue != "false" {
			fmt.Fprintf(w, " "+deffmt, "("+f.DefValue+")")
		} else {
			fmt.Fprintf(w, " "+deffmt, "  ")
		}
		for i, line := range wrap(f.Usage, wdesc) {
			if i > 0 {
				fmt.Fprint(w, lpad)
			}
			fmt.Fprintln(w, line)
		}
	}
}

// wrap splits s into lines of at most width bytes, breaking on newlines
// and spaces where possible.
func wrap(s string, width int) []string {
	var lines []string
	for len(s) > width {
		l := width
		skip := 0
		if n := strings.LastIndexAny(s[:l], " \n"); n > 0 {
			l = n
			skip = 1
		}
		lines = append(lines, s[:l])
		s = s[l+skip:]
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		return append(append(lines, s[:nl]), wrap(s[nl+1:], width)...)
	}
	return append(lines, s)
}
