package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"

	"github.com/GriffinCanCode/webterm/internal/terminal"
)

// formatters render a command result. "table" is command specific and has
// no generic formatter.
var formatters = map[string]func(io.Writer, any) error{
	"table": nil,
	"json":  writeJSON,
	"yaml":  writeYAML,
}

func (c *cli) print(v any, table func(io.Writer) error) error {
	if f := formatters[c.format]; f != nil {
		return f(c.out, v)
	}
	return table(c.out)
}

func writeJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func writeYAML(w io.Writer, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func sessionTable(w io.Writer, sessions []terminal.SessionInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tPID\tSIZE\tVIEWERS\tAGE\tIDLE")
	now := time.Now()
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%dx%d\t%d\t%s\t%s\n",
			s.ID, s.State, s.PID, s.Cols, s.Rows, s.Viewers,
			(time.Duration(s.AgeSeconds) * time.Second).String(),
			now.Sub(s.LastActivity).Truncate(time.Second).String(),
		)
	}
	return tw.Flush()
}
