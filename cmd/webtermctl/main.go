package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/GriffinCanCode/webterm/internal/client"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/webterm/internal/terminal"
)

const usage = `Usage: webtermctl [flags] <command> [args]

Commands:
  create [-cols N] [-rows N]    start a session and print its id
  list                          list sessions
  input [-n] <id> <text>...     send text (a newline is appended unless -n)
  resize <id> <cols> <rows>     resize a session's window
  kill <id>                     terminate and remove a session
  attach <id>                   print a session's output until it ends
  health                        show server health

Flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	client *client.Client
	format string
	out    io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("webtermctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	serverURL := fs.String("server", envOr("WEBTERM_URL", "http://localhost:8000"), "Server base URL")
	format := fs.String("o", "table", "Output format: table, json or yaml")
	timeout := fs.Duration("timeout", 10*time.Second, "Timeout of each control request")
	verbose := fs.Bool("v", false, "Log requests and retries")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	if _, ok := formatters[*format]; !ok {
		fmt.Fprintf(stderr, "unknown output format %q\n", *format)
		return 2
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, Development: true, OutputPaths: []string{"stderr"}})
	if err != nil {
		logger = logging.NewNop()
	}
	defer logger.Sync()

	tracer := tracing.New("webtermctl", logger.Logger)
	defer tracer.Close()

	command, rest := fs.Arg(0), fs.Args()[1:]
	span, ctx := tracer.StartSpan(ctx, "cli."+command)
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

	c := &cli{
		client: client.New(*serverURL, client.Options{Timeout: *timeout, Logger: logger.Logger}),
		format: *format,
		out:    stdout,
	}

	switch command {
	case "create":
		err = c.create(ctx, rest)
	case "list":
		err = c.list(ctx)
	case "input":
		err = c.input(ctx, rest)
	case "resize":
		err = c.resize(ctx, rest)
	case "kill":
		err = c.kill(ctx, rest)
	case "attach":
		err = c.attach(ctx, rest)
	case "health":
		err = c.health(ctx)
	default:
		err = usageError(fmt.Sprintf("unknown command %q", command))
	}

	if err == nil {
		return 0
	}
	span.SetError(err)
	fmt.Fprintf(stderr, "webtermctl: %v\n", err)
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}

type usageError string

func (e usageError) Error() string { return string(e) }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c *cli) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cols := fs.Int("cols", 80, "Initial columns")
	rows := fs.Int("rows", 24, "Initial rows")
	if err := fs.Parse(args); err != nil {
		return usageError("create: " + err.Error())
	}

	id, err := c.client.Create(ctx, *cols, *rows)
	if err != nil {
		return err
	}
	return c.print(map[string]string{"sessionId": id}, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, id)
		return err
	})
}

func (c *cli) list(ctx context.Context) error {
	sessions, err := c.client.List(ctx)
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []terminal.SessionInfo{}
	}
	return c.print(sessions, func(w io.Writer) error {
		return sessionTable(w, sessions)
	})
}

func (c *cli) input(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("input", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	noNewline := fs.Bool("n", false, "Do not append a newline")
	if err := fs.Parse(args); err != nil {
		return usageError("input: " + err.Error())
	}
	if fs.NArg() < 1 {
		return usageError("input: need a session id")
	}

	data := strings.Join(fs.Args()[1:], " ")
	if !*noNewline {
		data += "\n"
	}
	return c.client.Input(ctx, fs.Arg(0), data)
}

func (c *cli) resize(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return usageError("resize: need <id> <cols> <rows>")
	}
	cols, err := strconv.Atoi(args[1])
	if err != nil {
		return usageError("resize: cols must be a number")
	}
	rows, err := strconv.Atoi(args[2])
	if err != nil {
		return usageError("resize: rows must be a number")
	}
	return c.client.Resize(ctx, args[0], cols, rows)
}

func (c *cli) kill(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("kill: need a session id")
	}
	return c.client.Kill(ctx, args[0])
}

func (c *cli) attach(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("attach: need a session id")
	}
	err := c.client.Attach(ctx, args[0], func(ev terminal.Event) error {
		if ev.Type == terminal.EventOutput {
			_, err := io.WriteString(c.out, ev.Text)
			return err
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *cli) health(ctx context.Context) error {
	h, err := c.client.Health(ctx)
	if err != nil {
		return err
	}
	return c.print(h, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s  uptime=%s  sessions=%d  alive=%d\n",
			h.Status, time.Duration(h.UptimeSeconds)*time.Second, h.Sessions.Total, h.Sessions.Alive)
		return err
	})
}
