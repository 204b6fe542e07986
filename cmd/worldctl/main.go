package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/pscheid92/worldsync/internal/client"
	"github.com/pscheid92/worldsync/internal/domain"
	"github.com/pscheid92/worldsync/internal/platform/logging"
	"github.com/pscheid92/worldsync/internal/platform/version"
	"github.com/pscheid92/worldsync/internal/protocol"
)

const usage = `World control.

Values in <key=value> pairs are parsed as JSON when they can be and taken as
strings otherwise: x=1 is a number, name=felix is a string, tags=["a"] a list.

Usage:
    worldctl world [--url=<url>]
    worldctl get [--url=<url>] <entity>
    worldctl update [--url=<url>] <entity> <pair>...
    worldctl replace [--url=<url>] <entity> <pair>...
    worldctl clear [--url=<url>]
    worldctl send [--url=<url>] <entity> <pair>...
    worldctl watch [--url=<url>] [--count=<count>]
    worldctl -h | --help
    worldctl --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --url=<url>        Server base URL [default: http://localhost:8080].
    --count=<count>    Print this many messages then exit.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version.Get().String())
	if err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	logger := setupLogging(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, client.WithUserAgent(version.UserAgent("worldctl"))); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// setupLogging installs a warn-level logger on w as the slog default, so the
// client's reconnect warnings reach stderr and stdout stays machine-readable.
func setupLogging(w io.Writer) *slog.Logger {
	logger := logging.NewLogger(w, "warn", "text")
	slog.SetDefault(logger)
	return logger
}

func run(ctx context.Context, opts docopt.Opts, out io.Writer, clientOpts ...client.Option) error {
	url, _ := opts.String("--url")
	c, err := client.New(url, clientOpts...)
	if err != nil {
		return err
	}

	entity, _ := opts.String("<entity>")

	switch {
	case flag(opts, "world"):
		w, err := c.World(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, w)

	case flag(opts, "get"):
		props, err := c.Get(ctx, entity)
		if err != nil {
			return err
		}
		return printJSON(out, props)

	case flag(opts, "update"):
		props, err := pairs(opts)
		if err != nil {
			return err
		}
		resolved, err := c.Update(ctx, entity, props)
		if err != nil {
			return err
		}
		return printJSON(out, resolved)

	case flag(opts, "replace"):
		props, err := pairs(opts)
		if err != nil {
			return err
		}
		resolved, err := c.Replace(ctx, entity, props)
		if err != nil {
			return err
		}
		return printJSON(out, resolved)

	case flag(opts, "clear"):
		w, err := c.Clear(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, w)

	case flag(opts, "send"):
		props, err := pairs(opts)
		if err != nil {
			return err
		}
		return c.Send(ctx, entity, props)

	case flag(opts, "watch"):
		return watch(ctx, c, opts, out)
	}

	return fmt.Errorf("no command given")
}

func watch(ctx context.Context, c *client.Client, opts docopt.Opts, out io.Writer) error {
	limit := 0
	if opts["--count"] != nil {
		n, err := opts.Int("--count")
		if err != nil || n < 1 {
			return fmt.Errorf("--count must be a positive integer")
		}
		limit = n
	}

	seen := 0
	return c.Watch(ctx, func(m client.Message) error {
		if _, err := fmt.Fprintln(out, string(m.Raw)); err != nil {
			return err
		}
		seen++
		if limit > 0 && seen >= limit {
			return client.ErrStopWatch
		}
		return nil
	})
}

func flag(opts docopt.Opts, name string) bool {
	v, _ := opts.Bool(name)
	return v
}

func pairs(opts docopt.Opts) (domain.Properties, error) {
	raw, _ := opts["<pair>"].([]string)
	return parsePairs(raw)
}

// parsePairs turns key=value arguments into properties. A later key wins.
func parsePairs(args []string) (domain.Properties, error) {
	props := make(domain.Properties, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}

		var decoded any
		if err := protocol.Unmarshal([]byte(value), &decoded); err != nil {
			decoded = value
		}
		props[key] = decoded
	}
	return props, nil
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
