// seaguardctl is the operator command line for a SeaGuard gateway: list
// boats, inspect telemetry, send control commands and follow their
// acknowledgment, and watch how fresh a boat's data is.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"seaguard-gateway/internal/client"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	api     string
	timeout time.Duration
	poll    time.Duration
	limit   int
	count   int
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("seaguardctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.api, "api", envOr("SEAGUARD_API", "http://localhost:3000"), "gateway base URL")
	flagSet.DurationVar(&opts.timeout, "timeout", 10*time.Second, "how long send waits for the acknowledgment")
	flagSet.DurationVar(&opts.poll, "poll", 2*time.Second, "poll interval of send and watch")
	flagSet.IntVar(&opts.limit, "limit", 0, "history entries per stream (0: gateway maximum)")
	flagSet.IntVar(&opts.count, "count", 0, "watch: stop after this many polls (0: until interrupted)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderr, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stderr, flagSet)
		return nil
	}
	if opts.poll <= 0 {
		return fmt.Errorf("--poll must be positive")
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return fmt.Errorf("missing command")
	}

	c := client.NewAPIClient(opts.api, 5*time.Second)
	cmd, cmdArgs := rest[0], rest[1:]

	switch cmd {
	case "boats":
		return listBoats(ctx, c, stdout, opts)
	case "state":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: seaguardctl state <boat>")
		}
		st, err := c.State(ctx, cmdArgs[0])
		if err != nil {
			return err
		}
		if at, ok := client.TelemetryTime(st); ok {
			ms := at.UnixMilli()
			fmt.Fprintf(stdout, "telemetry %s\n", formatSeen(&ms, time.Now()))
		} else {
			fmt.Fprintln(stdout, "no telemetry yet")
		}
		return printJSON(stdout, st)
	case "history":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: seaguardctl history <boat>")
		}
		h, err := c.History(ctx, cmdArgs[0], opts.limit, true, true)
		if err != nil {
			return err
		}
		return printJSON(stdout, h)
	case "send":
		if len(cmdArgs) < 2 || len(cmdArgs) > 3 {
			return fmt.Errorf("usage: seaguardctl send <boat> <action> [payload]")
		}
		var payload any
		if len(cmdArgs) == 3 {
			payload = parsePayload(cmdArgs[2])
		}
		return send(ctx, c, stdout, opts, cmdArgs[0], cmdArgs[1], payload)
	case "watch":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: seaguardctl watch <boat>")
		}
		return watch(ctx, c, stdout, opts, cmdArgs[0])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprint(w, `seaguardctl talks to a SeaGuard gateway.

Usage:
  seaguardctl [flags] boats
  seaguardctl [flags] state <boat>
  seaguardctl [flags] history <boat>
  seaguardctl [flags] send <boat> <forward|back|left|right|stop> [payload]
  seaguardctl [flags] watch <boat>

A payload that parses as JSON is sent as JSON, anything else as a string.
send waits for the boat's acknowledgment until --timeout.
watch prints online, stale (no telemetry for more than 3 polls) or offline.

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func parsePayload(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatSeen(lastSeen *int64, now time.Time) string {
	if lastSeen == nil {
		return "never"
	}
	age := now.Sub(time.UnixMilli(*lastSeen)).Truncate(100 * time.Millisecond)
	return age.String() + " ago"
}

func listBoats(ctx context.Context, c *client.APIClient, w io.Writer, opts options) error {
	boats, err := c.Boats(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BOAT\tNAME\tSTATE\tLAST SEEN")
	for _, b := range boats {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.BoatID, b.Name, client.ClassifyBoat(b, now, opts.poll), formatSeen(b.LastSeen, now))
	}
	return tw.Flush()
}

// maxRateLimitRetries bounds how often send retries a command rejected by
// the gateway cooldown.
const maxRateLimitRetries = 3

func send(ctx context.Context, c *client.APIClient, w io.Writer, opts options, boatID, action string, payload any) error {
	var cmdID string
	var err error
	for attempt := 0; ; attempt++ {
		cmdID, err = c.Send(ctx, boatID, action, payload)
		if err == nil || !client.IsRateLimited(err) || attempt == maxRateLimitRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(150 * time.Millisecond):
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "sent %s to %s, cmdId %s\n", action, boatID, cmdID)

	waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	poll := opts.poll
	if poll > opts.timeout/4 {
		poll = max(opts.timeout/4, 10*time.Millisecond)
	}
	st, err := c.WaitAck(waitCtx, boatID, cmdID, poll)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("no acknowledgment within %s (command %s still %s)", opts.timeout, cmdID, st.Status)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "acknowledged: %s\n", st.Status)
	if err := printJSON(w, st.Fields); err != nil {
		return err
	}
	if st.Status == "fail" {
		return fmt.Errorf("boat rejected command %s", cmdID)
	}
	return nil
}

func watch(ctx context.Context, c *client.APIClient, w io.Writer, opts options, boatID string) error {
	ticker := time.NewTicker(opts.poll)
	defer ticker.Stop()

	for polls := 1; ; polls++ {
		now := time.Now()
		b, known, err := c.Boat(ctx, boatID)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			fmt.Fprintf(w, "%s  %s  unreachable: %v\n", now.Format(time.TimeOnly), boatID, err)
		case !known:
			fmt.Fprintf(w, "%s  %s  %s  unknown boat\n", now.Format(time.TimeOnly), boatID, client.FreshOffline)
		default:
			fmt.Fprintf(w, "%s  %s  %s  last seen %s\n", now.Format(time.TimeOnly), boatID,
				client.ClassifyBoat(b, now, opts.poll), formatSeen(b.LastSeen, now))
		}

		if opts.count > 0 && polls >= opts.count {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
