package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/encodeous/dvr/state"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// ErrQuit is returned by RunConsole when the operator asked to exit
var ErrQuit = errors.New("console exited")

const consoleHelp = `commands:
  show ip route        print the routing table (alias: sh ip route)
  show ip neigh        print the neighbour table (alias: sh ip neigh)
  ping <id>            send echo requests to router <id>
  traceroute <id>      print the path to router <id>
  clear                clear the screen
  help                 print this message
  quit | exit          stop the router
`

var (
	consoleOk   = color.New(color.FgGreen)
	consoleBad  = color.New(color.FgRed)
	consoleHead = color.New(color.FgHiBlack)
)

// RunConsole reads commands from in, one per line, and writes their output to out. Each command
// runs to completion before the next one is read. RunConsole returns nil when in is exhausted or
// ctx is done, and ErrQuit on quit.
func (r *Router) RunConsole(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, state.ConsolePrompt)
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}
		if err := r.execute(ctx, strings.Fields(line), out); err != nil {
			return err
		}
	}
}

func (r *Router) execute(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return nil
	}
	switch args[0] {
	case "help", "?":
		fmt.Fprint(out, consoleHelp)
	case "quit", "exit":
		return ErrQuit
	case "clear":
		fmt.Fprint(out, "\033[H\033[2J")
	case "show", "sh":
		switch strings.Join(args[1:], " ") {
		case "ip route":
			r.showRoutes(out)
		case "ip neigh":
			r.showNeighbours(out)
		default:
			fmt.Fprintln(out, "usage: show ip route | show ip neigh")
		}
	case "ping":
		if id, ok := parseRouterId(args, out); ok {
			r.consolePing(ctx, id, out)
		}
	case "traceroute":
		if id, ok := parseRouterId(args, out); ok {
			r.consoleTraceroute(ctx, id, out)
		}
	default:
		fmt.Fprintf(out, "unknown command %q, type help for a list of commands\n", args[0])
	}
	return nil
}

func parseRouterId(args []string, out io.Writer) (state.RouterId, bool) {
	if len(args) != 2 {
		fmt.Fprintf(out, "usage: %s <id>\n", args[0])
		return 0, false
	}
	id, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		fmt.Fprintf(out, "invalid router id %q\n", args[1])
		return 0, false
	}
	return state.RouterId(id), true
}

func newConsoleTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	return table
}

func (r *Router) showRoutes(out io.Writer) {
	routes := r.Routes()
	last := "never"
	if t := r.LastChange(); !t.IsZero() {
		last = humanize.Time(t)
	}
	consoleHead.Fprintf(out, "routing table of %s, %d entries, last change %s\n", r.Id, len(routes), last)
	now := r.Table.Clock()
	table := newConsoleTable(out, "DEST", "NEXT HOP", "METRIC", "AGE")
	for _, route := range routes {
		table.Append([]string{
			route.Dest.String(),
			route.Nh.String(),
			strconv.Itoa(int(route.Metric)),
			now.Sub(route.Updated).Truncate(time.Second).String(),
		})
	}
	table.Render()
}

func (r *Router) showNeighbours(out io.Writer) {
	neighs := r.NeighbourList()
	consoleHead.Fprintf(out, "neighbours of %s, %d entries\n", r.Id, len(neighs))
	table := newConsoleTable(out, "ID", "LOCATOR", "REACHABLE")
	for _, n := range neighs {
		reachable := "no"
		if route, ok := r.Lookup(n.Id); ok && route.Nh.Id == n.Id {
			reachable = "yes"
		}
		table.Append([]string{n.Id.String(), n.Addr.String(), reachable})
	}
	table.Render()
}

func (r *Router) consolePing(ctx context.Context, dst state.RouterId, out io.Writer) {
	const count = 4
	received := 0
	for i := range count {
		if i != 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
		res, err := r.Ping(ctx, dst)
		switch {
		case errors.Is(err, ErrNoRoute):
			consoleBad.Fprintf(out, "%s is unreachable: no route\n", dst)
			return
		case errors.Is(err, ErrTimeout):
			consoleBad.Fprintf(out, "request timed out\n")
		case err != nil:
			consoleBad.Fprintf(out, "ping failed: %v\n", err)
			return
		default:
			received++
			consoleOk.Fprintf(out, "reply from %s: seq=%d time=%s\n", res.From, res.Seq, res.RTT)
		}
	}
	fmt.Fprintf(out, "%d packets transmitted, %d received\n", count, received)
}

func (r *Router) consoleTraceroute(ctx context.Context, dst state.RouterId, out io.Writer) {
	fmt.Fprintf(out, "traceroute to %s, %d hops max\n", dst, state.TraceMaxHops)
	hops, err := r.Traceroute(ctx, dst, state.TraceMaxHops, func(hop Hop) {
		if hop.Err != nil {
			fmt.Fprintf(out, "%2d  *\n", hop.TTL)
			return
		}
		fmt.Fprintf(out, "%2d  %s  %s\n", hop.TTL, hop.From, hop.RTT)
	})
	if errors.Is(err, ErrNoRoute) {
		consoleBad.Fprintf(out, "%s is unreachable: no route\n", dst)
		return
	}
	if err != nil {
		consoleBad.Fprintf(out, "traceroute failed: %v\n", err)
		return
	}
	if len(hops) == 0 || !hops[len(hops)-1].Arrived {
		consoleBad.Fprintf(out, "%s not reached\n", dst)
	}
}
