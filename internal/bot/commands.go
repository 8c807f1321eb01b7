package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ontime/internal/alarms"
	"ontime/internal/geo"
	"ontime/internal/praytimes"
	"ontime/internal/reminder"
	"ontime/internal/travel"
)

// Deps are the service ports the command surface drives.
type Deps struct {
	Tracker  *travel.Tracker
	Engine   *reminder.Engine
	Source   praytimes.Source
	Sched    alarms.Scheduler
	Channels *reminder.Channels
}

// Commands builds the full owner command set. Mutations flow through the
// tracker, whose change hook triggers the reconcile pass; handlers never call
// the scheduler directly.
func Commands(d Deps) []Command {
	return []Command{
		{
			Name:        "status",
			Description: "travel state and pending reminders",
			Usage:       "/status",
			Access:      AccessOwnerOnly,
			Handle:      d.status,
		},
		{
			Name:        "times",
			Description: "today's prayer timetable",
			Usage:       "/times",
			Access:      AccessOwnerOnly,
			Handle:      d.times,
		},
		{
			Name:        "travel",
			Description: "show or override travel mode",
			Usage:       "/travel [auto|on|off]",
			Access:      AccessOwnerOnly,
			Handle:      d.travel,
		},
		{
			Name:        "override",
			Description: "force travel mode on or off",
			Usage:       "/override <auto|on|off>",
			Access:      AccessOwnerOnly,
			Handle:      d.travel,
		},
		{
			Name:        "confirm",
			Description: "confirm the detected travel",
			Usage:       "/confirm",
			Access:      AccessOwnerOnly,
			Handle: func(ctx context.Context, req *Request) (string, error) {
				d.Tracker.Confirm()
				return "travel confirmed: " + d.statusLine(), nil
			},
		},
		{
			Name:        "dismiss",
			Description: "dismiss the travel suggestion for this session",
			Usage:       "/dismiss",
			Access:      AccessOwnerOnly,
			Handle: func(ctx context.Context, req *Request) (string, error) {
				d.Tracker.Dismiss()
				return "travel suggestion dismissed", nil
			},
		},
		{
			Name:        "location",
			Description: "report the current location",
			Usage:       "/location <lat> <lon>",
			Access:      AccessOwnerOnly,
			Handle:      d.location,
		},
		{
			Name:        "sethome",
			Description: "set the home base",
			Usage:       "/sethome <lat> <lon> [name]",
			Access:      AccessOwnerOnly,
			Handle:      d.setHome,
		},
		{
			Name:        "clearhome",
			Description: "clear the home base (disables travel detection)",
			Usage:       "/clearhome",
			Access:      AccessOwnerOnly,
			Handle: func(ctx context.Context, req *Request) (string, error) {
				d.Tracker.ClearHomeBase()
				return "home base cleared", nil
			},
		},
		{
			Name:        "channels",
			Description: "manage athan sound channels",
			Usage:       "/channels [set <asset> <channel> | del <asset>]",
			Access:      AccessOwnerOnly,
			Handle:      d.channels,
		},
	}
}

func (d Deps) status(ctx context.Context, req *Request) (string, error) {
	var b strings.Builder
	b.WriteString("Travel: " + d.statusLine() + "\n")

	st := d.Tracker.Status()
	if st.CombineDhuhrAsr || st.CombineMaghribIsha {
		var pairs []string
		if st.CombineDhuhrAsr {
			pairs = append(pairs, "dhuhr+asr")
		}
		if st.CombineMaghribIsha {
			pairs = append(pairs, "maghrib+isha")
		}
		b.WriteString("Combining: " + strings.Join(pairs, ", ") + "\n")
	}

	pending, err := d.Sched.ListPending(ctx)
	if err != nil {
		return "", fmt.Errorf("list pending: %w", err)
	}
	fmt.Fprintf(&b, "Pending reminders: %d\n", len(pending))
	if next, ok := earliest(pending); ok {
		fmt.Fprintf(&b, "Next fires: %s", next.FiresAt.Format("Mon 15:04"))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (d Deps) statusLine() string {
	st := d.Tracker.Status()
	line := st.State.String()
	if st.DistanceFromHomeKm != nil {
		line += fmt.Sprintf(" (%.1f km from home)", *st.DistanceFromHomeKm)
	}
	return line
}

func (d Deps) times(ctx context.Context, req *Request) (string, error) {
	loc := d.Tracker.Location()
	if loc == nil {
		return "no known location, send /location <lat> <lon> first", nil
	}
	cfg := d.Engine.Config()
	instants, err := d.Source.Times(ctx, *loc, time.Now(), cfg.Method, cfg.AsrRule)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Today:\n")
	for _, in := range instants {
		fmt.Fprintf(&b, "%-8s %s\n", in.Prayer.Title(), in.At.Format("15:04"))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (d Deps) travel(ctx context.Context, req *Request) (string, error) {
	if len(req.Args) == 0 {
		s := d.Tracker.Settings()
		return fmt.Sprintf("Travel: %s\noverride=%s threshold=%.1fkm home_set=%t",
			d.statusLine(), s.Override, s.DistanceThresholdKm, s.HomeBase != nil), nil
	}
	o, err := travel.ParseOverride(req.Args[0])
	if err != nil {
		return "", err
	}
	d.Tracker.SetOverride(o)
	return "override set to " + o.String() + ": " + d.statusLine(), nil
}

func (d Deps) location(ctx context.Context, req *Request) (string, error) {
	c, err := parseCoords(req.Args)
	if err != nil {
		return "", err
	}
	d.Tracker.UpdateLocation(c)
	return "location updated: " + d.statusLine(), nil
}

func (d Deps) setHome(ctx context.Context, req *Request) (string, error) {
	c, err := parseCoords(req.Args)
	if err != nil {
		return "", err
	}
	hb := travel.HomeBase{Coordinates: c}
	if len(req.Args) > 2 {
		hb.Name = strings.Join(req.Args[2:], " ")
	}
	d.Tracker.SetHomeBase(hb)
	return "home base set", nil
}

func (d Deps) channels(ctx context.Context, req *Request) (string, error) {
	switch {
	case len(req.Args) == 0:
		return "usage: /channels set <asset> <channel> | del <asset>", nil
	case req.Args[0] == "set" && len(req.Args) == 3:
		if err := d.Channels.Register(ctx, req.Args[1], req.Args[2]); err != nil {
			return "", err
		}
		return fmt.Sprintf("asset %q bound to channel %q", req.Args[1], req.Args[2]), nil
	case req.Args[0] == "del" && len(req.Args) == 2:
		if err := d.Channels.Remove(ctx, req.Args[1]); err != nil {
			return "", err
		}
		return fmt.Sprintf("asset %q unbound", req.Args[1]), nil
	default:
		return "", fmt.Errorf("unrecognized arguments %q", strings.Join(req.Args, " "))
	}
}

func parseCoords(args []string) (geo.Coordinates, error) {
	if len(args) < 2 {
		return geo.Coordinates{}, fmt.Errorf("need <lat> <lon>")
	}
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("bad latitude %q", args[0])
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("bad longitude %q", args[1])
	}
	return geo.Coordinates{Lat: lat, Lon: lon}, nil
}

func earliest(pending []alarms.Pending) (alarms.Pending, bool) {
	if len(pending) == 0 {
		return alarms.Pending{}, false
	}
	next := pending[0]
	for _, p := range pending[1:] {
		if p.FiresAt.Before(next.FiresAt) {
			next = p
		}
	}
	return next, true
}
