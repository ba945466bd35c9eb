package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"gwconsole/internal/console"
	"gwconsole/internal/manager"
	"gwconsole/internal/models"
)

func (c *cli) printNotice(n console.Notice) {
	fmt.Fprintf(c.out, "%s: %s\n", n.Severity, n.Message)
	if n.Action != nil {
		fmt.Fprintf(c.out, "  next: %s (gwctl ips add <ip> %d)\n", n.Action.Label, n.Action.RouteID)
	}
}

// result prints the notice and passes err through.
func (c *cli) result(n console.Notice, err error) error {
	if err != nil {
		if fe, ok := console.AsFieldErrors(err); ok {
			return fe
		}
		return fmt.Errorf("%s: %w", n.Message, err)
	}
	c.printNotice(n)
	return nil
}

// workspace opens the authenticated workspace of the current operator.
func (c *cli) workspace(ctx context.Context) (*console.Workspace, error) {
	name, err := c.operator()
	if err != nil {
		return nil, err
	}
	ws, err := c.mgr.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := ws.RequireAuth(); err != nil {
		return nil, fmt.Errorf("%s is not logged in; run gwctl login", name)
	}
	return ws, nil
}

func parseIDArg(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	username := fs.String("username", c.user, "operator username")
	password := fs.String("password", "", "password (leave blank to type securely)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	name := manager.NormalizeUsername(*username)
	if name == "" {
		name = "admin"
	}
	pwd := strings.TrimSpace(*password)
	if pwd == "" {
		var err error
		if pwd, err = c.readPassword("Password for " + name + ": "); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}
	if pwd == "" {
		return errors.New("password cannot be empty")
	}

	ws, err := c.mgr.Open(ctx, name)
	if err != nil {
		return err
	}
	notice, err := ws.Login(ctx, name, pwd)
	if err != nil {
		return fmt.Errorf("%s: %w", notice.Message, err)
	}
	c.printNotice(notice)
	if info := ws.Info(); info.Profile != nil && info.Profile.Role != "" {
		fmt.Fprintf(c.out, "role: %s\n", info.Profile.Role)
	}
	return nil
}

func (c *cli) logout() error {
	name, err := c.operator()
	if err != nil {
		return err
	}
	if err := c.mgr.Logout(name); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "logged out %s\n", name)
	return nil
}

func listFlags(name string, args []string, c *cli) (string, int, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	search := fs.String("search", "", "filter rows")
	page := fs.Int("page", 1, "1-based page")
	if err := fs.Parse(args); err != nil {
		return "", 0, nil, errUsage
	}
	return *search, *page, fs.Args(), nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (c *cli) routes(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	ws, err := c.workspace(ctx)
	if err != nil {
		return err
	}
	view := ws.Routes()

	switch args[0] {
	case "list":
		search, page, _, err := listFlags("routes list", args[1:], c)
		if err != nil {
			return err
		}
		if err := view.Load(ctx); err != nil {
			return fmt.Errorf("load routes: %w", err)
		}
		rows := view.Rows(search, page)
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tROUTE ID\tPATH\tURI\tIP FILTER\tTOKEN\tRATE LIMIT")
		for _, r := range rows.Items {
			limit := onOff(r.WithRateLimit)
			if r.WithRateLimit {
				rl := r.EffectiveRateLimit()
				limit = fmt.Sprintf("%d/%dms", rl.MaxRequests, rl.TimeWindowMs)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.RouteID, r.Predicates, r.URI, onOff(r.WithIPFilter), onOff(r.WithToken), limit)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "page %d/%d, %d route(s)\n", rows.Page, rows.TotalPages, rows.Total)
		return nil

	case "add":
		fs := flag.NewFlagSet("routes add", flag.ContinueOnError)
		fs.SetOutput(c.errOut)
		path := fs.String("path", "", "path predicate")
		uri := fs.String("uri", "", "destination URI")
		ipFilter := fs.Bool("ip-filter", false, "enable the IP allow-list")
		token := fs.Bool("token", false, "require a valid token")
		rateLimit := fs.Bool("rate-limit", false, "enable the default rate limit")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}
		form := view.NewForm()
		form.Predicates = *path
		form.URI = *uri
		form.WithIPFilter = *ipFilter
		form.WithToken = *token
		form.WithRateLimit = *rateLimit
		return c.result(view.Save(ctx, form))

	case "delete":
		if len(args) != 2 {
			return errUsage
		}
		id, err := parseIDArg(args[1], "id")
		if err != nil {
			return err
		}
		return c.result(view.Delete(ctx, id))

	case "toggle":
		if len(args) != 3 {
			return errUsage
		}
		id, err := parseIDArg(args[1], "id")
		if err != nil {
			return err
		}
		capability, err := console.ParseCapability(args[2])
		if err != nil {
			return err
		}
		if err := view.Load(ctx); err != nil {
			return fmt.Errorf("load routes: %w", err)
		}
		return c.result(view.Toggle(ctx, id, capability))
	}
	return errUsage
}

func (c *cli) ips(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	ws, err := c.workspace(ctx)
	if err != nil {
		return err
	}
	view := ws.IPs()

	switch args[0] {
	case "list":
		search, page, _, err := listFlags("ips list", args[1:], c)
		if err != nil {
			return err
		}
		if err := view.Load(ctx); err != nil {
			return fmt.Errorf("load IP addresses: %w", err)
		}
		rows := view.Rows(search, page)
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tIP\tROUTE\tPATH")
		for _, ip := range rows.Items {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", ip.ID, ip.IP, ip.GatewayRouteID, ip.Predicate)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "page %d/%d, %d address(es)\n", rows.Page, rows.TotalPages, rows.Total)
		return nil

	case "add":
		if len(args) != 3 {
			return errUsage
		}
		routeID, err := parseIDArg(args[2], "routeId")
		if err != nil {
			return err
		}
		return c.result(view.Add(ctx, console.IPForm{IP: args[1], RouteID: routeID}))

	case "delete":
		if len(args) != 3 {
			return errUsage
		}
		id, err := parseIDArg(args[1], "id")
		if err != nil {
			return err
		}
		routeID, err := parseIDArg(args[2], "routeId")
		if err != nil {
			return err
		}
		return c.result(view.Delete(ctx, id, routeID))

	case "purge":
		if len(args) != 2 {
			return errUsage
		}
		routeID, err := parseIDArg(args[1], "routeId")
		if err != nil {
			return err
		}
		return c.result(view.DeleteAllForRoute(ctx, routeID))
	}
	return errUsage
}

func (c *cli) rateLimit(ctx context.Context, args []string) error {
	if len(args) != 4 || args[0] != "set" {
		return errUsage
	}
	id, err := parseIDArg(args[1], "routeId")
	if err != nil {
		return err
	}
	ws, err := c.workspace(ctx)
	if err != nil {
		return err
	}
	view := ws.RateLimits()
	if err := view.Load(ctx); err != nil {
		return fmt.Errorf("load routes: %w", err)
	}
	editor, err := view.Edit(id)
	if err != nil {
		return fmt.Errorf("route %d: %w", id, err)
	}
	editor.SetMaxRequestsText(args[2])
	editor.SetTimeWindowText(args[3])
	fmt.Fprintln(c.out, editor.Describe())
	return c.result(editor.Save(ctx))
}

func (c *cli) printSnapshot(s models.MetricsSnapshot) {
	if !s.TotalsOK && !s.MinuteOK {
		fmt.Fprintln(c.out, "metrics unavailable")
		return
	}
	fmt.Fprintf(c.out, "%s  requests %d (%+d%%)  rejected %d (%+d%%)  total %d/%d\n",
		s.SampledAt.Local().Format("15:04:05"),
		s.Minute.RequestsCurrentMinute, s.RequestsDelta,
		s.Minute.RejectedCurrentMinute, s.RejectedDelta,
		s.Totals.RequestCount, s.Totals.RejectedCount)
}

func (c *cli) metrics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	watch := fs.Bool("watch", false, "keep polling until interrupted")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	ws, err := c.workspace(ctx)
	if err != nil {
		return err
	}
	view := ws.Dashboard()

	if !*watch {
		if err := view.Load(ctx); err != nil {
			return fmt.Errorf("load metrics: %w", err)
		}
		c.printSnapshot(view.Snapshot())
		return nil
	}

	poller := console.NewPoller("gwctl-metrics", c.cfg.Polling.MetricsInterval, func(ctx context.Context) {
		if err := view.Load(ctx); err != nil && ctx.Err() == nil {
			c.logger.Writef("metrics poll failed: %v", err)
		}
		c.printSnapshot(view.Snapshot())
	})
	poller.Start(ctx)
	<-ctx.Done()
	poller.Stop()
	return nil
}
