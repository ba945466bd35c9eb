// Command gwctl drives the gateway admin console from a terminal. It shares
// the console's session store, so a login here is visible to the server.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"gwconsole/internal/config"
	"gwconsole/internal/manager"
	"gwconsole/internal/session"
	"gwconsole/internal/utils"
	"gwconsole/internal/version"
)

const usage = `usage: gwctl [-config file] [-user name] [-v] <command> [args]

commands:
  login [-username name] [-password pw]
  logout
  routes list [-search s] [-page n]
  routes add -path p -uri u [-ip-filter] [-token] [-rate-limit]
  routes delete <id>
  routes toggle <id> ip-filter|token|rate-limit
  ips list [-search s] [-page n]
  ips add <ip> <routeId>
  ips delete <id> <routeId>
  ips purge <routeId>
  ratelimit set <routeId> <maxRequests> <timeWindowMs>
  metrics [-watch]
  version
`

var errUsage = errors.New("invalid usage")

// cli carries everything a command needs.
type cli struct {
	out          io.Writer
	errOut       io.Writer
	readPassword func(prompt string) (string, error)

	cfg      config.Config
	paths    *utils.Paths
	logger   *utils.Logger
	sessions *session.Store
	mgr      *manager.Manager
	user     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{out: os.Stdout, errOut: os.Stderr, readPassword: promptPassword}
	if err := run(ctx, c, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "gwctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli, args []string) error {
	fs := flag.NewFlagSet("gwctl", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	configPath := fs.String("config", "gwconsole.yaml", "path to the YAML config file")
	user := fs.String("user", "", "operator whose session to use")
	verbose := fs.Bool("v", false, "log to stderr instead of the CLI log file")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return errUsage
	}
	if rest[0] == "version" {
		fmt.Fprintln(c.out, version.String())
		return nil
	}

	if err := c.setup(*configPath, *verbose); err != nil {
		return err
	}
	defer c.close()
	c.user = manager.NormalizeUsername(*user)

	switch rest[0] {
	case "login":
		return c.login(ctx, rest[1:])
	case "logout":
		return c.logout()
	case "routes":
		return c.routes(ctx, rest[1:])
	case "ips":
		return c.ips(ctx, rest[1:])
	case "ratelimit":
		return c.rateLimit(ctx, rest[1:])
	case "metrics":
		return c.metrics(ctx, rest[1:])
	}
	return errUsage
}

func (c *cli) setup(configPath string, verbose bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	c.cfg = cfg
	c.paths = utils.NewPaths(dataDir)
	if verbose {
		c.logger = utils.NewWriterLogger(c.errOut)
	} else {
		c.logger = utils.NewLogger(c.paths.CLILogFile())
	}
	if !c.paths.CheckRoot() {
		c.paths.DeployRoot(c.logger)
	}
	c.sessions = session.NewStore(c.paths)
	if err := c.sessions.Load(); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	c.mgr = manager.New(manager.Options{Config: cfg, Sessions: c.sessions, Logger: c.logger})
	return nil
}

func (c *cli) close() {
	if c.mgr != nil {
		c.mgr.Shutdown()
	}
	if c.logger != nil {
		c.logger.Close()
	}
}

// operator resolves the session to act as: -user, or the only stored one.
func (c *cli) operator() (string, error) {
	if c.user != "" {
		return c.user, nil
	}
	records := c.sessions.List()
	switch len(records) {
	case 0:
		return "", errors.New("not logged in; run gwctl login")
	case 1:
		return records[0].Username, nil
	}
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Username)
	}
	return "", fmt.Errorf("several sessions stored (%s); pass -user", strings.Join(names, ", "))
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		bytes, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	text, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
