package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/samvad-hq/scrapyd-go/internal/app"
	"github.com/samvad-hq/scrapyd-go/internal/config"
	"github.com/samvad-hq/scrapyd-go/internal/logger"
	"github.com/samvad-hq/scrapyd-go/pkg/scrapyd"
)

const usage = `usage: scrapydctl [global flags] <command> [args]

commands:
  status                                 daemon load status
  schedule [project] <spider> [flags]    start a spider run (-s NAME=VALUE, -a NAME=VALUE, --jobid, --version)
  cancel [project] <job>                 cancel a job
  projects                               list projects
  versions [project]                     list project versions
  jobs [project]                         list pending, running and finished jobs
  spiders [project] [--version V]        list spiders
  delversion <project> <version>         delete a project version
  delproject <project>                   delete a project
  log [project] <spider> <job>           print a job log
  logs [project] <spider>                list log files of a spider
  history                                jobs scheduled from this machine
  endpoints                              print endpoint URLs
  sweep [--workers N]                    daemon status of every target in the targets file

global flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "scrapydctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	global := pflag.NewFlagSet("scrapydctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	config.RegisterFlags(global)
	global.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load(global)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	log.DebugObj("scrapydctl starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctrl, err := app.NewController(ctx, cfg, log, out)
	if err != nil {
		logger.ErrorObj("failed to initialize controller", "error", err)
		return err
	}
	defer ctrl.Close()

	return dispatch(ctx, ctrl, global.Arg(0), global.Args()[1:])
}

func dispatch(ctx context.Context, ctrl *app.Controller, cmd string, args []string) error {
	switch cmd {
	case "status":
		return ctrl.Status(ctx)
	case "schedule":
		in, err := parseSchedule(args)
		if err != nil {
			return err
		}
		return ctrl.Schedule(ctx, in)
	case "cancel":
		switch len(args) {
		case 1:
			return ctrl.Cancel(ctx, "", args[0])
		case 2:
			return ctrl.Cancel(ctx, args[0], args[1])
		}
		return fmt.Errorf("usage: cancel [project] <job>")
	case "projects":
		return ctrl.Projects(ctx)
	case "versions":
		return ctrl.Versions(ctx, optional(args, 0))
	case "jobs":
		return ctrl.Jobs(ctx, optional(args, 0))
	case "spiders":
		fs := pflag.NewFlagSet("spiders", pflag.ContinueOnError)
		version := fs.String("version", "", "project version, latest when empty")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return ctrl.Spiders(ctx, optional(fs.Args(), 0), *version)
	case "delversion":
		if len(args) != 2 {
			return fmt.Errorf("usage: delversion <project> <version>")
		}
		return ctrl.DeleteVersion(ctx, args[0], args[1])
	case "delproject":
		if len(args) != 1 {
			return fmt.Errorf("usage: delproject <project>")
		}
		return ctrl.DeleteProject(ctx, args[0])
	case "log":
		switch len(args) {
		case 2:
			return ctrl.Log(ctx, "", args[0], args[1])
		case 3:
			return ctrl.Log(ctx, args[0], args[1], args[2])
		}
		return fmt.Errorf("usage: log [project] <spider> <job>")
	case "logs":
		switch len(args) {
		case 1:
			return ctrl.Logs(ctx, "", args[0])
		case 2:
			return ctrl.Logs(ctx, args[0], args[1])
		}
		return fmt.Errorf("usage: logs [project] <spider>")
	case "history":
		return ctrl.History()
	case "endpoints":
		return ctrl.Endpoints()
	case "sweep":
		fs := pflag.NewFlagSet("sweep", pflag.ContinueOnError)
		workers := fs.IntP("workers", "w", 4, "targets checked concurrently")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return ctrl.Sweep(ctx, *workers)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseSchedule(args []string) (app.ScheduleInput, error) {
	fs := pflag.NewFlagSet("schedule", pflag.ContinueOnError)
	settings := fs.StringArrayP("setting", "s", nil, "Scrapy setting override NAME=VALUE (repeatable)")
	arguments := fs.StringArrayP("arg", "a", nil, "spider argument NAME=VALUE (repeatable)")
	jobID := fs.String("jobid", "", "job id, generated by the daemon when empty")
	version := fs.String("version", "", "project version, latest when empty")
	if err := fs.Parse(args); err != nil {
		return app.ScheduleInput{}, err
	}

	in := app.ScheduleInput{JobID: *jobID, Version: *version}
	switch fs.NArg() {
	case 1:
		in.Spider = fs.Arg(0)
	case 2:
		in.Project, in.Spider = fs.Arg(0), fs.Arg(1)
	default:
		return app.ScheduleInput{}, fmt.Errorf("usage: schedule [project] <spider> [flags]")
	}

	var err error
	if in.Settings, err = parsePairs(*settings); err != nil {
		return app.ScheduleInput{}, fmt.Errorf("setting: %w", err)
	}
	if in.Arguments, err = parsePairs(*arguments); err != nil {
		return app.ScheduleInput{}, fmt.Errorf("arg: %w", err)
	}
	return in, nil
}

// parsePairs turns NAME=VALUE pairs into ordered params. The literals true and
// false become booleans so they reach the daemon as True/False.
func parsePairs(pairs []string) (*scrapyd.Params, error) {
	p := scrapyd.NewParams()
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("expected NAME=VALUE, got %q", pair)
		}
		name = strings.TrimSpace(name)
		switch strings.ToLower(value) {
		case "true":
			p.SetBool(name, true)
		case "false":
			p.SetBool(name, false)
		default:
			p.SetString(name, value)
		}
	}
	return p, nil
}

func optional(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
