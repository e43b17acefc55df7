package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/samvad-hq/scrapyd-go/internal/config"
	"github.com/samvad-hq/scrapyd-go/internal/domain"
	"github.com/samvad-hq/scrapyd-go/internal/logger"
	"github.com/samvad-hq/scrapyd-go/internal/storage"
	"github.com/samvad-hq/scrapyd-go/internal/sweep"
	"github.com/samvad-hq/scrapyd-go/pkg/httpclient"
	"github.com/samvad-hq/scrapyd-go/pkg/notifiers"
	"github.com/samvad-hq/scrapyd-go/pkg/scrapyd"
	"github.com/samvad-hq/scrapyd-go/pkg/targets"
)

// API is the subset of the Scrapyd client the controller drives.
type API interface {
	BaseURL() string
	BuildURL(name string) (string, error)
	DaemonStatus(ctx context.Context) (any, error)
	Schedule(ctx context.Context, project, spider string, opts ...scrapyd.ScheduleOption) (any, error)
	Cancel(ctx context.Context, project, job string) (any, error)
	ListProjects(ctx context.Context) (any, error)
	ListVersions(ctx context.Context, project string) (any, error)
	ListJobs(ctx context.Context, project string) (any, error)
	ListSpiders(ctx context.Context, project, version string) (any, error)
	DeleteVersion(ctx context.Context, project, version string) (any, error)
	DeleteProject(ctx context.Context, project string) (any, error)
	ShowLog(ctx context.Context, project, spider, jobID string) (string, error)
	ListLogs(ctx context.Context, project, spider string) ([]scrapyd.LogFile, error)
}

var _ API = (*scrapyd.Client)(nil)

// Controller executes CLI commands against one Scrapyd target. It records
// scheduled jobs in the journal and fans job events out to notifiers.
type Controller struct {
	target         string
	defaultProject string
	api            API
	journal        storage.Journal
	fanout         *notifiers.Fanout
	out            io.Writer
	log            logger.Logger
	now            func() time.Time

	targetsFile string
	clientFor   func(t targets.Target) API
}

// NewController builds a controller runtime from config.
func NewController(ctx context.Context, cfg *config.Config, log logger.Logger, out io.Writer) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if out == nil {
		out = os.Stdout
	}

	target, err := resolveTarget(cfg)
	if err != nil {
		return nil, err
	}
	log.DebugObj("target resolved", "target", map[string]any{
		"name":    target.Name,
		"url":     target.URL,
		"project": target.Project,
	})

	clientFor := func(t targets.Target) API {
		transport := httpclient.NewRestyClient(cfg.RequestTimeout).
			WithBasicAuth(t.Username, t.Password).
			WithUserAgent(cfg.UserAgent)
		return scrapyd.NewClient(t.URL, scrapyd.WithTransport(transport), scrapyd.WithLogger(log))
	}

	journal := openJournal(cfg, log)

	fanout, err := buildFanout(ctx, cfg.NotifiersFile, log)
	if err != nil {
		_ = journal.Close()
		return nil, err
	}

	ctrl := newController(target, clientFor(target), journal, fanout, out, log)
	ctrl.targetsFile = cfg.TargetsFile
	ctrl.clientFor = clientFor
	return ctrl, nil
}

func newController(target targets.Target, api API, journal storage.Journal, fanout *notifiers.Fanout, out io.Writer, log logger.Logger) *Controller {
	return &Controller{
		target:         target.Name,
		defaultProject: target.Project,
		api:            api,
		journal:        journal,
		fanout:         fanout,
		out:            out,
		log:            log,
		now:            time.Now,
		clientFor: func(t targets.Target) API {
			return scrapyd.NewClient(t.URL, scrapyd.WithLogger(log))
		},
	}
}

// openJournal opens the configured journal. A journal that cannot be opened
// (bad path, lock held by another process) degrades to the no-op backend.
func openJournal(cfg *config.Config, log logger.Logger) storage.Journal {
	journal, err := storage.NewJournal(cfg.JournalType, cfg.JournalPath, storage.Options{
		RecordTTL:       cfg.JournalTTL,
		CleanupInterval: cfg.JournalCleanupInterval,
	})
	if err == nil {
		return journal
	}
	log.WarnObj("journal unavailable; job history disabled", "journal_error", map[string]any{
		"type":  cfg.JournalType,
		"path":  cfg.JournalPath,
		"error": err.Error(),
	})
	journal, _ = storage.NewJournal("none", "", storage.Options{})
	return journal
}

// resolveTarget picks the named target when one is configured, else the bare URL.
func resolveTarget(cfg *config.Config) (targets.Target, error) {
	name := strings.TrimSpace(cfg.Target)
	if name == "" {
		return targets.Target{Name: "default", URL: cfg.ScrapydURL}, nil
	}

	reg, err := targets.LoadRegistry(cfg.TargetsFile)
	if err != nil {
		return targets.Target{}, fmt.Errorf("load targets registry: %w", err)
	}
	t, ok := reg.ByName(name)
	if !ok {
		return targets.Target{}, fmt.Errorf("target %q not found in %s", name, cfg.TargetsFile)
	}
	return t, nil
}

func buildFanout(ctx context.Context, path string, log logger.Logger) (*notifiers.Fanout, error) {
	if strings.TrimSpace(path) == "" {
		return notifiers.NewFanout(nil), nil
	}

	reg, err := notifiers.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load notifiers registry: %w", err)
	}
	enabled := reg.Enabled()
	built, err := notifiers.DefaultBuilders().BuildAll(ctx, enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build notifiers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, n := range enabled {
		summaries = append(summaries, map[string]string{"id": n.ID, "type": n.Type})
	}
	log.DebugObj("notifiers registry loaded", "notifiers_meta", map[string]any{
		"count":     len(summaries),
		"notifiers": summaries,
	})
	return notifiers.NewFanout(built), nil
}

// Close releases the journal and notifiers, logging any errors encountered.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			c.log.ErrorObj("journal close failed", "error", err)
		}
	}
	if err := c.fanout.Close(); err != nil {
		c.log.ErrorObj("notifiers close failed", "error", err)
	}
}

// Status prints daemonstatus.json.
func (c *Controller) Status(ctx context.Context) error {
	res, err := c.api.DaemonStatus(ctx)
	if err != nil {
		return fmt.Errorf("daemon status: %w", err)
	}
	return c.printJSON(res)
}

// ScheduleInput collects the schedule command arguments.
type ScheduleInput struct {
	Project   string
	Spider    string
	Version   string
	JobID     string
	Settings  *scrapyd.Params
	Arguments *scrapyd.Params
}

// Schedule starts a spider run, journals the returned job id and notifies sinks.
func (c *Controller) Schedule(ctx context.Context, in ScheduleInput) error {
	project := c.project(in.Project)
	if project == "" || in.Spider == "" {
		return fmt.Errorf("project and spider are required")
	}

	res, err := c.api.Schedule(ctx, project, in.Spider,
		scrapyd.WithVersion(in.Version),
		scrapyd.WithJobID(in.JobID),
		scrapyd.WithSettings(in.Settings),
		scrapyd.WithArguments(in.Arguments),
	)
	if err != nil {
		return fmt.Errorf("schedule %s/%s: %w", project, in.Spider, err)
	}

	jobID := stringField(res, "jobid")
	if jobID == "" {
		jobID = in.JobID
	}
	if jobID != "" {
		rec := domain.JobRecord{
			JobID:       jobID,
			Target:      c.target,
			Project:     project,
			Spider:      in.Spider,
			Version:     in.Version,
			ScheduledAt: c.now().UTC(),
		}
		if err := c.journal.Record(rec); err != nil {
			c.log.WarnObj("journal record failed", "journal_error", map[string]any{
				"jobid": jobID,
				"error": err.Error(),
			})
		}
	}

	evt := notifiers.NewJobEvent(notifiers.ActionSchedule, c.target, project)
	evt.Spider, evt.JobID, evt.Version, evt.Result = in.Spider, jobID, in.Version, res
	c.notify(ctx, evt)

	return c.printJSON(res)
}

// Cancel stops a job. An empty project is resolved from the journal, then the target default.
func (c *Controller) Cancel(ctx context.Context, project, job string) error {
	if job == "" {
		return fmt.Errorf("job id is required")
	}
	if project == "" {
		rec, found, err := c.journal.Lookup(job)
		if err != nil {
			c.log.WarnObj("journal lookup failed", "journal_error", map[string]any{
				"jobid": job,
				"error": err.Error(),
			})
		}
		if found {
			project = rec.Project
		}
	}
	project = c.project(project)
	if project == "" {
		return fmt.Errorf("project is required to cancel job %q", job)
	}

	res, err := c.api.Cancel(ctx, project, job)
	if err != nil {
		return fmt.Errorf("cancel %s/%s: %w", project, job, err)
	}

	evt := notifiers.NewJobEvent(notifiers.ActionCancel, c.target, project)
	evt.JobID, evt.Result = job, res
	c.notify(ctx, evt)

	return c.printJSON(res)
}

// Projects prints listprojects.json.
func (c *Controller) Projects(ctx context.Context) error {
	res, err := c.api.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	return c.printJSON(res)
}

// Versions prints listversions.json for project.
func (c *Controller) Versions(ctx context.Context, project string) error {
	project, err := c.requireProject(project)
	if err != nil {
		return err
	}
	res, err := c.api.ListVersions(ctx, project)
	if err != nil {
		return fmt.Errorf("list versions: %w", err)
	}
	return c.printJSON(res)
}

// Jobs prints listjobs.json for project.
func (c *Controller) Jobs(ctx context.Context, project string) error {
	project, err := c.requireProject(project)
	if err != nil {
		return err
	}
	res, err := c.api.ListJobs(ctx, project)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	return c.printJSON(res)
}

// Spiders prints listspiders.json for project at version (empty for latest).
func (c *Controller) Spiders(ctx context.Context, project, version string) error {
	project, err := c.requireProject(project)
	if err != nil {
		return err
	}
	res, err := c.api.ListSpiders(ctx, project, version)
	if err != nil {
		return fmt.Errorf("list spiders: %w", err)
	}
	return c.printJSON(res)
}

// DeleteVersion removes one version of project.
func (c *Controller) DeleteVersion(ctx context.Context, project, version string) error {
	if project == "" || version == "" {
		return fmt.Errorf("project and version are required")
	}
	res, err := c.api.DeleteVersion(ctx, project, version)
	if err != nil {
		return fmt.Errorf("delete version %s/%s: %w", project, version, err)
	}

	evt := notifiers.NewJobEvent(notifiers.ActionDeleteVersion, c.target, project)
	evt.Version, evt.Result = version, res
	c.notify(ctx, evt)

	return c.printJSON(res)
}

// DeleteProject removes project.
func (c *Controller) DeleteProject(ctx context.Context, project string) error {
	if project == "" {
		return fmt.Errorf("project is required")
	}
	res, err := c.api.DeleteProject(ctx, project)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", project, err)
	}

	evt := notifiers.NewJobEvent(notifiers.ActionDeleteProject, c.target, project)
	evt.Result = res
	c.notify(ctx, evt)

	return c.printJSON(res)
}

// Log writes the raw log of a job.
func (c *Controller) Log(ctx context.Context, project, spider, job string) error {
	if project == "" || spider == "" {
		rec, found, err := c.journal.Lookup(job)
		if err != nil {
			c.log.WarnObj("journal lookup failed", "journal_error", map[string]any{
				"jobid": job,
				"error": err.Error(),
			})
		}
		if found {
			project, spider = firstNonEmpty(project, rec.Project), firstNonEmpty(spider, rec.Spider)
		}
	}
	project = c.project(project)
	if project == "" || spider == "" || job == "" {
		return fmt.Errorf("project, spider and job are required")
	}

	text, err := c.api.ShowLog(ctx, project, spider, job)
	if err != nil {
		return fmt.Errorf("show log %s/%s/%s: %w", project, spider, job, err)
	}
	_, err = io.WriteString(c.out, text)
	return err
}

// Logs lists the log files available for a spider.
func (c *Controller) Logs(ctx context.Context, project, spider string) error {
	project = c.project(project)
	if project == "" || spider == "" {
		return fmt.Errorf("project and spider are required")
	}
	files, err := c.api.ListLogs(ctx, project, spider)
	if err != nil {
		return fmt.Errorf("list logs %s/%s: %w", project, spider, err)
	}
	return c.printJSON(files)
}

// History prints the journaled jobs, oldest first.
func (c *Controller) History() error {
	recs, err := c.journal.List()
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if recs == nil {
		recs = []domain.JobRecord{}
	}
	return c.printJSON(recs)
}

// Endpoints prints the absolute URL of every registered endpoint.
func (c *Controller) Endpoints() error {
	urls := make(map[string]string, len(scrapyd.Endpoints()))
	for _, ep := range scrapyd.Endpoints() {
		u, err := c.api.BuildURL(string(ep))
		if err != nil {
			return err
		}
		urls[string(ep)] = u
	}
	return c.printJSON(urls)
}

// Sweep prints the daemon status of every target in the targets file. It fails
// when any target is unreachable, after printing all results.
func (c *Controller) Sweep(ctx context.Context, workers int) error {
	reg, err := targets.LoadRegistry(c.targetsFile)
	if err != nil {
		return fmt.Errorf("load targets registry: %w", err)
	}

	svc := sweep.NewService(func(ctx context.Context, t targets.Target) (any, error) {
		return c.clientFor(t).DaemonStatus(ctx)
	}, c.log, workers)

	results, runErr := svc.Run(ctx, reg.All())
	if err := c.printJSON(results); err != nil {
		return err
	}
	return runErr
}

func (c *Controller) notify(ctx context.Context, evt notifiers.JobEvent) {
	if c.fanout.Size() == 0 {
		return
	}
	delivered, err := c.fanout.Notify(ctx, evt)
	if err != nil {
		c.log.WarnObj("job event delivery failed", "notify_error", map[string]any{
			"action":    evt.Action,
			"delivered": delivered,
			"error":     err.Error(),
		})
		return
	}
	c.log.InfoObj("job event delivered", "notify_result", map[string]any{
		"action":    evt.Action,
		"delivered": delivered,
	})
}

func (c *Controller) project(p string) string {
	return firstNonEmpty(strings.TrimSpace(p), c.defaultProject)
}

func (c *Controller) requireProject(p string) (string, error) {
	if p = c.project(p); p == "" {
		return "", errors.New("project is required")
	}
	return p, nil
}

func (c *Controller) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func stringField(res any, key string) string {
	m, ok := res.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
