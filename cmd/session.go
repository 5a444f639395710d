package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/twiced-technology-gmbh/taskorder/internal/access"
	"github.com/twiced-technology-gmbh/taskorder/internal/board"
	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/config"
	"github.com/twiced-technology-gmbh/taskorder/internal/dispatch"
	"github.com/twiced-technology-gmbh/taskorder/internal/logging"
	"github.com/twiced-technology-gmbh/taskorder/internal/snapshot"
	"github.com/twiced-technology-gmbh/taskorder/internal/store"
	"github.com/twiced-technology-gmbh/taskorder/internal/store/filestore"
	"github.com/twiced-technology-gmbh/taskorder/internal/store/httpclient"
	"github.com/twiced-technology-gmbh/taskorder/internal/store/redisstore"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

// session wires one workspace board for the lifetime of a command: the
// backend service, the snapshot loaded from it, the dispatcher persisting
// ordering changes and the engine computing them.
type session struct {
	cfg    *config.Config
	logger *log.Logger
	role   access.Role
	svc    store.Service
	snap   *snapshot.Store
	disp   *dispatch.Dispatcher
	engine *board.Engine

	closeSvc func() error

	mu     sync.Mutex
	failed map[string]error
	hook   func(dispatch.Event)
}

// sessionOptions tunes openSession.
type sessionOptions struct {
	// registerer receives the dispatcher metrics. Nil leaves them unregistered.
	registerer prometheus.Registerer
	// logLevel overrides the configured log level when set.
	logLevel string
}

// openSession loads the config, connects the backend and reads the
// workspace into a fresh snapshot.
func openSession(ctx context.Context, opts sessionOptions) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newSession(ctx, cfg, opts)
}

func newSession(ctx context.Context, cfg *config.Config, opts sessionOptions) (*session, error) {
	role, err := access.Parse(cfg.Role)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger := logging.New(logging.Options{Level: level, Format: cfg.Log.Format})

	svc, closeSvc, err := openService(ctx, cfg, role, logger)
	if err != nil {
		return nil, err
	}

	tasks, err := svc.ListTasks(ctx, cfg.Workspace)
	if err != nil {
		_ = closeSvc()
		return nil, clierr.Newf(clierr.BackendUnavailable, "loading workspace %q: %v", cfg.Workspace, err)
	}

	s := &session{
		cfg:      cfg,
		logger:   logger,
		role:     role,
		svc:      svc,
		snap:     snapshot.New(cfg.Workspace, tasks),
		closeSvc: closeSvc,
		failed:   make(map[string]error),
	}
	s.disp = dispatch.New(svc, s.snap, dispatch.Options{
		Workers:      cfg.Dispatch.Workers,
		QueueSize:    cfg.Dispatch.QueueSize,
		MaxAttempts:  cfg.Dispatch.MaxAttempts,
		RetryInitial: cfg.RetryInitial(),
		RetryMax:     cfg.RetryMax(),
		Timeout:      cfg.Timeout(),
		OnEvent:      s.onEvent,
		Logger:       logger,
		Metrics:      dispatch.NewMetrics(opts.registerer),
	})
	s.disp.Start()
	s.engine = board.NewEngine(s.snap, svc, s.disp,
		board.WithRole(role), board.WithLogger(logger))

	logger.WithFields(log.Fields{
		"backend":   cfg.Backend.Kind,
		"workspace": cfg.Workspace,
		"role":      role.Name(),
		"tasks":     len(tasks),
	}).Debug("session opened")
	return s, nil
}

// openService builds the configured backend and its close function.
func openService(ctx context.Context, cfg *config.Config, role access.Role, logger log.FieldLogger) (store.Service, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend.Kind {
	case config.BackendRedis:
		rs, err := redisstore.Dial(ctx, cfg.Backend.RedisURL, cfg.Backend.RedisPrefix)
		if err != nil {
			return nil, nil, clierr.New(clierr.BackendUnavailable, err.Error())
		}
		return rs, rs.Close, nil
	case config.BackendHTTP:
		hc, err := httpclient.New(cfg.Backend.APIURL, httpclient.WithRole(role.Name()))
		if err != nil {
			return nil, nil, err
		}
		return hc, noop, nil
	default:
		return filestore.New(cfg.TasksPath(), cfg.LockPath(), filestore.WithLogger(logger)), noop, nil
	}
}

// onEvent records delivery failures and forwards events to the hook.
func (s *session) onEvent(e dispatch.Event) {
	s.mu.Lock()
	switch e.Kind {
	case dispatch.EventFailed:
		s.failed[e.Update.TaskID] = e.Err
	case dispatch.EventSucceeded, dispatch.EventStale:
		delete(s.failed, e.Update.TaskID)
	}
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(e)
	}
}

// setEventHook forwards every later dispatcher event to fn.
func (s *session) setEventHook(fn func(dispatch.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// close waits up to the configured flush timeout for pending position
// writes, stops the dispatcher and releases the backend. It fails with
// OUT_OF_SYNC when some tasks could not be persisted.
func (s *session) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FlushTimeout())
	defer cancel()

	flushErr := s.disp.Close(ctx)
	if flushErr != nil {
		s.logger.WithError(flushErr).Warn("pending position updates were not delivered")
	}
	if err := s.closeSvc(); err != nil {
		s.logger.WithError(err).Warn("closing backend")
	}

	ids := s.outOfSync()
	if len(ids) == 0 && flushErr == nil {
		return nil
	}
	details := map[string]any{"tasks": ids}
	if flushErr != nil {
		details["flush"] = flushErr.Error()
	}
	return clierr.Newf(clierr.OutOfSync,
		"%d task(s) could not be saved; run `taskorder check --fix` or refresh the board", max(len(ids), 1)).
		WithDetails(details)
}

// outOfSync returns the ids of tasks whose last write failed or that the
// snapshot flags as dirty.
func (s *session) outOfSync() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.failed))
	for id := range s.failed {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range s.snap.Dirty() {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// finish closes the session. A command error wins over the close error,
// which is then only printed as a warning.
func (s *session) finish(err error) error {
	closeErr := s.close()
	if err != nil {
		if closeErr != nil {
			fmt.Fprintln(os.Stderr, "Warning: "+closeErr.Error())
		}
		return err
	}
	return closeErr
}

// lookup resolves a full or abbreviated task id against the snapshot.
func (s *session) lookup(input string) (*task.Task, error) {
	if t, ok := s.snap.Get(input); ok {
		return t, nil
	}
	if _, err := task.ParseID(input); err == nil {
		return nil, task.NotFound(input)
	}

	var match *task.Task
	for _, t := range s.snap.Snapshot() {
		if len(input) >= minPrefix && len(t.ID) >= len(input) && t.ID[:len(input)] == input {
			if match != nil {
				return nil, clierr.Newf(clierr.InvalidTaskID, "task id prefix %q is ambiguous", input)
			}
			match = t
		}
	}
	if match == nil {
		return nil, task.NotFound(input)
	}
	return match, nil
}

// minPrefix is the shortest id prefix accepted on the command line.
const minPrefix = 4
