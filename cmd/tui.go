package cmd

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskorder/internal/board"
	"github.com/twiced-technology-gmbh/taskorder/internal/config"
	"github.com/twiced-technology-gmbh/taskorder/internal/dispatch"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
	"github.com/twiced-technology-gmbh/taskorder/internal/tui"
	"github.com/twiced-technology-gmbh/taskorder/internal/watcher"
)

func runTUI(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	// The alternate screen owns the terminal, so only warnings reach stderr.
	s, err := openSession(ctx, sessionOptions{logLevel: "warn"})
	if err != nil {
		return err
	}

	model := tui.NewBoard(s.engine, s.snap, s.svc, tui.Options{
		BoardName:        s.cfg.Board.Name,
		BoardDir:         s.cfg.Dir(),
		DescriptionLines: s.cfg.DescriptionLines(),
		Pinned:           s.disp.Pending,
		Timeout:          s.cfg.Timeout(),
		Logger:           s.logger,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())
	s.setEventHook(func(e dispatch.Event) {
		p.Send(tui.EventMsg{Event: e})
	})

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.Backend.Kind == config.BackendFile {
		go startTUIWatcher(watchCtx, s, p)
	}

	_, err = p.Run()
	s.setEventHook(nil)
	return s.finish(err)
}

// startTUIWatcher reloads the board whenever another process changes the
// workspace's task files.
func startTUIWatcher(ctx context.Context, s *session, p *tea.Program) {
	wsDir := task.WorkspaceDir(s.cfg.TasksPath(), s.cfg.Workspace)
	const dirMode = 0o750
	if err := os.MkdirAll(wsDir, dirMode); err != nil {
		s.logger.WithError(err).Warn("live refresh disabled")
		return
	}

	w, err := watcher.New([]string{wsDir}, func() {
		p.Send(tui.ReloadMsg{})
	}, watcher.WithIgnore(config.LockFileName, board.LogFileName))
	if err != nil {
		s.logger.WithError(err).Warn("live refresh disabled")
		return // TUI works without live refresh
	}
	defer w.Close()
	w.Run(ctx, func(watchErr error) {
		s.logger.WithError(fmt.Errorf("file watcher: %w", watchErr)).Debug("watch error")
	})
}
