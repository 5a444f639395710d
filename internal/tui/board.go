// Package tui implements the interactive taskorder board.
package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/twiced-technology-gmbh/taskorder/internal/access"
	"github.com/twiced-technology-gmbh/taskorder/internal/board"
	"github.com/twiced-technology-gmbh/taskorder/internal/dispatch"
	"github.com/twiced-technology-gmbh/taskorder/internal/snapshot"
	"github.com/twiced-technology-gmbh/taskorder/internal/store"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

// view represents the current screen state.
type view int

const (
	viewBoard view = iota
	viewConfirmDelete
	viewSearch
)

// Key and layout constants.
const (
	keyEsc = "esc"

	boardChrome    = 2                // blank line + status bar below the column area
	errorChrome    = 1                // extra line when error toast is displayed
	tickInterval   = 30 * time.Second // how often ages refresh
	defaultTimeout = 10 * time.Second
)

// Options configures a Board.
type Options struct {
	// BoardName is shown in the status bar.
	BoardName string
	// BoardDir receives the activity log. Empty disables logging.
	BoardDir string
	// DescriptionLines is the number of description lines per card.
	DescriptionLines int
	// Pinned reports tasks with writes still in flight; Resync keeps their
	// local copies.
	Pinned func(id string) bool
	// Timeout bounds backend calls made from the board.
	Timeout time.Duration
	Logger  log.FieldLogger
}

// Board is the top-level bubbletea model.
type Board struct {
	engine *board.Engine
	snap   *snapshot.Store
	svc    store.Service
	search *board.Searcher
	opts   Options

	columns   []column
	total     int
	dirty     map[string]bool
	activeCol int
	activeRow int
	view      view
	width     int
	height    int
	err       error
	notice    string
	now       func() time.Time // clock for age display; defaults to time.Now

	// Search.
	input textinput.Model
	query string

	// Delete confirmation.
	deleteID    string
	deleteTitle string
}

// column groups the visible tasks of a single status.
type column struct {
	status    task.Status
	tasks     []*task.Task
	scrollOff int // first visible row index
}

// NewBoard creates a Board over the engine's snapshot. svc is used to
// reload the snapshot on refresh.
func NewBoard(engine *board.Engine, snap *snapshot.Store, svc store.Service, opts Options) *Board {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Pinned == nil {
		opts.Pinned = func(string) bool { return false }
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	in := textinput.New()
	in.Prompt = "/"
	in.Placeholder = "search"

	b := &Board{
		engine: engine,
		snap:   snap,
		svc:    svc,
		search: board.NewSearcher(snap, 0),
		opts:   opts,
		input:  in,
		now:    time.Now,
	}
	b.loadTasks()
	return b
}

// SetNow overrides the clock function used for age display (for testing).
func (b *Board) SetNow(fn func() time.Time) {
	b.now = fn
}

// Init implements tea.Model.
func (b *Board) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (b *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return b.handleKey(msg)
	case tea.WindowSizeMsg:
		b.width = msg.Width
		b.height = msg.Height
		b.ensureVisible()
		return b, nil
	case ReloadMsg:
		return b, b.resyncCmd(false)
	case EventMsg:
		b.handleEvent(msg.Event)
		return b, nil
	case resyncedMsg:
		b.applyResync(msg)
		return b, nil
	case deletedMsg:
		b.applyDelete(msg)
		return b, nil
	case TickMsg:
		return b, tickCmd()
	}
	return b, nil
}

// View implements tea.Model.
func (b *Board) View() string {
	if b.width == 0 {
		return "Loading..."
	}

	switch b.view {
	case viewConfirmDelete:
		return b.viewDeleteConfirm()
	default:
		return b.viewBoard()
	}
}

func (b *Board) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Global keys.
	if key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+c"))) {
		return b, tea.Quit
	}

	switch b.view {
	case viewBoard:
		return b.handleBoardKey(msg)
	case viewConfirmDelete:
		return b.handleDeleteKey(msg)
	case viewSearch:
		return b.handleSearchKey(msg)
	}

	return b, nil
}

func (b *Board) handleBoardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return b, tea.Quit
	case keyEsc:
		if b.query == "" {
			return b, tea.Quit
		}
		b.setQuery("")
	case "h", "left":
		if b.activeCol > 0 {
			b.activeCol--
			b.clampRow()
		}
	case "l", "right":
		if b.activeCol < len(b.columns)-1 {
			b.activeCol++
			b.clampRow()
		}
	case "j", "down":
		col := b.currentColumn()
		if col != nil && b.activeRow < len(col.tasks)-1 {
			b.activeRow++
			b.ensureVisible()
		}
	case "k", "up":
		if b.activeRow > 0 {
			b.activeRow--
			b.ensureVisible()
		}
	case "J", "shift+down":
		b.reorder(1)
	case "K", "shift+up":
		b.reorder(-1)
	case "H", "shift+left":
		b.moveAcross(-1)
	case "L", "shift+right":
		b.moveAcross(1)
	case "/":
		b.view = viewSearch
		b.input.SetValue(b.query)
		b.input.CursorEnd()
		return b, b.input.Focus()
	case "r":
		b.notice = "refreshing..."
		return b, b.resyncCmd(true)
	case "d", "D":
		b.handleDeleteStart()
	}
	return b, nil
}

func (b *Board) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		b.input.Blur()
		b.view = viewBoard
		b.setQuery(b.input.Value())
		return b, nil
	case keyEsc:
		b.input.Blur()
		b.view = viewBoard
		b.setQuery("")
		return b, nil
	}
	var cmd tea.Cmd
	b.input, cmd = b.input.Update(msg)
	b.setQuery(b.input.Value())
	return b, cmd
}

func (b *Board) handleDeleteStart() {
	if t := b.selectedTask(); t != nil {
		b.deleteID = t.ID
		b.deleteTitle = t.Title
		b.view = viewConfirmDelete
	}
}

func (b *Board) handleDeleteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		b.view = viewBoard
		return b, b.deleteCmd(b.deleteID, b.deleteTitle)
	case "n", "N", keyEsc, "q":
		b.view = viewBoard
	}
	return b, nil
}

func (b *Board) setQuery(q string) {
	if q == b.query {
		return
	}
	b.query = q
	b.activeRow = 0
	for i := range b.columns {
		b.columns[i].scrollOff = 0
	}
	b.loadTasks()
}

// reorder moves the selected task up (delta -1) or down (delta 1) past its
// visible neighbour.
func (b *Board) reorder(delta int) {
	col := b.currentColumn()
	sel := b.selectedTask()
	if col == nil || sel == nil {
		return
	}
	next := b.activeRow + delta
	if next < 0 || next >= len(col.tasks) {
		return
	}
	from := b.fullIndex(col.status, sel.ID)
	to := b.fullIndex(col.status, col.tasks[next].ID)
	if from < 0 || to < 0 {
		return
	}
	changed, err := b.engine.Move(board.MoveRequest{
		From: col.status, FromIndex: from, To: col.status, ToIndex: to, TaskID: sel.ID,
	})
	if b.report(err) {
		b.loadTasks()
		b.selectTask(sel.ID)
		return
	}
	b.logMove(sel, changed)
	b.loadTasks()
	b.selectTask(sel.ID)
}

// moveAcross moves the selected task into the neighbouring column, landing
// at the selected row or at the end of the shorter column.
func (b *Board) moveAcross(delta int) {
	sel := b.selectedTask()
	target := b.activeCol + delta
	if sel == nil || target < 0 || target >= len(b.columns) {
		return
	}
	src := b.columns[b.activeCol].status
	dst := b.columns[target]

	from := b.fullIndex(src, sel.ID)
	if from < 0 {
		return
	}
	to := len(board.GroupByStatus(b.snap.Snapshot(), board.SortByPosition)[dst.status])
	if b.activeRow < len(dst.tasks) {
		to = b.fullIndex(dst.status, dst.tasks[b.activeRow].ID)
	}

	changed, err := b.engine.Move(board.MoveRequest{
		From: src, FromIndex: from, To: dst.status, ToIndex: to, TaskID: sel.ID,
	})
	if b.report(err) {
		b.loadTasks()
		b.selectTask(sel.ID)
		return
	}
	b.logMove(sel, changed)
	b.activeCol = target
	b.loadTasks()
	b.selectTask(sel.ID)
}

// fullIndex returns the index of id within the unfiltered column, or -1.
func (b *Board) fullIndex(status task.Status, id string) int {
	col := board.GroupByStatus(b.snap.Snapshot(), board.SortByPosition)[status]
	return slices.IndexFunc(col, func(t *task.Task) bool { return t.ID == id })
}

// report shows err in the error toast. It returns true when err is set.
func (b *Board) report(err error) bool {
	if err == nil {
		b.err = nil
		return false
	}
	b.err = err
	b.notice = ""
	return true
}

func (b *Board) logMove(moved *task.Task, changed []*task.Task) {
	if b.opts.BoardDir == "" {
		return
	}
	for _, t := range changed {
		if t.ID == moved.ID {
			board.LogMutation(b.opts.BoardDir, "move", t.WorkspaceID, t.ID,
				fmt.Sprintf("%s -> %s#%d", moved.Status, t.Status, t.Position))
			return
		}
	}
}

func (b *Board) handleEvent(e dispatch.Event) {
	switch e.Kind {
	case dispatch.EventFailed:
		if !errors.Is(e.Err, dispatch.ErrClosed) {
			b.err = fmt.Errorf("saving %s failed: %w", shortID(e.Update.TaskID), e.Err)
		}
	case dispatch.EventResyncFailed:
		b.err = fmt.Errorf("reloading board: %w", e.Err)
	case dispatch.EventResynced:
		b.notice = "board reloaded after a failed save"
	}
	b.loadTasks()
}

// --- Backend commands ---

type resyncedMsg struct {
	tasks   []*task.Task
	err     error
	compact bool
}

type deletedMsg struct {
	id    string
	title string
	err   error
}

func (b *Board) resyncCmd(compact bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), b.opts.Timeout)
		defer cancel()
		tasks, err := b.svc.ListTasks(ctx, b.snap.Workspace())
		return resyncedMsg{tasks: tasks, err: err, compact: compact}
	}
}

func (b *Board) applyResync(msg resyncedMsg) {
	b.notice = ""
	if msg.err != nil {
		b.err = fmt.Errorf("reloading board: %w", msg.err)
		return
	}
	b.snap.Resync(msg.tasks, b.opts.Pinned)
	b.err = nil

	if msg.compact && access.CanReorder(b.engine.Role()) {
		changed, err := b.engine.CompactAll()
		if err != nil {
			b.err = err
		} else if len(changed) > 0 {
			b.notice = fmt.Sprintf("repaired %d positions", len(changed))
			if b.opts.BoardDir != "" {
				board.LogMutation(b.opts.BoardDir, "compact", b.snap.Workspace(), "",
					fmt.Sprintf("%d tasks", len(changed)))
			}
		}
	}
	b.opts.Logger.WithField("tasks", len(msg.tasks)).Debug("board reloaded")
	b.loadTasks()
}

func (b *Board) deleteCmd(id, title string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), b.opts.Timeout)
		defer cancel()
		_, err := b.engine.Delete(ctx, id)
		return deletedMsg{id: id, title: title, err: err}
	}
}

func (b *Board) applyDelete(msg deletedMsg) {
	if b.report(msg.err) {
		return
	}
	if b.opts.BoardDir != "" {
		board.LogMutation(b.opts.BoardDir, "delete", b.snap.Workspace(), msg.id, msg.title)
	}
	b.loadTasks()
}

// loadTasks rebuilds the columns from the snapshot, applying the search
// query. Scroll offsets survive the rebuild.
func (b *Board) loadTasks() {
	visible := b.search.Search(b.query)
	cols := board.GroupByStatus(visible, board.SortByPosition)

	statuses := task.Statuses()
	prev := b.columns
	b.columns = make([]column, len(statuses))
	for i, s := range statuses {
		b.columns[i] = column{status: s, tasks: cols[s]}
		if i < len(prev) {
			b.columns[i].scrollOff = prev[i].scrollOff
		}
	}

	b.total = b.snap.Len()
	b.dirty = make(map[string]bool)
	for _, id := range b.snap.Dirty() {
		b.dirty[id] = true
	}
	b.clampRow()
}

func (b *Board) selectTask(id string) {
	for ci, col := range b.columns {
		for ri, t := range col.tasks {
			if t.ID == id {
				b.activeCol, b.activeRow = ci, ri
				b.ensureVisible()
				return
			}
		}
	}
	b.clampRow()
}

func (b *Board) currentColumn() *column {
	if b.activeCol >= 0 && b.activeCol < len(b.columns) {
		return &b.columns[b.activeCol]
	}
	return nil
}

func (b *Board) selectedTask() *task.Task {
	col := b.currentColumn()
	if col == nil || len(col.tasks) == 0 {
		return nil
	}
	if b.activeRow >= 0 && b.activeRow < len(col.tasks) {
		return col.tasks[b.activeRow]
	}
	return nil
}

func (b *Board) clampRow() {
	col := b.currentColumn()
	if col == nil || len(col.tasks) == 0 {
		b.activeRow = 0
		return
	}
	if b.activeRow >= len(col.tasks) {
		b.activeRow = len(col.tasks) - 1
	}
	b.ensureVisible()
}

// chromeHeight returns the number of lines consumed by non-card elements below
// the column area: blank line + status bar (+ error line when an error is shown).
func (b *Board) chromeHeight() int {
	h := boardChrome
	if b.err != nil {
		h += errorChrome
	}
	return h
}

// visibleCardsForColumn returns the number of cards that fit in the column,
// accounting for scroll indicator lines ("↑ N more" / "↓ N more") that
// consume vertical space.
func (b *Board) visibleCardsForColumn(col *column, width int) int {
	budget := b.height - b.chromeHeight()
	if budget < 1 {
		return 1
	}

	// Always need 1 line for column header.
	avail := budget - 1

	if col.scrollOff > 0 {
		avail--
	}

	n := b.fitCardsInHeight(col, avail, width)

	if col.scrollOff+n < len(col.tasks) {
		n = b.fitCardsInHeight(col, avail-1, width)
		if n < 1 {
			n = 1
		}
	}

	return n
}

// ensureVisible adjusts the active column's scroll offset so the
// selected row is within the visible window.
func (b *Board) ensureVisible() {
	col := b.currentColumn()
	if col == nil {
		return
	}
	if col.scrollOff > len(col.tasks) {
		col.scrollOff = 0
	}
	if b.height == 0 {
		return
	}
	w := b.columnWidth()

	for range len(col.tasks) + 1 {
		maxVis := b.visibleCardsForColumn(col, w)

		switch {
		case b.activeRow >= col.scrollOff+maxVis:
			col.scrollOff = b.activeRow - maxVis + 1
		case b.activeRow < col.scrollOff:
			col.scrollOff = b.activeRow
		default:
			return
		}
	}
}

func (b *Board) fitCardsInHeight(col *column, avail, width int) int {
	if len(col.tasks) == 0 || avail < 1 {
		return 1
	}

	used := 0
	count := 0
	for i := col.scrollOff; i < len(col.tasks); i++ {
		cardLines := b.cardHeight(col.tasks[i], width)
		if count > 0 && used+cardLines > avail {
			break
		}
		count++
		used += cardLines
		if used >= avail {
			break
		}
	}

	if count < 1 {
		return 1
	}
	return count
}

// --- Messages ---

// ReloadMsg is sent by the file watcher when tasks changed on disk. The
// board refetches them from the backend.
type ReloadMsg struct{}

// EventMsg carries a dispatcher event into the program.
type EventMsg struct {
	Event dispatch.Event
}

// TickMsg is sent periodically to refresh age displays.
type TickMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg { return TickMsg{} })
}
