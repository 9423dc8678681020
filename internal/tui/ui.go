// Package tui implements the interactive process watch list: a live table
// of every process the cleanup signature currently matches, with manual
// termination bound to a key.
package tui

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.abhg.dev/log/silog"

	"github.com/Paintersrp/leash/internal/reap"
	"github.com/Paintersrp/leash/internal/track"
)

const (
	tableTitle      = "Leaked process candidates"
	defaultInterval = time.Second
)

// Lister enumerates the current sweep candidates.
type Lister func() ([]reap.Process, error)

// Killer terminates one candidate.
type Killer func(ctx context.Context, pid int) track.Result

// Option configures the UI.
type Option func(*UI)

// WithInterval sets the refresh interval for the table.
func WithInterval(d time.Duration) Option {
	return func(u *UI) {
		if d > 0 {
			u.interval = d
		}
	}
}

// WithLogger routes UI diagnostics to the given logger.
func WithLogger(log *silog.Logger) Option {
	return func(u *UI) {
		if log != nil {
			u.log = log
		}
	}
}

// UI coordinates the interactive watch interface backed by tview.
type UI struct {
	app    *tview.Application
	table  *tview.Table
	status *tview.TextView

	list     Lister
	kill     Killer
	interval time.Duration
	log      *silog.Logger

	mu    sync.Mutex
	procs []reap.Process

	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a UI over the given lister and killer.
func New(list Lister, kill Killer, opts ...Option) *UI {
	app := tview.NewApplication()
	table := tview.NewTable().SetFixed(1, 0).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(tableTitle)

	status := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	status.SetText("[::b]k[::-] terminate selected   [::b]r[::-] refresh   [::b]q[::-] quit")

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 1, true).
		AddItem(status, 1, 0, false)

	ui := &UI{
		app:      app,
		table:    table,
		status:   status,
		list:     list,
		kill:     kill,
		interval: defaultInterval,
		log:      silog.Nop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ui)
	}

	app.SetRoot(flex, true)
	app.SetInputCapture(ui.handleKey)

	ui.refresh()
	return ui
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Run drives the application loop until Stop is invoked or the context is
// cancelled.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(u.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-u.done:
				return
			case <-ticker.C:
				// Table mutations must happen on the event loop.
				u.app.QueueUpdateDraw(u.refresh)
			}
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			u.Stop()
		case <-u.done:
		}
	}()

	err := u.app.Run()
	u.Stop()
	return err
}

// Stop terminates the application loop.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		close(u.done)
		u.app.Stop()
	})
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() != tcell.KeyRune {
		return event
	}
	switch event.Rune() {
	case 'q':
		u.Stop()
		return nil
	case 'r':
		u.refresh()
		return nil
	case 'k':
		u.killSelected()
		return nil
	}
	return event
}

func (u *UI) killSelected() {
	row, _ := u.table.GetSelection()
	u.mu.Lock()
	var target *reap.Process
	if row >= 1 && row <= len(u.procs) {
		p := u.procs[row-1]
		target = &p
	}
	u.mu.Unlock()
	if target == nil {
		return
	}

	go func(p reap.Process) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		res := u.kill(ctx, p.PID)
		u.log.Info("manual terminate", "pid", p.PID, "outcome", res.Outcome)
		u.app.QueueUpdateDraw(u.refresh)
	}(*target)
}

func (u *UI) refresh() {
	procs, err := u.list()
	if err != nil {
		u.log.Warn("process list failed", "error", err)
		return
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })

	u.mu.Lock()
	u.procs = procs
	u.renderLocked()
	u.mu.Unlock()
}

func (u *UI) renderLocked() {
	u.table.Clear()
	for col, header := range []string{"PID", "USER", "COMMAND"} {
		cell := tview.NewTableCell(header).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false)
		u.table.SetCell(0, col, cell)
	}
	for i, p := range u.procs {
		u.table.SetCell(i+1, 0, tview.NewTableCell(fmt.Sprintf("%d", p.PID)))
		u.table.SetCell(i+1, 1, tview.NewTableCell(p.User))
		u.table.SetCell(i+1, 2, tview.NewTableCell(tview.Escape(p.Command)).SetExpansion(1))
	}
	u.table.SetTitle(fmt.Sprintf("%s (%d)", tableTitle, len(u.procs)))
}

// Snapshot returns the rows currently displayed, for tests.
func (u *UI) Snapshot() []reap.Process {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]reap.Process(nil), u.procs...)
}
