// Package tui is Vertex's terminal control surface: a tview/tcell
// application that drives a debugger.Worker and renders the shared
// state the core packages already expose (disassembly window,
// breakpoint/watchpoint registries, address monitor, scan controller)
// through the event bus's coalesced view-update flags.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/hexwalker/vertex/debugger"
	"github.com/hexwalker/vertex/disasm"
	"github.com/hexwalker/vertex/eventbus"
	"github.com/hexwalker/vertex/monitor"
	"github.com/hexwalker/vertex/plugin"
	"github.com/hexwalker/vertex/scancontrol"
)

// App is the TUI's root: one tview.Application plus the panel set it
// refreshes from a coalesced set of dirty flags rather than redrawing
// everything on every event.
type App struct {
	Worker  *debugger.Worker
	Window  *disasm.Window
	BPs     *debugger.BreakpointRegistry
	WPs     *debugger.WatchpointRegistry
	BPCtl   *debugger.BreakpointController
	WPCtl   *debugger.WatchpointController
	Mon     *monitor.Monitor
	Scan    *scancontrol.Controller
	Gw      *plugin.Gateway
	Bus     *eventbus.Bus
	History *debugger.CommandHistory

	coalescer *eventbus.ViewCoalescer

	App   *tview.Application
	Pages *tview.Pages

	MainLayout *tview.Flex
	LeftPanel  *tview.Flex
	RightPanel *tview.Flex

	DisassemblyView *tview.TextView
	RegisterView    *tview.TextView
	BreakpointsView *tview.TextView
	MonitorView     *tview.TextView
	ScanView        *tview.TextView
	StatusView      *tview.TextView
	OutputView      *tview.TextView
	CommandInput    *tview.InputField
}

// NewApp wires an App around an already-constructed worker and its
// supporting registries. Scan may be nil when no scan session has been
// started yet: the scan panel degrades to "no active scan".
func NewApp(w *debugger.Worker, win *disasm.Window, bps *debugger.BreakpointRegistry, wps *debugger.WatchpointRegistry, mon *monitor.Monitor, scan *scancontrol.Controller, gw *plugin.Gateway, bus *eventbus.Bus) *App {
	a := &App{
		Worker:    w,
		Window:    win,
		BPs:       bps,
		WPs:       wps,
		BPCtl:     debugger.NewBreakpointController(gw, bps),
		WPCtl:     debugger.NewWatchpointController(gw, wps),
		Mon:       mon,
		Scan:      scan,
		Gw:        gw,
		Bus:       bus,
		History:   debugger.NewCommandHistory(),
		coalescer: eventbus.NewViewCoalescer(),
		App:       tview.NewApplication(),
	}
	a.coalescer.Subscribe(bus, "tui")
	a.initializeViews()
	a.buildLayout()
	a.setupKeyBindings()
	return a
}

func (a *App) initializeViews() {
	a.DisassemblyView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetWrap(false)
	a.DisassemblyView.SetBorder(true).SetTitle(" Disassembly ")

	a.RegisterView = tview.NewTextView().SetDynamicColors(true).SetScrollable(false)
	a.RegisterView.SetBorder(true).SetTitle(" Registers ")

	a.BreakpointsView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetWrap(false)
	a.BreakpointsView.SetBorder(true).SetTitle(" Breakpoints/Watchpoints ")

	a.MonitorView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetWrap(false)
	a.MonitorView.SetBorder(true).SetTitle(" Saved Addresses ")

	a.ScanView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetWrap(false)
	a.ScanView.SetBorder(true).SetTitle(" Scan ")

	a.StatusView = tview.NewTextView().SetDynamicColors(true)
	a.StatusView.SetBorder(true).SetTitle(" State ")

	a.OutputView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetWrap(true)
	a.OutputView.SetBorder(true).SetTitle(" Output ")

	a.CommandInput = tview.NewInputField().SetLabel("> ").SetFieldWidth(0)
	a.CommandInput.SetBorder(true).SetTitle(" Command ")
	a.CommandInput.SetDoneFunc(a.handleCommand)
	a.CommandInput.SetInputCapture(a.handleCommandInputKeys)
}

// handleCommandInputKeys recalls prior commands on Up/Down, leaving
// every other key to the input field's default handling.
func (a *App) handleCommandInputKeys(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyUp:
		if cmd := a.History.Previous(); cmd != "" {
			a.CommandInput.SetText(cmd)
		}
		return nil
	case tcell.KeyDown:
		a.CommandInput.SetText(a.History.Next())
		return nil
	default:
		return event
	}
}

func (a *App) buildLayout() {
	a.LeftPanel = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.DisassemblyView, 0, 3, false).
		AddItem(a.ScanView, 0, 2, false)

	rightTop := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.StatusView, 3, 0, false).
		AddItem(a.RegisterView, 10, 0, false).
		AddItem(a.MonitorView, 0, 1, false)

	a.RightPanel = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(rightTop, 0, 3, false).
		AddItem(a.BreakpointsView, 8, 0, false)

	mainContent := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.LeftPanel, 0, 2, false).
		AddItem(a.RightPanel, 0, 1, false)

	a.MainLayout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(mainContent, 0, 4, false).
		AddItem(a.OutputView, 6, 0, false).
		AddItem(a.CommandInput, 3, 0, true)

	a.Pages = tview.NewPages().AddPage("main", a.MainLayout, true, true)
}

func (a *App) setupKeyBindings() {
	a.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF5:
			a.dispatch(debugger.Continue())
			return nil
		case tcell.KeyF9:
			a.dispatch(debugger.Pause())
			return nil
		case tcell.KeyF10:
			a.dispatch(debugger.StepOver())
			return nil
		case tcell.KeyF11:
			a.dispatch(debugger.StepInto())
			return nil
		case tcell.KeyCtrlC:
			a.App.Stop()
			return nil
		case tcell.KeyCtrlL:
			a.RefreshAll()
			return nil
		}
		return event
	})
}

func (a *App) dispatch(cmd debugger.Command) {
	a.Worker.Submit(cmd)
}

func (a *App) handleCommand(key tcell.Key) {
	if key != tcell.KeyEnter {
		return
	}
	line := a.CommandInput.GetText()
	a.CommandInput.SetText("")
	if line == "" {
		return
	}
	a.History.Add(line)
	if err := a.execute(line); err != nil {
		a.WriteOutput(fmt.Sprintf("[red]error:[white] %v\n", err))
	}
	a.RefreshAll()
}

// WriteOutput appends text to the output view and scrolls to it.
func (a *App) WriteOutput(text string) {
	fmt.Fprint(a.OutputView, text)
	a.OutputView.ScrollToEnd()
}

// PumpEvents drains the worker's event channel and the bus's
// view-update coalescer onto the tview draw queue until ctx is done.
// Call it in its own goroutine alongside App.Run.
func (a *App) PumpEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.Worker.Events():
			if !ok {
				return
			}
			a.handleWorkerEvent(ev)
		}
	}
}

func (a *App) handleWorkerEvent(ev debugger.Event) {
	switch ev.Kind {
	case debugger.EventOutputString:
		a.App.QueueUpdateDraw(func() { a.WriteOutput(ev.Text) })
		return
	case debugger.EventError:
		a.App.QueueUpdateDraw(func() { a.WriteOutput(fmt.Sprintf("[red]error:[white] %s\n", ev.Text)) })
		return
	}
	a.App.QueueUpdateDraw(a.RefreshAll)
}

// RefreshAll redraws every panel whose flag was set since the last
// drain, or all of them when no flag is pending.
func (a *App) RefreshAll() {
	flags := a.coalescer.Drain()
	all := flags == 0

	if all || flags.Has(eventbus.FlagDisassembly) {
		a.updateDisassembly()
	}
	if all || flags.Has(eventbus.FlagRegisters) {
		a.updateRegisters()
	}
	if all || flags.Has(eventbus.FlagBreakpoints) || flags.Has(eventbus.FlagWatchpoints) {
		a.updateBreakpoints()
	}
	if all || flags.Has(eventbus.FlagMemory) {
		a.updateMonitor()
	}
	if all || flags.Has(eventbus.FlagScanProgress) || flags.Has(eventbus.FlagScannedValues) {
		a.updateScan()
	}
	if all || flags.Has(eventbus.FlagState) {
		a.updateStatus()
	}
	a.App.Draw()
}

func (a *App) updateDisassembly() {
	lines := a.Window.Lines()
	var b strings.Builder
	for _, l := range lines {
		marker := "  "
		if l.IsCurrent {
			marker = "> "
		}
		if a.BPs != nil && a.BPs.HasBreakpointAt(l.Address) {
			marker = "* "
		}
		fmt.Fprintf(&b, "%s0x%08X  %-8s %s\n", marker, l.Address, l.Mnemonic, l.Operands)
	}
	a.DisassemblyView.SetText(b.String())
}

func (a *App) updateRegisters() {
	if a.Gw == nil {
		return
	}
	tid, err := a.Gw.CurrentThread(context.Background())
	var regs map[string]uint64
	if err == nil {
		regs, err = a.Gw.Registers(context.Background(), tid)
	}
	if err != nil {
		a.RegisterView.SetText(fmt.Sprintf("[red]%v[white]", err))
		return
	}
	names := make([]string, 0, len(regs))
	for name := range regs {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%-4s 0x%016X\n", name, regs[name])
	}
	a.RegisterView.SetText(b.String())
}

func (a *App) updateBreakpoints() {
	var lines []string
	if a.BPs != nil {
		bps := a.BPs.All()
		if len(bps) == 0 {
			lines = append(lines, "[yellow]no breakpoints[white]")
		}
		for _, bp := range bps {
			lines = append(lines, fmt.Sprintf("  %d: [%s]%s[white] 0x%08X (hits: %d)", bp.ID, stateColor(bp.State), bp.State, bp.Address, bp.HitCount))
		}
	}
	if a.WPs != nil {
		wps := a.WPs.All()
		if len(wps) > 0 {
			lines = append(lines, "")
			lines = append(lines, "[yellow]watchpoints:[white]")
			for _, wp := range wps {
				lines = append(lines, fmt.Sprintf("  %d: %s 0x%08X size=%d (hits: %d)", wp.ID, wp.Kind, wp.Address, wp.Size, wp.HitCount))
			}
		}
	}
	a.BreakpointsView.SetText(strings.Join(lines, "\n"))
}

func stateColor(s debugger.BreakpointState) string {
	switch s {
	case debugger.BreakpointEnabled:
		return "green"
	case debugger.BreakpointError:
		return "red"
	default:
		return "white"
	}
}

func (a *App) updateMonitor() {
	if a.Mon == nil {
		a.MonitorView.SetText("[yellow]no monitor[white]")
		return
	}
	addrs := a.Mon.All()
	if len(addrs) == 0 {
		a.MonitorView.SetText("[yellow]no saved addresses[white]")
		return
	}
	var b strings.Builder
	for _, sa := range addrs {
		frozen := ""
		if sa.Frozen {
			frozen = " [red]F[white]"
		}
		fmt.Fprintf(&b, "0x%08X = %s%s\n", sa.Address, sa.FormattedValue, frozen)
	}
	a.MonitorView.SetText(b.String())
}

func (a *App) updateScan() {
	if a.Scan == nil {
		a.ScanView.SetText("[yellow]no active scan[white]")
		return
	}
	stats := a.Scan.Stats()
	status := "running"
	if stats.Complete {
		status = "complete"
	}
	a.ScanView.SetText(fmt.Sprintf("iteration %d: %d result(s) (%s)", stats.Iteration, stats.ResultCount, status))
}

func (a *App) updateStatus() {
	a.StatusView.SetText(fmt.Sprintf("[green]%s[white]", a.Worker.State()))
}

// Run starts the application's draw loop; it blocks until Stop or a
// fatal error.
func (a *App) Run() error {
	a.RefreshAll()
	a.WriteOutput("[green]Vertex[white]\n")
	a.WriteOutput("F5 continue, F9 pause, F10 step over, F11 step into, type 'help' for commands\n\n")
	return a.App.SetRoot(a.Pages, true).SetFocus(a.CommandInput).Run()
}

// Stop stops the application's draw loop.
func (a *App) Stop() { a.App.Stop() }
