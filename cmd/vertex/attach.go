package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hexwalker/vertex/debugger"
	"github.com/hexwalker/vertex/disasm"
	"github.com/hexwalker/vertex/dispatch"
	"github.com/hexwalker/vertex/eventbus"
	"github.com/hexwalker/vertex/monitor"
	"github.com/hexwalker/vertex/tui"
)

// attachTimeout bounds how long the CLI waits for the worker to report
// Attached before giving up; the worker itself has no such bound, this
// is purely a CLI usability limit.
const attachTimeout = 5 * time.Second

func newAttachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach <pid>",
		Short: "Attach the debugger worker to a target process",
		Long: "Attach drives the debugger worker's state machine through Attach, " +
			"then drops into the TUI control surface. This command runs against " +
			"the built-in mock process driver so the command/event plumbing can " +
			"be exercised end to end; a real OS plugin loader is not included.",
		Args: cobra.ExactArgs(1),
		RunE: runAttach,
	}
	cmd.Flags().Bool("no-tui", false, "attach and report state without launching the TUI")
	return cmd
}

func runAttach(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid pid %q: %w", args[0], err)
	}

	if _, err := loadSettings(); err != nil {
		return err
	}

	gw, err := openPlugin()
	if err != nil {
		return err
	}
	if missing := gw.Features().Missing(); len(missing) > 0 {
		fmt.Printf("plugin lacks: %s\n", strings.Join(missing, ", "))
	}
	bps := debugger.NewBreakpointRegistry()
	wps := debugger.NewWatchpointRegistry()
	worker := debugger.NewWorker(gw, bps, wps)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go worker.Run(ctx)

	worker.Submit(debugger.Attach())

	deadline := time.Now().Add(attachTimeout)
	for worker.State() != debugger.StateAttached {
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out attaching to pid %d, state = %v", pid, worker.State())
		}
		time.Sleep(time.Millisecond)
	}
	fmt.Printf("attached to pid %d, state = %v\n", pid, worker.State())

	if noTUI, _ := cmd.Flags().GetBool("no-tui"); noTUI {
		return nil
	}

	win := disasm.New(gw)

	disp := dispatch.New(false)
	if err := disp.CreateChannel(dispatch.ChannelFreeze); err != nil {
		return err
	}
	mon := monitor.New(gw, dispatch.FreezeAdapter{D: disp, Channel: dispatch.ChannelFreeze})

	bus := eventbus.New()
	mon.StartFreezeLoop(ctx)
	defer mon.StopFreezeLoop()

	app := tui.NewApp(worker, win, bps, wps, mon, nil, gw, bus)
	go app.PumpEvents(ctx)
	return app.Run()
}
