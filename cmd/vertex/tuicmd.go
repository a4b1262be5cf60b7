package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hexwalker/vertex/debugger"
	"github.com/hexwalker/vertex/disasm"
	"github.com/hexwalker/vertex/dispatch"
	"github.com/hexwalker/vertex/eventbus"
	"github.com/hexwalker/vertex/monitor"
	"github.com/hexwalker/vertex/tui"
)

func newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Launch the terminal control surface without an explicit attach",
		Long: "TUI drives the debugger worker and its supporting views through a " +
			"tview/tcell terminal application. Equivalent to `attach` with an " +
			"arbitrary pid, provided for browsing the mock driver's state without " +
			"picking one. A real OS plugin loader is not included.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadSettings(); err != nil {
				return err
			}

			gw, err := openPlugin()
			if err != nil {
				return err
			}
			bps := debugger.NewBreakpointRegistry()
			wps := debugger.NewWatchpointRegistry()
			worker := debugger.NewWorker(gw, bps, wps)
			win := disasm.New(gw)

			disp := dispatch.New(false)
			if err := disp.CreateChannel(dispatch.ChannelFreeze); err != nil {
				return err
			}
			mon := monitor.New(gw, dispatch.FreezeAdapter{D: disp, Channel: dispatch.ChannelFreeze})

			bus := eventbus.New()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			go worker.Run(ctx)
			mon.StartFreezeLoop(ctx)
			defer mon.StopFreezeLoop()

			app := tui.NewApp(worker, win, bps, wps, mon, nil, gw, bus)
			go app.PumpEvents(ctx)

			return app.Run()
		},
	}
}
