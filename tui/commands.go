package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hexwalker/vertex/debugger"
	"github.com/hexwalker/vertex/plugin"
)

// execute parses one typed command line and dispatches it: tokenize,
// lowercase the verb, switch on it.
func (a *App) execute(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "h":
		a.WriteOutput(helpText)
		return nil
	case "attach":
		a.dispatch(debugger.Attach())
		return nil
	case "detach":
		a.dispatch(debugger.Detach())
		return nil
	case "continue", "c":
		a.dispatch(debugger.Continue())
		return nil
	case "pause":
		a.dispatch(debugger.Pause())
		return nil
	case "step", "si":
		a.dispatch(debugger.StepInto())
		return nil
	case "next", "n":
		a.dispatch(debugger.StepOver())
		return nil
	case "finish":
		a.dispatch(debugger.StepOut())
		return nil
	case "goto":
		addr, err := parseAddr(args)
		if err != nil {
			return err
		}
		a.dispatch(debugger.RunToAddress(addr))
		return nil
	case "break", "b":
		return a.cmdBreak(args)
	case "delete", "d":
		return a.cmdDeleteBreak(args)
	case "watch", "w":
		return a.cmdWatch(args)
	case "disasm", "u":
		return a.cmdDisasm(args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *App) cmdBreak(args []string) error {
	addr, err := parseAddr(args)
	if err != nil {
		return err
	}
	if a.BPCtl == nil {
		return fmt.Errorf("no active breakpoint controller")
	}
	bp, err := a.BPCtl.Set(context.Background(), addr, plugin.BreakpointExecute)
	if err != nil {
		return err
	}
	a.WriteOutput(fmt.Sprintf("breakpoint %d set at 0x%08X\n", bp.ID, addr))
	return nil
}

func (a *App) cmdDeleteBreak(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <id>")
	}
	id, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid id %q", args[0])
	}
	if a.BPCtl == nil {
		return fmt.Errorf("no active breakpoint controller")
	}
	return a.BPCtl.Remove(context.Background(), uint32(id))
}

func (a *App) cmdWatch(args []string) error {
	addr, err := parseAddr(args)
	if err != nil {
		return err
	}
	if a.WPCtl == nil {
		return fmt.Errorf("no active watchpoint controller")
	}
	wp, err := a.WPCtl.Set(context.Background(), addr, 4, plugin.WatchWrite)
	if err != nil {
		return err
	}
	a.WriteOutput(fmt.Sprintf("watchpoint %d set at 0x%08X\n", wp.ID, addr))
	return nil
}

func (a *App) cmdDisasm(args []string) error {
	addr, err := parseAddr(args)
	if err != nil {
		return err
	}
	return a.Window.DisassembleAt(context.Background(), addr)
}

func parseAddr(args []string) (uint64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: <cmd> <address>")
	}
	return strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 64)
}

const helpText = `commands:
  attach / detach
  continue (c) / pause / step (si) / next (n) / finish
  goto <addr>
  break (b) <addr> / delete (d) <id>
  watch (w) <addr>
  disasm (u) <addr>

up/down arrows recall previous commands
`
