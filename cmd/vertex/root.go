package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hexwalker/vertex/internal/vlog"
	"github.com/hexwalker/vertex/plugin"
	"github.com/hexwalker/vertex/plugin/mockplugin"
	"github.com/hexwalker/vertex/settings"
)

var (
	settingsPath string
	pluginName   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vertex",
		Short:         "Vertex process-inspection toolkit",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&settingsPath, "settings", "", "path to settings.json (default: platform config dir)")
	root.PersistentFlags().StringVar(&pluginName, "plugin", "mock", "plugin driver to load (only \"mock\" ships built in; a real OS loader is out of scope)")

	root.AddCommand(
		newAttachCmd(),
		newScanCmd(),
		newConfigCmd(),
		newVersionCmd(),
		newTUICmd(),
	)
	return root
}

// loadSettings resolves --settings (or the platform default) and
// configures logging from general.enableLogging before returning the
// store.
func loadSettings() (*settings.Store, error) {
	path := settingsPath
	if path == "" {
		path = settings.DefaultPath()
	}
	s, err := settings.Load(path)
	if err != nil {
		return nil, err
	}
	vlog.Configure(os.Stderr, s.GetBool("general.enableLogging"), slog.LevelInfo)
	return s, nil
}

// openPlugin resolves --plugin into a gateway. "mock" is the only
// built-in driver; a real OS loader (dlopen/LoadLibrary against a
// plugin satisfying the ABI) is out of scope.
func openPlugin() (*plugin.Gateway, error) {
	switch pluginName {
	case "mock", "":
		proc := mockplugin.NewProcess()
		return plugin.NewGateway(proc.VTable()), nil
	default:
		return nil, fmt.Errorf("unknown --plugin %q: only \"mock\" ships built in", pluginName)
	}
}
