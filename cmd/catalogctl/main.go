// cmd/catalogctl/main.go

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aviutl2catalog/catalog/pkg/version"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	catalog    string
	root       string
	portable   bool
	dev        bool
	verbose    int
	plain      bool
}

var opts globalOptions

// globalFlags registers the shared flags on their own set so the root command
// can adopt them as persistent flags.
func globalFlags(o *globalOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("global", pflag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Path to config.yaml (defaults to the user config dir).")
	fs.StringVar(&o.catalog, "catalog", "", "Path to the catalog index JSON (overrides CatalogPath).")
	fs.StringVar(&o.root, "root", "", "AviUtl2 install root (overrides AviUtl2Root).")
	fs.BoolVar(&o.portable, "portable", false, "Treat the install root as a portable installation.")
	fs.BoolVar(&o.dev, "dev", false, "Keep working directories after each run.")
	fs.CountVarP(&o.verbose, "verbose", "v", "Increase verbosity (e.g. -v, -vv).")
	fs.BoolVar(&o.plain, "plain", false, "Print progress as lines instead of a live bar.")
	return fs
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "catalogctl",
		Short: "Install, update and remove AviUtl2 catalog packages",
		Long: `catalogctl runs the installer and uninstaller steps declared by
AviUtl2 catalog packages without the desktop app.

Examples:
  catalogctl install Kenkun.AviUtlExEdit2
  catalogctl update --all
  catalogctl detect`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().AddFlagSet(globalFlags(&opts))

	root.AddCommand(
		newInstallCmd(),
		newUninstallCmd(),
		newUpdateCmd(),
		newDetectCmd(),
		newCleanCmd(),
		newTelemetryCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version and exit",
			Run: func(cmd *cobra.Command, args []string) {
				if opts.verbose > 0 {
					version.PrintFull()
					return
				}
				version.Print()
			},
		},
	)
	return root
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle system signals for graceful shutdown.
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-signalChan
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}
