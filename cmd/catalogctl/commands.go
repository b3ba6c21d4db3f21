// cmd/catalogctl/commands.go

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
	"github.com/aviutl2catalog/catalog/pkg/filter"
	"github.com/aviutl2catalog/catalog/pkg/installer"
	"github.com/aviutl2catalog/catalog/pkg/logging"
	"github.com/aviutl2catalog/catalog/pkg/process"
	"github.com/aviutl2catalog/catalog/pkg/progress"
	"github.com/aviutl2catalog/catalog/pkg/state"
	"github.com/aviutl2catalog/catalog/pkg/status"
)

// withApp builds the app for one command and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(opts)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, a, args)
	}
}

// runEach runs fn for every item behind one progress view and stops at the
// first failure.
func runEach(ctx context.Context, a *app, title string, items []catalog.Item, fn func(context.Context, catalog.Item, installer.RunOptions) error) error {
	return runWithProgress(ctx, title, opts.plain || color.NoColor, func(ctx context.Context, r reporter) error {
		a.fetcher.label = r.detail
		defer func() { a.fetcher.label = nil }()
		for _, it := range items {
			ro := installer.RunOptions{
				OnProgress: func(rec progress.Record) {
					r.progress(rec.Ratio, fmt.Sprintf("%s: %s", it.ID, rec.Label))
				},
				OnDetected: func(id, v string) {
					if v == "" {
						v = "not detected"
					}
					r.detail(fmt.Sprintf("%s is now %s", id, v))
				},
			}
			if err := fn(ctx, it, ro); err != nil {
				return err
			}
		}
		return nil
	})
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install <package-id>...",
		Short: "Install packages at their latest catalog version",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			items, err := a.find(args)
			if err != nil {
				return err
			}
			return runEach(cmd.Context(), a, "Installing", items, a.engine.Install)
		}),
	}
}

func newUninstallCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "uninstall <package-id>...",
		Aliases: []string{"remove"},
		Short:   "Remove packages, running their uninstall steps when they declare any",
		Args:    cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			items, err := a.find(args)
			if err != nil {
				return err
			}
			if !yes && !confirm(fmt.Sprintf("Remove %s", strings.Join(args, ", "))) {
				return fmt.Errorf("cancelled; pass --yes to remove without asking")
			}
			return runEach(cmd.Context(), a, "Removing", items, a.engine.Remove)
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation.")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var all bool
	sel := filter.NewItemFilter()
	cmd := &cobra.Command{
		Use:   "update [package-id...]",
		Short: "Update installed packages that are behind the catalog",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("name packages to update or pass --all")
			}
			candidates := sel.Apply(a.items)
			if !all {
				var err error
				if candidates, err = a.find(args); err != nil {
					return err
				}
			}
			installed, err := a.store.All()
			if err != nil {
				return err
			}
			targets := process.Updatable(candidates, installed, a.detector.DetectVersions(candidates))
			if len(targets) == 0 {
				fmt.Println("Everything is up to date.")
				return nil
			}

			var report process.Report
			err = runWithProgress(cmd.Context(), "Updating", opts.plain || color.NoColor, func(ctx context.Context, r reporter) error {
				a.fetcher.label = r.detail
				defer func() { a.fetcher.label = nil }()
				report = process.UpdateAll(ctx, a.engine, targets, func(p process.Progress) {
					r.progress(p.Ratio, p.Label)
				})
				return nil
			})
			if err != nil {
				return err
			}
			failed := report.Failed()
			for _, res := range failed {
				fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("✗"), res.ID, res.Err)
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d updates failed", len(failed), len(report.Results))
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "Update every installed package that has a newer version.")
	sel.RegisterFlags(cmd.Flags())
	return cmd
}

type detectRow struct {
	ID        string `json:"id"`
	Installed string `json:"installed,omitempty"`
	Detected  string `json:"detected"`
	Latest    string `json:"latest"`
	Status    string `json:"status"`
}

func newDetectCmd() *cobra.Command {
	var asJSON bool
	sel := filter.NewItemFilter()
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect installed package versions from file digests",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			detected := a.detector.DetectVersions(a.items)
			if err := a.telemetry.Snapshot(detected); err != nil {
				logging.Warn("[package-state] snapshot failed", "error", err)
			}
			installed, err := a.store.All()
			if err != nil {
				return err
			}
			recorded := map[string]state.Annotated{}
			for _, an := range state.Annotate(installed, detected) {
				recorded[an.ID] = an
			}

			var rows []detectRow
			for _, it := range sel.Apply(a.items) {
				row := detectRow{
					ID:        it.ID,
					Installed: recorded[it.ID].Installed,
					Detected:  detected[it.ID],
					Latest:    it.LatestVersionOf(),
				}
				switch {
				case row.Detected == "":
					if row.Installed == "" {
						continue
					}
					row.Status = "missing"
				case status.IsLatest(it, row.Detected):
					row.Status = "latest"
				case status.UpdateAvailable(it, row.Detected):
					row.Status = "update available"
				default:
					row.Status = "newer than catalog"
				}
				rows = append(rows, row)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			if len(rows) == 0 {
				fmt.Println("No catalog packages detected.")
				return nil
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Package", "Recorded", "Detected", "Latest", "Status"})
			for _, row := range rows {
				st := row.Status
				switch st {
				case "latest":
					st = color.GreenString(st)
				case "update available":
					st = color.YellowString(st)
				case "missing":
					st = color.RedString(st)
				}
				table.Append([]string{row.ID, row.Installed, row.Detected, row.Latest, st})
			}
			table.Render()
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON.")
	sel.RegisterFlags(cmd.Flags())
	return cmd
}

func newCleanCmd() *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove working directories left behind by earlier runs",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			process.CleanUp(a.cfg.ConfigDir, maxAge, time.Now())
			return nil
		}),
	}
	cmd.Flags().DurationVar(&maxAge, "older-than", process.StaleAge, "Only remove directories older than this.")
	return cmd
}

func newTelemetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Inspect and send queued package-state events",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "flush",
			Short: "Send queued events now",
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				if !a.telemetry.Enabled() {
					fmt.Println("Telemetry is disabled.")
					return nil
				}
				if err := a.telemetry.Flush(); err != nil {
					return err
				}
				pending, err := a.telemetry.Pending()
				if err != nil {
					return err
				}
				fmt.Printf("%d events still queued\n", len(pending))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "pending",
			Short: "List queued events",
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				pending, err := a.telemetry.Pending()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Println("No queued events.")
					return nil
				}
				for _, e := range pending {
					fmt.Printf("%-10s %-40s %s\n", e.Type, e.PackageID, humanize.Time(time.Unix(e.TS, 0)))
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Drop queued events and the snapshot timestamp",
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				return a.telemetry.Reset()
			}),
		},
	)
	return cmd
}
