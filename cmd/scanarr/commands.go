package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sydlexius/scanarr/internal/backup"
	"github.com/sydlexius/scanarr/internal/event"
	"github.com/sydlexius/scanarr/internal/maintenance"
	"github.com/sydlexius/scanarr/internal/scan"
	"github.com/sydlexius/scanarr/internal/store"
)

func newScanCmd() *cobra.Command {
	var (
		dryRun  bool
		folders []string
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan now and print a summary",
		Long: `Scan the configured folders once and wait for the result.

With --dry-run nothing is written to the database and no notifications are
sent. --folder replaces the configured folders for this run only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			snap, err := a.settings.Get(ctx)
			if err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}
			if len(folders) > 0 {
				snap.ScanFolders = folders
				snap = snap.Normalize()
				if err := snap.Validate(); err != nil {
					return err
				}
			}

			var st scan.Store
			if dryRun {
				st = store.NewMemory()
			} else {
				st = store.NewSQLite(a.db)
			}
			coordinator := a.newCoordinator(st)

			if !dryRun {
				dispatcher := a.newDispatcher(st)
				defer dispatcher.Wait()
				bus := event.NewBus(a.logger, 16)
				bus.Subscribe(event.ScanFinished, dispatcher.HandleEvent)
				go bus.Start()
				defer bus.Stop()
				coordinator.SetEventBus(bus)
			}

			h, err := coordinator.Trigger(ctx, snap)
			if h == nil {
				return err
			}
			result, err := h.Wait(ctx)
			if ctx.Err() != nil {
				// Interrupted: stop the scan and report what was stored.
				coordinator.Cancel(h.ID)
				ctx = context.WithoutCancel(ctx)
				result, err = h.Wait(ctx)
			}

			files, lerr := st.ListProblemFiles(ctx, scan.ProblemFileFilter{ScanID: result.ID})
			if lerr != nil {
				return fmt.Errorf("listing problem files: %w", lerr)
			}
			printSummary(cmd.OutOrStdout(), result, files, dryRun)
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Keep results in memory only")
	cmd.Flags().StringArrayVar(&folders, "folder", nil, "Folder to scan instead of the configured ones (repeatable)")
	return cmd
}

func printSummary(w io.Writer, s scan.Scan, files []scan.ProblemFile, dryRun bool) {
	mode := ""
	if dryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "Scan %s %s%s\n", s.ID, s.Status, mode)
	fmt.Fprintf(w, "  folders:       %s\n", strings.Join(s.RootFolders, ", "))
	fmt.Fprintf(w, "  files checked: %d\n", s.FilesChecked)
	fmt.Fprintf(w, "  skipped:       %d\n", s.SkippedCount)
	fmt.Fprintf(w, "  problem files: %d\n", len(files))
	if s.CompletedAt != nil {
		fmt.Fprintf(w, "  duration:      %s\n", s.CompletedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
	if s.Error != "" {
		fmt.Fprintf(w, "  error:         %s\n", s.Error)
	}
	if len(files) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tCODEC\tBITS\tAUDIO\tISSUES")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			f.Path, f.Metadata.Codec, f.Metadata.BitDepth, f.Metadata.AudioCodec, strings.Join(f.Issues, "; "))
	}
	tw.Flush() //nolint:errcheck
}

func newPurgeCmd() *cobra.Command {
	var (
		days     int
		vacuum   bool
		noBackup bool
	)
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete scans older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if days <= 0 {
				days = a.cfg.Retention.Days
			}
			svc := maintenance.NewService(store.NewSQLite(a.db), a.db, a.cfg.Database.Path, days, a.logger)
			if a.cfg.Backup.Enabled && !noBackup {
				svc.SetSnapshotter(backup.NewService(a.db, a.cfg.BackupDir(), a.cfg.Backup.Keep, a.logger))
			}
			ctx := cmd.Context()
			res, err := svc.Sweep(ctx, time.Now())
			if err != nil {
				return err
			}
			if res.Snapshot != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s\n", filepath.Join(a.cfg.BackupDir(), res.Snapshot.Filename))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d scans started before %s\n", res.Purged, res.Cutoff.Format(time.DateOnly))

			if vacuum {
				if err := svc.Vacuum(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Database vacuumed.")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention window in days (defaults to retention.days)")
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "Reclaim free pages after purging")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "Skip the snapshot taken before purging")
	return cmd
}

// newResetCredentialsCmd wipes stored notification credentials. It is an
// offline recovery step for when the encryption key is lost.
func newResetCredentialsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-credentials",
		Short: "Clear the stored Telegram credentials and webhooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.settings.ResetCredentials(cmd.Context()); err != nil {
				return fmt.Errorf("resetting credentials: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credentials reset successfully.")
			fmt.Fprintln(cmd.OutOrStdout(), "Telegram credentials and webhooks have been cleared.")
			return nil
		},
	}
}
