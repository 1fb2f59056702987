package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dgallion1/pagewatch/internal/reconcile"
	"github.com/dgallion1/pagewatch/internal/report"
	"github.com/dgallion1/pagewatch/internal/session"
	"github.com/dgallion1/pagewatch/internal/upload"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF and follow its summaries as they stream",
	Long: `Upload a PDF and print each page summary as it completes. Ctrl-C cancels
the session; pages merged so far are still printed and exported.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newTextLogger(cmd.ErrOrStderr(), cfg)

		exportPath, _ := cmd.Flags().GetString("export")
		formatName, _ := cmd.Flags().GetString("format")
		format, err := exportFormat(formatName, exportPath)
		if err != nil {
			return err
		}

		file, err := upload.Open(args[0], cfg.MaxUploadBytes)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client := newLibraryClient(cfg, log)
		defer client.Close()

		sessions := session.NewController(client, client, session.NewStreamStats(cfg.StatsWindow), log)
		sessions.Subscribe(newProgressPrinter(cmd.OutOrStdout()))

		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render(fmt.Sprintf("uploading %s (%d pages)", file.Name, file.Pages)))
		if _, err := sessions.Start(ctx, file); err != nil {
			return err
		}
		st, _ := sessions.Wait(context.Background())

		if exportPath != "" {
			exportPath = reportPath(exportPath, format)
			if err := writeReport(exportPath, sessions.Snapshot(), format); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("exported "+exportPath))
		}
		if st.State != session.StateCompleted {
			return fmt.Errorf("session %s: %s", st.State, st.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().String("export", "", "Write the result to this file when the session ends")
	uploadCmd.Flags().String("format", "", "Export format (markdown, html, docx, json, yaml); defaults to the file extension")
}

// exportFormat picks the explicit format, or the one implied by path.
func exportFormat(name, path string) (report.Format, error) {
	if name != "" {
		return report.ParseFormat(name)
	}
	if ext := filepath.Ext(path); ext != "" {
		return report.ParseFormat(ext)
	}
	return report.Markdown, nil
}

// reportPath adds the format's extension to a path that has none.
func reportPath(path string, format report.Format) string {
	if filepath.Ext(path) == "" {
		return path + format.Extension()
	}
	return path
}

func writeReport(path string, snap reconcile.Snapshot, format report.Format) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := report.Write(f, snap, format); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
