package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dgallion1/pagewatch/internal/report"
	"github.com/dgallion1/pagewatch/internal/session"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents stored by the summarizer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newLibraryClient(cfg, newTextLogger(cmd.ErrOrStderr(), cfg))
		defer client.Close()

		docs, err := client.ListDocuments(cmd.Context())
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no documents"))
			return nil
		}
		idStyle := lipgloss.NewStyle().Width(6).Foreground(lipgloss.Color("12"))
		nameStyle := lipgloss.NewStyle().Width(40).MaxWidth(40)
		for _, d := range docs {
			fmt.Fprintln(cmd.OutOrStdout(),
				idStyle.Render(strconv.FormatInt(d.ID, 10))+
					nameStyle.Render(d.Filename)+
					dimStyle.Render(fmt.Sprintf("%3d pages  %s", d.TotalPages, d.UploadDate)))
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a stored document's summaries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseDocID(args[0])
		if err != nil {
			return err
		}
		sessions, cleanup, err := historySession(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if _, err := sessions.LoadDocument(cmd.Context(), id); err != nil {
			return err
		}
		return report.Write(cmd.OutOrStdout(), sessions.Snapshot(), report.Markdown)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a stored document to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseDocID(args[0])
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		formatName, _ := cmd.Flags().GetString("format")
		format, err := exportFormat(formatName, out)
		if err != nil {
			return err
		}

		sessions, cleanup, err := historySession(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if _, err := sessions.LoadDocument(cmd.Context(), id); err != nil {
			return err
		}
		if out == "" {
			return report.Write(cmd.OutOrStdout(), sessions.Snapshot(), format)
		}
		out = reportPath(out, format)
		if err := writeReport(out, sessions.Snapshot(), format); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("exported "+out))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored document and its file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseDocID(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newLibraryClient(cfg, newTextLogger(cmd.ErrOrStderr(), cfg))
		defer client.Close()

		if err := client.DeleteDocument(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted document %d\n", id)
		return nil
	},
}

var urlCmd = &cobra.Command{
	Use:   "url <id>",
	Short: "Print the URL of a stored document's original PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseDocID(args[0])
		if err != nil {
			return err
		}
		page, _ := cmd.Flags().GetInt("page")
		if page < 0 {
			return fmt.Errorf("page must not be negative")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newLibraryClient(cfg, nil)
		fmt.Fprintln(cmd.OutOrStdout(), client.FileURL(id, page))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd, showCmd, exportCmd, deleteCmd, urlCmd)

	exportCmd.Flags().String("format", "", "Export format (markdown, html, docx, json, yaml); defaults to the file extension")
	exportCmd.Flags().StringP("out", "o", "", "Output file; stdout when empty")
	urlCmd.Flags().Int("page", 0, "Anchor the URL at this page")
}

// historySession builds a controller that only loads stored documents.
func historySession(cmd *cobra.Command) (*session.Controller, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := newTextLogger(cmd.ErrOrStderr(), cfg)
	client := newLibraryClient(cfg, log)
	return session.NewController(client, client, nil, log), client.Close, nil
}

func parseDocID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("document id must be a positive integer, got %q", s)
	}
	return id, nil
}
