package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragmem/internal/session"
	"ragmem/internal/summarizer"
	"ragmem/internal/tui"
)

const sessionDrainTimeout = 10 * time.Second

func (c *cli) tuiCmd() *cobra.Command {
	var (
		opts    tui.Options
		logFile string
	)
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Search a collection interactively and keep a session summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkNResults(cmd, opts.NResults); err != nil {
				return err
			}
			a, err := c.open()
			if err != nil {
				return err
			}
			// the terminal belongs to the TUI; logs go to a file or nowhere
			var logOut io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				logOut = f
			}
			a.log.SetOutput(logOut)

			state := &session.State{}
			rec, err := session.NewRecorder(state, summarizer.NewFrequencySummarizer(), a.rag, session.Options{
				Collection:   a.cfg.Session.Collection,
				MaxSentences: a.cfg.Session.MaxSentences,
				Workers:      a.cfg.Session.Workers,
				StoragePath:  opts.StoragePath,
				Logger:       a.log,
			})
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), sessionDrainTimeout)
				defer cancel()
				if err := rec.Close(ctx); err != nil {
					a.log.WithError(err).Warn("session summaries still pending at exit")
				}
			}()

			if opts.Collection == "" {
				opts.Collection = a.cfg.Service.DefaultCollection
			}
			opts.Recorder = rec
			opts.Summary = state
			m := tui.New(cmd.Context(), a.rag, opts)
			_, err = tea.NewProgram(m,
				tea.WithContext(cmd.Context()),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			).Run()
			return err
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.Collection, "collection", "c", "", "Collection to search (default from config)")
	f.IntVarP(&opts.NResults, "n-results", "n", 0, "Results per query fragment (default from config)")
	f.StringVar(&opts.StoragePath, "storage-path", "", "Vector store location (default from config)")
	f.StringVar(&logFile, "log-file", "", "Write logs to this file while the TUI runs")
	return cmd
}
