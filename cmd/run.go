package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/iad/internal/agent"
	"github.com/apexion-ai/iad/internal/tui"
)

func newRunCmd() *cobra.Command {
	var (
		script  agent.Script
		jsonOut bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a decision session non-interactively",
		Example: `  iad run -P "should I rent or buy in my city?"
  iad run -P "pick a database for a small SaaS" --pick 2 --pick 1,3 --report
  iad run -P "choose a laptop" --doc specs.pdf --search "laptop reviews 2026" --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if script.Prompt == "" {
				return fmt.Errorf("--prompt / -P is required")
			}
			format := "text"
			if jsonOut {
				format = "jsonl"
			}
			return runOnce(script, tui.NewPipeIO(format, verbose))
		},
	}

	cmd.Flags().StringVarP(&script.Prompt, "prompt", "P", "", "the problem to decide on")
	cmd.Flags().StringArrayVar(&script.Picks, "pick", nil, "option(s) to follow at the latest step, one round per flag (e.g. --pick 2 --pick 1,3)")
	cmd.Flags().BoolVar(&script.Report, "report", false, "write the final report at the end")
	cmd.Flags().StringArrayVar(&script.Docs, "doc", nil, "document to summarize into context before the first step (repeatable)")
	cmd.Flags().StringArrayVar(&script.Searches, "search", nil, "web query to summarize into context before the first step (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON lines instead of text")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show progress on stderr")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}

// runOnce executes a scripted session and exits.
func runOnce(script agent.Script, ui tui.IO) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return agent.New(app.engine, ui, app.log, app.agentOptions()).RunOnce(ctx, script)
}
