package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/runner"
	"github.com/mikeboe/deep-research/pkg/server"
)

var version = "dev"

var (
	query     string
	breadth   int
	depth     int
	mode      string
	outputDir string
)

func main() {
	// Logs go to stderr: stdout carries prompts, and the MCP protocol in mcp mode.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	// It's okay if .env doesn't exist, as long as env vars are set
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:          "deep-research",
		Short:        "Recursive web research from the terminal",
		Long:         `deep-research expands a topic into search queries, reads the results, follows up on what it learns and writes a report or a concise answer.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd)
		},
	}

	rootCmd.Flags().StringVarP(&query, "query", "q", "", "What to research; prompts interactively when empty")
	rootCmd.Flags().IntVarP(&breadth, "breadth", "b", runner.DefaultBreadth, "Number of parallel queries per level")
	rootCmd.Flags().IntVarP(&depth, "depth", "d", runner.DefaultDepth, "Number of levels to recurse")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", string(research.ModeReport), "Output: report or answer")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory the report or answer is written to")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "mcp",
		Short: "Serve the deep_research tool over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := runner.New(cmd.Context(), config.Load())
			if err != nil {
				return err
			}
			slog.Info("Serving MCP over stdio", "version", version)
			return server.NewMCPServer(r, version).Run(cmd.Context(), &mcp.StdioTransport{})
		},
	})

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cobra.Command) error {
	r, err := runner.New(ctx, config.Load())
	if err != nil {
		return err
	}

	opts := runner.Options{Query: query, Breadth: breadth, Depth: depth, Mode: research.Mode(mode)}

	if !cmd.Flags().Changed("query") {
		// Interactive Mode
		reader := bufio.NewReader(os.Stdin)

		opts.Query = ask(reader, "What would you like to research? ")
		if opts.Query == "" {
			return fmt.Errorf("query cannot be empty")
		}
		opts.Breadth = askInt(reader, fmt.Sprintf("Enter research breadth (recommended 2-10, default %d): ", runner.DefaultBreadth), runner.DefaultBreadth)
		opts.Depth = askInt(reader, fmt.Sprintf("Enter research depth (recommended 1-5, default %d): ", runner.DefaultDepth), runner.DefaultDepth)
		if strings.EqualFold(ask(reader, "Do you want to generate a long report or a specific answer? (report/answer, default report): "), "answer") {
			opts.Mode = research.ModeAnswer
		} else {
			opts.Mode = research.ModeReport
		}

		if opts.Mode == research.ModeReport {
			questions, err := r.Feedback(ctx, opts.Query)
			if err != nil {
				return err
			}
			if len(questions) > 0 {
				fmt.Println("\nTo better understand your research needs, please answer these follow-up questions:")
			}
			answers := make([]string, 0, len(questions))
			for _, q := range questions {
				answers = append(answers, ask(reader, "\n"+q+"\nYour answer: "))
			}
			opts.Query = runner.CombineFeedback(opts.Query, questions, answers)
		}
	}

	fmt.Println("\nStarting research...")
	opts.OnProgress = func(p research.Progress) {
		slog.Debug("Progress", "depth", p.CurrentDepth, "breadth", p.CurrentBreadth, "completed", p.CompletedQueries, "total", p.TotalQueries)
	}

	out, err := r.Run(ctx, opts)
	if err != nil {
		return err
	}

	fmt.Printf("\n\nLearnings:\n\n%s\n", strings.Join(out.Learnings, "\n"))
	fmt.Printf("\n\nVisited URLs (%d):\n\n%s\n", len(out.VisitedURLs), strings.Join(out.VisitedURLs, "\n"))

	name, content := "report.md", out.Report
	if opts.Mode == research.ModeAnswer {
		name, content = "answer.md", out.Answer
	}
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if opts.Mode == research.ModeAnswer {
		fmt.Printf("\n\nFinal Answer:\n\n%s\n", out.Answer)
	} else {
		fmt.Printf("\n\nFinal Report:\n\n%s\n", out.Report)
	}
	fmt.Printf("\nSaved to %s\n", path)
	return nil
}

func ask(reader *bufio.Reader, prompt string) string {
	fmt.Print(prompt)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func askInt(reader *bufio.Reader, prompt string, def int) int {
	n, err := strconv.Atoi(ask(reader, prompt))
	if err != nil {
		return def
	}
	return n
}
