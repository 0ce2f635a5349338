package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"testcasegpt/internal/config"
	"testcasegpt/internal/contextstore"
	"testcasegpt/internal/models"
	"testcasegpt/internal/prompt"
	"testcasegpt/internal/service/ai"
	"testcasegpt/internal/service/assistant"
)

const defaultReportPath = "test_analysis_output.md"

var errNoProvider = errors.New("no LLM provider configured: set AZURE_OPENAI_*, HF_TOKEN, GROQ_API_KEY, ANTHROPIC_API_KEY or GEMINI_API_KEY")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "testcasegpt",
		Short: "Turn spreadsheets into test plans, test cases and SQL checks",
	}
	root.PersistentFlags().String("config", "", "Path to config.json (default: $TESTCASEGPT_CONFIG or ./config.json)")
	root.AddCommand(newAnalyzeCmd(), newSummarizeCmd(), newDoctorCmd())
	return root
}

// loadSettings reads .env, the config file and the provider environment.
func loadSettings(cmd *cobra.Command) (*config.Config, config.GatewayConfig, error) {
	config.LoadDotEnv()
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("TESTCASEGPT_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, config.GatewayConfig{}, err
	}
	return cfg, cfg.Gateway(os.Getenv), nil
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Summarize spreadsheets and write an AI test analysis report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gatewayCfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if !gatewayCfg.Configured() {
				return errNoProvider
			}
			gateway, err := ai.NewGateway(cmd.Context(), gatewayCfg, nil)
			if err != nil {
				return err
			}
			svc := assistant.NewFromConfig(cfg, gateway, nil)
			return runAnalyze(cmd.Context(), svc, args, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", defaultReportPath, "Markdown report path")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Ask follow-up questions after the analysis")
	return cmd
}

type analyzeOptions struct {
	output      string
	interactive bool
}

// runAnalyze loads paths into svc, writes the report and optionally runs the
// follow-up loop on in. Missing files are warned about and skipped.
func runAnalyze(ctx context.Context, svc *assistant.Service, paths []string, opts analyzeOptions, in io.Reader, out io.Writer) error {
	if !svc.Status().Configured() {
		return errNoProvider
	}
	existing := existingFiles(paths, out)
	if len(existing) == 0 {
		return errors.New("no readable input files")
	}
	fmt.Fprintf(out, "Summarizing %d file(s)...\n", len(existing))
	_, total := svc.IngestPaths(existing)
	for _, s := range svc.Context() {
		if s.Failed() {
			fmt.Fprintf(out, "warning: %s: %s\n", s.FileName, s.Error)
			continue
		}
		fmt.Fprintf(out, "  %s / %s: %d rows, %d columns\n", s.FileName, s.SheetName, s.RowCount, len(s.Columns))
	}
	fmt.Fprintf(out, "Requesting analysis for %d table(s)...\n", total)

	analysis, err := svc.Analyze(ctx)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	output := opts.output
	if output == "" {
		output = defaultReportPath
	}
	if err := writeReport(output, analysis, nil); err != nil {
		return err
	}
	fmt.Fprintf(out, "Analysis saved to %s\n", output)
	fmt.Fprintln(out, analysis)

	if !opts.interactive {
		return nil
	}
	transcript, err := followUpLoop(ctx, svc, in, out)
	if err != nil {
		return err
	}
	if len(transcript) == 0 {
		return nil
	}
	if err := writeReport(output, analysis, transcript); err != nil {
		return err
	}
	fmt.Fprintf(out, "Follow-up Q&A appended to %s\n", output)
	return nil
}

func existingFiles(paths []string, out io.Writer) []string {
	var existing []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			fmt.Fprintf(out, "warning: skipping %s: file not found\n", p)
			continue
		}
		existing = append(existing, p)
	}
	return existing
}

func isQuit(line string) bool {
	switch strings.ToLower(line) {
	case "quit", "exit", "q":
		return true
	}
	return false
}

// followUpLoop answers questions from in until EOF or a quit word. Failed
// questions are reported and left out of the transcript.
func followUpLoop(ctx context.Context, svc *assistant.Service, in io.Reader, out io.Writer) ([]models.Message, error) {
	var transcript []models.Message
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, "Ask follow-up questions (quit, exit or q to stop).")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if isQuit(question) {
			break
		}
		answer, err := svc.Ask(ctx, question)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, answer)
		now := time.Now()
		transcript = append(transcript,
			models.Message{Role: models.RoleUser, Content: question, CreatedAt: now},
			models.Message{Role: models.RoleAssistant, Content: answer, CreatedAt: now},
		)
	}
	return transcript, scanner.Err()
}

func writeReport(path, analysis string, transcript []models.Message) error {
	if err := os.WriteFile(path, []byte(prompt.Report(analysis, transcript)), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func newSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize FILE...",
		Short: "Print the JSON summaries that would be sent to the model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			return runSummarize(assistant.NewFromConfig(cfg, nil, nil), args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func runSummarize(svc *assistant.Service, paths []string, out, errOut io.Writer) error {
	existing := existingFiles(paths, errOut)
	if len(existing) == 0 {
		return errors.New("no readable input files")
	}
	svc.IngestPaths(existing)
	data, err := contextstore.Serialize(svc.Context())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
