// Command deepprobe runs deep research from the terminal.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	deepprobe research "What is quantum computing?"
//	deepprobe research -save report.md "AI trends 2026"
//	deepprobe research -stream -verbose "Future of fusion power"
//	deepprobe resume <interaction-id>
//	deepprobe list
//	deepprobe config
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/nstogner/deepprobe/pkg/interactions/gemini"
	"github.com/nstogner/deepprobe/pkg/probe"
	"github.com/nstogner/deepprobe/pkg/report"
	"github.com/nstogner/deepprobe/pkg/research"
	"github.com/nstogner/deepprobe/pkg/store"
	"github.com/nstogner/deepprobe/pkg/store/sqlite"
)

const version = "0.1.0"

var (
	topicStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("4")).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

func main() {
	// A .env file is optional; the environment wins when both are set.
	godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "research":
		cmdResearch(os.Args[2:])
	case "resume":
		cmdResume(os.Args[2:])
	case "list":
		cmdList()
	case "config":
		cmdConfig()
	case "version", "-version", "--version":
		fmt.Printf("deepprobe version %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`deepprobe - research anything, deeply, in one line.

Commands:
  research [flags] <topic>   Run deep research on a topic
  resume [flags] <id>        Resume a previous research run by interaction ID
  list                       Show recorded research runs
  config                     Show configuration instructions
  version                    Show version

Flags for research (before the topic):
  -save <path>   Save the report to a markdown file
  -stream        Stream the report as it is written
  -verbose       Show the thinking process and report outline
  -quiet         Only output the final report
  -api-key <k>   API key (defaults to GEMINI_API_KEY)
`)
}

// setupLogging routes logs to w at the level named by LOG_LEVEL. The TRACE
// level additionally dumps HTTP traffic.
func setupLogging(w io.Writer) {
	logLevel := slog.LevelWarn
	if lv := os.Getenv("LOG_LEVEL"); lv != "" {
		switch strings.ToUpper(lv) {
		case "TRACE":
			logLevel = gemini.LevelTrace
		case "DEBUG":
			logLevel = slog.LevelDebug
		case "INFO":
			logLevel = slog.LevelInfo
		case "WARN":
			logLevel = slog.LevelWarn
		case "ERROR":
			logLevel = slog.LevelError
		}
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

// openLogFile redirects logs away from the terminal while a TUI owns it.
func openLogFile() *os.File {
	f, err := os.OpenFile("deepprobe.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil
	}
	return f
}

// openLedger opens the run ledger under the user's home directory. The
// ledger is advisory: a nil return just disables run tracking.
func openLedger() *sqlite.Store {
	home, err := os.UserHomeDir()
	if err != nil {
		home, err = os.Getwd()
		if err != nil {
			return nil
		}
	}
	dbPath := filepath.Join(home, ".deepprobe", "deepprobe.db")
	os.MkdirAll(filepath.Dir(dbPath), 0755)

	s, err := sqlite.New(dbPath)
	if err != nil {
		slog.Warn("run ledger unavailable", "error", err)
		return nil
	}
	return s
}

func cmdResearch(args []string) {
	fs := flag.NewFlagSet("research", flag.ExitOnError)
	save := fs.String("save", "", "save the report to a markdown file")
	stream := fs.Bool("stream", false, "stream the report as it is written")
	verbose := fs.Bool("verbose", false, "show the thinking process and report outline")
	quiet := fs.Bool("quiet", false, "only output the final report")
	apiKey := fs.String("api-key", "", "API key (defaults to GEMINI_API_KEY)")
	fs.Parse(args)

	topic := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if topic == "" {
		fmt.Fprintln(os.Stderr, "research: a topic is required")
		os.Exit(1)
	}
	// Flag parsing stops at the first positional argument.
	for _, arg := range fs.Args() {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(os.Stderr, "research: flags go before the topic (saw %q after it)\n", arg)
			os.Exit(1)
		}
	}
	if *quiet && *verbose {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: cannot use both -quiet and -verbose"))
		os.Exit(1)
	}

	// Setup logging. The progress TUI owns the terminal, so logs go to a
	// file unless the run is quiet.
	logDest := io.Writer(os.Stderr)
	if !*quiet && !*stream {
		if f := openLogFile(); f != nil {
			defer f.Close()
			logDest = f
		}
	}
	setupLogging(logDest)

	client, err := probe.New(probe.Options{APIKey: *apiKey})
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("Error: %v", err)))
		os.Exit(1)
	}

	// A typed nil must not reach the RunStore interface guards.
	var ledger store.RunStore
	if s := openLedger(); s != nil {
		ledger = s
		defer s.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if !*quiet {
		fmt.Println(topicStyle.Render(topic))
	}

	var res *research.Result
	switch {
	case *stream:
		res, err = runStreaming(ctx, client, ledger, topic, *verbose, *quiet)
	case *quiet:
		res, err = client.Research(ctx, topic, ledgerHooks(ledger, topic))
	default:
		res, err = runWithProgress(ctx, client, ledger, topic, "Running deep research...")
	}
	if err != nil {
		exitResearchError(ledger, err)
	}

	savedPath := displayResult(res, *save, *verbose, *quiet)
	recordCompletion(ledger, res, savedPath)
}

func cmdResume(args []string) {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	save := fs.String("save", "", "save the report to a markdown file")
	verbose := fs.Bool("verbose", false, "show the thinking process and report outline")
	quiet := fs.Bool("quiet", false, "only output the final report")
	apiKey := fs.String("api-key", "", "API key (defaults to GEMINI_API_KEY)")
	fs.Parse(args)

	interactionID := fs.Arg(0)
	if interactionID == "" {
		fmt.Fprintln(os.Stderr, "resume: an interaction ID is required")
		os.Exit(1)
	}

	logDest := io.Writer(os.Stderr)
	if !*quiet {
		if f := openLogFile(); f != nil {
			defer f.Close()
			logDest = f
		}
	}
	setupLogging(logDest)

	client, err := probe.New(probe.Options{APIKey: *apiKey})
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("Error: %v", err)))
		os.Exit(1)
	}

	var ledger store.RunStore
	if s := openLedger(); s != nil {
		ledger = s
		defer s.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if !*quiet {
		fmt.Println(hintStyle.Render("Resuming research: " + interactionID))
	}

	var res *research.Result
	if *quiet {
		res, err = client.Resume(ctx, interactionID, nil)
	} else {
		res, err = resumeWithProgress(ctx, client, interactionID, "Checking research status...")
	}
	if err != nil {
		exitResearchError(ledger, err)
	}

	savedPath := displayResult(res, *save, *verbose, *quiet)
	recordCompletion(ledger, res, savedPath)
}

func cmdList() {
	setupLogging(os.Stderr)
	ledger := openLedger()
	if ledger == nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: run ledger unavailable"))
		os.Exit(1)
	}
	defer ledger.Close()

	runs, err := ledger.List(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("Error: %v", err)))
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("No research runs recorded yet.")
		return
	}

	fmt.Println(labelStyle.Render("Research runs:"))
	fmt.Println()
	for _, run := range runs {
		age := report.FormatDuration(time.Since(run.CreatedAt))
		line := fmt.Sprintf("%s  %-9s  %s ago",
			idStyle.Render(report.ShortID(run.InteractionID, 24)), run.Status, age)
		fmt.Println("  " + line)
		if run.Topic != "" {
			fmt.Println("    " + dimStyle.Render(report.Truncate(run.Topic, 70)))
		}
		if run.ReportPath != "" {
			fmt.Println("    " + dimStyle.Render("saved: "+run.ReportPath))
		}
	}
}

func cmdConfig() {
	body := labelStyle.Render("Configuration") + "\n\n" +
		"Set your Google Gemini API key:\n\n" +
		"  " + idStyle.Render("export GEMINI_API_KEY='your-api-key'") + "\n\n" +
		"Or create a " + idStyle.Render(".env") + " file:\n\n" +
		"  " + idStyle.Render("GEMINI_API_KEY=your-api-key") + "\n\n" +
		"Get your API key from: https://aistudio.google.com/apikey"
	fmt.Println(topicStyle.Render(body))
}

// ledgerHooks records the run as soon as its identifier is known.
func ledgerHooks(ledger store.RunStore, topic string) *probe.Hooks {
	if ledger == nil {
		return nil
	}
	return &probe.Hooks{
		OnStart: func(interactionID string) {
			recordStart(ledger, interactionID, topic)
		},
	}
}

func recordStart(ledger store.RunStore, interactionID, topic string) {
	if ledger == nil || interactionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := ledger.Get(ctx, interactionID); err == nil {
		return
	}
	err := ledger.Create(ctx, &store.Run{
		ID:            uuid.New().String(),
		InteractionID: interactionID,
		Topic:         topic,
		Status:        research.StatusRunning,
	})
	if err != nil {
		slog.Warn("recording run start", "error", err)
	}
}

func recordCompletion(ledger store.RunStore, res *research.Result, reportPath string) {
	// "unknown" is the placeholder for streams that never reported an
	// identifier; there is nothing resumable to record.
	if ledger == nil || res.InteractionID == "" || res.InteractionID == "unknown" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run, err := ledger.Get(ctx, res.InteractionID)
	if err != nil {
		run = &store.Run{
			ID:            uuid.New().String(),
			InteractionID: res.InteractionID,
		}
		if err := ledger.Create(ctx, run); err != nil {
			slog.Warn("recording run", "error", err)
			return
		}
	}
	run.Status = res.Status
	run.TotalTokens = res.Usage.TotalTokens
	if reportPath != "" {
		run.ReportPath = reportPath
	}
	run.CompletedAt = res.CompletedAt
	if err := ledger.Update(ctx, run); err != nil {
		slog.Warn("recording run", "error", err)
	}
}

func recordOutcome(ledger store.RunStore, interactionID string, status research.Status) {
	if ledger == nil || interactionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := ledger.Get(ctx, interactionID)
	if err != nil {
		return
	}
	run.Status = status
	if err := ledger.Update(ctx, run); err != nil {
		slog.Warn("recording run", "error", err)
	}
}

// exitResearchError prints a failure, points at the resume command when the
// interaction is recoverable, and exits.
func exitResearchError(ledger store.RunStore, err error) {
	interactionID := research.InteractionID(err)

	var cancelErr *research.CancelledError
	if errors.As(err, &cancelErr) {
		recordOutcome(ledger, interactionID, research.StatusCancelled)
		fmt.Fprintln(os.Stderr, hintStyle.Render("\nResearch cancelled by user"))
		if interactionID != "" {
			fmt.Fprintln(os.Stderr, hintStyle.Render("Resume with: deepprobe resume "+interactionID))
		}
		os.Exit(130)
	}

	recordOutcome(ledger, interactionID, research.StatusFailed)
	fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("\nError: %v", err)))
	if interactionID != "" {
		fmt.Fprintln(os.Stderr, hintStyle.Render("Resume with: deepprobe resume "+interactionID))
	}
	os.Exit(1)
}

// runStreaming prints the report as it arrives. No TUI: the raw chunks are
// the output.
func runStreaming(ctx context.Context, client *probe.Client, ledger store.RunStore, topic string, verbose, quiet bool) (*research.Result, error) {
	if !quiet {
		fmt.Println(hintStyle.Render("Starting streaming research..."))
		fmt.Println()
	}
	hooks := &probe.Hooks{
		OnStart: func(interactionID string) {
			recordStart(ledger, interactionID, topic)
		},
	}
	if !quiet {
		hooks.OnText = func(chunk string) { fmt.Print(chunk) }
	}
	if verbose && !quiet {
		hooks.OnThought = func(thought string) {
			fmt.Println()
			fmt.Println(dimStyle.Render("* " + thought))
			fmt.Println()
		}
	}
	res, err := client.ResearchStream(ctx, topic, hooks)
	if err != nil {
		return nil, err
	}
	if !quiet {
		fmt.Println()
	}
	return res, nil
}

// displayResult prints the final report, metadata first, markdown rendered,
// sources capped for readability. It returns the path the report was saved
// to, or "" when no save happened.
func displayResult(res *research.Result, save string, verbose, quiet bool) string {
	if quiet {
		fmt.Println(res.Report)
		return ""
	}

	fmt.Println()
	fmt.Println(successStyle.Render("Research completed"))
	fmt.Println("  Interaction ID: " + idStyle.Render(res.InteractionID))
	fmt.Printf("  Status: %s\n", res.Status)
	fmt.Printf("  Tokens: %d\n", res.Usage.TotalTokens)
	fmt.Printf("  Read time: ~%d min\n", report.EstimateReadTime(res.Report))

	savedPath := ""
	if save != "" {
		if err := report.Save(res, save); err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("Error saving report: %v", err)))
		} else {
			fmt.Println("  Saved to: " + idStyle.Render(save))
			savedPath = save
		}
	}

	if verbose && len(res.Thoughts) > 0 {
		fmt.Println()
		fmt.Println(labelStyle.Render("Research process:"))
		for i, thought := range res.Thoughts {
			phase := ""
			if thought.Phase != "" {
				phase = "[" + thought.Phase + "] "
			}
			fmt.Printf("  %d. %s%s\n", i+1, phase, report.Truncate(thought.Content, 100))
		}
	}

	if verbose {
		if headings := report.ExtractHeadings(res.Report, 3); len(headings) > 0 {
			fmt.Println()
			fmt.Println(labelStyle.Render("Outline:"))
			for _, h := range headings {
				indent := strings.Repeat("  ", h.Level)
				fmt.Println(indent + dimStyle.Render(h.Text))
			}
		}
	}

	fmt.Println()
	fmt.Println(labelStyle.Render("Report:"))
	fmt.Println()
	fmt.Println(renderMarkdown(res.Report))

	if len(res.Sources) > 0 {
		fmt.Println()
		fmt.Println(labelStyle.Render(fmt.Sprintf("Sources (%d):", len(res.Sources))))
		shown := res.Sources
		if len(shown) > 10 {
			shown = shown[:10]
		}
		for i, src := range shown {
			title := src.Title
			if title == "" {
				title = src.URL
			}
			fmt.Printf("  %d. %s\n", i+1, title)
			fmt.Println("     " + dimStyle.Render(src.URL))
		}
		if len(res.Sources) > 10 {
			fmt.Printf("  ... and %d more\n", len(res.Sources)-10)
		}
	}
	return savedPath
}

func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// runWithProgress runs a blocking research call behind the progress TUI.
func runWithProgress(ctx context.Context, client *probe.Client, ledger store.RunStore, topic, label string) (*research.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan progressEvent, 64)
	done := make(chan doneMsg, 1)
	hooks := progressHooks(events, func(interactionID string) {
		recordStart(ledger, interactionID, topic)
	})
	go func() {
		res, err := client.Research(ctx, topic, hooks)
		done <- doneMsg{res: res, err: err}
	}()
	return runProgressProgram(label, cancel, events, done)
}

func resumeWithProgress(ctx context.Context, client *probe.Client, interactionID, label string) (*research.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan progressEvent, 64)
	done := make(chan doneMsg, 1)
	go func() {
		res, err := client.Resume(ctx, interactionID, progressHooks(events, nil))
		done <- doneMsg{res: res, err: err}
	}()
	return runProgressProgram(label, cancel, events, done)
}

func runProgressProgram(label string, cancel context.CancelFunc, events chan progressEvent, done chan doneMsg) (*research.Result, error) {
	p := tea.NewProgram(newProgressModel(label, cancel, events, done))
	final, err := p.Run()
	if err != nil {
		// The terminal is unusable for a TUI; fall back to waiting.
		cancel()
		msg := <-done
		return msg.res, msg.err
	}
	m := final.(progressModel)
	if !m.finished {
		// The program ended without a result (should not happen; the
		// model only quits on doneMsg).
		msg := <-done
		return msg.res, msg.err
	}
	return m.result, m.err
}
