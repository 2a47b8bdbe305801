package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/ajramos/keycheck/internal/agent"
	"github.com/ajramos/keycheck/internal/catalog"
	"github.com/ajramos/keycheck/internal/config"
	"github.com/ajramos/keycheck/internal/db"
	"github.com/ajramos/keycheck/internal/logging"
	"github.com/ajramos/keycheck/internal/render"
	"github.com/ajramos/keycheck/internal/report"
	"github.com/ajramos/keycheck/internal/server"
	"github.com/ajramos/keycheck/internal/services"
	"github.com/ajramos/keycheck/internal/verify"
	"github.com/mattn/go-runewidth"
)

// runChecks verifies the catalog and prints the report
func (a *app) runChecks(ctx context.Context, args []string) int {
	fs, configPath := a.newFlagSet("run")
	format := fs.String("format", "", "Report format: text, json, yaml, markdown, html (default from config)")
	out := fs.String("out", "", "Also write the report to this file; the format follows the extension")
	category := fs.String("category", "", "Comma separated categories to check")
	contexts := fs.String("context", "", "Comma separated contexts to check")
	ids := fs.String("id", "", "Comma separated definition ids to check (e.g. cmd+b@any)")
	prefix := fs.String("prefix", "", "Only check definition ids starting with this prefix")
	agentKind := fs.String("agent", "", "Agent: replay, operator, console, bridge, llm (default from config)")
	recording := fs.String("recording", "", "Recording for the replay agent, or 'history'")
	failuresOnly := fs.Bool("failures-only", false, "Only list failing shortcuts in the text report")
	width := fs.Int("width", 0, "Text report width (default from config)")
	persist := fs.Bool("history", false, "Persist the run even when history is disabled in the config")
	positional, code, ok := parseFlags(fs, args)
	if !ok {
		return code
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		a.errorf("%v", err)
		return exitUsage
	}
	if err := catalogArg(cfg, positional); err != nil {
		a.errorf("%v", err)
		return exitUsage
	}
	if *agentKind != "" {
		cfg.Agent.Kind = *agentKind
	}
	if *recording != "" {
		cfg.Agent.Recording = *recording
	}
	if *persist {
		cfg.History.Enabled = true
	}
	if *failuresOnly {
		cfg.Report.FailuresOnly = true
	}
	if *width > 0 {
		cfg.Report.Width = *width
	}
	if err := cfg.Validate(); err != nil {
		a.errorf("invalid configuration: %v", err)
		return exitUsage
	}

	f, err := verify.ParseFilter(*category, *contexts, *ids, *prefix)
	if err != nil {
		a.errorf("%v", err)
		return exitUsage
	}
	if *format == "" {
		*format = cfg.Report.Format
	}
	outFormat, err := render.ParseFormat(*format)
	if err != nil {
		a.errorf("%v", err)
		return exitUsage
	}

	logger, closeLog := logging.Open(cfg.LogFile)
	defer closeLog()

	runs, closeDB := a.openHistory(ctx, cfg, logger)
	defer closeDB()

	// operator prompts go to stderr so stdout carries only the report
	svc := services.NewRunService(runs, agent.Deps{In: a.stdin, Out: a.stderr}, logger)
	outcome, runErr := svc.Run(ctx, cfg, f)
	if outcome == nil {
		a.errorf("%v", runErr)
		return exitUsage
	}
	rep := outcome.Report

	if err := a.writeReport(a.stdout, rep, outFormat, cfg.Report); err != nil {
		a.errorf("write report: %v", err)
		return exitFail
	}
	if *out != "" {
		if err := saveReport(*out, rep, outFormat, cfg.Report); err != nil {
			a.errorf("%v", err)
			return exitFail
		}
		fmt.Fprintf(a.stderr, "Report saved to %s\n", *out)
	}
	if outcome.RunID != "" {
		fmt.Fprintf(a.stderr, "Run %s saved to history\n", outcome.RunID)
	}
	if outcome.Delta != nil {
		a.printDelta(*outcome.Delta)
	}

	if runErr != nil {
		a.errorf("run interrupted: %v", runErr)
		return exitFail
	}
	if !rep.Passed() {
		return exitFail
	}
	return exitOK
}

func (a *app) writeReport(w io.Writer, rep *report.Report, f render.Format, rc config.ReportConfig) error {
	if f == render.FormatText {
		return render.WriteText(w, rep, render.TextOptions{Width: rc.Width, FailuresOnly: rc.FailuresOnly})
	}
	return render.Write(w, rep, f)
}

// saveReport writes rep to path, picking the format from the extension
func saveReport(path string, rep *report.Report, fallback render.Format, rc config.ReportConfig) error {
	f := fallback
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		if ext, err := render.ParseFormat(path[i:]); err == nil {
			f = ext
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	if f == render.FormatText {
		err = render.WriteText(file, rep, render.TextOptions{Width: rc.Width, FailuresOnly: rc.FailuresOnly})
	} else {
		err = render.Write(file, rep, f)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (a *app) printDelta(d report.Delta) {
	if d.IsZero() {
		fmt.Fprintln(a.stderr, "No changes since the previous run")
		return
	}
	fmt.Fprintf(a.stderr, "Since the previous run: %d regressions, %d fixes, %d changed, %d added, %d removed\n",
		len(d.Regressions), len(d.Fixes), len(d.Changed), len(d.Added), len(d.Removed))
	for _, c := range d.Regressions {
		fmt.Fprintf(a.stderr, "  regression %s: %s → %s\n", c.DefinitionID, c.Before, c.After)
	}
	for _, c := range d.Fixes {
		fmt.Fprintf(a.stderr, "  fixed      %s: %s → %s\n", c.DefinitionID, c.Before, c.After)
	}
}

// openHistory opens the run store when history is enabled. Failing to open
// it degrades to a run without persistence.
func (a *app) openHistory(ctx context.Context, cfg *config.Config, logger *log.Logger) (*db.RunStore, func()) {
	if !cfg.History.Enabled {
		return nil, func() {}
	}
	store, err := db.Open(ctx, cfg.GetHistoryPath())
	if err != nil {
		fmt.Fprintf(a.stderr, "Warning: could not open run history: %v\n", err)
		logger.Printf("open history: %v", err)
		return nil, func() {}
	}
	return db.NewRunStore(store), func() { _ = store.Close() }
}

// list prints the catalog
func (a *app) list(args []string) int {
	fs, configPath := a.newFlagSet("list")
	format := fs.String("format", "text", "Output format: text, json, yaml")
	category := fs.String("category", "", "Comma separated categories to list")
	contexts := fs.String("context", "", "Comma separated contexts to list")
	positional, code, ok := parseFlags(fs, args)
	if !ok {
		return code
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		a.errorf("%v", err)
		return exitUsage
	}
	if err := catalogArg(cfg, positional); err != nil {
		a.errorf("%v", err)
		return exitUsage
	}
	f, err := verify.ParseFilter(*category, *contexts, "", "")
	if err != nil {
		a.errorf("%v", err)
		return exitUsage
	}
	cat, err := cfg.LoadCatalog()
	if err != nil {
		a.errorf("load catalog: %v", err)
		return exitUsage
	}

	var defs []catalog.Definition
	for d := range cat.Entries() {
		if f.Match(d) {
			defs = append(defs, d)
		}
	}

	switch strings.ToLower(*format) {
	case "json":
		records := make([]catalog.Record, 0, len(defs))
		for _, d := range defs {
			records = append(records, d.Record())
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			a.errorf("%v", err)
			return exitFail
		}
	case "yaml", "yml":
		records := make([]catalog.Record, 0, len(defs))
		for _, d := range defs {
			records = append(records, d.Record())
		}
		sub, err := catalog.LoadWithMeta(cat.Meta(), records)
		if err == nil {
			var data []byte
			if data, err = catalog.Marshal(sub); err == nil {
				_, err = a.stdout.Write(data)
			}
		}
		if err != nil {
			a.errorf("%v", err)
			return exitFail
		}
	case "text", "":
		a.printCatalog(cat.Meta(), defs)
	default:
		a.errorf("unknown list format %q (want text, json or yaml)", *format)
		return exitUsage
	}
	return exitOK
}

func (a *app) printCatalog(meta catalog.Meta, defs []catalog.Definition) {
	if meta.Application != "" {
		fmt.Fprintf(a.stdout, "%s", meta.Application)
		if meta.URL != "" {
			fmt.Fprintf(a.stdout, " (%s)", meta.URL)
		}
		fmt.Fprintln(a.stdout)
	}
	keysW, ctxW := len("KEYS"), len("CONTEXT")
	for _, d := range defs {
		keysW = max(keysW, runewidth.StringWidth(d.Keys().String()))
		ctxW = max(ctxW, runewidth.StringWidth(d.Context()))
	}
	row := func(keys, cat, ctx, effect string) {
		fmt.Fprintf(a.stdout, "%s  %s  %s  %s\n",
			runewidth.FillRight(keys, keysW), runewidth.FillRight(cat, 10), runewidth.FillRight(ctx, ctxW), effect)
	}
	row("KEYS", "CATEGORY", "CONTEXT", "EXPECTED EFFECT")
	for _, d := range defs {
		row(d.Keys().String(), string(d.Category()), d.Context(), d.ExpectedEffect())
	}
	fmt.Fprintf(a.stdout, "%d shortcuts\n", len(defs))
}

// history inspects persisted runs
func (a *app) history(ctx context.Context, args []string) int {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}

	fs, configPath := a.newFlagSet("history " + sub)
	limit := fs.Int("limit", 20, "Number of runs to list")
	format := fs.String("format", "text", "Report format for show: text, json, yaml, markdown, html")
	keep := fs.Int("keep", 50, "Runs to keep when pruning")
	positional, code, ok := parseFlags(fs, args)
	if !ok {
		return code
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		a.errorf("%v", err)
		return exitUsage
	}

	var store *db.RunStore
	if _, statErr := os.Stat(cfg.GetHistoryPath()); cfg.History.Enabled || statErr == nil {
		st, err := db.Open(ctx, cfg.GetHistoryPath())
		if err != nil {
			a.errorf("open history: %v", err)
			return exitFail
		}
		defer func() { _ = st.Close() }()
		store = db.NewRunStore(st)
	}
	h := services.NewHistoryService(store)

	code, err = a.historyCommand(ctx, h, sub, positional, *limit, *format, *keep, cfg.Report)
	if err != nil {
		a.errorf("%v", err)
		if errors.Is(err, services.ErrHistoryDisabled) {
			return exitUsage
		}
	}
	return code
}

func (a *app) historyCommand(ctx context.Context, h services.HistoryService, sub string, args []string, limit int, format string, keep int, rc config.ReportConfig) (int, error) {
	switch sub {
	case "list":
		runs, err := h.ListRuns(ctx, limit)
		if err != nil {
			return exitFail, err
		}
		if len(runs) == 0 {
			fmt.Fprintln(a.stdout, "No runs recorded")
			return exitOK, nil
		}
		for _, r := range runs {
			fmt.Fprintf(a.stdout, "%s  %s  %-7s %3d/%-3d %5.1f%%  %s\n",
				r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status,
				r.Summary.Pass, r.Summary.Total, r.Summary.PassRate*100, r.Agent)
		}
		return exitOK, nil

	case "show":
		f, err := render.ParseFormat(format)
		if err != nil {
			return exitUsage, err
		}
		var rep *report.Report
		if len(args) == 0 || args[0] == "latest" {
			rep, err = h.LatestRun(ctx)
		} else {
			rep, err = h.LoadRun(ctx, args[0])
		}
		if err != nil {
			return exitFail, err
		}
		return exitOK, a.writeReport(a.stdout, rep, f, rc)

	case "diff":
		var prev, next string
		if len(args) > 0 {
			prev = args[0]
		}
		if len(args) > 1 {
			next = args[1]
		}
		d, err := h.CompareRuns(ctx, prev, next)
		if err != nil {
			return exitFail, err
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			return exitFail, err
		}
		if len(d.Regressions) > 0 {
			return exitFail, nil
		}
		return exitOK, nil

	case "prune":
		n, err := h.PruneRuns(ctx, keep)
		if err != nil {
			return exitUsage, err
		}
		fmt.Fprintf(a.stdout, "Removed %d runs\n", n)
		return exitOK, nil
	}
	return exitUsage, fmt.Errorf("unknown history command %q (want list, show, diff or prune)", sub)
}

// serve starts the web runner and reloads the configuration when its file changes
func (a *app) serve(ctx context.Context, args []string) int {
	fs, configPath := a.newFlagSet("serve")
	addr := fs.String("addr", "", "Listen address (default from config, 127.0.0.1:5000)")
	positional, code, ok := parseFlags(fs, args)
	if !ok {
		return code
	}
	if len(positional) > 0 {
		a.errorf("serve takes no arguments, got %q", positional)
		return exitUsage
	}

	manager := config.NewManager()
	path := getConfigPath(*configPath)
	if _, err := os.Stat(path); err == nil {
		if err := manager.LoadFromFile(path); err != nil {
			a.errorf("%v", err)
			return exitUsage
		}
	} else {
		manager.LoadFromDefaults()
	}
	cfg := manager.GetConfig()

	logger, closeLog := logging.Open(cfg.LogFile)
	defer closeLog()

	if manager.Path() != "" {
		manager.AddWatcher(func(c *config.Config) {
			logger.Printf("configuration reloaded: agent %s, catalog %q", c.Agent.Kind, c.Catalog.Path)
		})
		if err := manager.Watch(ctx); err != nil {
			logger.Printf("watch config: %v", err)
		}
		defer manager.StopWatching()
	}

	runs, closeDB := a.openHistory(ctx, cfg, logger)
	defer closeDB()

	if *addr == "" {
		*addr = cfg.Server.Addr
	}
	srv := &server.Server{
		Config:  manager,
		Runs:    services.NewRunService(runs, agent.Deps{In: a.stdin, Out: a.stderr}, logger),
		History: services.NewHistoryService(runs),
		Logger:  logger,
	}
	fmt.Fprintf(a.stderr, "Serving the runner on http://%s\n", *addr)
	if err := srv.ListenAndServe(ctx, *addr); err != nil {
		a.errorf("%v", err)
		return exitFail
	}
	return exitOK
}
