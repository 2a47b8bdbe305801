package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ajramos/keycheck/internal/config"
	"github.com/ajramos/keycheck/internal/version"
)

// Exit codes
const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

var commands = []string{"run", "list", "history", "serve", "setup"}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app carries the process streams through the subcommands
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}

	cmd := "run"
	if len(args) > 0 {
		switch args[0] {
		case "--version", "-version", "version":
			fmt.Fprintln(stdout, version.GetDetailedVersionString())
			return exitOK
		case "--help", "-help", "-h", "help":
			a.usage()
			return exitOK
		}
		for _, c := range commands {
			if args[0] == c {
				cmd, args = c, args[1:]
				break
			}
		}
	}

	switch cmd {
	case "list":
		return a.list(args)
	case "history":
		return a.history(ctx, args)
	case "serve":
		return a.serve(ctx, args)
	case "setup":
		return a.setup(args)
	default:
		return a.runChecks(ctx, args)
	}
}

func (a *app) usage() {
	w := a.stderr
	fmt.Fprintf(w, "%s\n\n", version.GetVersionString())
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  keycheck [run] [options] [catalog.yaml]   Verify the shortcuts of a catalog\n")
	fmt.Fprintf(w, "  keycheck list [options] [catalog.yaml]    Print the catalog\n")
	fmt.Fprintf(w, "  keycheck history list|show|diff|prune     Inspect persisted runs\n")
	fmt.Fprintf(w, "  keycheck serve [--addr host:port]         Start the web runner\n")
	fmt.Fprintf(w, "  keycheck setup                            Create the default configuration\n")
	fmt.Fprintf(w, "  keycheck --version                        Show version information\n\n")
	fmt.Fprintf(w, "Examples:\n")
	fmt.Fprintf(w, "  keycheck                                  # Replay the bundled Slashy session\n")
	fmt.Fprintf(w, "  keycheck --agent operator --context Inbox # Check Inbox shortcuts by hand\n")
	fmt.Fprintf(w, "  keycheck --format markdown --out r.md     # Save a Markdown report\n\n")
	fmt.Fprintf(w, "Environment Variables:\n")
	fmt.Fprintf(w, "  KEYCHECK_CONFIG   Override default config file path\n\n")
	fmt.Fprintf(w, "Run 'keycheck <command> -h' for the options of a command.\n")
}

// newFlagSet returns a flag set that reports errors instead of exiting
func (a *app) newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	configPath := fs.String("config", "", "Path to JSON configuration file (default: ~/.config/keycheck/config.json)")
	return fs, configPath
}

// parseFlags parses args, letting flags follow positional arguments, and
// returns the positionals. flag stops at the first non-flag argument, so
// parsing resumes after each one; everything after "--" is positional.
func parseFlags(fs *flag.FlagSet, args []string) ([]string, int, bool) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, exitOK, false
			}
			return nil, exitUsage, false
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, exitOK, true
		}
		if consumed := len(args) - len(rest); consumed > 0 && args[consumed-1] == "--" {
			return append(positional, rest...), exitOK, true
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// loadConfig reads and validates the configuration
func loadConfig(flagValue string) (*config.Config, string, error) {
	path := getConfigPath(flagValue)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// getConfigPath returns the configuration file path using the following priority:
// 1. CLI flag
// 2. Environment variable KEYCHECK_CONFIG
// 3. Default path ~/.config/keycheck/config.json
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return config.ExpandHome(flagValue)
	}
	return config.ExpandHome(config.DefaultConfigPath())
}

// catalogArg points the configuration at a catalog named on the command line
func catalogArg(cfg *config.Config, positional []string) error {
	switch len(positional) {
	case 0:
		return nil
	case 1:
		p, err := filepath.Abs(config.ExpandHome(positional[0]))
		if err != nil {
			return err
		}
		cfg.Catalog.Path = p
		return nil
	}
	return fmt.Errorf("expected at most one catalog file, got %d arguments", len(positional))
}

func (a *app) errorf(format string, args ...any) {
	fmt.Fprintf(a.stderr, "keycheck: "+format+"\n", args...)
}

// setup writes the default configuration after asking for confirmation
func (a *app) setup(args []string) int {
	fs, configPath := a.newFlagSet("setup")
	yes := fs.Bool("yes", false, "Do not ask for confirmation")
	positional, code, ok := parseFlags(fs, args)
	if !ok {
		return code
	}
	if len(positional) > 0 {
		a.errorf("setup takes no arguments, got %q", positional)
		return exitUsage
	}
	path := getConfigPath(*configPath)

	fmt.Fprintln(a.stdout, "keycheck setup")
	fmt.Fprintln(a.stdout, "==============")
	fmt.Fprintln(a.stdout)

	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(a.stdout, "Configuration file already exists: %s\n", path)
		return exitOK
	}
	fmt.Fprintf(a.stdout, "Will create configuration file: %s\n", path)

	if !*yes {
		fmt.Fprint(a.stdout, "Create default configuration file? [Y/n]: ")
		response, _ := bufio.NewReader(a.stdin).ReadString('\n')
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "" && response != "y" && response != "yes" {
			fmt.Fprintln(a.stdout, "Nothing written.")
			return exitOK
		}
	}

	cfg := config.DefaultConfig()
	if err := cfg.SaveConfig(path); err != nil {
		a.errorf("create config file: %v", err)
		return exitFail
	}
	fmt.Fprintf(a.stdout, "Created configuration file: %s\n", path)
	fmt.Fprintln(a.stdout)
	fmt.Fprintln(a.stdout, "Tips:")
	fmt.Fprintln(a.stdout, "• Set catalog.path to check your own shortcut catalog")
	fmt.Fprintln(a.stdout, "• Set agent.kind to operator, console, bridge or llm")
	fmt.Fprintln(a.stdout, "• Enable history to compare runs with 'keycheck history diff'")
	return exitOK
}
