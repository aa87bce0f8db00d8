// Package main is the entrypoint for the shield security gateway.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/describe-it/shield/internal/config"
	"github.com/describe-it/shield/internal/keyvault"
	"github.com/describe-it/shield/internal/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// startable is an interface for anything that can be started and then
// shut down with a context — satisfied by *server.Server.
type startable interface {
	Start(ctx context.Context) error
}

// serverFactory creates a startable server from config. Tests can inject
// a failing factory to cover the server.New() error path.
type serverFactory func(cfg *config.Config, configPath, version string) (startable, error)

// defaultServerFactory is the production factory delegating to server.New.
func defaultServerFactory(cfg *config.Config, configPath, version string) (startable, error) {
	return server.New(cfg, configPath, version)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("shield", flag.ContinueOnError)
	configPath := fs.String("config", "shield.yaml", "path to configuration file")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			printUsage()
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *showVersion {
		fmt.Printf("shield %s\n", Version)
		return 0
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	subcmd := "serve"
	remaining := fs.Args()
	if len(remaining) > 0 {
		subcmd = remaining[0]
		remaining = remaining[1:]
	}

	switch subcmd {
	case "serve":
		return cmdServe(*configPath, defaultServerFactory)
	case "validate":
		return cmdValidate(os.Stdout, *configPath)
	case "init":
		return cmdInit(remaining)
	case "seal-key":
		return cmdSealKey(os.Stdout, os.Stdin, remaining)
	case "genkey":
		return cmdGenKey(os.Stdout)
	case "help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", subcmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `shield %s — API Security Gateway

Usage:
  shield [flags] <command>

Commands:
  serve      Start the gateway server (default)
  validate   Validate configuration file
  init       Generate a new shield.yaml
  seal-key   Seal an upstream API key for use in configuration
  genkey     Generate a new master key for %s
  help       Show this help message

Flags:
  --config string   Path to configuration file (default "shield.yaml")
  --version         Print version and exit

Examples:
  shield serve --config shield.yaml
  shield validate --config shield.yaml
  shield init --profile prod
  shield genkey
  shield seal-key sk-your-upstream-key
`, Version, keyvault.MasterKeyEnv)
}

// cmdServe starts the gateway with graceful shutdown on SIGINT/SIGTERM.
func cmdServe(configPath string, newServer serverFactory) int {
	logger := slog.Default()
	logger.Info("starting shield",
		"version", Version,
		"config", configPath,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("configuration error", "error", err)
		return 1
	}

	srv, err := newServer(cfg, configPath, Version)
	if err != nil {
		logger.Error("server initialization error", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", "error", err)
		return 1
	}

	return 0
}

// cmdValidate loads and validates the configuration file.
func cmdValidate(out io.Writer, configPath string) int {
	if _, err := config.Load(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, "config valid")
	return 0
}

// cmdInit generates a new shield.yaml with the specified profile.
func cmdInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	profile := fs.String("profile", "dev", "configuration profile (dev or prod)")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var profileYAML string
	switch *profile {
	case "prod":
		profileYAML = config.ProdProfile()
	case "dev":
		profileYAML = config.DevProfile()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown profile %q (use dev or prod)\n", *profile)
		return 1
	}

	outPath := "shield.yaml"
	if err := os.WriteFile(outPath, []byte(profileYAML), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", outPath, err)
		return 1
	}

	fmt.Printf("Generated %s with profile %q\n", outPath, *profile)
	return 0
}

// cmdSealKey seals an upstream API key with the master key from the
// environment. The plaintext comes from the first argument, or stdin
// when no argument is given so the key stays out of shell history.
func cmdSealKey(out io.Writer, in io.Reader, args []string) int {
	vault, err := keyvault.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var plaintext string
	if len(args) > 0 {
		plaintext = args[0]
	} else {
		scanner := bufio.NewScanner(in)
		if scanner.Scan() {
			plaintext = strings.TrimSpace(scanner.Text())
		}
	}
	if plaintext == "" {
		fmt.Fprintln(os.Stderr, "Error: no key to seal (pass as argument or on stdin)")
		return 1
	}

	sealed, err := vault.Seal(plaintext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, sealed)
	return 0
}

// cmdGenKey generates and prints a new master key.
func cmdGenKey(out io.Writer) int {
	key, err := keyvault.GenerateMasterKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, key)
	return 0
}
