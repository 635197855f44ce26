// Command lcm is the engine's entrypoint: a hook surface the host invokes
// around every transcript-changing event (capture, inject, init) and a
// small set of dev retrieval subcommands (status, grep, describe, expand)
// for operators poking at a session from a terminal.
//
// Usage:
//
//	lcm capture [--config path]    # stdin: {"session_id","transcript_path"}
//	lcm inject [--config path]     # stdin: {"session_id"}
//	lcm init [--config path]       # stdin: {"session_id"}
//	lcm status <session>
//	lcm grep <session> <query> [--mode fts|regex] [--scope messages|summaries|both] [--page N]
//	lcm describe <session> <id>
//	lcm expand <session> <id> [--page N]
//	lcm analyze-file <session> <file-id>
//	lcm version
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dpalmqvist/lossless-context-management/capture"
	"github.com/dpalmqvist/lossless-context-management/compaction"
	"github.com/dpalmqvist/lossless-context-management/config"
	"github.com/dpalmqvist/lossless-context-management/injection"
	"github.com/dpalmqvist/lossless-context-management/internal/ctxkeys"
	"github.com/dpalmqvist/lossless-context-management/internal/metrics"
	"github.com/dpalmqvist/lossless-context-management/lcmerr"
	"github.com/dpalmqvist/lossless-context-management/llmclient"
	"github.com/dpalmqvist/lossless-context-management/retrieval"
	"github.com/dpalmqvist/lossless-context-management/store"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

// Hook execution wall clock, per spec.md §5: the host must never see a
// hook run longer than this, so each hook abandons its own work rather
// than run unbounded.
const (
	hookTimeout    = 10 * time.Second
	compactTimeout = 30 * time.Second
)

// softCompactSubcommand is the hidden entrypoint a detached child process
// runs to execute a soft-pressure pass. It is not part of the documented
// CLI surface; runCapture execs it so a soft pass outlives the hook
// process instead of blocking it.
const softCompactSubcommand = "__compact-soft"

// hookInput is the stdin JSON payload for capture, inject, and init, per
// spec.md §6's hook surface contract.
type hookInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Event          string `json:"event"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "capture":
		os.Exit(runCapture(os.Args[2:]))
	case "inject":
		os.Exit(runInject(os.Args[2:]))
	case "init":
		os.Exit(runInit(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "grep":
		os.Exit(runGrep(os.Args[2:]))
	case "describe":
		os.Exit(runDescribe(os.Args[2:]))
	case "expand":
		os.Exit(runExpand(os.Args[2:]))
	case "analyze-file":
		os.Exit(runAnalyzeFile(os.Args[2:]))
	case softCompactSubcommand:
		os.Exit(runCompactSoftWorker(os.Args[2:]))
	case "version":
		fmt.Printf("lcm %s (%s)\n", Version, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Println(`lcm - lossless context management engine

Hook surface (stdin: JSON {session_id, transcript_path, event}):
  capture    append new transcript records; may trigger soft compaction
  inject     print the reconstruction block for a session, or nothing
  init       ensure a session's schema and row exist

Dev retrieval surface:
  status       <session>
  grep         <session> <query> [--mode fts|regex] [--scope messages|summaries|both] [--page N]
  describe     <session> <id>
  expand       <session> <id> [--page N]
  analyze-file <session> <file-id>

  version  print build info`)
}

func loadConfig(configPath string) (*config.Config, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	return loader.Load()
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// readHookInput decodes the hook's stdin payload and resolves its session
// id: stdin's own value, then CLAUDE_SESSION_ID, then a freshly minted
// bootstrap token if neither is set (a host invoking init without ever
// having assigned a session id of its own).
func readHookInput(r io.Reader, logger *zap.Logger) (hookInput, error) {
	var in hookInput
	dec := json.NewDecoder(r)
	if err := dec.Decode(&in); err != nil {
		return hookInput{}, lcmerr.InputError("read_hook_input", err)
	}
	in.SessionID = config.ResolveSessionID(in.SessionID)
	if in.SessionID == "" {
		in.SessionID = uuid.NewString()
		logger.Info("minted bootstrap session id", zap.String("session_id", in.SessionID))
	}
	return in, nil
}

// baseContext attaches the process-scoped values every downstream call
// needs — the active session id and a logger callees can fall back to
// when they weren't handed one directly — so a single ctx carries what
// would otherwise be repeated function parameters.
func baseContext(sessionID string, logger *zap.Logger) context.Context {
	ctx := ctxkeys.WithSessionID(context.Background(), sessionID)
	return ctxkeys.WithLogger(ctx, logger)
}

func runCapture(args []string) int {
	fs := flag.NewFlagSet("capture", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := newLogger()
	defer logger.Sync()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	in, err := readHookInput(os.Stdin, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "capture: %v\n", err)
		return lcmerr.KindInputError.ExitCode()
	}
	st, err := store.Open(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "capture: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	defer st.Close()

	collector := metrics.NewCollector("lcm", logger)
	ctx := baseContext(in.SessionID, logger)
	sessionID, _ := ctxkeys.SessionID(ctx)

	captureCtx, cancelCapture := context.WithTimeout(ctx, hookTimeout)
	defer cancelCapture()

	capturer := capture.New(st, cfg.Capture, collector, logger)
	result, err := capturer.Run(captureCtx, sessionID, in.TranscriptPath)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			ctxkeys.Logger(ctx).Warn("capture abandoned: hook timeout exceeded", zap.String("session_id", sessionID))
			return 0
		}
		if lcmerr.Is(err, lcmerr.KindTranscriptUnreadable) {
			ctxkeys.Logger(ctx).Warn("capture degraded to no-op", zap.Error(err), zap.String("session_id", sessionID))
			return 0
		}
		fmt.Fprintf(os.Stderr, "capture: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	ctxkeys.Logger(ctx).Info("capture complete",
		zap.String("session_id", sessionID),
		zap.Int("messages_appended", result.MessagesAppended),
		zap.Int("blobs_diverted", result.BlobsDiverted),
	)

	if result.MessagesAppended == 0 {
		return 0
	}

	compactCtx, cancelCompact := context.WithTimeout(ctx, compactTimeout)
	defer cancelCompact()

	llmClient := buildLLMClient(cfg, collector, logger)
	// Soft pressure is offloaded to a detached subprocess rather than
	// this process's own in-process pool: this is a one-shot CLI
	// invocation, so any goroutine of its own dies the moment it exits,
	// regardless of whether the host treats the hook as synchronous.
	engine := compaction.New(st, llmClient, cfg.Thresholds, cfg.Compaction, nil, collector, logger)
	engine.SetSoftDispatcher(func(sid string) { dispatchDetachedSoftPass(*configPath, sid, logger) })
	if err := engine.CheckAndMaybeCompact(compactCtx, sessionID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			ctxkeys.Logger(ctx).Warn("compaction abandoned: hook timeout exceeded", zap.String("session_id", sessionID))
		} else {
			ctxkeys.Logger(ctx).Warn("compaction check failed", zap.Error(err), zap.String("session_id", sessionID))
		}
	}
	return 0
}

// dispatchDetachedSoftPass execs this same binary's hidden soft-compaction
// worker as a fully detached process and does not wait for it, so a soft
// pass (including its LLM call) can run to completion after the triggering
// hook process has already exited. Wiring it through the pool instead
// would tie the pass to this process's own goroutines, which die the
// moment main returns.
func dispatchDetachedSoftPass(configPath, sessionID string, logger *zap.Logger) {
	exePath, err := os.Executable()
	if err != nil {
		logger.Warn("soft compaction dispatch failed: cannot resolve executable", zap.Error(err))
		return
	}

	cmd := exec.Command(exePath, softCompactSubcommand, "--config", configPath, "--session", sessionID)
	detachProcess(cmd)

	if err := cmd.Start(); err != nil {
		logger.Warn("soft compaction dispatch failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	go cmd.Wait() // reap the child without blocking the caller
}

func runInject(args []string) int {
	fs := flag.NewFlagSet("inject", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := newLogger()
	defer logger.Sync()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	in, err := readHookInput(os.Stdin, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inject: %v\n", err)
		return lcmerr.KindInputError.ExitCode()
	}

	st, err := store.Open(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inject: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(baseContext(in.SessionID, logger), hookTimeout)
	defer cancel()
	block, err := injection.Build(ctx, st, in.SessionID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("inject abandoned: hook timeout exceeded", zap.String("session_id", in.SessionID))
		} else {
			logger.Warn("inject swallowed error", zap.Error(err), zap.String("session_id", in.SessionID))
		}
		return 0
	}
	if block != "" {
		fmt.Println(block)
	}
	return 0
}

func runInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := newLogger()
	defer logger.Sync()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	in, err := readHookInput(os.Stdin, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		return lcmerr.KindInputError.ExitCode()
	}

	st, err := store.Open(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	defer st.Close()

	// Opening the store already applied pending migrations. A session
	// row is created lazily on its first captured message, so there is
	// nothing further to provision here: init does no work past store
	// open that could itself run long, so unlike capture/inject it has
	// no bounded phase to wrap in its own timeout.
	logger.Info("session initialized", zap.String("session_id", in.SessionID))
	return 0
}

// runCompactSoftWorker is the hidden entrypoint a detached child process
// runs on behalf of runCapture's soft-pressure dispatch. It is bounded by
// its own compact timeout rather than the triggering hook's, since it
// keeps running after that process has already exited.
func runCompactSoftWorker(args []string) int {
	fs := flag.NewFlagSet(softCompactSubcommand, flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	sessionID := fs.String("session", "", "session id to compact")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *sessionID == "" {
		fmt.Fprintln(os.Stderr, "compact-soft: missing --session")
		return 2
	}

	logger := newLogger()
	defer logger.Sync()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compact-soft: %v\n", err)
		return 2
	}

	st, err := store.Open(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compact-soft: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	defer st.Close()

	collector := metrics.NewCollector("lcm", logger)
	llmClient := buildLLMClient(cfg, collector, logger)
	engine := compaction.New(st, llmClient, cfg.Thresholds, cfg.Compaction, nil, collector, logger)

	ctx, cancel := context.WithTimeout(baseContext(*sessionID, logger), compactTimeout)
	defer cancel()

	if err := engine.RunSoftPass(ctx, *sessionID); err != nil {
		logger.Warn("detached soft compaction failed", zap.String("session_id", *sessionID), zap.Error(err))
		return lcmerr.ExitCode(err)
	}
	return 0
}

func buildLLMClient(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) llmclient.Client {
	apiKey := config.ResolveAPIKey(cfg, "ANTHROPIC_API_KEY")
	inner := llmclient.NewAnthropicClient(apiKey, cfg.LLM.Model)
	return llmclient.NewRetryingClient(inner, cfg.LLM, collector, logger)
}

func openRetrievalTools(configPath string, logger *zap.Logger) (*retrieval.Tools, *store.SQLiteStore, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	collector := metrics.NewCollector("lcm", logger)
	llm := buildLLMClient(cfg, collector, logger)
	return retrieval.New(st, cfg.Retrieval.PageSize, llm, collector, logger), st, nil
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: lcm status <session>")
		return 2
	}

	logger := newLogger()
	defer logger.Sync()
	tools, st, err := openRetrievalTools(*configPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	defer st.Close()

	result, err := tools.Status(baseContext(fs.Arg(0), logger), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	return printJSON(result)
}

func runGrep(args []string) int {
	fs := flag.NewFlagSet("grep", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	mode := fs.String("mode", "fts", "search mode: fts or regex")
	scope := fs.String("scope", "both", "search scope: messages, summaries, or both")
	page := fs.Int("page", 1, "result page")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "usage: lcm grep <session> <query> [flags]")
		return 2
	}

	logger := newLogger()
	defer logger.Sync()
	tools, st, err := openRetrievalTools(*configPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "grep: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	defer st.Close()

	result, err := tools.Grep(baseContext(fs.Arg(0), logger), fs.Arg(0), fs.Arg(1),
		retrieval.SearchMode(*mode), retrieval.SearchScope(*scope), *page)
	if err != nil {
		fmt.Fprintf(os.Stderr, "grep: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	return printJSON(result)
}

func runDescribe(args []string) int {
	fs := flag.NewFlagSet("describe", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "usage: lcm describe <session> <id>")
		return 2
	}

	logger := newLogger()
	defer logger.Sync()
	tools, st, err := openRetrievalTools(*configPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "describe: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	defer st.Close()

	result, err := tools.Describe(baseContext(fs.Arg(0), logger), fs.Arg(0), fs.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "describe: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	return printJSON(result)
}

func runExpand(args []string) int {
	fs := flag.NewFlagSet("expand", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	page := fs.Int("page", 1, "result page")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "usage: lcm expand <session> <id> [--page N]")
		return 2
	}

	logger := newLogger()
	defer logger.Sync()
	tools, st, err := openRetrievalTools(*configPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "expand: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	defer st.Close()

	result, err := tools.Expand(baseContext(fs.Arg(0), logger), fs.Arg(0), fs.Arg(1), *page)
	if err != nil {
		fmt.Fprintf(os.Stderr, "expand: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	return printJSON(result)
}

func runAnalyzeFile(args []string) int {
	fs := flag.NewFlagSet("analyze-file", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "usage: lcm analyze-file <session> <file-id>")
		return 2
	}

	logger := newLogger()
	defer logger.Sync()
	tools, st, err := openRetrievalTools(*configPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze-file: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	defer st.Close()

	result, err := tools.AnalyzeFile(baseContext(fs.Arg(0), logger), fs.Arg(0), fs.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze-file: %v\n", err)
		return lcmerr.ExitCode(err)
	}
	return printJSON(result)
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		return 1
	}
	return 0
}
