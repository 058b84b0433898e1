// cmd/pipebot/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pipebot/internal/command"
	"pipebot/internal/config"
	"pipebot/internal/discord"
	"pipebot/internal/linesource"
	"pipebot/internal/logging"
	"pipebot/internal/relay"
	"pipebot/internal/storage"
	v "pipebot/internal/version"
)

var errInterrupted = errors.New("interrupted")

type flags struct {
	token   string
	file    string
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   v.AppName,
		Short: v.AppDescription,
		Long: `pipebot reads commands from a file, a named pipe or standard input and
relays them to Discord, one line at a time:

  message <channel_id> <text>
  playing|listening_to|watching|competing_in <text>
  clear_status`,
		Version:       v.String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := run(cmd.Context(), f)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "[ERR]", err)
			}
			return err
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Flags().StringVarP(&f.token, "token", "t", "", "Discord bot token (overrides PIPEBOT_DISCORD_TOKEN)")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "input file or named pipe; standard input when empty or -")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")
	return cmd
}

func loadConfig(f flags) (*config.Config, bool, error) {
	cfg, dotenv, err := config.Load()
	if err != nil {
		return nil, dotenv, err
	}
	if f.token != "" {
		cfg.DiscordToken = f.token
	}
	if f.file != "" {
		cfg.InputFile = f.file
	}
	if f.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, dotenv, cfg.Validate()
}

func run(ctx context.Context, f flags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, dotenv, err := loadConfig(f)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting "+v.AppName, zap.String("version", v.Version), zap.Bool("dotenv", dotenv))

	store, err := storage.New(cfg.StoragePath, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	bot, err := discord.NewBot(cfg, logger)
	if err != nil {
		return err
	}
	if cfg.RestorePresence {
		rec, err := store.LoadPresence()
		if err != nil {
			logger.Warn("Failed to load saved presence", zap.Error(err))
		}
		bot.RestorePresence(relay.PresenceFromRecord(rec))
	}

	if err := bot.Open(); err != nil {
		return err
	}
	defer bot.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-bot.Ready():
	case s := <-sig:
		logger.Info("Received signal before ready, shutting down", zap.Stringer("signal", s))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	logger.Info("Opening input", zap.String("path", cfg.InputFile))
	src, err := openInput(ctx, sig, func() (linesource.Source, error) {
		return linesource.Open(cfg.InputFile,
			linesource.WithBackoff(cfg.EOFBackoff),
			linesource.WithLogger(logger),
		)
	})
	if errors.Is(err, errInterrupted) {
		logger.Info("Received signal while opening input, shutting down", zap.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer src.Close()

	dispatcher := relay.Apply(bot,
		relay.WithLogger(logger),
		relay.WithHistory(store, logger),
		relay.WithPresenceMemory(store, logger),
	)
	runner := relay.NewRunner(command.NewReader(src), dispatcher,
		relay.WithDiagnostics(os.Stderr),
		relay.WithRunnerLogger(logger),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runner.Run(ctx)
		close(errCh)
	}()

	select {
	case s := <-sig:
		logger.Info("Received signal, shutting down", zap.Stringer("signal", s))
		cancel()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Input failed", zap.Error(err))
			return err
		}
	}

	logger.Info(v.AppName + " exited cleanly")
	return nil
}

// openInput runs open, which blocks on a named pipe until a writer connects,
// while still honouring signals and ctx. A source opened after giving up is
// closed.
func openInput(ctx context.Context, sig <-chan os.Signal, open func() (linesource.Source, error)) (linesource.Source, error) {
	type result struct {
		src linesource.Source
		err error
	}
	done := make(chan result, 1)
	go func() {
		src, err := open()
		done <- result{src, err}
	}()

	abandon := func() {
		go func() {
			if r := <-done; r.err == nil {
				r.src.Close()
			}
		}()
	}

	select {
	case r := <-done:
		return r.src, r.err
	case s := <-sig:
		abandon()
		return nil, fmt.Errorf("%w by %s", errInterrupted, s)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}
}
