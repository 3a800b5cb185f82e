package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KafClaw/expensecat/internal/config"
	"github.com/KafClaw/expensecat/internal/guard"
	"github.com/KafClaw/expensecat/internal/handler"
	"github.com/KafClaw/expensecat/internal/health"
	"github.com/KafClaw/expensecat/internal/journal"
	"github.com/KafClaw/expensecat/internal/runner"
	"github.com/KafClaw/expensecat/internal/stream"
	"github.com/KafClaw/expensecat/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Consume chat requests and publish results",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	printHeader(cmd, "🧾 expensecat worker")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ag, err := buildAgent(ctx, cfg)
	if err != nil {
		return err
	}

	var jr *journal.Journal
	if cfg.Journal.Path != "" {
		jr, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer jr.Close()
		slog.Info("Request journal enabled", "path", cfg.Journal.Path)
	}

	source, sink, closeStream, err := openStream(ctx, cfg, jr)
	if err != nil {
		return err
	}
	defer closeStream()

	dispatcher := handler.NewDispatcher(ag, sink, runner.New(guard.DefaultChain()), cfg.Runner.MaxAttempts)
	opts := worker.Options{Source: source, Dispatcher: dispatcher}
	if jr != nil {
		opts.Journal = jr
	}
	w := worker.New(opts)
	srv := health.NewServer(health.ResolvePort(cfg.Server.Port))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		// a closed source ends the process, not just the loop
		defer cancel()
		return w.Run(gctx)
	})

	slog.Info("expensecat serving",
		"backend", cfg.Stream.Backend,
		"requests", cfg.Stream.Requests,
		"results", cfg.Stream.Results,
		"model", cfg.Model.Name,
		"health_addr", srv.Addr())
	return g.Wait()
}

// openStream builds the configured transport. The returned func releases it.
func openStream(ctx context.Context, cfg *config.Config, jr *journal.Journal) (stream.Source, stream.Sink, func(), error) {
	switch cfg.Stream.Backend {
	case config.BackendKafka:
		kopts := stream.KafkaOptions{
			Brokers:       cfg.Kafka.Brokers,
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
			Requests:      cfg.Stream.Requests,
			Results:       cfg.Stream.Results,
		}
		src := stream.NewKafkaSource(kopts)
		sink := stream.NewKafkaSink(kopts)
		return src, sink, func() {
			_ = src.Close()
			_ = sink.Close()
		}, nil

	case config.BackendRedis:
		ropts := stream.RedisOptions{
			Addr:     cfg.RedisAddr(),
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			Requests: cfg.Stream.Requests,
			Results:  cfg.Stream.Results,
			Block:    cfg.Stream.Block,
			Count:    cfg.Stream.Count,
		}
		if jr != nil {
			ropts.Cursor = jr
		}
		client := stream.NewRedisClient(ropts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("redis %s: %w", ropts.Addr, err)
		}
		src, err := stream.NewRedisSource(ctx, client, ropts)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		slog.Info("Connected to Redis", "addr", ropts.Addr)
		return src, stream.NewRedisSink(client, ropts), func() { _ = client.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown stream backend %q", cfg.Stream.Backend)
	}
}
