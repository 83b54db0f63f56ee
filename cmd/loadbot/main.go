package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"carekeeper/client"
)

// 1行で応答が返るコマンドだけを順に送る
var script = []string{"add-fish", "feed-fish", "add-fish", "view-tank", "clean-tank", "get-fish-fact", "view-fish", "remove-fish"}

type loadConfig struct {
	Addr        string
	Total       int
	Concurrency int
	Prefix      string
	Timeout     time.Duration
}

func main() {
	var (
		addrFlag        = flag.String("addr", "localhost:8080", "target tcp address")
		totalFlag       = flag.Int("total", 100, "total number of commands to send")
		concurrencyFlag = flag.Int("concurrency", 10, "number of concurrent bots")
		prefixFlag      = flag.String("prefix", "bot", "username prefix")
		timeoutFlag     = flag.Duration("timeout", 15*time.Second, "per-command timeout")
	)
	flag.Parse()

	if *totalFlag <= 0 || *concurrencyFlag <= 0 {
		fmt.Fprintln(os.Stderr, "total and concurrency must be positive")
		os.Exit(2)
	}
	cfg := loadConfig{
		Addr:        *addrFlag,
		Total:       *totalFlag,
		Concurrency: min(*concurrencyFlag, *totalFlag),
		Prefix:      *prefixFlag,
		Timeout:     *timeoutFlag,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	success, failure, pushes := run(ctx, cfg)
	slog.Info("load complete",
		"success", success, "failure", failure, "pushes", pushes, "elapsed", time.Since(start))
}

func run(ctx context.Context, cfg loadConfig) (success, failure, pushes int64) {
	var wg sync.WaitGroup
	perBot, remainder := divideWork(cfg.Total, cfg.Concurrency)
	for bot := range cfg.Concurrency {
		n := perBot
		if bot < remainder {
			n++
		}
		wg.Go(func() {
			s, f, p := runBot(ctx, cfg, bot, n)
			atomic.AddInt64(&success, s)
			atomic.AddInt64(&failure, f)
			atomic.AddInt64(&pushes, p)
		})
	}
	wg.Wait()
	return success, failure, pushes
}

func runBot(ctx context.Context, cfg loadConfig, bot, n int) (success, failure, pushes int64) {
	name := fmt.Sprintf("%s-%d", cfg.Prefix, bot)
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	c, err := client.Dial(dialCtx, cfg.Addr)
	if err == nil {
		err = c.Login(dialCtx, name)
	}
	cancel()
	if err != nil {
		slog.Warn("bot could not start", "bot", name, "err", err)
		return 0, int64(n), 0
	}

	for i := range n {
		if ctx.Err() != nil {
			break
		}
		cmdCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		reply, err := send(cmdCtx, c, script[i%len(script)])
		cancel()
		switch {
		case err == nil, errors.Is(err, client.ErrNoFish):
			success++
			slog.Debug("reply", "bot", name, "reply", reply)
		default:
			failure++
			slog.Warn("command failed", "bot", name, "err", err)
		}
	}

	quitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeout)
	defer cancel()
	if _, err := c.Quit(quitCtx); err != nil {
		slog.Warn("quit failed", "bot", name, "err", err)
	}
	return success, failure, int64(c.Pushes)
}

func send(ctx context.Context, c *client.Client, command string) (string, error) {
	switch command {
	case "remove-fish":
		return c.RemoveFirstFish(ctx)
	case "view-fish", "view-tank":
		lines, err := c.View(ctx, command)
		return strings.Join(lines, " | "), err
	}
	return c.Do(ctx, command)
}

func divideWork(total, workers int) (int, int) {
	return total / workers, total % workers
}
