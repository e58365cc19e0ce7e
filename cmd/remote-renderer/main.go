package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/AgentOS/remote/internal/config"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc/websocket"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/renderer"
	"github.com/GriffinCanCode/AgentOS/remote/internal/sandbox"
)

func main() {
	configPath := flag.String("config", "", "TOML or YAML config file")
	url := flag.String("url", "ws://localhost:8000/ipc", "Host WebSocket URL")
	eval := flag.String("e", "", "Script source (instead of a file argument)")
	linger := flag.Duration("linger", 0, "Keep serving callbacks after the script finishes")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.FromConfig(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	name, src, err := readScript(*eval, flag.Args())
	if err != nil {
		logger.Fatal("No script", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := run(ctx, cfg, logger, *url, name, src, *linger)
	if err != nil {
		logger.Fatal("Renderer failed", zap.Error(err))
	}
	fmt.Println(out)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func readScript(eval string, args []string) (name, src string, err error) {
	if eval != "" {
		return "<eval>", eval, nil
	}
	if len(args) == 0 {
		return "", "", errors.New("pass a script file or -e")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", err
	}
	return args[0], string(data), nil
}

func run(ctx context.Context, cfg *config.Config, log *logging.Logger, url, name, src string, linger time.Duration) (string, error) {
	logger := log.Logger
	tracer := tracing.New("remote-renderer", logger)
	defer tracer.Close()
	span, ctx := tracer.StartSpan(ctx, "script")
	span.SetTag("script", name)
	defer tracer.Submit(span)

	header := http.Header{}
	tracing.Inject(ctx, header)
	conn, err := websocket.Dial(ctx, url, header, websocket.OptionsFromConfig(cfg.Transport))
	if err != nil {
		span.SetError(err)
		return "", err
	}

	metrics := monitoring.NewMetrics()
	epOpts := ipc.OptionsFromConfig(cfg, "renderer")
	epOpts.Logger = logger
	epOpts.Metrics = metrics
	ep := ipc.NewEndpoint(conn, epOpts)
	defer ep.Close()

	sb, err := sandbox.New(sandbox.ConfigFrom(cfg.Sandbox), log.Component("console"))
	if err != nil {
		return "", err
	}
	defer sb.Close()

	opts := renderer.OptionsFromConfig(cfg)
	opts.Logger = logger
	opts.Metrics = metrics
	opts.OnCallbackError = func(id int64, err error) {
		logger.Warn("Host callback failed", zap.Int64("callback_id", id), zap.Error(err))
	}

	var out string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The bridge lives in the sandbox VM; everything touching it runs
		// on this goroutine.
		defer ep.Close()
		var bridge *renderer.Bridge
		err := sb.Do(gctx, func(vm *goja.Runtime) error {
			b, err := renderer.New(vm, ep, opts)
			if err != nil {
				return err
			}
			if _, err := b.Install(vm.GlobalObject()); err != nil {
				return err
			}
			bridge = b
			return b.Run(gctx, func() error {
				v, err := vm.RunScript(name, src)
				if err != nil {
					return err
				}
				out = v.String()
				return nil
			})
		})
		if err != nil {
			return err
		}

		if linger > 0 {
			lctx, cancel := context.WithTimeout(gctx, linger)
			defer cancel()
			err = sb.Guard(lctx, func(*goja.Runtime) error {
				return bridge.Run(lctx, func() error { return ep.Serve(lctx) })
			})
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
		}

		stats := bridge.Stats()
		logger.Debug("Renderer finished",
			zap.Int("proxies", stats.Proxies),
			zap.Int("callbacks", stats.Callbacks))
		return sb.Do(context.Background(), func(*goja.Runtime) error {
			bridge.Close()
			return nil
		})
	})
	g.Go(func() error {
		select {
		case <-ep.Done():
			if err := ep.Err(); err != nil && !errors.Is(err, ipc.ErrClosed) {
				logger.Debug("Connection ended", zap.Error(err))
			}
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		span.SetError(err)
		return "", err
	}
	return out, nil
}
