package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tinyclaw/tinyclaw/internal/channels"
	"github.com/tinyclaw/tinyclaw/internal/config"
	"github.com/tinyclaw/tinyclaw/internal/cron"
	"github.com/tinyclaw/tinyclaw/internal/dependency"
	"github.com/tinyclaw/tinyclaw/internal/device"
	"github.com/tinyclaw/tinyclaw/internal/gateway"
	"github.com/tinyclaw/tinyclaw/internal/heartbeat"
	"github.com/tinyclaw/tinyclaw/internal/schema"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Manage the tinyclaw gateway",
}

func init() {
	gatewayCmd.AddCommand(gatewayStartCmd)
	gatewayCmd.AddCommand(gatewayStopCmd)
	gatewayCmd.AddCommand(gatewayStatusCmd)
}

var gatewayStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	RunE:  runGatewayStart,
}

func runGatewayStart(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	svc, err := dependency.New(cfg)
	if err != nil {
		return err
	}

	if err := writePIDFile(); err != nil {
		return err
	}
	defer removePIDFile()

	messageBus := svc.MessageBus()
	cronService := svc.CronService()
	loop := svc.AgentLoop()

	// Cron fires become synthetic agent turns; delivery goes through the
	// outbound queue like any other reply.
	cronService.SetHandler(func(ctx context.Context, job cron.Job) (string, error) {
		channel := job.Payload.Channel
		chatID := job.Payload.To
		if channel == "" {
			channel = "cli"
		}
		if chatID == "" {
			chatID = "direct"
		}
		resp := loop.ProcessDirect(ctx, job.Payload.Message, "cron:"+job.ID, channel, chatID)
		if job.Payload.Deliver && job.Payload.To != "" {
			messageBus.PublishOutbound(schema.OutboundMessage{
				Channel: channel,
				ChatID:  chatID,
				Content: resp,
			})
		}
		return resp, nil
	})

	// Heartbeat injects its prompt the same way, reporting to the last route.
	hb := heartbeat.NewService(cfg.WorkspacePath(),
		time.Duration(cfg.Heartbeat.IntervalMinutes)*time.Minute,
		func(ctx context.Context, prompt, channel, chatID string) (string, error) {
			resp := loop.ProcessDirect(ctx, prompt, "heartbeat:main", channel, chatID)
			if channel != "" && chatID != "" && resp != "" {
				messageBus.PublishOutbound(schema.OutboundMessage{
					Channel: channel,
					ChatID:  chatID,
					Content: resp,
				})
			}
			return resp, nil
		})

	devices := device.NewService(messageBus, cfg.Devices.MonitorUSB)

	// Record each turn's destination so heartbeat and device events know
	// where to report.
	loop.OnRoute = func(channel, chatID string) {
		hb.SetLastRoute(channel, chatID)
		devices.SetLastRoute(channel, chatID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	channelMgr := channels.NewManager(cfg, messageBus)
	if names := channelMgr.Names(); len(names) > 0 {
		fmt.Printf("Channels enabled: %s\n", strings.Join(names, ", "))
	} else {
		fmt.Println("Warning: no channels enabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return cronService.Start(gctx) })
	g.Go(func() error {
		if !cfg.Heartbeat.Enabled {
			<-gctx.Done()
			return gctx.Err()
		}
		return hb.Start(gctx)
	})
	g.Go(func() error {
		if !cfg.Devices.Enabled {
			<-gctx.Done()
			return gctx.Err()
		}
		return devices.Start(gctx)
	})
	g.Go(func() error {
		health := gateway.NewHealthServer(cfg.Gateway.Host, cfg.Gateway.Port, version)
		return health.Start(gctx)
	})
	g.Go(func() error {
		channelMgr.DispatchOutbound(gctx)
		return gctx.Err()
	})
	channelMgr.StartAll(gctx)

	fmt.Println("Gateway running. Press Ctrl+C to stop.")

	err = g.Wait()

	// Orderly shutdown: stop adapters, close the bus (publishes after this
	// point are dropped), flush sessions through the agents' SaveAll.
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	channelMgr.StopAll(stopCtx)
	messageBus.Close()
	for _, id := range svc.AgentRegistry().IDs() {
		if inst := svc.AgentRegistry().Get(id); inst != nil {
			inst.Sessions.SaveAll()
		}
	}

	if err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}

var gatewayStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running gateway",
	RunE: func(_ *cobra.Command, _ []string) error {
		pid, err := readPIDFile()
		if err != nil {
			return fmt.Errorf("gateway does not appear to be running: %w", err)
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("could not find process %d: %w", pid, err)
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to stop gateway (pid %d): %w", pid, err)
		}
		fmt.Printf("Sent SIGTERM to gateway (pid %d)\n", pid)
		return nil
	},
}

var gatewayStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status",
	RunE: func(_ *cobra.Command, _ []string) error {
		pid, err := readPIDFile()
		if err != nil {
			fmt.Println("Gateway: stopped")
			return nil
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			fmt.Println("Gateway: stopped")
			return nil
		}
		// FindProcess always succeeds on Linux; signal 0 checks liveness.
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			fmt.Println("Gateway: stopped")
			removePIDFile()
			return nil
		}
		fmt.Printf("Gateway: running (pid %d)\n", pid)
		return nil
	},
}

func pidFilePath() string {
	return filepath.Join(config.DataDir(), "gateway.pid")
}

func writePIDFile() error {
	path := pidFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func removePIDFile() {
	_ = os.Remove(pidFilePath())
}

func readPIDFile() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
