// Command garage-monitor watches a garage door reed switch and sends a webhook
// alert when the door has been left open too long.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sweeney/garage-monitor/internal/config"
	"github.com/sweeney/garage-monitor/internal/gpio"
	"github.com/sweeney/garage-monitor/internal/hoststats"
	"github.com/sweeney/garage-monitor/internal/led"
	"github.com/sweeney/garage-monitor/internal/logger"
	"github.com/sweeney/garage-monitor/internal/logic"
	"github.com/sweeney/garage-monitor/internal/metrics"
	"github.com/sweeney/garage-monitor/internal/monitor"
	"github.com/sweeney/garage-monitor/internal/mqtt"
	"github.com/sweeney/garage-monitor/internal/status"
	"github.com/sweeney/garage-monitor/internal/version"
	"github.com/sweeney/garage-monitor/internal/web"
	"github.com/sweeney/garage-monitor/internal/webhook"
)

func main() {
	defer logger.Sync()

	if err := newRootCmd().Execute(); err != nil {
		logger.Logger().Errorf("fatal: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

// flags mirrors the command line. Only flags the user actually set override
// the configuration file.
type flags struct {
	configPath  string
	chip        string
	pinDoor     int
	pinLED      int
	sample      time.Duration
	notifyPoll  time.Duration
	httpAddr    string
	broker      string
	closePolicy string
	logLevel    string
	printState  bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "garage-monitor",
		Short: "Monitor a garage door and alert when it is left open.",
		Long: `Samples the garage door reed switch once per sample period, keeps the
current door state and open episode, and POSTs a webhook alert once per episode
when the door has been open for more than five minutes.

The webhook URL comes from the GARAGE_WEBHOOK environment variable or the
webhook_url setting of the configuration file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), f)
			if err != nil {
				return err
			}

			if f.printState {
				reader, err := gpio.NewRealReader(cfg.Chip, cfg.PinDoor)
				if err != nil {
					return fmt.Errorf("init gpio: %w", err)
				}
				defer reader.Close()
				return printState(cmd.OutOrStdout(), reader)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}

	bindFlags(cmd.Flags(), f)
	version.AttachCobraVersionCommand(cmd)

	return cmd
}

func bindFlags(fs *pflag.FlagSet, f *flags) {
	def := config.Default()
	fs.StringVarP(&f.configPath, "config", "c", "", "path to configuration file (default "+config.DefaultConfigFilename+" if present)")
	fs.StringVar(&f.chip, "chip", def.Chip, "GPIO chip name")
	fs.IntVar(&f.pinDoor, "pin-door", def.PinDoor, "BCM pin number of the door reed switch")
	fs.IntVar(&f.pinLED, "pin-led", def.PinLED, "BCM pin number of the status LED (-1 to disable)")
	fs.DurationVar(&f.sample, "sample", def.SampleInterval, "sensor sampling period")
	fs.DurationVar(&f.notifyPoll, "notify-poll", def.NotifyInterval, "notifier poll period")
	fs.StringVar(&f.httpAddr, "http", def.HTTPAddr, "HTTP status address (empty to disable)")
	fs.StringVar(&f.broker, "broker", def.Broker, "MQTT broker URL (empty to disable)")
	fs.StringVar(&f.closePolicy, "close-policy", def.ClosePolicy, `what closing the door does to the episode: "clear" or "report"`)
	fs.StringVar(&f.logLevel, "log-level", def.LogLevel, "log level: debug, info, warn or error")
	fs.BoolVar(&f.printState, "print-state", false, "print current door state and exit")
}

// loadConfig reads the configuration file, applies explicitly set flags on
// top, validates, and sets the log level. A missing webhook URL is tolerated
// in --print-state mode only.
func loadConfig(fs *pflag.FlagSet, f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(fs, f, cfg)

	if err := config.Validate(cfg); err != nil {
		if !(f.printState && errors.Is(err, config.ErrWebhookRequired)) {
			return nil, err
		}
	}

	lvl, ok := logger.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	logger.SetLevel(lvl)

	return cfg, nil
}

func applyFlags(fs *pflag.FlagSet, f *flags, cfg *config.Config) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("chip", func() { cfg.Chip = f.chip })
	set("pin-door", func() { cfg.PinDoor = f.pinDoor })
	set("pin-led", func() { cfg.PinLED = f.pinLED })
	set("sample", func() { cfg.SampleInterval = f.sample })
	set("notify-poll", func() { cfg.NotifyInterval = f.notifyPoll })
	set("http", func() { cfg.HTTPAddr = f.httpAddr })
	set("broker", func() { cfg.Broker = f.broker })
	set("close-policy", func() { cfg.ClosePolicy = f.closePolicy })
	set("log-level", func() { cfg.LogLevel = f.logLevel })
}

func printState(w io.Writer, reader gpio.Reader) error {
	level, err := reader.Read()
	state := logic.Classify(logic.Level(level), err)
	fmt.Fprintf(w, "Door: %s\n", state)
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	return nil
}

// publisher is what the daemon needs from an MQTT client.
type publisher interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

func newPublisher(broker string) (publisher, error) {
	if broker == "" {
		return mqtt.Discard{}, nil
	}
	return mqtt.NewRealPublisher(broker)
}

func run(ctx context.Context, cfg *config.Config) error {
	policy, err := logic.ParseClosePolicy(cfg.ClosePolicy)
	if err != nil {
		return err
	}

	var reader gpio.Reader
	if r, err := gpio.NewRealReader(cfg.Chip, cfg.PinDoor); err != nil {
		logger.Errorf(ctx, "door sensor unavailable, reporting Unknown: %v", err)
		reader = gpio.Unavailable{Err: err}
	} else {
		reader = r
	}
	defer reader.Close()

	var flasher *led.Flasher
	if cfg.PinLED >= 0 {
		l, err := gpio.NewRealLED(cfg.Chip, cfg.PinLED)
		if err != nil {
			logger.Warnf(ctx, "status LED unavailable: %v", err)
		} else {
			defer l.Close()
			flasher = led.NewFlasher(l)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	pub, err := newPublisher(cfg.Broker)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer pub.Close()

	store := status.NewStore(time.Now(), status.Config{
		SampleMs:     cfg.SampleInterval.Milliseconds(),
		NotifyPollMs: cfg.NotifyInterval.Milliseconds(),
		ThresholdMs:  logic.AlertThreshold.Milliseconds(),
		ClosePolicy:  string(policy),
		Broker:       cfg.Broker,
		HTTPAddr:     cfg.HTTPAddr,
	}, nil)
	if net := readNetworkInfo(); net != nil {
		store.SetNetwork(net)
	}

	publishLifecycle(ctx, pub, store, "STARTUP", "")

	m := &monitor.Monitor{
		Sampler:      monitor.NewSampler(reader, flasher, rec),
		Aggregator:   monitor.NewAggregator(store, pub, rec, policy, cfg.SampleInterval, nil),
		Notifier:     monitor.NewNotifier(store, webhook.NewClient(cfg.WebhookURL, cfg.WebhookTimeout), pub, rec, nil),
		SamplePeriod: cfg.SampleInterval,
		NotifyPeriod: cfg.NotifyInterval,
	}

	services := []func(context.Context) error{
		func(ctx context.Context) error {
			return trackConnection(ctx, store, pub, cfg.NotifyInterval)
		},
	}
	if cfg.HTTPAddr != "" {
		var opts []web.Option
		if hs, err := hoststats.New("", nil); err != nil {
			logger.Warnf(ctx, "host stats unavailable: %v", err)
		} else {
			opts = append(opts, web.WithHostStats(hs.Read))
		}
		services = append(services, web.New(cfg.HTTPAddr, store, metrics.Handler(reg), opts...).Run)
	}

	logger.InfoKV(ctx, "started",
		"sample", cfg.SampleInterval,
		"notify_poll", cfg.NotifyInterval,
		"close_policy", policy,
		"broker", cfg.Broker,
		"http", cfg.HTTPAddr,
	)

	runErr := m.Run(ctx, services...)

	reason := "SIGNAL"
	if runErr != nil {
		reason = "ERROR"
	}
	publishLifecycle(context.WithoutCancel(ctx), pub, store, "SHUTDOWN", reason)

	return runErr
}

// publishLifecycle sends a retained status snapshot on the system topic.
func publishLifecycle(ctx context.Context, pub publisher, store *status.Store, event, reason string) {
	store.SetMQTTConnected(pub.IsConnected())
	snap := store.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := pub.PublishSystem(ev); err != nil {
		logger.Warnf(ctx, "failed to publish %s event: %v", event, err)
		return
	}
	logger.Infof(ctx, "published %s event", event)
}

// trackConnection mirrors the MQTT connection state into the store.
func trackConnection(ctx context.Context, store *status.Store, conn mqtt.ConnectionStatus, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		store.SetMQTTConnected(conn.IsConnected())
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
