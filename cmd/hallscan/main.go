// Command hallscan scans an analog Hall-effect key matrix, applies SOCD
// arbitration and publishes key events to MQTT and a debug UART.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/shego/hallscan/internal/config"
	"github.com/shego/hallscan/internal/hal"
	"github.com/shego/hallscan/internal/matrix"
	"github.com/shego/hallscan/internal/mqtt"
	"github.com/shego/hallscan/internal/scan"
	"github.com/shego/hallscan/internal/status"
	"github.com/shego/hallscan/internal/uart"
	"github.com/shego/hallscan/internal/web"
	"github.com/shego/hallscan/internal/wiring"
)

// statusRefresh is how often raw readings are copied to the status tracker
// when no key changes.
const statusRefresh = 100 * time.Millisecond

func main() {
	configPath := flag.String("config", "/etc/hallscan.yaml", "Path to YAML configuration")
	printCalibration := flag.Bool("print-calibration", false, "Calibrate, print the table and exit")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config, empty disables)")
	uartPort := flag.String("uart", "", "Debug UART device (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")

	flag.Parse()

	log := newLogger(os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.MQTT.Broker = *broker
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "uart":
			cfg.UART.Port = *uartPort
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.Log.Level).Msg("invalid log level")
	}
	log = log.Level(level)

	if err := run(cfg, *printCalibration, log); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

// newLogger writes human-readable output to terminals and JSON otherwise.
func newLogger(w *os.File) zerolog.Logger {
	var out io.Writer = w
	if fi, err := w.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func run(cfg *config.Config, printCalibration bool, log zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cm, err := cfg.ChannelMap()
	if err != nil {
		return err
	}

	pins, idle := cfg.OutputPins()
	board, err := hal.NewLinuxBoard(hal.LinuxConfig{
		Chip:      cfg.Board.Chip,
		IIODevice: cfg.Board.IIODevice,
		Outputs:   pins,
		Idle:      idle,
	}, log.With().Str("subsystem", "hal").Logger())
	if err != nil {
		return fmt.Errorf("init board: %w", err)
	}
	defer board.Close()

	sc, err := scan.New(cm, board, cfg.ScanOptions())
	if err != nil {
		return fmt.Errorf("init scanner: %w", err)
	}

	var console io.Writer = io.Discard
	if cfg.UART.Port != "" {
		port, err := uart.Open(cfg.UART.Port, cfg.UART.Baud)
		if err != nil {
			return err
		}
		defer port.Close()
		console = port
	}
	reporter := uart.NewReporter(console, log)

	log.Info().Int("keys", cm.NumKeys()).Int("muxes", cm.NumMuxes()).Msg("calibrating, keep all keys released")
	sc.Calibrate()
	for _, k := range sc.Fallbacks() {
		log.Warn().Str("key", cm.KeyName(k)).Msg("no plausible samples, using fallback calibration")
	}

	if printCalibration {
		uart.NewReporter(os.Stdout, log).Calibration(cm, sc.Calibration())
		return nil
	}
	reporter.Calibration(cm, sc.Calibration())

	var publisher mqtt.Publisher = mqtt.Discard
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, log)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher = p
	}
	defer publisher.Close()
	mqttStatus, _ := publisher.(mqtt.ConnectionStatus)

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:           cfg.Scan.Poll.Milliseconds(),
		DebounceMs:       cfg.Scan.Debounce.Milliseconds(),
		ToggleCooldownMs: cfg.SOCD.ToggleCooldown.Milliseconds(),
		HeartbeatMs:      cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:           cfg.MQTT.Broker,
		HTTPAddr:         cfg.HTTP.Addr,
		UARTPort:         cfg.UART.Port,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	l := &loop{
		sc:         sc,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		reporter:   reporter,
		tracker:    tracker,
		log:        log,
		now:        time.Now,
	}
	l.observe()

	if err := publisher.PublishCalibration(calibrationReport(cm, sc, time.Now())); err != nil {
		log.Warn().Err(err).Msg("failed to publish calibration")
	}
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Warn().Err(err).Msg("failed to publish startup event")
	}

	cmds := make(chan scan.Command, 16)
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, cm, cmds, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
	}

	log.Info().
		Dur("poll", cfg.Scan.Poll).
		Dur("debounce", cfg.Scan.Debounce).
		Bool("socd", sc.IsArbitrationEnabled()).
		Str("broker", cfg.MQTT.Broker).
		Msg("started")

	ticker := time.NewTicker(cfg.Scan.Poll)
	defer ticker.Stop()
	refresh := time.NewTicker(statusRefresh)
	defer refresh.Stop()

	var heartbeat <-chan time.Time
	if cfg.MQTT.Heartbeat > 0 {
		hb := time.NewTicker(cfg.MQTT.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return l.run(ticker.C, refresh.C, heartbeat, cmds, sigCh)
}

// loop owns the scanner after startup. Every field is touched only from run.
type loop struct {
	sc         *scan.Context
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	reporter   *uart.Reporter
	tracker    *status.Tracker
	log        zerolog.Logger
	now        func() time.Time

	active matrix.Frame // keys reported as pressed downstream
}

func (l *loop) run(tick, refresh, heartbeat <-chan time.Time, cmds <-chan scan.Command, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			l.shutdown(s)
			return nil

		case <-tick:
			_, changed := l.sc.Scan()
			l.emit(l.sc.ArbitratedEvents())
			if changed {
				l.observe()
			}

		case cmd := <-cmds:
			l.apply(cmd)
			l.observe()

		case <-refresh:
			l.observe()

		case <-heartbeat:
			l.observe()
			snap := l.tracker.Snapshot()
			stats := snap.Counts
			l.log.Info().
				Dur("uptime", snap.Uptime()).
				Uint64("passes", stats.Passes).
				Uint64("events", stats.Events).
				Uint64("invalid_samples", stats.InvalidSamples).
				Msg("heartbeat")
			event := mqtt.SystemEvent{
				Timestamp:  snap.Now,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				l.log.Warn().Err(err).Msg("heartbeat publish failed")
			}
		}
	}
}

func (l *loop) emit(events []scan.Event) {
	if len(events) == 0 {
		return
	}
	cm := l.sc.ChannelMap()
	ts := l.now()
	socd := l.sc.IsArbitrationEnabled()
	for _, ev := range events {
		name := cm.KeyName(ev.Key)
		l.active.Set(ev.Key, ev.Pressed)
		l.log.Debug().Str("key", name).Bool("pressed", ev.Pressed).Msg("key event")
		l.reporter.Key(name, ev.Pressed)
		if err := l.publisher.Publish(mqtt.KeyEvent{Timestamp: ts, Key: name, Pressed: ev.Pressed, SOCD: socd}); err != nil {
			l.log.Warn().Err(err).Msg("publish error")
		}
	}
}

func (l *loop) apply(cmd scan.Command) {
	cm := l.sc.ChannelMap()
	switch cmd.Kind {
	case scan.SetThreshold:
		name := cm.KeyName(cmd.Key)
		if !l.sc.Apply(cmd) {
			l.log.Warn().Str("key", name).Msg("threshold change rejected, key not calibrated")
			return
		}
		for _, kc := range l.sc.Calibration() {
			if kc.Key == cmd.Key {
				l.log.Info().Str("key", name).Uint8("percent", kc.Percent).Uint16("threshold", kc.Threshold).Msg("threshold changed")
				l.reporter.Threshold(name, kc)
			}
		}

	case scan.ToggleArbitration:
		if !l.sc.Apply(cmd) {
			l.log.Info().Msg("SOCD toggle ignored, cooldown active")
			l.reporter.ToggleIgnored()
			return
		}
		enabled := l.sc.IsArbitrationEnabled()
		l.log.Info().Bool("enabled", enabled).Msg("SOCD toggled")
		l.reporter.Arbitration(enabled)
		event := "SOCD_DISABLED"
		if enabled {
			event = "SOCD_ENABLED"
		}
		if err := l.publisher.PublishSystem(mqtt.SystemEvent{Timestamp: l.now(), Event: event, Retained: true}); err != nil {
			l.log.Warn().Err(err).Msg("failed to publish SOCD state")
		}

	default:
		l.log.Warn().Stringer("command", cmd.Kind).Msg("unknown command")
	}
}

func (l *loop) observe() {
	l.tracker.Observe(l.sc, l.active)
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func (l *loop) shutdown(s os.Signal) {
	l.log.Info().Stringer("signal", s).Msg("shutting down")
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}

	l.observe()
	snap := l.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  l.now(),
		Event:      "SHUTDOWN",
		Reason:     signalName,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		l.log.Warn().Err(err).Msg("failed to publish shutdown event")
	}
}

func calibrationReport(cm *wiring.ChannelMap, sc *scan.Context, ts time.Time) mqtt.CalibrationReport {
	keys := sc.Calibration()
	report := mqtt.CalibrationReport{Timestamp: ts, Keys: make([]mqtt.KeyCalibration, len(keys))}
	for i, kc := range keys {
		report.Keys[i] = mqtt.KeyCalibration{
			Key:       cm.KeyName(kc.Key),
			Baseline:  kc.Baseline,
			Threshold: kc.Threshold,
			Percent:   kc.Percent,
			Fallback:  kc.Fallback,
		}
	}
	return report
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
