// Command floor-mixer drives the underfloor heating mixing valve: it reads
// the 1-Wire probes, pulses the valve relays towards the floor setpoint and
// answers the supervisory controller over MQTT and HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/floor-mixer/internal/bus"
	"github.com/sweeney/floor-mixer/internal/config"
	"github.com/sweeney/floor-mixer/internal/controller"
	"github.com/sweeney/floor-mixer/internal/display"
	"github.com/sweeney/floor-mixer/internal/gpio"
	"github.com/sweeney/floor-mixer/internal/journal"
	"github.com/sweeney/floor-mixer/internal/logger"
	"github.com/sweeney/floor-mixer/internal/logic"
	"github.com/sweeney/floor-mixer/internal/metrics"
	"github.com/sweeney/floor-mixer/internal/mqtt"
	"github.com/sweeney/floor-mixer/internal/relay"
	"github.com/sweeney/floor-mixer/internal/sensor"
	"github.com/sweeney/floor-mixer/internal/status"
	"github.com/sweeney/floor-mixer/internal/timing"
	"github.com/sweeney/floor-mixer/internal/web"
)

// startupBlink is the per-sensor blink at startup.
const startupBlink = 300 * time.Millisecond

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatalw("fatal", "err", err)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize 1-Wire bus
	owBus, err := sensor.OpenOneWire(cfg.OneWireBus, cfg.Resolution)
	if err != nil {
		return fmt.Errorf("init 1-wire: %w", err)
	}
	defer owBus.Close()

	acq := sensor.NewAcquirer(owBus, cfg.Addresses, cfg.RetryWindow, log.Named("sensor"))

	// Print state mode
	if cfg.PrintState {
		temps, err := acq.Refresh(ctx, sensor.NewTemperatures())
		if err != nil {
			return fmt.Errorf("read sensors: %w", err)
		}
		for _, ch := range sensor.Channels {
			fmt.Printf("%-13s %s\n", ch.String()+":", formatTemp(temps[ch]))
		}
		return nil
	}

	found := enumerate(owBus, cfg.Addresses, log.Named("sensor"))

	// Initialize GPIO
	chip, err := gpio.OpenChip(cfg.GPIOChip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	upLine, err := chip.Output(cfg.RelayUpPin, cfg.RelayActiveLo)
	if err != nil {
		return fmt.Errorf("init relay up: %w", err)
	}
	downLine, err := chip.Output(cfg.RelayDownPin, cfg.RelayActiveLo)
	if err != nil {
		return fmt.Errorf("init relay down: %w", err)
	}
	ledLine, err := chip.Output(cfg.LEDPin, false)
	if err != nil {
		return fmt.Errorf("init status led: %w", err)
	}

	var panel display.Display = display.Nop{}
	if cfg.DisplayEnabled {
		p, err := display.OpenPanel(cfg.DisplayBus)
		if err != nil {
			log.Warnw("display unavailable, continuing without it", "err", err)
		} else {
			panel = p
		}
	}
	defer panel.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		CycleMs:     cfg.CycleInterval.Milliseconds(),
		ReadMs:      cfg.ReadInterval.Milliseconds(),
		RelayMs:     cfg.RelayInterval.Milliseconds(),
		Border:      cfg.Border,
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	m := metrics.New()
	responder := bus.NewResponder(tracker, m, log.Named("bus"))

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:             cfg.Broker,
		ClientID:           fmt.Sprintf("floor-mixer-%d", cfg.BusAddress),
		Topics:             mqtt.NewTopics(cfg.BusAddress),
		Responder:          responder,
		OnConnectionChange: tracker.SetMQTTConnected,
		Log:                log.Named("mqtt"),
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	var records recorder = nopRecorder{}
	var history web.Journal
	if cfg.JournalPath != "" {
		db, err := journal.OpenDB(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("init journal: %w", err)
		}
		defer db.Close()

		store := journal.NewStore(db)
		history = store
		w := journal.NewWriter(store, 64, log.Named("journal"))
		jctx, stop := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			w.Run(jctx)
			close(done)
		}()
		defer func() {
			stop()
			<-done
		}()
		records = w
	}

	ctrlCfg := controller.DefaultConfig()
	ctrlCfg.ReadInterval = cfg.ReadInterval
	ctrlCfg.CycleInterval = cfg.CycleInterval
	ctrlCfg.RelayInterval = cfg.RelayInterval
	ctrlCfg.Border = cfg.Border
	ctrlCfg.MaxBusFailures = cfg.MaxBusFailures

	ctrl := controller.New(ctrlCfg, acq, tracker,
		relay.New("up", upLine), relay.New("down", downLine), ledLine,
		log.Named("control"), time.Now)
	ctrl.Blink(ctx, found, startupBlink)

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Warnw("failed to publish startup event", "err", err)
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, responder, history, m.Handler(), log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infow("http status server listening", "addr", cfg.HTTPAddr)
	}

	log.Infow("started",
		"read", cfg.ReadInterval, "cycle", cfg.CycleInterval, "relay", cfg.RelayInterval,
		"border", cfg.Border, "broker", cfg.Broker, "address", cfg.BusAddress, "heartbeat", cfg.Heartbeat)

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctx, loop{
		ctrl:       ctrl,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		panel:      panel,
		metrics:    m,
		records:    records,
		heartbeat:  cfg.Heartbeat,
		log:        log.Named("loop"),
	}, time.Now, ticker.C, sigCh)
}

// recorder receives journal entries without blocking.
type recorder interface {
	Record(e journal.Entry)
}

type nopRecorder struct{}

func (nopRecorder) Record(journal.Entry) {}

// loop holds the collaborators of runLoop.
type loop struct {
	ctrl       *controller.Controller
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	panel      display.Display
	metrics    *metrics.Metrics
	records    recorder
	heartbeat  time.Duration
	log        *logger.Logger
}

func runLoop(ctx context.Context, l loop, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	hb := timing.NewInterval(l.heartbeat, now())

	for {
		select {
		case s := <-sig:
			l.log.Infow("shutting down", "signal", s)
			l.ctrl.Release()
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			l.publishStatus(now(), "SHUTDOWN", signalName, true)
			return nil

		case <-tick:
			res, err := l.ctrl.Tick(ctx)
			l.observe(res)

			if errors.Is(err, controller.ErrFatal) {
				l.fault(ctx, now(), err)
			} else if err != nil {
				return err
			}

			if l.heartbeat > 0 && hb.Ready(now()) {
				l.heartbeatEvent(now())
			}

			if l.mqttStatus != nil {
				l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
			}
		}
	}
}

// observe fans a tick's outcome out to metrics, panel, MQTT and journal.
func (l loop) observe(res controller.Result) {
	up, down := l.ctrl.Relays()
	l.metrics.Relays(up, down)

	if res.BusErr != nil {
		l.metrics.BusFailure()
	}

	if res.Read {
		target := l.tracker.Target()
		l.metrics.Temperatures(res.Temps)
		l.metrics.Target(target)

		snap := l.tracker.Snapshot()
		if err := l.panel.Show(display.Reading{Target: target, Temps: res.Temps, Pulse: snap.LastDecision.Pulse}); err != nil {
			l.log.Debugw("display update failed", "err", err)
		}
		if err := l.publisher.PublishTelemetry(bus.NewFrame(target, res.Temps).Encode()); err != nil {
			l.log.Debugw("telemetry not published", "err", err)
		}
	}

	if d := res.Decision; d != nil {
		l.metrics.Decision(*d)
		l.records.Record(journal.CycleEntry(*d))
		if err := l.publisher.Publish(*d); err != nil {
			// Don't crash on publish failure
			l.log.Warnw("publish error", "err", err)
		}
	}
}

// fault makes the valve safe, reports why, and restarts from power-on state.
func (l loop) fault(ctx context.Context, at time.Time, cause error) {
	l.log.Errorw("fatal fault, releasing valve", "err", cause)
	l.metrics.Fault()
	l.records.Record(journal.FaultEntry(at, cause.Error()))

	l.ctrl.Release()
	l.publishStatus(at, "FAULT", cause.Error(), false)

	l.ctrl.Fault(ctx)
	l.ctrl.Reset()
	l.log.Infow("controller reset", "target", l.tracker.Target())
}

func (l loop) heartbeatEvent(t time.Time) {
	if net := readNetworkInfo(); net != nil {
		l.tracker.SetNetwork(net)
	}
	snap := l.tracker.Snapshot()
	hb := logic.HeartbeatData{Timestamp: t, Uptime: snap.Uptime(), Counts: snap.Counts}
	l.log.Infow("heartbeat", "uptime", hb.Uptime,
		"raising", hb.Counts.Raising, "lowering", hb.Counts.Lowering, "holding", hb.Counts.Holding)
	l.publishStatus(hb.Timestamp, "HEARTBEAT", "", false)
}

func (l loop) publishStatus(t time.Time, event, reason string, retained bool) {
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
	snap := l.tracker.Snapshot()
	se := mqtt.SystemEvent{
		Timestamp:  t,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := l.publisher.PublishSystem(se); err != nil {
		l.log.Warnw("failed to publish system event", "event", event, "err", err)
	}
}

// enumerate logs every probe on the bus and returns how many answered.
func enumerate(e sensor.Enumerator, addrs sensor.Addresses, log *logger.Logger) int {
	found, err := e.Search()
	if err != nil {
		log.Warnw("1-wire search failed", "err", err)
		return 0
	}

	known := make(map[sensor.Address]sensor.Channel, len(addrs))
	for _, ch := range sensor.Channels {
		known[addrs[ch]] = ch
	}

	log.Infow("1-wire devices found", "count", len(found))
	for i, a := range found {
		if ch, ok := known[a]; ok {
			log.Infow("device", "index", i, "address", a.String(), "channel", ch.String())
		} else {
			log.Infow("device", "index", i, "address", a.String(), "channel", "unassigned")
		}
	}
	return len(found)
}

func formatTemp(c float64) string {
	if !sensor.Valid(c) {
		return "disconnected"
	}
	return fmt.Sprintf("%.2f °C", c)
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
