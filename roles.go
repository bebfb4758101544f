package main

import (
	"context"
	"fmt"
	"time"

	"github.com/eddielth/edge-nodes/actuator"
	"github.com/eddielth/edge-nodes/config"
	"github.com/eddielth/edge-nodes/endpoint"
	"github.com/eddielth/edge-nodes/gpio"
	"github.com/eddielth/edge-nodes/logger"
	"github.com/eddielth/edge-nodes/mqtt"
	"github.com/eddielth/edge-nodes/network"
	"github.com/eddielth/edge-nodes/sensor"
	"github.com/eddielth/edge-nodes/storage"
	"github.com/eddielth/edge-nodes/suspend"
	"github.com/eddielth/edge-nodes/transformer"
	"github.com/eddielth/edge-nodes/validator"
)

// runTelemetry runs one cycle per wake. Inline mode keeps the process alive
// and relaunches the boot after every suspension; oneshot mode returns after
// a single cycle and leaves the relaunch to an external timer.
func runTelemetry(ctx context.Context, configPath string, cfg *config.Config) error {
	if cfg.Telemetry.Mode == config.ModeOneshot {
		return bootTelemetry(ctx, cfg)
	}

	return suspend.New(cfg.Telemetry.Suspend).Run(ctx, func(ctx context.Context) error {
		// Nothing survives a suspension, configuration included.
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		return bootTelemetry(ctx, cfg)
	})
}

// bootTelemetry builds every telemetry handle from cfg and runs one cycle.
func bootTelemetry(ctx context.Context, cfg *config.Config) error {
	tc := cfg.Telemetry

	scanBus(tc.Sensor)

	if err := connectNetwork(ctx, cfg.Network); err != nil {
		return err
	}

	var indicator gpio.Output
	if pin, err := gpio.Open(cfg.GPIO.Root, tc.Indicator.Pin, tc.Indicator.ActiveLow); err != nil {
		logger.Warn("indicator disabled: %v", err)
	} else {
		indicator = pin
	}

	calibrator, err := transformer.New(tc.Calibration)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}

	t := &endpoint.Telemetry{
		Sensor:     sensor.NewIIOSource(tc.Sensor.Device),
		Publisher:  publisher,
		Topic:      tc.Topic,
		Indicator:  indicator,
		Calibrator: calibrator,
		Rules:      validator.ReadingRules(tc.Limits),
		Settle:     tc.Settle,
	}
	return t.RunCycle(ctx)
}

// runSwitch runs the command loop until the session fails or ctx ends.
func runSwitch(ctx context.Context, configPath string, cfg *config.Config) error {
	sc := cfg.Switch

	boot := switchBoot{
		openOutput: func() (gpio.Output, error) {
			return gpio.Open(cfg.GPIO.Root, sc.Output.Pin, sc.Output.ActiveLow)
		},
		connect: func(ctx context.Context) error {
			return connectNetwork(ctx, cfg.Network)
		},
		newSession: func() (mqtt.Session, error) {
			watchConfig(configPath)
			return newSession(cfg)
		},
		settle:  sc.Settle,
		decoder: actuator.Decoder{On: sc.OnCommand, Off: sc.OffCommand},
		topic:   sc.Topic,
	}
	return boot.run(ctx)
}

// switchBoot is the switch role's startup sequence. The output is claimed
// and driven off before the network wait, which may never end.
type switchBoot struct {
	openOutput func() (gpio.Output, error)
	connect    func(ctx context.Context) error
	newSession func() (mqtt.Session, error)
	settle     time.Duration
	decoder    actuator.Decoder
	topic      string
}

func (b switchBoot) run(ctx context.Context) error {
	out, err := b.openOutput()
	if err != nil {
		return err
	}

	controller := actuator.NewController(out, b.settle)
	if err := controller.ForceOff(); err != nil {
		return fmt.Errorf("force output off: %w", err)
	}

	if err := b.connect(ctx); err != nil {
		return err
	}

	session, err := b.newSession()
	if err != nil {
		return err
	}

	sw := &endpoint.Switch{
		Session:    session,
		Controller: controller,
		Decoder:    b.decoder,
		Topic:      b.topic,
	}
	return sw.Run(ctx)
}

func runCollector(ctx context.Context, configPath string, cfg *config.Config) error {
	if err := connectNetwork(ctx, cfg.Network); err != nil {
		return err
	}

	store, err := storage.NewFromConfig(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	session, err := newSession(cfg)
	if err != nil {
		return err
	}

	watchConfig(configPath)

	c := &endpoint.Collector{
		Session:  session,
		Recorder: store,
		Topic:    cfg.Collector.Topic,
		Rules:    validator.ReadingRules(cfg.Telemetry.Limits),
	}
	return c.Run(ctx)
}

// scanBus logs every device found on the sensor bus. It is diagnostic only.
func scanBus(sc config.SensorConfig) {
	log := logger.Named("i2c")

	addrs, err := sensor.ScanBus(sc.BusRoot, sc.Bus)
	if err != nil {
		log.Warn("scan bus %d: %v", sc.Bus, err)
		return
	}
	if len(addrs) == 0 {
		log.Warn("no device found on bus %d", sc.Bus)
	}
	for _, addr := range addrs {
		log.Info("found device at 0x%02x", addr)
	}
}

func connectNetwork(ctx context.Context, nc config.NetworkConfig) error {
	connector := network.NewConnector(
		network.NewHostLink(nc.Interface, nc.JoinCommand),
		network.RetryPolicy{
			MaxAttempts:    nc.Retry.MaxAttempts,
			Interval:       nc.Retry.Interval,
			MaxInterval:    nc.Retry.MaxInterval,
			Multiplier:     nc.Retry.Multiplier,
			RejoinInterval: nc.Retry.RejoinInterval,
		},
	)
	_, err := connector.EnsureConnected(ctx, network.Credentials{SSID: nc.SSID, Secret: nc.Password})
	return err
}

// newPublisher returns the transient transport for the telemetry role.
func newPublisher(cfg *config.Config) (mqtt.Publisher, error) {
	opts, err := mqtt.OptionsFromConfig(cfg.MQTT, cfg.ClientID(), cfg.Role)
	if err != nil {
		return nil, err
	}
	if cfg.MQTT.Protocol == 5 {
		return mqtt.NewV5Publisher(opts)
	}
	return mqtt.NewClient(opts)
}

// newSession returns the persistent session for the listening roles.
func newSession(cfg *config.Config) (mqtt.Session, error) {
	if cfg.MQTT.Protocol == 5 {
		return nil, fmt.Errorf("%w: %s role needs mqtt protocol 4", mqtt.ErrUnsupported, cfg.Role)
	}
	opts, err := mqtt.OptionsFromConfig(cfg.MQTT, cfg.ClientID(), cfg.Role)
	if err != nil {
		return nil, err
	}
	return mqtt.NewClient(opts)
}

// watchConfig reports edits to the configuration of a long-running role.
// The running loop keeps its handles; edits apply on the next restart.
func watchConfig(configPath string) {
	err := config.WatchConfig(configPath, func(newCfg *config.Config) error {
		logger.Info("config updated (role=%s broker=%s), changes take effect after restart", newCfg.Role, newCfg.MQTT.URL())
		return nil
	})
	if err != nil {
		logger.Warn("watch config failed: %v", err)
		return
	}
	logger.Info("watching config file %s", configPath)
}
