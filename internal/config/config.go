// Package config loads daemon settings. A flag set on the command line wins
// over a FLOOR_MIXER_* environment variable, which wins over the optional
// YAML file, which wins over the built-in default.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/floor-mixer/internal/bus"
	"github.com/sweeney/floor-mixer/internal/gpio"
	"github.com/sweeney/floor-mixer/internal/logger"
	"github.com/sweeney/floor-mixer/internal/logic"
	"github.com/sweeney/floor-mixer/internal/sensor"
)

// EnvPrefix is prepended to upper-cased keys, e.g. FLOOR_MIXER_MQTT_BROKER.
const EnvPrefix = "FLOOR_MIXER"

// Config is the resolved daemon configuration.
type Config struct {
	Tick          time.Duration
	ReadInterval  time.Duration
	CycleInterval time.Duration
	RelayInterval time.Duration

	Border float64

	OneWireBus     string
	Resolution     int
	RetryWindow    time.Duration
	MaxBusFailures int
	Addresses      sensor.Addresses

	GPIOChip      string
	RelayUpPin    int
	RelayDownPin  int
	LEDPin        int
	RelayActiveLo bool

	Broker      string
	BusAddress  int
	HTTPAddr    string
	Heartbeat   time.Duration
	JournalPath string

	DisplayEnabled bool
	DisplayBus     string

	LogLevel   string
	PrintState bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("loop.tick", 10*time.Millisecond)
	v.SetDefault("loop.read_interval", time.Second)
	v.SetDefault("loop.cycle", 10*time.Second)
	v.SetDefault("loop.relay_interval", 100*time.Millisecond)
	v.SetDefault("control.border", 0.1)
	v.SetDefault("sensor.bus", "")
	v.SetDefault("sensor.resolution", 10)
	v.SetDefault("sensor.retry_window", sensor.DefaultRetryWindow)
	v.SetDefault("sensor.max_bus_failures", 5)
	for _, ch := range sensor.Channels {
		v.SetDefault("sensor.addresses."+ch.String(), sensor.DefaultAddresses[ch].Hex())
	}
	v.SetDefault("gpio.chip", gpio.DefaultChip)
	v.SetDefault("gpio.relay_up", gpio.DefaultPinRelayUp)
	v.SetDefault("gpio.relay_down", gpio.DefaultPinRelayDown)
	v.SetDefault("gpio.led", gpio.DefaultPinLED)
	v.SetDefault("gpio.active_low", false)
	v.SetDefault("mqtt.broker", "tcp://192.168.1.200:1883")
	v.SetDefault("mqtt.address", bus.DefaultAddress)
	v.SetDefault("http.addr", ":80")
	v.SetDefault("heartbeat", 15*time.Minute)
	v.SetDefault("journal.path", "/var/lib/floor-mixer/journal.db")
	v.SetDefault("display.enabled", false)
	v.SetDefault("display.bus", "")
	v.SetDefault("log.level", logger.InfoLevel)
	v.SetDefault("print_state", false)
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"broker":      "mqtt.broker",
	"http":        "http.addr",
	"heartbeat":   "heartbeat",
	"journal":     "journal.path",
	"log-level":   "log.level",
	"print-state": "print_state",
	"border":      "control.border",
	"display":     "display.enabled",
}

// Load parses args (without the program name) and resolves the configuration.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("floor-mixer", pflag.ContinueOnError)
	configFile := fs.String("config", "", "Path to a YAML config file")
	fs.String("broker", "", "MQTT broker address")
	fs.String("http", "", "HTTP status server address (empty string disables)")
	fs.Duration("heartbeat", 0, "Heartbeat interval (0 disables)")
	fs.String("journal", "", "SQLite journal path (empty string disables)")
	fs.String("log-level", "", "Log level: debug, info, warn, error")
	fs.Bool("print-state", false, "Print current sensor readings and exit")
	fs.Float64("border", 0, "Hysteresis half-width in °C")
	fs.Bool("display", false, "Drive the SSD1306 panel")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	c := Config{
		Tick:           v.GetDuration("loop.tick"),
		ReadInterval:   v.GetDuration("loop.read_interval"),
		CycleInterval:  v.GetDuration("loop.cycle"),
		RelayInterval:  v.GetDuration("loop.relay_interval"),
		Border:         v.GetFloat64("control.border"),
		OneWireBus:     v.GetString("sensor.bus"),
		Resolution:     v.GetInt("sensor.resolution"),
		RetryWindow:    v.GetDuration("sensor.retry_window"),
		MaxBusFailures: v.GetInt("sensor.max_bus_failures"),
		GPIOChip:       v.GetString("gpio.chip"),
		RelayUpPin:     v.GetInt("gpio.relay_up"),
		RelayDownPin:   v.GetInt("gpio.relay_down"),
		LEDPin:         v.GetInt("gpio.led"),
		RelayActiveLo:  v.GetBool("gpio.active_low"),
		Broker:         v.GetString("mqtt.broker"),
		BusAddress:     v.GetInt("mqtt.address"),
		HTTPAddr:       v.GetString("http.addr"),
		Heartbeat:      v.GetDuration("heartbeat"),
		JournalPath:    v.GetString("journal.path"),
		DisplayEnabled: v.GetBool("display.enabled"),
		DisplayBus:     v.GetString("display.bus"),
		LogLevel:       v.GetString("log.level"),
		PrintState:     v.GetBool("print_state"),
	}

	for _, ch := range sensor.Channels {
		key := "sensor.addresses." + ch.String()
		addr, err := sensor.ParseAddress(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", key, err)
		}
		c.Addresses[ch] = addr
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks ranges that would otherwise surface as odd runtime behavior.
func (c Config) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"loop.tick":           c.Tick,
		"loop.read_interval":  c.ReadInterval,
		"loop.cycle":          c.CycleInterval,
		"loop.relay_interval": c.RelayInterval,
		"sensor.retry_window": c.RetryWindow,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	// The engine clamps the difference to [border, max diff]; a border at or
	// above max diff inverts that range.
	if c.Border <= 0 || c.Border >= logic.DefaultMaxDiff {
		errs = append(errs, fmt.Errorf("control.border must be in (0, %v), got %v", logic.DefaultMaxDiff, c.Border))
	}
	if c.Resolution < 9 || c.Resolution > 12 {
		errs = append(errs, fmt.Errorf("sensor.resolution must be 9 to 12 bits, got %d", c.Resolution))
	}
	if c.MaxBusFailures < 1 {
		errs = append(errs, fmt.Errorf("sensor.max_bus_failures must be at least 1, got %d", c.MaxBusFailures))
	}
	if c.BusAddress < 0 || c.BusAddress > 127 {
		errs = append(errs, fmt.Errorf("mqtt.address must be a 7-bit address, got %d", c.BusAddress))
	}
	if c.RelayUpPin == c.RelayDownPin {
		errs = append(errs, fmt.Errorf("gpio.relay_up and gpio.relay_down share pin %d", c.RelayUpPin))
	}
	if c.LEDPin == c.RelayUpPin || c.LEDPin == c.RelayDownPin {
		errs = append(errs, fmt.Errorf("gpio.led must not use a relay pin, got %d", c.LEDPin))
	}
	switch c.LogLevel {
	case logger.DebugLevel, logger.InfoLevel, logger.WarnLevel, logger.ErrorLevel:
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	return errors.Join(errs...)
}
