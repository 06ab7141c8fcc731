package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itohio/govitals/pkg/alarm"
	"github.com/itohio/govitals/pkg/monitor"
)

// Link kinds.
const (
	LinkSerial = "serial"
	LinkUDP    = "udp"
	LinkMock   = "mock"
)

// Publish transports.
const (
	TransportNATS = "nats"
	TransportMQTT = "mqtt"
)

// Config represents the application configuration.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Relay     RelayConfig     `yaml:"relay"`
	Link      LinkConfig      `yaml:"link"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Alarm     AlarmConfig     `yaml:"alarm"`
	Display   DisplayConfig   `yaml:"display"`
	Recording RecordingConfig `yaml:"recording"`
	Publish   PublishConfig   `yaml:"publish"`
	Mock      MockConfig      `yaml:"mock"`
	Log       LogConfig       `yaml:"log"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// RelayConfig contains the serial to UDP relay configuration.
type RelayConfig struct {
	Target    string        `yaml:"target"`     // host:port of the receiver
	ChunkSize int           `yaml:"chunk_size"` // max bytes per datagram
	Backoff   time.Duration `yaml:"backoff"`    // wait before re-dialing
}

// LinkConfig selects how the monitor app receives telemetry.
type LinkConfig struct {
	Kind       string `yaml:"kind"`   // serial, udp or mock
	Listen     string `yaml:"listen"` // UDP listen address
	BufferSize int    `yaml:"buffer_size"`
}

// MonitorConfig contains the sensing loop parameters.
type MonitorConfig struct {
	EvalInterval      time.Duration `yaml:"eval_interval"`
	LoopInterval      time.Duration `yaml:"loop_interval"`
	FillDelay         time.Duration `yaml:"fill_delay"`
	PPGDecimation     int           `yaml:"ppg_decimation"`
	CutoffHz          float32       `yaml:"cutoff_hz"`
	SampleRateHz      float32       `yaml:"sample_rate_hz"`
	AnnunciatorPeriod time.Duration `yaml:"annunciator_period"`
}

// AlarmConfig contains the alarm limits.
type AlarmConfig struct {
	MinSpO2      int    `yaml:"min_spo2"`
	MinHeartRate int    `yaml:"min_heart_rate"`
	MaxHeartRate int    `yaml:"max_heart_rate"`
	FingerIR     uint32 `yaml:"finger_ir"`
	HypoxiaSpO2  int    `yaml:"hypoxia_spo2"` // host-side event threshold
}

// DisplayConfig contains ECG scope parameters.
type DisplayConfig struct {
	WindowSeconds  float64 `yaml:"window_seconds"`
	MaxPoints      int     `yaml:"max_points"`
	AverageSamples int     `yaml:"average_samples"` // 0 = disabled
	YMin           float64 `yaml:"y_min"`
	YMax           float64 `yaml:"y_max"`
	AutoScale      bool    `yaml:"auto_scale"`
}

// RecordingConfig contains session recording parameters.
type RecordingConfig struct {
	Directory string `yaml:"directory"`
	ECG       bool   `yaml:"ecg"`      // record every ECG sample
	Database  string `yaml:"database"` // SQLite session store, empty disables
}

// PublishConfig contains the optional NATS publisher and websocket feed.
type PublishConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Transport     string `yaml:"transport"` // nats or mqtt
	URL           string `yaml:"url"`
	Name          string `yaml:"name"` // connection name / MQTT client ID
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	QoS           byte   `yaml:"qos"` // MQTT only
	VitalsSubject string `yaml:"vitals_subject"`
	EventsSubject string `yaml:"events_subject"`
	ECGSubject    string `yaml:"ecg_subject"` // empty disables ECG streaming
	ECGBatch      int    `yaml:"ecg_batch"`
	WebSocket     string `yaml:"websocket"` // live feed listen address, empty disables
}

// MockConfig contains the simulated patient.
type MockConfig struct {
	HeartRate     float32 `yaml:"heart_rate"` // BPM
	SpO2          float32 `yaml:"spo2"`       // %
	NoiseLevel    float32 `yaml:"noise_level"`
	Finger        bool    `yaml:"finger"`
	DropoutEvery  int     `yaml:"dropout_every"`  // PPG read errors, 0 = none
	PPGDecimation int     `yaml:"ppg_decimation"` // loop iterations per PPG read
}

// LogConfig contains logger configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	mon := monitor.DefaultConfig()
	th := alarm.DefaultThresholds()

	return &Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyUSB0",
			BaudRate:    115200,
			ReadTimeout: 20 * time.Millisecond,
		},
		Relay: RelayConfig{
			Target:    "127.0.0.1:3333",
			ChunkSize: 128,
			Backoff:   time.Second,
		},
		Link: LinkConfig{
			Kind:       LinkUDP,
			Listen:     ":3333",
			BufferSize: 1000,
		},
		Monitor: MonitorConfig{
			EvalInterval:      mon.EvalInterval,
			LoopInterval:      mon.LoopInterval,
			FillDelay:         mon.FillDelay,
			PPGDecimation:     mon.PPGDecimation,
			CutoffHz:          mon.CutoffHz,
			SampleRateHz:      mon.SampleRateHz,
			AnnunciatorPeriod: mon.AnnunciatorPeriod,
		},
		Alarm: AlarmConfig{
			MinSpO2:      th.MinSpO2,
			MinHeartRate: th.MinHeartRate,
			MaxHeartRate: th.MaxHeartRate,
			FingerIR:     th.FingerIR,
			HypoxiaSpO2:  90,
		},
		Display: DisplayConfig{
			WindowSeconds:  5,
			MaxPoints:      1000,
			AverageSamples: 0,
			YMin:           0,
			YMax:           4096,
		},
		Recording: RecordingConfig{
			Directory: ".",
			ECG:       true,
		},
		Publish: PublishConfig{
			Enabled:       false,
			Transport:     TransportNATS,
			URL:           "nats://127.0.0.1:4222",
			Name:          "govitals",
			VitalsSubject: "vitals.readings",
			EventsSubject: "vitals.events",
			ECGSubject:    "vitals.ecg",
			ECGBatch:      10,
		},
		Mock: MockConfig{
			HeartRate:     72,
			SpO2:          97,
			NoiseLevel:    0.01,
			Finger:        true,
			DropoutEvery:  0,
			PPGDecimation: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Thresholds converts the alarm section.
func (c *Config) Thresholds() alarm.Thresholds {
	return alarm.Thresholds{
		MinSpO2:      c.Alarm.MinSpO2,
		MinHeartRate: c.Alarm.MinHeartRate,
		MaxHeartRate: c.Alarm.MaxHeartRate,
		FingerIR:     c.Alarm.FingerIR,
	}
}

// MonitorConfig converts the monitor and alarm sections into a loop configuration.
func (c *Config) MonitorConfig() monitor.Config {
	cfg := monitor.DefaultConfig()
	cfg.EvalInterval = c.Monitor.EvalInterval
	cfg.LoopInterval = c.Monitor.LoopInterval
	cfg.FillDelay = c.Monitor.FillDelay
	cfg.PPGDecimation = c.Monitor.PPGDecimation
	cfg.CutoffHz = c.Monitor.CutoffHz
	cfg.SampleRateHz = c.Monitor.SampleRateHz
	cfg.AnnunciatorPeriod = c.Monitor.AnnunciatorPeriod
	cfg.Thresholds = c.Thresholds()
	return cfg
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}

	if c.Relay.Target == "" {
		c.Relay.Target = def.Relay.Target
	}
	if c.Relay.ChunkSize == 0 {
		c.Relay.ChunkSize = def.Relay.ChunkSize
	}
	if c.Relay.Backoff == 0 {
		c.Relay.Backoff = def.Relay.Backoff
	}

	switch c.Link.Kind {
	case LinkSerial, LinkUDP, LinkMock:
	default:
		c.Link.Kind = def.Link.Kind
	}
	if c.Link.Listen == "" {
		c.Link.Listen = def.Link.Listen
	}
	if c.Link.BufferSize == 0 {
		c.Link.BufferSize = def.Link.BufferSize
	}

	if c.Monitor.EvalInterval == 0 {
		c.Monitor.EvalInterval = def.Monitor.EvalInterval
	}
	if c.Monitor.LoopInterval == 0 {
		c.Monitor.LoopInterval = def.Monitor.LoopInterval
	}
	if c.Monitor.FillDelay == 0 {
		c.Monitor.FillDelay = def.Monitor.FillDelay
	}
	if c.Monitor.PPGDecimation == 0 {
		c.Monitor.PPGDecimation = def.Monitor.PPGDecimation
	}
	if c.Monitor.CutoffHz == 0 {
		c.Monitor.CutoffHz = def.Monitor.CutoffHz
	}
	if c.Monitor.SampleRateHz == 0 {
		c.Monitor.SampleRateHz = def.Monitor.SampleRateHz
	}
	if c.Monitor.AnnunciatorPeriod == 0 {
		c.Monitor.AnnunciatorPeriod = def.Monitor.AnnunciatorPeriod
	}

	if c.Alarm.MinSpO2 == 0 {
		c.Alarm.MinSpO2 = def.Alarm.MinSpO2
	}
	if c.Alarm.MinHeartRate == 0 {
		c.Alarm.MinHeartRate = def.Alarm.MinHeartRate
	}
	if c.Alarm.MaxHeartRate == 0 {
		c.Alarm.MaxHeartRate = def.Alarm.MaxHeartRate
	}
	if c.Alarm.FingerIR == 0 {
		c.Alarm.FingerIR = def.Alarm.FingerIR
	}
	if c.Alarm.HypoxiaSpO2 == 0 {
		c.Alarm.HypoxiaSpO2 = def.Alarm.HypoxiaSpO2
	}

	if c.Display.WindowSeconds == 0 {
		c.Display.WindowSeconds = def.Display.WindowSeconds
	}
	if c.Display.MaxPoints == 0 {
		c.Display.MaxPoints = def.Display.MaxPoints
	}
	if c.Display.YMax <= c.Display.YMin {
		c.Display.YMin = def.Display.YMin
		c.Display.YMax = def.Display.YMax
	}

	if c.Recording.Directory == "" {
		c.Recording.Directory = def.Recording.Directory
	}

	switch c.Publish.Transport {
	case TransportNATS, TransportMQTT:
	default:
		c.Publish.Transport = def.Publish.Transport
	}
	if c.Publish.URL == "" {
		c.Publish.URL = def.Publish.URL
	}
	if c.Publish.Name == "" {
		c.Publish.Name = def.Publish.Name
	}
	if c.Publish.VitalsSubject == "" {
		c.Publish.VitalsSubject = def.Publish.VitalsSubject
	}
	if c.Publish.EventsSubject == "" {
		c.Publish.EventsSubject = def.Publish.EventsSubject
	}
	if c.Publish.ECGBatch == 0 {
		c.Publish.ECGBatch = def.Publish.ECGBatch
	}

	if c.Mock.HeartRate == 0 {
		c.Mock.HeartRate = def.Mock.HeartRate
	}
	if c.Mock.SpO2 == 0 {
		c.Mock.SpO2 = def.Mock.SpO2
	}
	if c.Mock.PPGDecimation == 0 {
		c.Mock.PPGDecimation = def.Mock.PPGDecimation
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}
