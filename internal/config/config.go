package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel    string            `json:"log_level" yaml:"log_level"`
	StreamID    string            `json:"stream_id" yaml:"stream_id"`
	Calibration CalibrationConfig `json:"calibration" yaml:"calibration"`
	Engine      EngineConfig      `json:"engine" yaml:"engine"`
	Ingest      IngestConfig      `json:"ingest" yaml:"ingest"`
	API         APIConfig         `json:"api" yaml:"api"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Sink        SinkConfig        `json:"sink" yaml:"sink"`
	Report      ReportConfig      `json:"report" yaml:"report"`
}

// CalibrationConfig is the on-disk form of a calibration profile. It is
// validated by engine.NewProfile, not here.
type CalibrationConfig struct {
	WindowSize         int           `json:"window_size" yaml:"window_size"`
	Stride             int           `json:"stride" yaml:"stride"`
	NeighborThreshold  float64       `json:"neighbor_threshold" yaml:"neighbor_threshold"`
	MinNeighbors       int           `json:"min_neighbors" yaml:"min_neighbors"`
	AlertThreshold     float64       `json:"alert_threshold" yaml:"alert_threshold"`
	RegionSize         int           `json:"region_size" yaml:"region_size"`
	StatWindow         int           `json:"stat_window" yaml:"stat_window"`
	StatWindowDuration time.Duration `json:"stat_window_duration" yaml:"stat_window_duration"`
	StatMode           string        `json:"stat_mode" yaml:"stat_mode"`
	Pooling            string        `json:"pooling" yaml:"pooling"`
	Metric             string        `json:"metric" yaml:"metric"`
	DwellTicks         int           `json:"dwell_ticks" yaml:"dwell_ticks"`
	ReleaseTicks       int           `json:"release_ticks" yaml:"release_ticks"`
	Hysteresis         float64       `json:"hysteresis" yaml:"hysteresis"`
	CooldownTicks      int           `json:"cooldown_ticks" yaml:"cooldown_ticks"`
	Masks              []MaskRect    `json:"masks" yaml:"masks"`
}

// MaskRect excludes a pixel rectangle from alerting.
type MaskRect struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

type EngineConfig struct {
	QueueCapacity      int `json:"queue_capacity" yaml:"queue_capacity"`
	PersistentMismatch int `json:"persistent_mismatch" yaml:"persistent_mismatch"`
}

type IngestConfig struct {
	Directory DirectoryConfig `json:"directory" yaml:"directory"`
	TCPStream TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	Kafka     KafkaConfig     `json:"kafka" yaml:"kafka"`
	REST      RESTConfig      `json:"rest" yaml:"rest"`
	Synthetic SyntheticConfig `json:"synthetic" yaml:"synthetic"`
}

type DirectoryConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Path      string        `json:"path" yaml:"path"`
	Loop      bool          `json:"loop" yaml:"loop"`
	Interval  time.Duration `json:"interval" yaml:"interval"`
	Grayscale bool          `json:"grayscale" yaml:"grayscale"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type SyntheticConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Width     int           `json:"width" yaml:"width"`
	Height    int           `json:"height" yaml:"height"`
	Interval  time.Duration `json:"interval" yaml:"interval"`
	BlockX    int           `json:"block_x" yaml:"block_x"`
	BlockY    int           `json:"block_y" yaml:"block_y"`
	BlockSize int           `json:"block_size" yaml:"block_size"`
	Amplitude int           `json:"amplitude" yaml:"amplitude"`
	Noise     int           `json:"noise" yaml:"noise"`
	Frames    int           `json:"frames" yaml:"frames"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type SinkConfig struct {
	Log        bool            `json:"log" yaml:"log"`
	StoreLimit int             `json:"store_limit" yaml:"store_limit"`
	Kafka      KafkaSinkConfig `json:"kafka" yaml:"kafka"`
}

type KafkaSinkConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type ReportConfig struct {
	Interval      time.Duration `json:"interval" yaml:"interval"`
	TopN          int           `json:"top_n" yaml:"top_n"`
	Normalization float64       `json:"normalization" yaml:"normalization"`
	Persist       bool          `json:"persist" yaml:"persist"`
}

func DefaultCalibration() CalibrationConfig {
	return CalibrationConfig{
		WindowSize:        3,
		NeighborThreshold: 12,
		MinNeighbors:      1,
		AlertThreshold:    8,
		RegionSize:        16,
		StatWindow:        30,
		StatMode:          "auto",
		Pooling:           "mean",
		Metric:            "mean",
		DwellTicks:        3,
		ReleaseTicks:      5,
		Hysteresis:        0.1,
	}
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:    "info",
		StreamID:    "default",
		Calibration: DefaultCalibration(),
		Engine:      EngineConfig{QueueCapacity: 8, PersistentMismatch: 30},
		Ingest: IngestConfig{
			Directory: DirectoryConfig{Enabled: false, Interval: 40 * time.Millisecond},
			TCPStream: TCPStreamConfig{Enabled: false, Addr: ":9400"},
			Kafka:     KafkaConfig{Enabled: false},
			REST:      RESTConfig{Enabled: false, Addr: ":8090"},
			Synthetic: SyntheticConfig{
				Enabled:   false,
				Width:     160,
				Height:    120,
				Interval:  40 * time.Millisecond,
				BlockX:    60,
				BlockY:    40,
				BlockSize: 10,
				Amplitude: 40,
			},
		},
		API:     APIConfig{Enabled: true, Addr: ":8091"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:vibroscope.db?_pragma=busy_timeout(5000)"},
		Sink:    SinkConfig{Log: true, StoreLimit: 1000},
		Report:  ReportConfig{Interval: 5 * time.Second, TopN: 10, Normalization: 10},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return Parse(content)
}

// Parse decodes a YAML or JSON document on top of DefaultConfig.
func Parse(content []byte) (*Config, error) {
	cfg := DefaultConfig()
	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.StreamID == "" {
		cfg.StreamID = "default"
	}
	if cfg.Engine.QueueCapacity <= 0 {
		cfg.Engine.QueueCapacity = 8
	}
	if cfg.Engine.PersistentMismatch <= 0 {
		cfg.Engine.PersistentMismatch = 30
	}
	if cfg.Calibration.StatMode == "" {
		cfg.Calibration.StatMode = "auto"
	}
	if cfg.Calibration.Pooling == "" {
		cfg.Calibration.Pooling = "mean"
	}
	if cfg.Calibration.Metric == "" {
		cfg.Calibration.Metric = "mean"
	}
	if cfg.Calibration.MinNeighbors == 0 {
		cfg.Calibration.MinNeighbors = 1
	}
	if cfg.Sink.StoreLimit <= 0 {
		cfg.Sink.StoreLimit = 1000
	}
	if cfg.Report.Interval <= 0 {
		cfg.Report.Interval = 5 * time.Second
	}
	if cfg.Report.TopN <= 0 {
		cfg.Report.TopN = 10
	}
	if cfg.Report.Normalization <= 0 {
		cfg.Report.Normalization = 10
	}
}

// Validate checks the non-calibration sections.
func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.Directory.Enabled && cfg.Ingest.Directory.Path == "" {
		return errors.New("ingest.directory.path required when ingest.directory.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Ingest.Synthetic.Enabled {
		s := cfg.Ingest.Synthetic
		if s.Width <= 0 || s.Height <= 0 {
			return fmt.Errorf("ingest.synthetic size must be positive, got %dx%d", s.Width, s.Height)
		}
	}
	if cfg.Sink.Kafka.Enabled {
		if len(cfg.Sink.Kafka.Brokers) == 0 || cfg.Sink.Kafka.Topic == "" {
			return errors.New("sink.kafka requires brokers and topic")
		}
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
		}
	}
	return nil
}

type Manager struct {
	path string
	cfg  atomic.Value

	mu      sync.Mutex
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	m.stampModTime()
	return m, nil
}

// NewStaticManager wraps an in-memory config; Update keeps it in memory
// when no path is set.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	m.stampModTime()
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
		m.stampModTime()
	}
	m.cfg.Store(cfg)
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return info.ModTime().After(m.modTime), nil
}

// stampModTime records the file's current modification time as seen.
func (m *Manager) stampModTime() {
	info, err := os.Stat(m.path)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.modTime = info.ModTime()
	m.mu.Unlock()
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
