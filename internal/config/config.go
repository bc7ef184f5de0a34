// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"

	"firestige.xyz/echoscan/internal/core"
)

// Config represents the top-level configuration.
// Maps to the `echoscan:` root key in YAML.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Output  OutputConfig  `mapstructure:"output"`
	Flows   FlowsConfig   `mapstructure:"flows"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`   // trace / debug / info / warn / error
	Format  string           `mapstructure:"format"`  // text / json
	Pattern string           `mapstructure:"pattern"` // text layout: %time %level %field %msg %caller
	Time    string           `mapstructure:"time"`    // Go time layout for %time
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log destinations besides stderr.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Scan ───

// ScanConfig controls how captures are read and decoded.
type ScanConfig struct {
	MaxRecordLen    uint32 `mapstructure:"max_record_len"`
	BPFProgram      string `mapstructure:"bpf_program"` // path to `tcpdump -ddd` output
	ICMPTypes       []int  `mapstructure:"icmp_types"`  // empty keeps every record
	DecodeTransport bool   `mapstructure:"decode_transport"`
	LogLimit        int    `mapstructure:"log_limit"` // decode failures logged per layer per 10s, 0 logs all
}

// ─── Output ───

// OutputConfig controls how decoded records are rendered.
type OutputConfig struct {
	Format  string `mapstructure:"format"` // text / json / yaml / log
	Payload bool   `mapstructure:"payload"`
}

// ─── Flows ───

// FlowsConfig controls flow grouping.
type FlowsConfig struct {
	Key        string `mapstructure:"key"` // pair / destination
	MinPackets int    `mapstructure:"min_packets"`
	Intervals  bool   `mapstructure:"intervals"` // list every inter-packet gap
}

// ─── Metrics ───

// MetricsConfig controls the Prometheus textfile written after a run.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // empty disables metrics
}

var (
	LogLevels     = []interface{}{"trace", "debug", "info", "warn", "error"}
	LogFormats    = []interface{}{"text", "json"}
	OutputFormats = []interface{}{"text", "json", "yaml", "log"}
	FlowKeys      = []interface{}{"pair", "destination"}
)

// ─── Loading ───

type configRoot struct {
	Echoscan Config `mapstructure:"echoscan"`
}

// Load loads configuration from path. An empty path yields the defaults,
// still subject to ECHOSCAN_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `echoscan.` key prefix maps to ECHOSCAN_ in env vars via the
	// replacer, e.g. "echoscan.log.level" → ECHOSCAN_LOG_LEVEL.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Echoscan

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return &cfg, nil
}

// Default returns the configuration Load produces with no file and no
// environment overrides.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:   "info",
			Format:  "text",
			Pattern: "%time [%level] %field %msg\n",
			Time:    "2006-01-02 15:04:05.000",
			Outputs: LogOutputsConfig{File: FileOutputConfig{
				Path:     "echoscan.log",
				Rotation: RotationConfig{MaxSizeMB: 100, MaxAgeDays: 30, MaxBackups: 5, Compress: true},
			}},
		},
		Scan: ScanConfig{
			MaxRecordLen:    262144,
			ICMPTypes:       []int{},
			DecodeTransport: true,
			LogLimit:        10,
		},
		Output: OutputConfig{Format: "text"},
		Flows:  FlowsConfig{Key: "pair", MinPackets: 1},
	}
}

// setDefaults registers every key so env overrides reach Unmarshal.
// All keys use the "echoscan." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	d := Default()

	// Log defaults
	v.SetDefault("echoscan.log.level", d.Log.Level)
	v.SetDefault("echoscan.log.format", d.Log.Format)
	v.SetDefault("echoscan.log.pattern", d.Log.Pattern)
	v.SetDefault("echoscan.log.time", d.Log.Time)
	v.SetDefault("echoscan.log.outputs.file.enabled", d.Log.Outputs.File.Enabled)
	v.SetDefault("echoscan.log.outputs.file.path", d.Log.Outputs.File.Path)
	v.SetDefault("echoscan.log.outputs.file.rotation.max_size_mb", d.Log.Outputs.File.Rotation.MaxSizeMB)
	v.SetDefault("echoscan.log.outputs.file.rotation.max_age_days", d.Log.Outputs.File.Rotation.MaxAgeDays)
	v.SetDefault("echoscan.log.outputs.file.rotation.max_backups", d.Log.Outputs.File.Rotation.MaxBackups)
	v.SetDefault("echoscan.log.outputs.file.rotation.compress", d.Log.Outputs.File.Rotation.Compress)

	// Scan defaults
	v.SetDefault("echoscan.scan.max_record_len", d.Scan.MaxRecordLen)
	v.SetDefault("echoscan.scan.bpf_program", d.Scan.BPFProgram)
	v.SetDefault("echoscan.scan.icmp_types", d.Scan.ICMPTypes)
	v.SetDefault("echoscan.scan.decode_transport", d.Scan.DecodeTransport)
	v.SetDefault("echoscan.scan.log_limit", d.Scan.LogLimit)

	// Output defaults
	v.SetDefault("echoscan.output.format", d.Output.Format)
	v.SetDefault("echoscan.output.payload", d.Output.Payload)

	// Flow defaults
	v.SetDefault("echoscan.flows.key", d.Flows.Key)
	v.SetDefault("echoscan.flows.min_packets", d.Flows.MinPackets)
	v.SetDefault("echoscan.flows.intervals", d.Flows.Intervals)

	// Metrics defaults
	v.SetDefault("echoscan.metrics.textfile", d.Metrics.Textfile)
}

// ─── Validation ───

// Validate checks every section.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Log),
		validation.Field(&c.Scan),
		validation.Field(&c.Output),
		validation.Field(&c.Flows),
		validation.Field(&c.Metrics),
	)
}

func (c LogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.Required, validation.In(LogLevels...)),
		validation.Field(&c.Format, validation.Required, validation.In(LogFormats...)),
		validation.Field(&c.Outputs),
	)
}

func (c LogOutputsConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.File),
	)
}

func (c FileOutputConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

func (c ScanConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxRecordLen, validation.Max(uint32(1<<26))),
		validation.Field(&c.ICMPTypes, validation.Each(validation.Min(0), validation.Max(255))),
		validation.Field(&c.LogLimit, validation.Min(0)),
	)
}

func (c OutputConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Format, validation.Required, validation.In(OutputFormats...)),
	)
}

func (c FlowsConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Key, validation.Required, validation.In(FlowKeys...)),
		validation.Field(&c.MinPackets, validation.Min(0)), // 0 keeps every flow
	)
}

func (c MetricsConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Textfile, validation.When(c.Textfile != "", validation.By(promFile))),
	)
}

// promFile requires the .prom suffix the textfile collector reads.
func promFile(value interface{}) error {
	if s, _ := value.(string); !strings.HasSuffix(s, ".prom") {
		return fmt.Errorf("must end in .prom")
	}
	return nil
}
