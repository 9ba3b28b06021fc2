package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Meter    MeterConfig    `mapstructure:"meter"`
	Calling  CallingConfig  `mapstructure:"calling"`
	Dialog   DialogConfig   `mapstructure:"dialog"`
	Invite   InviteConfig   `mapstructure:"invite"`
	Log      LogConfig      `mapstructure:"log"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required"`
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=debug release test"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=sqlite mysql"`
	DSN    string `mapstructure:"dsn"`
}

type AuthConfig struct {
	Secret   string        `mapstructure:"secret" validate:"required,min=16"`
	TokenTTL time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}

// MeterConfig drives the microphone level monitor.
type MeterConfig struct {
	InputDevice       string        `mapstructure:"input_device"`
	UpdateInterval    time.Duration `mapstructure:"update_interval" validate:"gt=0"`
	AnimationDuration time.Duration `mapstructure:"animation_duration" validate:"gt=0"`
	FrameInterval     time.Duration `mapstructure:"frame_interval" validate:"gt=0"`
	SampleRate        int           `mapstructure:"sample_rate" validate:"gt=0"`
	FramesPerBuffer   int           `mapstructure:"frames_per_buffer" validate:"gt=0"`
	Files             []FileDevice  `mapstructure:"files" validate:"dive"`
}

type FileDevice struct {
	ID   string `mapstructure:"id" validate:"required"`
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path" validate:"required"`
}

type CallingConfig struct {
	STUNServers []string `mapstructure:"stun_servers"`
	UDPPortMin  uint16   `mapstructure:"udp_port_min"`
	UDPPortMax  uint16   `mapstructure:"udp_port_max" validate:"gtefield=UDPPortMin"`
}

type DialogConfig struct {
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	ReapInterval   time.Duration `mapstructure:"reap_interval" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

type InviteConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
}

// DefaultSecret signs tokens when auth.secret is not configured.
const DefaultSecret = "CHANGE_ME_GROUPCALL_SECRET"

var AppConfig Config

func LoadConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Config file not found, using defaults. Error: %v", err)
	}

	cfg, err := decode(viper.GetViper())
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	AppConfig = cfg
	if UsingDefaultSecret(&cfg) {
		log.Printf("Warning: auth.secret is not set, tokens are signed with the built-in default")
	}

	log.Println("Configuration loaded successfully")
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Auth.Secret == "" {
		cfg.Auth.Secret = DefaultSecret
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
	if cfg.Meter.UpdateInterval <= 0 {
		cfg.Meter.UpdateInterval = 100 * time.Millisecond
	}
	if cfg.Meter.AnimationDuration <= 0 {
		cfg.Meter.AnimationDuration = 100 * time.Millisecond
	}
	if cfg.Meter.FrameInterval <= 0 {
		cfg.Meter.FrameInterval = 16 * time.Millisecond
	}
	if cfg.Meter.SampleRate <= 0 {
		cfg.Meter.SampleRate = 48000
	}
	if cfg.Meter.FramesPerBuffer <= 0 {
		cfg.Meter.FramesPerBuffer = 480
	}
	if len(cfg.Calling.STUNServers) == 0 {
		cfg.Calling.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if cfg.Dialog.IdleTimeout <= 0 {
		cfg.Dialog.IdleTimeout = 10 * time.Minute
	}
	if cfg.Dialog.ReapInterval <= 0 {
		cfg.Dialog.ReapInterval = 30 * time.Second
	}
	if cfg.Dialog.RequestTimeout <= 0 {
		cfg.Dialog.RequestTimeout = 10 * time.Second
	}
	if cfg.Invite.BaseURL == "" {
		cfg.Invite.BaseURL = "https://call.example.com/join"
	}
}

func UsingDefaultSecret(cfg *Config) bool {
	return cfg.Auth.Secret == DefaultSecret
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}
