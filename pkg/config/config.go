package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/workwork-1/projectbotsalon/pkg/domain/slots"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CONFIG_PATH is not set.
var DefaultPath = filepath.Join("cmd/bot/etc", "app.yml")

type Config struct {
	HTTPPort    int    `yaml:"http_port" validate:"required,min=1,max=65535"`
	WorkerCount int    `yaml:"worker_count" validate:"required,min=1"`
	AdminToken  string `yaml:"admin_token"`
	APIToken    string `yaml:"api_token"`

	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Booking  BookingConfig  `yaml:"booking"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Telegram TelegramConfig `yaml:"telegram"`
	Logging  LoggingConfig  `yaml:"logging"`

	// Из окружения
	BotToken  string `yaml:"-"`
	ChannelID string `yaml:"-"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver" validate:"required,oneof=postgres memory"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Driver postgres"`
	MaxConns    int32  `yaml:"max_conns" validate:"omitempty,min=1"`
}

// RedisConfig is optional; an empty address keeps chat sessions in memory.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0"`
}

type BookingConfig struct {
	SlotStepMinutes int      `yaml:"slot_step_minutes" validate:"omitempty,min=1,max=240"`
	ScheduleDays    int      `yaml:"schedule_days" validate:"omitempty,min=1,max=366"`
	WorkStart       string   `yaml:"work_start" validate:"omitempty,clock"`
	WorkEnd         string   `yaml:"work_end" validate:"omitempty,clock"`
	WorkDays        []string `yaml:"work_days" validate:"dive,oneof=mon tue wed thu fri sat sun"`
	RolloverCron    string   `yaml:"rollover_cron"`
	PhoneRegion     string   `yaml:"phone_region" validate:"omitempty,len=2"`
}

type CatalogConfig struct {
	Services []ServiceSeed `yaml:"services" validate:"dive"`
	Masters  []MasterSeed  `yaml:"masters" validate:"dive"`
}

type ServiceSeed struct {
	Name        string `yaml:"name" validate:"required"`
	DurationMin int    `yaml:"duration_min" validate:"required,min=1"`
	Price       int    `yaml:"price" validate:"min=0"`
}

type MasterSeed struct {
	Name           string `yaml:"name" validate:"required"`
	Specialization string `yaml:"specialization"`
}

type TelegramConfig struct {
	Admins []int64 `yaml:"admins"`
}

type LoggingConfig struct {
	Level string     `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	File  FileConfig `yaml:"file"`
}

type FileConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path" validate:"required_if=Enabled true"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func LoadConfig() (*Config, error) {
	// .env необязателен: в контейнере переменные приходят из окружения
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errs.New("failed to load .env").Wrap(err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New("failed to read config file").Arg("path", path).Wrap(err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.BotToken = os.Getenv("TG_TOKEN")
	cfg.ChannelID = os.Getenv("TG_CHANNEL_ID")

	return cfg, nil
}

// Parse expands ${VAR} references, decodes YAML, fills defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, errs.New("failed to unmarshal YAML").Wrap(err)
	}
	cfg.setDefaults()

	v := validator.New()
	if err := v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := slots.ParseClock(fl.Field().String())
		return err == nil
	}); err != nil {
		return nil, errs.New("register clock validation").Wrap(err)
	}
	if err := v.Struct(cfg); err != nil {
		return nil, errs.New("config validation failed").Kind(errs.ErrValidation).Wrap(err)
	}
	if slots.MustClock(cfg.Booking.WorkEnd) <= slots.MustClock(cfg.Booking.WorkStart) {
		return nil, errs.Validation("work_end must be after work_start").
			Arg("work_start", cfg.Booking.WorkStart).Arg("work_end", cfg.Booking.WorkEnd)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.WorkerCount == 0 {
		c.WorkerCount = 4
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Storage.MaxConns == 0 {
		c.Storage.MaxConns = 10
	}
	if c.Booking.SlotStepMinutes == 0 {
		c.Booking.SlotStepMinutes = slots.DefaultStep
	}
	if c.Booking.ScheduleDays == 0 {
		c.Booking.ScheduleDays = 14
	}
	if c.Booking.WorkStart == "" {
		c.Booking.WorkStart = "10:00"
	}
	if c.Booking.WorkEnd == "" {
		c.Booking.WorkEnd = "19:00"
	}
	if c.Booking.WorkDays == nil {
		c.Booking.WorkDays = []string{"mon", "tue", "wed", "thu", "fri"}
	}
	if c.Booking.RolloverCron == "" {
		c.Booking.RolloverCron = "0 3 * * *"
	}
	if c.Booking.PhoneRegion == "" {
		c.Booking.PhoneRegion = "RU"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// Weekdays converts the validated work_days list.
func (b BookingConfig) Weekdays() []time.Weekday {
	out := make([]time.Weekday, 0, len(b.WorkDays))
	for _, d := range b.WorkDays {
		out = append(out, weekdays[d])
	}
	return out
}
