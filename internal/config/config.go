// Package config загружает политику pipeline из YAML файла.
//
// Файл описывает поведение генерации (бюджет retry, политику
// asset-failures, retention, backoff воркеров), а не endpoints:
// адреса БД и брокера приходят из переменных окружения (DB_URL,
// MQ_URL, PORT). Отдельные поля политики можно переопределить
// через окружение без правки файла.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration — обёртка для time.Duration с YAML-поддержкой
// строк вида "30s", "5m", "24h".
type Duration time.Duration

// UnmarshalYAML реализует yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std возвращает стандартный time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config — политика pipeline.
type Config struct {
	// MaxRetries — бюджет retry-проходов (циклов QA → PLAN) на job.
	MaxRetries int `yaml:"max_retries"`

	// AssetPolicy — поведение при частичном провале asset-стадии:
	// "fail_fast" или "partial".
	AssetPolicy string `yaml:"asset_policy"`

	// Retention — сколько хранить завершённые jobs до sweep.
	Retention Duration `yaml:"retention"`

	// SweepCron — cron-расписание retention-чистки.
	SweepCron string `yaml:"sweep_cron"`

	// Unit — политика выполнения units воркерами.
	Unit UnitConfig `yaml:"unit"`

	// PollInterval — период polling-fallback (coordinator и worker
	// без брокера).
	PollInterval Duration `yaml:"poll_interval"`
}

// UnitConfig — политика retry на уровне одного unit.
type UnitConfig struct {
	// MaxAttempts — максимум попыток выполнения unit.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay — задержка перед первым retry.
	InitialDelay Duration `yaml:"initial_delay"`

	// MaxDelay — потолок exponential backoff.
	MaxDelay Duration `yaml:"max_delay"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		MaxRetries:  3,
		AssetPolicy: "fail_fast",
		Retention:   Duration(24 * time.Hour),
		SweepCron:   "*/10 * * * *",
		Unit: UnitConfig{
			MaxAttempts:  3,
			InitialDelay: Duration(time.Second),
			MaxDelay:     Duration(30 * time.Second),
		},
		PollInterval: Duration(5 * time.Second),
	}
}

// Load читает конфигурацию из YAML файла поверх значений по умолчанию
// и применяет переопределения из окружения. Пустой path означает
// конфигурацию по умолчанию.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv переопределяет поля из переменных окружения.
func (c *Config) applyEnv() {
	if v := os.Getenv("PIPELINE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("PIPELINE_ASSET_POLICY"); v != "" {
		c.AssetPolicy = v
	}
	if v := os.Getenv("PIPELINE_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Retention = Duration(d)
		}
	}
	if v := os.Getenv("PIPELINE_SWEEP_CRON"); v != "" {
		c.SweepCron = v
	}
}

// Validate проверяет согласованность конфигурации.
func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.AssetPolicy != "fail_fast" && c.AssetPolicy != "partial" {
		return fmt.Errorf("asset_policy must be fail_fast or partial, got %q", c.AssetPolicy)
	}
	if c.Retention <= 0 {
		return fmt.Errorf("retention must be positive")
	}
	if c.Unit.MaxAttempts < 1 {
		return fmt.Errorf("unit.max_attempts must be at least 1, got %d", c.Unit.MaxAttempts)
	}
	if c.Unit.InitialDelay <= 0 || c.Unit.MaxDelay < c.Unit.InitialDelay {
		return fmt.Errorf("unit delays must satisfy 0 < initial_delay <= max_delay")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}
