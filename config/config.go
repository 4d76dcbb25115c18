package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID string          `yaml:"service_id"`
	Messaging MessagingConfig `yaml:"messaging"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Web       WebConfig       `yaml:"web"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Workflows WorkflowsConfig `yaml:"workflows"`
	Provider  ProviderConfig  `yaml:"provider"`
}

type MessagingConfig struct {
	Backend             string        `yaml:"backend"` // "mqtt", "kafka" or "memory"
	MQTT                MQTTConfig    `yaml:"mqtt"`
	Kafka               KafkaConfig   `yaml:"kafka"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // "sqlite" or "postgres"
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type PipelineConfig struct {
	EstimateTimeout  time.Duration `yaml:"estimate_timeout"`
	ConfirmTimeout   time.Duration `yaml:"confirm_timeout"`
	SelectionTimeout time.Duration `yaml:"selection_timeout"`
	SolverNodeLimit  int           `yaml:"solver_node_limit"`
}

// WorkflowsConfig lists the process names each workflow type expands into, in order.
type WorkflowsConfig struct {
	Upgrade   []string `yaml:"upgrade"`
	Refurbish []string `yaml:"refurbish"`
}

// ProviderConfig configures a provider agent process (cmd/remanprovider).
type ProviderConfig struct {
	ID             string             `yaml:"id"`
	Name           string             `yaml:"name"`
	Capabilities   []string           `yaml:"capabilities"`
	MaxPowerKW     float64            `yaml:"max_power_kw"`
	MaxAxisHeight  float64            `yaml:"max_axis_height_mm"`
	HourlyRate     float64            `yaml:"hourly_rate"`
	Quality        float64            `yaml:"quality"`
	EmissionsPerH  float64            `yaml:"emissions_per_hour"`
	Timezone       string             `yaml:"timezone"`
	WorkStart      string             `yaml:"work_start"` // "08:00"
	WorkEnd        string             `yaml:"work_end"`
	LunchStart     string             `yaml:"lunch_start"`
	LunchEnd       string             `yaml:"lunch_end"`
	Breaks         []BreakConfig      `yaml:"breaks"`
	WorkingDays    []string           `yaml:"working_days"`
	AlwaysOpen     bool               `yaml:"always_open"`
	ProcessHours   map[string]float64 `yaml:"process_hours"`
	ExecutionSpeed float64            `yaml:"execution_speed"` // simulated seconds per planned hour
}

type BreakConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

func Defaults() *Config {
	return &Config{
		ServiceID: "remancore",
		Messaging: MessagingConfig{
			Backend: "mqtt",
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "remancore",
				QoS:      1,
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "remancore",
			},
			OutboxDrainInterval: 2 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "remanflow.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "remanflow",
				User:     "remanflow",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Pipeline: PipelineConfig{
			EstimateTimeout:  10 * time.Second,
			ConfirmTimeout:   10 * time.Second,
			SelectionTimeout: 10 * time.Minute,
			SolverNodeLimit:  200000,
		},
		Workflows: WorkflowsConfig{
			Upgrade:   []string{"Cleaning", "Disassembly", "Redesign", "PartSubstitution", "Reassembly", "Certification"},
			Refurbish: []string{"Cleaning", "Disassembly", "Turning", "Grinding", "Reassembly", "Certification"},
		},
		Provider: ProviderConfig{
			Timezone:       "UTC",
			WorkStart:      "08:00",
			WorkEnd:        "17:00",
			LunchStart:     "12:00",
			LunchEnd:       "13:00",
			WorkingDays:    []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
			HourlyRate:     80,
			Quality:        0.8,
			EmissionsPerH:  2.5,
			ExecutionSpeed: 1,
		},
	}
}

// ScopeIdentity gives a process its own MQTT client id and Kafka consumer
// group when the config still carries the shared defaults. Brokers drop an
// older session on a client id clash.
func (m *MessagingConfig) ScopeIdentity(name string) {
	def := Defaults().Messaging
	if m.MQTT.ClientID == "" || m.MQTT.ClientID == def.MQTT.ClientID {
		m.MQTT.ClientID = name
	}
	if m.Kafka.GroupID == "" || m.Kafka.GroupID == def.Kafka.GroupID {
		m.Kafka.GroupID = name
	}
}

// Load reads the YAML file at path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the config back to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
