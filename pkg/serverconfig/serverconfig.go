// Package serverconfig loads the YAML configuration a Karabo device
// server process reads on startup: broker address/topic, the per-class
// init configuration for every device it hosts, and where the alarm
// service / logger persist their state.
package serverconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/karabo/pkg/access"
	"github.com/newtron-network/karabo/pkg/deviceclass"
	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/schema"
)

// DeviceClassConfig is one device instance this server instantiates on
// startup: which class, what instance id, and its init-time
// configuration (assignment-mandatory leaves must appear here). Parameters
// describes the class's schema inline when classId isn't one of the
// process's compiled-in classes.
type DeviceClassConfig struct {
	InstanceID string                      `yaml:"instanceId"`
	ClassID    string                      `yaml:"classId"`
	Init       map[string]any              `yaml:"init,omitempty"`
	Parameters []deviceclass.ParameterSpec `yaml:"parameters,omitempty"`
}

// Config is a whole device server's configuration document.
type Config struct {
	BrokerAddress string `yaml:"brokerAddress"`
	BrokerTopic   string `yaml:"brokerTopic"`

	Devices []DeviceClassConfig `yaml:"devices"`

	Alarm struct {
		InstanceID           string `yaml:"instanceId,omitempty"`
		StoragePath          string `yaml:"storagePath"`
		FlushIntervalSeconds int    `yaml:"flushIntervalSeconds,omitempty"`
	} `yaml:"alarm,omitempty"`

	Logger struct {
		Directory            string   `yaml:"directory,omitempty"`
		MaximumFileSizeMB    int      `yaml:"maximumFileSizeMb,omitempty"`
		FlushIntervalSeconds int      `yaml:"flushIntervalSeconds,omitempty"`
		LoggerMapPath        string   `yaml:"loggerMapPath,omitempty"`
		LoggerInstanceIDs    []string `yaml:"loggerInstanceIds,omitempty"`
	} `yaml:"logger,omitempty"`

	AdminHTTP struct {
		ListenAddr     string   `yaml:"listenAddr,omitempty"`
		AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
	} `yaml:"adminHttp,omitempty"`

	Credentials []CredentialConfig `yaml:"credentials,omitempty"`
}

// CredentialConfig is one operator account entry: a username, a
// bcrypt password hash (as produced by access.HashPassword and stored
// as a string, never a plaintext password), and the access level name
// it grants (observer/user/operator/expert/admin).
type CredentialConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"passwordHash"`
	Level        string `yaml:"level"`
}

// AccessStore builds an access.Store from the configured credentials.
func (c *Config) AccessStore() (*access.Store, error) {
	creds := make([]access.Credential, 0, len(c.Credentials))
	for _, cc := range c.Credentials {
		level, err := schema.ParseAccessLevel(cc.Level)
		if err != nil {
			return nil, fmt.Errorf("serverconfig: credential %q: %w", cc.Username, err)
		}
		creds = append(creds, access.Credential{
			Username:     cc.Username,
			PasswordHash: []byte(cc.PasswordHash),
			Level:        level,
		})
	}
	return access.NewStore(creds), nil
}

// Load reads and parses a device server configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("serverconfig: reading %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("serverconfig: parsing %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Alarm.FlushIntervalSeconds <= 0 {
		c.Alarm.FlushIntervalSeconds = 10
	}
	if c.Alarm.InstanceID == "" {
		c.Alarm.InstanceID = "karaboAlarmService" // device.DefaultAlarmServiceInstanceID
	}
	if c.Logger.MaximumFileSizeMB <= 0 {
		c.Logger.MaximumFileSizeMB = 50
	}
	if c.Logger.FlushIntervalSeconds <= 0 {
		c.Logger.FlushIntervalSeconds = 5
	}
	if c.AdminHTTP.ListenAddr == "" {
		c.AdminHTTP.ListenAddr = ":8080"
	}
}

// InitHash converts a DeviceClassConfig's plain-YAML init map into the
// Hash New expects for device construction.
func (d DeviceClassConfig) InitHash() *hash.Hash {
	h := hash.New()
	for k, v := range d.Init {
		h.Set(k, v)
	}
	return h
}
