package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default values for properties not present in the file.
const (
	DefaultSyncPort          = 6000
	DefaultBalancerPort      = 5000
	DefaultServiceBasePort   = 5555
	DefaultSyncInterval      = 60 * time.Second
	DefaultCoordinatorCheck  = 30 * time.Second
	DefaultDiscoveryInterval = 15 * time.Second
	DefaultDataDirectory     = "./data"
)

// Seed is one bootstrap peer entry from seed.servers. In both node roles
// the port is the peer's sync port.
type Seed struct {
	ID      string
	Address string
	Port    int
}

// Config is the per-node properties file, parsed and defaulted.
type Config struct {
	ServerID        string
	ServerAddress   string
	ServiceBasePort int // server.port; service ports derive as base+0/100/200/300
	SyncPort        int

	SyncInterval      time.Duration
	CoordinatorCheck  time.Duration
	DiscoveryInterval time.Duration

	IsBalancer   bool
	BalancerPort int

	Seeds []Seed

	DataDirectory        string
	UserDataDirectory    string
	PostDataDirectory    string
	MessageDataDirectory string

	StreamPort      int
	MQTTBrokerURL   string
	MQTTTopicPrefix string

	props map[string]string
}

// Load reads a Java-style properties file ("key=value", "#" comments) and
// applies defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	props := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		props[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return fromProps(props)
}

func fromProps(props map[string]string) (*Config, error) {
	cfg := &Config{props: props}

	cfg.ServerID = getString(props, "server.id", uuid.NewString())
	cfg.ServerAddress = getString(props, "server.address", "127.0.0.1")

	var err error
	if cfg.ServiceBasePort, err = getInt(props, "server.port", getIntDefault(props, "user.service.port", DefaultServiceBasePort)); err != nil {
		return nil, err
	}
	if cfg.SyncPort, err = getInt(props, "sync.port", DefaultSyncPort); err != nil {
		return nil, err
	}
	if cfg.BalancerPort, err = getInt(props, "balancer.port", DefaultBalancerPort); err != nil {
		return nil, err
	}
	if cfg.StreamPort, err = getInt(props, "stream.port", 0); err != nil {
		return nil, err
	}

	cfg.SyncInterval, err = getMillis(props, "sync.interval.ms", DefaultSyncInterval)
	if err != nil {
		return nil, err
	}
	cfg.CoordinatorCheck, err = getMillis(props, "coordinator.check.interval.ms", DefaultCoordinatorCheck)
	if err != nil {
		return nil, err
	}
	cfg.DiscoveryInterval, err = getMillis(props, "discovery.interval.ms", DefaultDiscoveryInterval)
	if err != nil {
		return nil, err
	}

	cfg.IsBalancer = getString(props, "is.balancer", "false") == "true"

	cfg.DataDirectory = getString(props, "data.directory", DefaultDataDirectory)
	cfg.UserDataDirectory = getString(props, "user.data.directory", cfg.DataDirectory+"/user_data")
	cfg.PostDataDirectory = getString(props, "post.data.directory", cfg.DataDirectory+"/post_data")
	cfg.MessageDataDirectory = getString(props, "message.data.directory", cfg.DataDirectory+"/message_data")

	cfg.MQTTBrokerURL = getString(props, "mqtt.broker.url", "")
	cfg.MQTTTopicPrefix = getString(props, "mqtt.topic.prefix", "social")

	if cfg.Seeds, err = parseSeeds(getString(props, "seed.servers", "")); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// Validate checks the parts a node cannot run without.
func (c *Config) Validate() error {
	if c.ServerID == "" {
		return fmt.Errorf("server.id must not be empty")
	}
	if c.ServerAddress == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.SyncPort <= 0 {
		return fmt.Errorf("sync.port must be positive")
	}
	if c.IsBalancer && c.BalancerPort <= 0 {
		return fmt.Errorf("balancer.port must be positive")
	}
	if !c.IsBalancer && c.ServiceBasePort <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	return nil
}

// Property returns a raw property value with a default, for keys without a
// dedicated field.
func (c *Config) Property(key, def string) string {
	return getString(c.props, key, def)
}

// LogFilePath is where the node tees its event log.
func (c *Config) LogFilePath() string {
	return c.DataDirectory + "/" + c.ServerID + ".log"
}

// StateFilePath holds the persisted node state (clock offset).
func (c *Config) StateFilePath() string {
	return c.DataDirectory + "/" + c.ServerID + ".state.json"
}

func parseSeeds(raw string) ([]Seed, error) {
	if raw == "" {
		return nil, nil
	}
	var seeds []Seed
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid seed entry %q, want id:host:port", entry)
		}
		port, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid seed port in %q: %w", entry, err)
		}
		seeds = append(seeds, Seed{ID: parts[0], Address: parts[1], Port: port})
	}
	return seeds, nil
}

func getString(props map[string]string, key, def string) string {
	if v, ok := props[key]; ok && v != "" {
		return v
	}
	return def
}

func getInt(props map[string]string, key string, def int) (int, error) {
	v, ok := props[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return n, nil
}

func getIntDefault(props map[string]string, key string, def int) int {
	n, err := getInt(props, key, def)
	if err != nil {
		return def
	}
	return n
}

func getMillis(props map[string]string, key string, def time.Duration) (time.Duration, error) {
	v, ok := props[key]
	if !ok || v == "" {
		return def, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
