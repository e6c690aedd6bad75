package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"EnvData-Apps/internal/core/network"
	"EnvData-Apps/internal/logging"
	"EnvData-Apps/internal/qos"
)

const (
	envPrefix  = "ENVDATA"
	configName = "envdata"
)

type Libp2pConfig struct {
	ListenAddrs     []string `mapstructure:"listen_addrs"`
	Bootstrap       []string `mapstructure:"bootstrap"`
	Rendezvous      string   `mapstructure:"rendezvous"`
	EnableMDNS      bool     `mapstructure:"enable_mdns"`
	IdentityKeyFile string   `mapstructure:"identity_key_file"`
}

type NATSConfig struct {
	URL        string `mapstructure:"url"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	ClientCert string `mapstructure:"client_cert"`
	ClientKey  string `mapstructure:"client_key"`
	RootCA     string `mapstructure:"root_ca"`

	Stream         string        `mapstructure:"stream"`
	StreamSubjects []string      `mapstructure:"stream_subjects"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout" validate:"gte=0"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
}

type MQTTConfig struct {
	Broker   string        `mapstructure:"broker"`
	ClientID string        `mapstructure:"client_id"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	QoS      uint8         `mapstructure:"qos" validate:"lte=2"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

type TransportConfig struct {
	Kind   string       `mapstructure:"kind" validate:"oneof=memory libp2p nats kafka mqtt"`
	Libp2p Libp2pConfig `mapstructure:"libp2p"`
	NATS   NATSConfig   `mapstructure:"nats"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
}

type LoopConfig struct {
	Period time.Duration `mapstructure:"period" validate:"gt=0"`
}

type HTTPConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format   string `mapstructure:"format" validate:"oneof=text json"`
	FilePath string `mapstructure:"file_path"`
}

type Config struct {
	Transport  TransportConfig `mapstructure:"transport"`
	QoSFile    string          `mapstructure:"qos_file"`
	Publisher  LoopConfig      `mapstructure:"publisher"`
	Subscriber LoopConfig      `mapstructure:"subscriber"`
	HTTP       HTTPConfig      `mapstructure:"http"`
	Logging    LoggingConfig   `mapstructure:"logging"`
}

var validate = validator.New()

// Validate checks field tags and the settings each transport kind needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	t := c.Transport
	switch {
	case t.Kind == network.KindNATS && t.NATS.URL == "":
		return errors.New("invalid config: transport.nats.url is required")
	case t.Kind == network.KindKafka && len(t.Kafka.Brokers) == 0:
		return errors.New("invalid config: transport.kafka.brokers is required")
	case t.Kind == network.KindMQTT && t.MQTT.Broker == "":
		return errors.New("invalid config: transport.mqtt.broker is required")
	}
	if t.Kind == network.KindNATS && t.NATS.Stream != "" {
		if err := network.CheckStreamSubjects(t.NATS.StreamSubjects); err != nil {
			return fmt.Errorf("invalid config: transport.nats.stream_subjects: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport.kind", network.KindLibp2p)
	v.SetDefault("transport.libp2p.listen_addrs", []string{"/ip4/0.0.0.0/tcp/0"})
	v.SetDefault("transport.libp2p.bootstrap", []string{})
	v.SetDefault("transport.libp2p.rendezvous", "envdata-mdns")
	v.SetDefault("transport.libp2p.enable_mdns", true)
	v.SetDefault("transport.libp2p.identity_key_file", "")
	v.SetDefault("transport.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("transport.nats.tls_enabled", false)
	v.SetDefault("transport.nats.client_cert", "")
	v.SetDefault("transport.nats.client_key", "")
	v.SetDefault("transport.nats.root_ca", "")
	v.SetDefault("transport.nats.stream", "")
	v.SetDefault("transport.nats.stream_subjects", []string{qos.DefaultPartition + ".>"})
	v.SetDefault("transport.nats.publish_timeout", 2*time.Second)
	v.SetDefault("transport.kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("transport.kafka.write_timeout", 5*time.Second)
	v.SetDefault("transport.mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("transport.mqtt.client_id", "")
	v.SetDefault("transport.mqtt.username", "")
	v.SetDefault("transport.mqtt.password", "")
	v.SetDefault("transport.mqtt.qos", 1)
	v.SetDefault("transport.mqtt.timeout", 5*time.Second)
	v.SetDefault("qos_file", "")
	v.SetDefault("publisher.period", 100*time.Millisecond)
	v.SetDefault("subscriber.period", 100*time.Millisecond)
	v.SetDefault("http.listen_addr", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file_path", "")
}

// Loader holds the current configuration and swaps it on file changes.
type Loader struct {
	v *viper.Viper

	mu  sync.Mutex
	cfg Config
}

// Load reads path, or envdata.yaml from /etc/envdata and the working
// directory when path is empty. A missing default file is not an error.
// ENVDATA_* variables override file values, e.g. ENVDATA_PUBLISHER_PERIOD.
func Load(path string) (*Loader, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/envdata")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read configuration: %w", err)
			}
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Loader{v: v, cfg: cfg}, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Current returns a copy of the active configuration.
func (l *Loader) Current() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// File is the configuration file in use, empty when running on defaults.
func (l *Loader) File() string { return l.v.ConfigFileUsed() }

// Watch reloads the file whenever it changes and hands each valid result
// to fn. Invalid edits are logged and the previous configuration stays.
func (l *Loader) Watch(logger *slog.Logger, fn func(Config)) {
	if l.File() == "" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("config file changed", "file", e.Name, "op", e.Op.String())
		cfg, err := decode(l.v)
		if err != nil {
			logger.Error("config reload rejected", "error", err)
			return
		}
		l.mu.Lock()
		l.cfg = cfg
		l.mu.Unlock()
		if fn != nil {
			fn(cfg)
		}
	})
	l.v.WatchConfig()
}

// TransportOptions maps the transport section onto backend options.
func (c Config) TransportOptions(logger *slog.Logger) network.Options {
	t := c.Transport
	return network.Options{
		Kind: t.Kind,
		Libp2p: network.Libp2pOptions{
			ListenAddrs:     t.Libp2p.ListenAddrs,
			Bootstrap:       t.Libp2p.Bootstrap,
			Rendezvous:      t.Libp2p.Rendezvous,
			EnableMDNS:      t.Libp2p.EnableMDNS,
			IdentityKeyFile: t.Libp2p.IdentityKeyFile,
		},
		NATS: network.NATSOptions{
			URL:            t.NATS.URL,
			TLSEnabled:     t.NATS.TLSEnabled,
			ClientCert:     t.NATS.ClientCert,
			ClientKey:      t.NATS.ClientKey,
			RootCA:         t.NATS.RootCA,
			Stream:         t.NATS.Stream,
			StreamSubjects: t.NATS.StreamSubjects,
			PublishTimeout: t.NATS.PublishTimeout,
		},
		Kafka: network.KafkaOptions{
			Brokers:      t.Kafka.Brokers,
			WriteTimeout: t.Kafka.WriteTimeout,
		},
		MQTT: network.MQTTOptions{
			Broker:   t.MQTT.Broker,
			ClientID: t.MQTT.ClientID,
			Username: t.MQTT.Username,
			Password: t.MQTT.Password,
			QoS:      t.MQTT.QoS,
			Timeout:  t.MQTT.Timeout,
		},
		Logger: logger,
	}
}

func (c Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:    c.Logging.Level,
		Format:   c.Logging.Format,
		FilePath: c.Logging.FilePath,
	}
}
