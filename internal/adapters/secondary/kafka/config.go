package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/kelseyhightower/envconfig"
)

const (
	securityPlaintext     = "PLAINTEXT"
	securitySSL           = "SSL"
	securitySASLPlaintext = "SASL_PLAINTEXT"
	securitySASLSSL       = "SASL_SSL"
)

// Config одно подключение: топик и, для consumer, группа
type Config struct {
	Brokers          []string      `envconfig:"BROKERS" default:"localhost:9092"`
	Topic            string        `envconfig:"TOPIC"`
	ConsumerGroup    string        `envconfig:"CONSUMER_GROUP"`
	ClientID         string        `envconfig:"CLIENT_ID" default:"payments"`
	Version          string        `envconfig:"VERSION" default:"2.8.0"`
	SecurityProtocol string        `envconfig:"SECURITY_PROTOCOL" default:"PLAINTEXT"`
	SASLUsername     string        `envconfig:"SASL_USERNAME"`
	SASLPassword     string        `envconfig:"SASL_PASSWORD"`
	HandlerRetries   int           `envconfig:"HANDLER_RETRIES" default:"3"`
	RetryBackoff     time.Duration `envconfig:"RETRY_BACKOFF" default:"1s"`
}

// GetBrokers список брокеров
func (c *Config) GetBrokers() []string {
	return c.Brokers
}

// SaramaConfig базовая конфигурация клиента; SASL поддерживается только PLAIN
func (c *Config) SaramaConfig() (*sarama.Config, error) {
	config := sarama.NewConfig()
	config.ClientID = c.ClientID

	version, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid kafka version %q: %w", c.Version, err)
	}
	config.Version = version

	switch c.SecurityProtocol {
	case "", securityPlaintext:
	case securitySSL:
		config.Net.TLS.Enable = true
	case securitySASLPlaintext, securitySASLSSL:
		config.Net.SASL.Enable = true
		config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		config.Net.SASL.User = c.SASLUsername
		config.Net.SASL.Password = c.SASLPassword
		config.Net.TLS.Enable = c.SecurityProtocol == securitySASLSSL
	default:
		return nil, fmt.Errorf("unsupported security protocol %q", c.SecurityProtocol)
	}

	return config, nil
}

// KafkaConfigs несколько подключений, каждое под своим именем
type KafkaConfigs struct {
	Count int           `envconfig:"COUNT" default:"0"`
	List  []KafkaConfig `envconfig:"-"`
}

type KafkaConfig struct {
	Name   string  `envconfig:"NAME"` // payment_events, order_commands
	Config *Config `envconfig:"CONFIG"`
}

// Load читает <PREFIX>_KAFKA_<i>_* для i < Count
func (kc *KafkaConfigs) Load(envPrefix string) error {
	kc.List = make([]KafkaConfig, 0, kc.Count)
	for i := 0; i < kc.Count; i++ {
		var item KafkaConfig
		if err := envconfig.Process(fmt.Sprintf("%s_KAFKA_%d", envPrefix, i), &item); err != nil {
			return fmt.Errorf("failed to load kafka config %d: %w", i, err)
		}
		if item.Name == "" {
			return fmt.Errorf("kafka config %d has no name", i)
		}
		kc.List = append(kc.List, item)
	}
	return nil
}

// Get конфигурация по имени, nil если такой нет
func (kc *KafkaConfigs) Get(name string) *Config {
	for _, item := range kc.List {
		if item.Name == name && item.Config != nil {
			return item.Config
		}
	}
	return nil
}
