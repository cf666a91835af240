package kafka

import (
	"cmp"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/IBM/sarama"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"github.com/mitchellh/mapstructure"
)

// Config represents Kafka-specific configuration
type Config struct {
	Brokers         []string
	ClientID        string
	Version         string `mapstructure:"version"`
	Retries         int
	RetryBackoff    time.Duration
	RequestTimeout  time.Duration
	MaxBlock        time.Duration
	DeliveryTimeout time.Duration
	Linger          time.Duration
	// Idempotent enables the idempotent producer so broker-side retries never
	// duplicate a message. Requires Kafka >= 0.11.
	Idempotent bool  `mapstructure:"idempotent"`
	SASL       *SASL `mapstructure:"sasl"`
	TLS        TLS   `mapstructure:"tls"`
}

// SASL represents SASL authentication configuration
type SASL struct {
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Algorithm string `mapstructure:"algorithm"`
	Enable    bool   `mapstructure:"enable"`
}

// TLS represents TLS configuration
type TLS struct {
	CertFile   string `mapstructure:"certFile"`
	KeyFile    string `mapstructure:"keyFile"`
	CAFile     string `mapstructure:"caFile"`
	Enable     bool   `mapstructure:"enable"`
	SkipVerify bool   `mapstructure:"skipVerify"`
}

// NewConfig derives the Kafka configuration from the generic publisher config.
// Transport-only settings (version, idempotence, SASL, TLS) come from cfg.Options.
func NewConfig(cfg peer.Config) (*Config, error) {
	def := peer.DefaultConfig()

	c := &Config{}
	if err := mapstructure.Decode(cfg.Options, c); err != nil {
		return nil, fmt.Errorf("decode kafka options: %w", err)
	}

	_, c.Brokers = peer.SplitAddress(cmp.Or(cfg.Address, def.Address))
	c.ClientID = cmp.Or(cfg.ClientID, def.ClientID)
	c.Retries = cfg.Retries
	c.RetryBackoff = cmp.Or(cfg.RetryBackoff, def.RetryBackoff)
	c.RequestTimeout = cmp.Or(cfg.RequestTimeout, def.RequestTimeout)
	c.MaxBlock = cmp.Or(cfg.MaxBlock, def.MaxBlock)
	c.DeliveryTimeout = cmp.Or(cfg.DeliveryTimeout, def.DeliveryTimeout)
	c.Linger = cmp.Or(cfg.Linger, def.Linger)
	if c.Idempotent && c.Version == "" {
		c.Version = sarama.V2_1_0_0.String()
	}
	return c, nil
}

// ToSaramaConfig converts the Config to a sarama.Config
func (c *Config) ToSaramaConfig() (*sarama.Config, error) {
	conf := sarama.NewConfig()

	if c.Version != "" {
		version, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, fmt.Errorf("error parsing Kafka version: %w", err)
		}
		conf.Version = version
	}

	// Configure SASL
	if c.SASL != nil && c.SASL.Enable {
		conf.Net.SASL.Enable = true
		conf.Net.SASL.User = c.SASL.Username
		conf.Net.SASL.Password = c.SASL.Password
		conf.Net.SASL.Handshake = true

		switch c.SASL.Algorithm {
		case "sha512":
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA512} }
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		case "sha256":
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA256} }
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "", "plain":
			conf.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		default:
			return nil, fmt.Errorf("invalid SASL algorithm: %s", c.SASL.Algorithm)
		}
	}

	// Configure TLS
	if c.TLS.Enable {
		tlsConfig, err := createTLSConfiguration(c.TLS)
		if err != nil {
			return nil, err
		}
		conf.Net.TLS.Enable = true
		conf.Net.TLS.Config = tlsConfig
	}

	conf.ClientID = c.ClientID

	// acks=all: a send succeeds only once every in-sync replica has the message
	conf.Producer.RequiredAcks = sarama.WaitForAll
	conf.Producer.Timeout = c.RequestTimeout
	conf.Producer.Retry.Max = c.Retries
	conf.Producer.Retry.Backoff = c.RetryBackoff
	conf.Producer.Return.Successes = true
	conf.Producer.Return.Errors = true
	conf.Producer.Partitioner = sarama.NewHashPartitioner
	conf.Producer.Flush.Frequency = c.Linger

	if c.Idempotent {
		conf.Producer.Idempotent = true
		conf.Net.MaxOpenRequests = 1
	}

	conf.Net.DialTimeout = c.RequestTimeout
	conf.Net.ReadTimeout = c.RequestTimeout
	conf.Net.WriteTimeout = c.RequestTimeout
	conf.Metadata.Timeout = c.MaxBlock

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sarama config: %w", err)
	}
	return conf, nil
}

func createTLSConfiguration(tlsCfg TLS) (*tls.Config, error) {
	t := &tls.Config{
		InsecureSkipVerify: tlsCfg.SkipVerify,
	}

	if tlsCfg.CAFile != "" {
		caCert, err := os.ReadFile(tlsCfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		caCertPool := x509.NewCertPool()
		caCertPool.AppendCertsFromPEM(caCert)
		t.RootCAs = caCertPool
	}

	if tlsCfg.CertFile != "" && tlsCfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsCfg.CertFile, tlsCfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		t.Certificates = []tls.Certificate{cert}
	}

	return t, nil
}

// GetBrokers returns the list of Kafka brokers
func (c *Config) GetBrokers() []string {
	return c.Brokers
}
