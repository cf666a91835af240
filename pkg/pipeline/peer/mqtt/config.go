package mqtt

import (
	"cmp"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"github.com/mitchellh/mapstructure"
)

// TLSOptions holds TLS configuration. PEM values may be given inline or as files.
type TLSOptions struct {
	InsecureSkipVerify bool   `mapstructure:"insecureSkipVerify"`
	ServerName         string `mapstructure:"serverName"`
	CAFile             string `mapstructure:"caFile"`
	CertFile           string `mapstructure:"certFile"`
	KeyFile            string `mapstructure:"keyFile"`
	CACert             string `mapstructure:"caCert"`
	ClientCert         string `mapstructure:"clientCert"`
	ClientKey          string `mapstructure:"clientKey"`
}

// Config represents MQTT configuration, decoded from peer.Config.Options.
type Config struct {
	Servers     []string    `mapstructure:"-"`
	ClientID    string      `mapstructure:"-"`
	TopicPrefix string      `mapstructure:"topicPrefix"`
	QoS         byte        `mapstructure:"qos"`
	Username    string      `mapstructure:"username"`
	Password    string      `mapstructure:"password"`
	Pending     int         `mapstructure:"pending"`
	TLS         *TLSOptions `mapstructure:"tls"`

	Retries         int           `mapstructure:"-"`
	RetryBackoff    time.Duration `mapstructure:"-"`
	RequestTimeout  time.Duration `mapstructure:"-"`
	MaxBlock        time.Duration `mapstructure:"-"`
	DeliveryTimeout time.Duration `mapstructure:"-"`
}

// NewConfig derives the MQTT configuration from the generic publisher config.
func NewConfig(cfg peer.Config) (*Config, error) {
	def := peer.DefaultConfig()

	c := &Config{QoS: 1}
	if err := mapstructure.Decode(cfg.Options, c); err != nil {
		return nil, fmt.Errorf("decode mqtt options: %w", err)
	}
	if c.QoS > 2 {
		return nil, fmt.Errorf("invalid mqtt qos %d", c.QoS)
	}

	_, hosts := peer.SplitAddress(cfg.Address)
	for _, h := range hosts {
		c.Servers = append(c.Servers, "tcp://"+h)
	}
	if len(c.Servers) == 0 {
		c.Servers = []string{"tcp://127.0.0.1:1883"}
	}
	c.ClientID = cmp.Or(cfg.ClientID, def.ClientID)
	c.TopicPrefix = strings.Trim(cmp.Or(c.TopicPrefix, "retail"), "/")
	c.Pending = cmp.Or(c.Pending, 256)
	c.Retries = cfg.Retries
	c.RetryBackoff = cmp.Or(cfg.RetryBackoff, def.RetryBackoff)
	c.RequestTimeout = cmp.Or(cfg.RequestTimeout, def.RequestTimeout)
	c.MaxBlock = cmp.Or(cfg.MaxBlock, def.MaxBlock)
	c.DeliveryTimeout = cmp.Or(cfg.DeliveryTimeout, def.DeliveryTimeout)
	return c, nil
}

var topicEscaper = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// Topic returns the MQTT topic for a bus topic and key. Wildcard and level
// separators in the key are replaced so a key is always one topic level.
func (c *Config) Topic(topic, key string) string {
	if key == "" {
		return c.TopicPrefix + "/" + topic
	}
	return c.TopicPrefix + "/" + topic + "/" + topicEscaper.Replace(key)
}

func (c *Config) clientOptions() (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions()
	for _, server := range c.Servers {
		opts.AddBroker(server)
	}
	opts.SetClientID(c.ClientID)
	if c.Username != "" {
		opts.SetUsername(c.Username)
	}
	if c.Password != "" {
		opts.SetPassword(c.Password)
	}
	if c.TLS != nil {
		tlsConfig, err := createTLSConfig(c.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetConnectTimeout(c.RequestTimeout)
	opts.SetWriteTimeout(c.RequestTimeout)
	opts.SetOrderMatters(true)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(false)
	opts.SetMaxResumePubInFlight(c.Pending)
	return opts, nil
}

func createTLSConfig(tlsOpts *TLSOptions) (*tls.Config, error) {
	config := &tls.Config{
		InsecureSkipVerify: tlsOpts.InsecureSkipVerify,
		ServerName:         tlsOpts.ServerName,
	}

	if tlsOpts.CAFile != "" || tlsOpts.CACert != "" {
		caCert := []byte(tlsOpts.CACert)
		if tlsOpts.CAFile != "" {
			var err error
			if caCert, err = os.ReadFile(tlsOpts.CAFile); err != nil {
				return nil, fmt.Errorf("failed to read CA file: %w", err)
			}
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = pool
	}

	var (
		cert tls.Certificate
		err  error
	)
	switch {
	case tlsOpts.CertFile != "" && tlsOpts.KeyFile != "":
		cert, err = tls.LoadX509KeyPair(tlsOpts.CertFile, tlsOpts.KeyFile)
	case tlsOpts.ClientCert != "" && tlsOpts.ClientKey != "":
		cert, err = tls.X509KeyPair([]byte(tlsOpts.ClientCert), []byte(tlsOpts.ClientKey))
	default:
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}
	config.Certificates = []tls.Certificate{cert}
	return config, nil
}
