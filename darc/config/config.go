package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/indrora/darn/darn/format"
)

// Config holds the defaults darc applies when a flag is not given.
type Config struct {
	Compression   string `mapstructure:"compression"`
	Crypto        string `mapstructure:"crypto"`
	SequenceMarks bool   `mapstructure:"sequence_marks"`
	Hourshift     int    `mapstructure:"hourshift"`
	Comment       string `mapstructure:"comment"`
	// KeyFile holds a hex public key to seal archive keys for, or a private
	// key to open them with.
	KeyFile string `mapstructure:"key_file"`
}

// New returns a viper instance with darc's search paths, environment
// binding and defaults.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("darc-config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.darc")
	v.AddConfigPath("/etc/darc")

	v.SetDefault("compression", format.CompressionZstd.String())
	v.SetDefault("crypto", format.CryptoNone.String())
	v.SetDefault("sequence_marks", true)
	v.SetDefault("hourshift", 0)
	v.SetDefault("comment", "")
	v.SetDefault("key_file", "")

	v.SetEnvPrefix("DARC")
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if there is one, and decodes the result.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "error reading config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, ok := format.ParseCompression(c.Compression); !ok {
		return errors.Errorf("unknown compression %q", c.Compression)
	}
	if _, ok := format.ParseCrypto(c.Crypto); !ok {
		return errors.Errorf("unknown crypto %q", c.Crypto)
	}
	if c.Hourshift < 0 {
		return errors.Errorf("hourshift must not be negative, got %d", c.Hourshift)
	}
	return nil
}

func (c *Config) CompressionAlgo() format.CompressionAlgo {
	algo, _ := format.ParseCompression(c.Compression)
	return algo
}

func (c *Config) CryptoAlgo() format.CryptoAlgo {
	algo, _ := format.ParseCrypto(c.Crypto)
	return algo
}
