// Package config defines the YAML configuration surface for the producer
// pipeline: the stream-service session fields, rate and batch budgets, and
// the logger's configuration, following the same Config/Default/
// UnmarshalYAML shape the rate limiter config used.
package config

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	yaml "gopkg.in/yaml.v3"

	"github.com/usedatabrew/kinesis-producer/internal/log"
)

// BatchConfig configures either the outer batcher (C8) or the inner
// aggregator (C7); both share the same shape.
type BatchConfig struct {
	MaxRecords int           `yaml:"max_records"`
	MaxBytes   int           `yaml:"max_bytes"`
	MaxWait    time.Duration `yaml:"max_wait"`
}

// Config is the top-level configuration for the producer pipeline.
type Config struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Local    bool   `yaml:"local"`

	StreamName string `yaml:"stream_name"`

	RPSPerShard uint64 `yaml:"rps_per_shard"`
	BPSPerShard uint64 `yaml:"bps_per_shard"`

	Batch     BatchConfig `yaml:"batch"`
	Aggregate BatchConfig `yaml:"aggregate"`

	RetryBackoff time.Duration `yaml:"retry_backoff"`
	RPCTimeout   time.Duration `yaml:"rpc_timeout"`
	MaxInFlight  int           `yaml:"max_in_flight"`

	LogLevel string `yaml:"log_level"`
}

// Default returns a Config populated with the same budgets the pipeline
// builder itself defaults to.
func Default() Config {
	return Config{
		Region:      "us-east-1",
		RPSPerShard: 1000,
		BPSPerShard: 1_000_000,
		Batch: BatchConfig{
			MaxRecords: 500,
			MaxBytes:   5_000_000,
			MaxWait:    100 * time.Millisecond,
		},
		Aggregate: BatchConfig{
			MaxRecords: 4_294_967_295,
			MaxBytes:   1_000_000,
			MaxWait:    100 * time.Millisecond,
		},
		RetryBackoff: time.Second,
		RPCTimeout:   30 * time.Second,
		MaxInFlight:  10,
		LogLevel:     "INFO",
	}
}

// UnmarshalYAML decodes conf on top of Default, so a partial document still
// gets sane values for every field it omits.
func (conf *Config) UnmarshalYAML(value *yaml.Node) error {
	type confAlias Config
	aliased := confAlias(Default())

	if err := value.Decode(&aliased); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	*conf = Config(aliased)
	return nil
}

// LoggerConfig adapts Config's LogLevel field into the shape log.New expects.
func (conf Config) LoggerConfig() log.Config {
	return log.Config{LogLevel: conf.LogLevel}
}

// GetSession builds an AWS session for the stream-service client from the
// session fields of Config: region, endpoint override, and local (dummy
// credentials against a local endpoint such as kinesis-local).
func GetSession(conf Config) (*session.Session, error) {
	awsConf := aws.NewConfig().WithRegion(conf.Region)

	if conf.Endpoint != "" {
		awsConf = awsConf.WithEndpoint(conf.Endpoint)
	}

	if conf.Local {
		awsConf = awsConf.WithCredentials(credentials.NewStaticCredentials("xxxxx", "xxxxx", "xxxxx"))
	}

	sess, err := session.NewSession(awsConf)
	if err != nil {
		return nil, fmt.Errorf("config: building aws session: %w", err)
	}
	return sess, nil
}
