// Package config loads the jdlib command configuration from a YAML file,
// JDLIB_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultFile is looked up in the working directory when no file is given.
const DefaultFile = "jdlib.yaml"

const (
	DefaultLandmarksModel = "shape_predictor_68_face_landmarks.dat"
	DefaultEmbeddingModel = "dlib_face_recognition_resnet_model_v1.dat"
)

type Config struct {
	Models   ModelsConfig   `mapstructure:"models"`
	Native   NativeConfig   `mapstructure:"native"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Match    MatchConfig    `mapstructure:"match"`
}

type ModelsConfig struct {
	Dir       string `mapstructure:"dir"`
	Landmarks string `mapstructure:"landmarks"`
	Embedding string `mapstructure:"embedding"`
}

// LandmarksPath returns the landmarks model path, relative names resolved
// against Dir.
func (m ModelsConfig) LandmarksPath() string {
	return m.resolve(m.Landmarks)
}

// EmbeddingPath returns the embedding model path, or "" when embeddings are
// disabled.
func (m ModelsConfig) EmbeddingPath() string {
	return m.resolve(m.Embedding)
}

func (m ModelsConfig) resolve(name string) string {
	if name == "" || m.Dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.Dir, name)
}

type NativeConfig struct {
	TempDir     string `mapstructure:"temp_dir"`
	LibraryPath string `mapstructure:"library_path"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

type ServerConfig struct {
	Addr          string        `mapstructure:"addr"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	QueueTimeout  time.Duration `mapstructure:"queue_timeout"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
	MaxPixels     int64         `mapstructure:"max_pixels"`
	MaxSize       uint          `mapstructure:"max_size"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

type MatchConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

// flagKeys maps configuration keys to the flags that override them.
var flagKeys = map[string]string{
	"models.dir":          "models",
	"models.landmarks":    "landmarks-model",
	"models.embedding":    "embedding-model",
	"native.temp_dir":     "temp-dir",
	"native.library_path": "library",
	"log.mode":            "log-mode",
	"server.addr":         "addr",
	"server.max_size":     "max-size",
	"redis.enabled":       "cache",
	"postgres.url":        "db",
	"match.threshold":     "threshold",
}

// Load reads the configuration. An empty path looks for DefaultFile in the
// working directory and tolerates its absence; an explicit path must exist.
// Flags that were set on the command line take precedence over the
// environment, which takes precedence over the file.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFile, filepath.Ext(DefaultFile)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("JDLIB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("models.dir", "models")
	v.SetDefault("models.landmarks", DefaultLandmarksModel)
	v.SetDefault("models.embedding", DefaultEmbeddingModel)

	v.SetDefault("native.temp_dir", "")
	v.SetDefault("native.library_path", "")

	v.SetDefault("log.mode", "debug")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_concurrent", 2)
	v.SetDefault("server.queue_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_size", 10*1024*1024)
	v.SetDefault("server.max_pixels", 40_000_000)
	v.SetDefault("server.max_size", 1200)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("postgres.url", "postgres://localhost:5432/jdlib")

	v.SetDefault("match.threshold", 0.6)
}
