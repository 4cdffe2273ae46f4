package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Qdrant     QdrantConfig     `mapstructure:"qdrant"`
	Training   TrainingConfig   `mapstructure:"training"`
	Topics     TopicsConfig     `mapstructure:"topics"`
	Similarity SimilarityConfig `mapstructure:"similarity"`
	Labeling   LabelingConfig   `mapstructure:"labeling"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN builds the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
	}
	return d.Path
}

type StorageConfig struct {
	Type      string `mapstructure:"type"`
	LocalPath string `mapstructure:"local_path"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type QdrantConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	APIKey           string `mapstructure:"api_key"`
	UseTLS           bool   `mapstructure:"use_tls"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
}

// TrainingConfig holds defaults applied to model creation requests.
type TrainingConfig struct {
	Language         string  `mapstructure:"language"`
	UseLemmer        bool    `mapstructure:"use_lemmer"`
	MinDF            float64 `mapstructure:"min_df"`
	MaxDF            float64 `mapstructure:"max_df"`
	ChunkSize        int     `mapstructure:"chunk_size"`
	NumPasses        int     `mapstructure:"num_passes"`
	WaitingSeconds   int     `mapstructure:"waiting_seconds"`
	AssignTopics     bool    `mapstructure:"assign_topics"`
	MaxWordsPerTopic int     `mapstructure:"max_words_per_topic"`
	DataPath         string  `mapstructure:"data_path"`
	Processes        int     `mapstructure:"processes"`
}

type TopicsConfig struct {
	MinimumThreshold float64 `mapstructure:"minimum_threshold"`
}

type SimilarityConfig struct {
	Backend string `mapstructure:"backend"`
}

type LabelingConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Endpoint           string        `mapstructure:"endpoint"`
	MinWordProbability float64       `mapstructure:"min_word_probability"`
	MaxWords           int           `mapstructure:"max_words"`
	TopWords           int           `mapstructure:"top_words"`
	MaxLabels          int           `mapstructure:"max_labels"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets and deployment endpoints use conventional variable names.
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/topics.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./data/models")
	v.SetDefault("storage.bucket", "topic-models")

	v.SetDefault("qdrant.enabled", false)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection_prefix", "topics")

	v.SetDefault("training.language", "en")
	v.SetDefault("training.use_lemmer", true)
	v.SetDefault("training.min_df", 2)
	v.SetDefault("training.max_df", 0.8)
	v.SetDefault("training.chunk_size", 2000)
	v.SetDefault("training.num_passes", 2)
	v.SetDefault("training.waiting_seconds", 300)
	v.SetDefault("training.assign_topics", true)
	v.SetDefault("training.max_words_per_topic", 30)
	v.SetDefault("training.data_path", "./data/input")
	v.SetDefault("training.processes", 0)

	v.SetDefault("topics.minimum_threshold", 0.0)

	v.SetDefault("similarity.backend", "exact")

	v.SetDefault("labeling.enabled", false)
	v.SetDefault("labeling.endpoint", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("labeling.min_word_probability", 0.01)
	v.SetDefault("labeling.max_words", 6)
	v.SetDefault("labeling.top_words", 3)
	v.SetDefault("labeling.max_labels", 3)
	v.SetDefault("labeling.timeout", "10s")
}
