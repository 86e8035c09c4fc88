package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Data      DataConfig      `mapstructure:"data"`
	Redis     RedisConfig     `mapstructure:"redis"`
	DB        DBConfig        `mapstructure:"db"`
	Server    ServerConfig    `mapstructure:"server"`
}

type LoggerConfig struct {
	Env   string `mapstructure:"env"`
	Level string `mapstructure:"level"`
}

// ProviderConfig holds the credentials and endpoint of one model provider.
type ProviderConfig struct {
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

type ProvidersConfig struct {
	OpenAI    ProviderConfig `mapstructure:"openai"`
	DeepSeek  ProviderConfig `mapstructure:"deepseek"`
	Qwen      ProviderConfig `mapstructure:"qwen"`
	Google    ProviderConfig `mapstructure:"google"`
	Anthropic ProviderConfig `mapstructure:"anthropic"`
	Ollama    ProviderConfig `mapstructure:"ollama"`
}

type GatewayConfig struct {
	MaxAttempts        int           `mapstructure:"max_attempts"`
	InitialBackoff     time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff         time.Duration `mapstructure:"max_backoff"`
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
	MaxInFlight        int           `mapstructure:"max_in_flight"`
	DefaultTemperature float64       `mapstructure:"default_temperature"`
	MaxTokens          int           `mapstructure:"max_tokens"`
}

type SeedFilterConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	MinScore int  `mapstructure:"min_score"`
	MaxScore int  `mapstructure:"max_score"`
}

type PipelineConfig struct {
	GeneratorModels          []string         `mapstructure:"generator_models"`
	FilterModels             []string         `mapstructure:"filter_models"`
	JudgeModel               string           `mapstructure:"judge_model"`
	TestModels               []string         `mapstructure:"test_models"`
	RunsPerModel             int              `mapstructure:"runs_per_model"`
	QualifiedScoreMin        int              `mapstructure:"qualified_score_min"`
	QualifiedScoreMax        int              `mapstructure:"qualified_score_max"`
	SamplesPerGeneratorModel int              `mapstructure:"samples_per_generator_model"`
	ContinueOnGeneratorError bool             `mapstructure:"continue_on_generator_error"`
	FilterIncludeOriginal    bool             `mapstructure:"filter_include_original"`
	SeedFilter               SeedFilterConfig `mapstructure:"seed_filter"`
	OptionsPerQuestion       int              `mapstructure:"options_per_question"`
	RequiredCorrect          int              `mapstructure:"required_correct"`
	AnswerMode               string           `mapstructure:"answer_mode"`
	RandomSeed               int64            `mapstructure:"random_seed"`
	Timeout                  time.Duration    `mapstructure:"timeout"`
}

type DataConfig struct {
	Dir              string `mapstructure:"dir"`
	SeedFile         string `mapstructure:"seed_file"`
	FilteredSeedFile string `mapstructure:"filtered_seed_file"`
	GeneratedFile    string `mapstructure:"generated_file"`
	DeduplicatedFile string `mapstructure:"deduplicated_file"`
	QualifiedFile    string `mapstructure:"qualified_file"`
	QuestionsFile    string `mapstructure:"questions_file"`
	EvaluationFile   string `mapstructure:"evaluation_file"`
}

type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	ScoreTTL time.Duration `mapstructure:"score_ttl"`
	RunTTL   time.Duration `mapstructure:"run_ttl"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.env", "development")
	v.SetDefault("logger.level", "info")

	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.deepseek.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("providers.qwen.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("providers.google.base_url", "https://generativelanguage.googleapis.com/v1beta/openai")
	v.SetDefault("providers.anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("providers.ollama.base_url", "http://localhost:11434")
	for _, p := range []string{"openai", "deepseek", "qwen", "google", "anthropic", "ollama"} {
		v.SetDefault("providers."+p+".api_key", "")
		v.SetDefault("providers."+p+".requests_per_minute", 0)
	}

	v.SetDefault("gateway.max_attempts", 6)
	v.SetDefault("gateway.initial_backoff", time.Second)
	v.SetDefault("gateway.max_backoff", 60*time.Second)
	v.SetDefault("gateway.call_timeout", 5*time.Minute)
	v.SetDefault("gateway.max_in_flight", 32)
	v.SetDefault("gateway.default_temperature", 0.5)
	v.SetDefault("gateway.max_tokens", 4096)

	v.SetDefault("pipeline.generator_models", []string{"deepseek-v3", "gpt-4.1", "gemini-2.5-flash"})
	v.SetDefault("pipeline.filter_models", []string{"o4-mini", "deepseek-r1", "gemini-2.5-pro"})
	v.SetDefault("pipeline.judge_model", "gpt-4.1-mini")
	v.SetDefault("pipeline.test_models", []string{})
	v.SetDefault("pipeline.runs_per_model", 3)
	v.SetDefault("pipeline.qualified_score_min", 4)
	v.SetDefault("pipeline.qualified_score_max", 7)
	v.SetDefault("pipeline.samples_per_generator_model", 2)
	v.SetDefault("pipeline.continue_on_generator_error", false)
	v.SetDefault("pipeline.filter_include_original", true)
	v.SetDefault("pipeline.seed_filter.enabled", false)
	v.SetDefault("pipeline.seed_filter.min_score", 1)
	v.SetDefault("pipeline.seed_filter.max_score", 9)
	v.SetDefault("pipeline.options_per_question", 6)
	v.SetDefault("pipeline.required_correct", 1)
	v.SetDefault("pipeline.answer_mode", "fixed")
	v.SetDefault("pipeline.random_seed", 0)
	v.SetDefault("pipeline.timeout", time.Duration(0))

	v.SetDefault("data.dir", "data")
	v.SetDefault("data.seed_file", "seed_questions.json")
	v.SetDefault("data.filtered_seed_file", "seed_questions_filtered.json")
	v.SetDefault("data.generated_file", "generated_data.json")
	v.SetDefault("data.deduplicated_file", "deduplicated_data.json")
	v.SetDefault("data.qualified_file", "qualified_data.json")
	v.SetDefault("data.questions_file", "questions.json")
	v.SetDefault("data.evaluation_file", "evaluation_report.json")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.score_ttl", 7*24*time.Hour)
	v.SetDefault("redis.run_ttl", time.Hour)

	v.SetDefault("db.host", "")
	v.SetDefault("db.port", 1521)
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "")

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 20*time.Second)
	v.SetDefault("server.write_timeout", 20*time.Second)
}

// LoadConfig reads config.yaml from path (or the default search paths when
// path is empty) and applies environment overrides. A missing config file is
// not an error: defaults and env vars are enough to run.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if os.Getenv("ENV") == "test" {
			v.AddConfigPath("../../config")
			v.AddConfigPath("../../")
		} else {
			v.AddConfigPath(".")
			v.AddConfigPath("./config")
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if configFile := v.ConfigFileUsed(); configFile != "" {
		absPath, _ := filepath.Abs(configFile)
		fmt.Printf("Using config file: %s\n", absPath)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Provider keys are conventionally exported under their vendor names.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Providers.OpenAI.APIKey = key
	}
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
		cfg.Providers.DeepSeek.APIKey = key
	}
	if key := os.Getenv("QWEN_API_KEY"); key != "" {
		cfg.Providers.Qwen.APIKey = key
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		cfg.Providers.Google.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.Providers.Anthropic.APIKey = key
	}
	if redisAddress := os.Getenv("REDIS_ADDRESS"); redisAddress != "" {
		cfg.Redis.Address = redisAddress
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the pipeline parameters that would otherwise only fail
// halfway through a run.
func (c *Config) Validate() error {
	p := c.Pipeline
	if len(p.GeneratorModels) == 0 {
		return fmt.Errorf("invalid config: pipeline.generator_models is empty")
	}
	if len(p.FilterModels) == 0 {
		return fmt.Errorf("invalid config: pipeline.filter_models is empty")
	}
	if p.JudgeModel == "" {
		return fmt.Errorf("invalid config: pipeline.judge_model is empty")
	}
	if p.RunsPerModel < 1 {
		return fmt.Errorf("invalid config: pipeline.runs_per_model must be >= 1, got %d", p.RunsPerModel)
	}
	if p.QualifiedScoreMin > p.QualifiedScoreMax {
		return fmt.Errorf("invalid config: qualified score band [%d,%d] is inverted", p.QualifiedScoreMin, p.QualifiedScoreMax)
	}
	if p.SeedFilter.Enabled && p.SeedFilter.MinScore > p.SeedFilter.MaxScore {
		return fmt.Errorf("invalid config: seed filter band [%d,%d] is inverted", p.SeedFilter.MinScore, p.SeedFilter.MaxScore)
	}
	if p.SamplesPerGeneratorModel < 1 {
		return fmt.Errorf("invalid config: pipeline.samples_per_generator_model must be >= 1")
	}
	if p.OptionsPerQuestion < 2 {
		return fmt.Errorf("invalid config: pipeline.options_per_question must be >= 2, got %d", p.OptionsPerQuestion)
	}
	if p.AnswerMode != "fixed" && p.AnswerMode != "randomized" {
		return fmt.Errorf("invalid config: pipeline.answer_mode must be fixed or randomized, got %q", p.AnswerMode)
	}
	if p.AnswerMode == "fixed" && (p.RequiredCorrect < 1 || p.RequiredCorrect > p.OptionsPerQuestion) {
		return fmt.Errorf("invalid config: pipeline.required_correct must be in [1,%d], got %d", p.OptionsPerQuestion, p.RequiredCorrect)
	}
	if c.Gateway.MaxAttempts < 1 {
		return fmt.Errorf("invalid config: gateway.max_attempts must be >= 1")
	}
	return nil
}

// MaxJudgmentScore is the upper end of an aggregate filter score.
func (c *Config) MaxJudgmentScore() int {
	return len(c.Pipeline.FilterModels) * c.Pipeline.RunsPerModel
}

// DataPath resolves a data file name against the data directory.
func (c *Config) DataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Data.Dir, name)
}

// GetDSN builds the go-ora connection string. Empty when no DB host is set.
func (c *Config) GetDSN() string {
	if c.DB.Host == "" {
		return ""
	}
	return fmt.Sprintf("oracle://%s:%s@%s:%d/%s",
		c.DB.User,
		c.DB.Password,
		c.DB.Host,
		c.DB.Port,
		c.DB.DBName,
	)
}
