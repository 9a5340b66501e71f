package services

import (
	"log/slog"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Mongo     MongoConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
	Agent     AgentConfig
	Google    GoogleConfig
	Weather   WeatherConfig
	Search    SearchConfig
	Personas  PersonasConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	URL          string
	Seed         bool
	LogLevel     string
	MaxIdleConns int
	MaxOpenConns int
}

type MongoConfig struct {
	URI      string
	Database string
}

type JWTConfig struct {
	Secret string
}

type WebSocketConfig struct {
	AllowedOrigins string
	// StreamDelayMS is the pause between pseudo-streamed characters.
	StreamDelayMS int
}

type AgentConfig struct {
	BaseURL   string
	APIKey    string
	TimeoutMS int
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	APIKey       string // Time Zone API + Custom Search
}

type WeatherConfig struct {
	APIKey string
}

type SearchConfig struct {
	EngineID string
}

type PersonasConfig struct {
	File string
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("websocket.allowed_origins", "")
	viper.SetDefault("websocket.stream_delay_ms", "20")
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.seed", "true")
	viper.SetDefault("database.log_level", "silent")
	viper.SetDefault("database.max_idle_conns", "10")
	viper.SetDefault("database.max_open_conns", "100")
	viper.SetDefault("mongo.uri", "")
	viper.SetDefault("mongo.database", "aria")
	viper.SetDefault("agent.base_url", "")
	viper.SetDefault("agent.api_key", "")
	viper.SetDefault("agent.timeout_ms", "30000")
	viper.SetDefault("google.client_id", "")
	viper.SetDefault("google.client_secret", "")
	viper.SetDefault("google.api_key", "")
	viper.SetDefault("weather.api_key", "")
	viper.SetDefault("search.engine_id", "")
	viper.SetDefault("personas.file", "config/personas.yaml")

	// Map environment variables to config keys
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("websocket.allowed_origins", "WEBSOCKET_ALLOWED_ORIGINS")
	viper.BindEnv("websocket.stream_delay_ms", "WEBSOCKET_STREAM_DELAY_MS")
	viper.BindEnv("jwt.secret", "JWT_SECRET")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.seed", "DATABASE_SEED")
	viper.BindEnv("database.log_level", "DATABASE_LOG_LEVEL")
	viper.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	viper.BindEnv("mongo.uri", "MONGO_URI")
	viper.BindEnv("mongo.database", "MONGO_DATABASE")
	viper.BindEnv("agent.base_url", "AGENT_BASE_URL")
	viper.BindEnv("agent.api_key", "AGENT_API_KEY")
	viper.BindEnv("agent.timeout_ms", "AGENT_TIMEOUT_MS")
	viper.BindEnv("google.client_id", "GOOGLE_CLIENT_ID")
	viper.BindEnv("google.client_secret", "GOOGLE_CLIENT_SECRET")
	viper.BindEnv("google.api_key", "GOOGLE_API_KEY")
	viper.BindEnv("weather.api_key", "OPENWEATHER_API_KEY")
	viper.BindEnv("search.engine_id", "SEARCH_ENGINE_ID")
	viper.BindEnv("personas.file", "PERSONAS_FILE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("Config file not found, using defaults and environment variables")
		} else {
			slog.Error("Error reading config file", "error", err)
		}
	}

	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
		},
		Database: DatabaseConfig{
			URL:          viper.GetString("database.url"),
			Seed:         viper.GetBool("database.seed"),
			LogLevel:     viper.GetString("database.log_level"),
			MaxIdleConns: viper.GetInt("database.max_idle_conns"),
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
		},
		Mongo: MongoConfig{
			URI:      viper.GetString("mongo.uri"),
			Database: viper.GetString("mongo.database"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: viper.GetString("websocket.allowed_origins"),
			StreamDelayMS:  viper.GetInt("websocket.stream_delay_ms"),
		},
		Agent: AgentConfig{
			BaseURL:   viper.GetString("agent.base_url"),
			APIKey:    viper.GetString("agent.api_key"),
			TimeoutMS: viper.GetInt("agent.timeout_ms"),
		},
		Google: GoogleConfig{
			ClientID:     viper.GetString("google.client_id"),
			ClientSecret: viper.GetString("google.client_secret"),
			APIKey:       viper.GetString("google.api_key"),
		},
		Weather: WeatherConfig{
			APIKey: viper.GetString("weather.api_key"),
		},
		Search: SearchConfig{
			EngineID: viper.GetString("search.engine_id"),
		},
		Personas: PersonasConfig{
			File: viper.GetString("personas.file"),
		},
	}
}
