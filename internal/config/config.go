package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DifyBaseURL  string `env:"DIFY_BASE_URL,required"`
	DifyAPIKey   string `env:"DIFY_API_KEY,required"`
	DifyEndpoint string `env:"DIFY_ENDPOINT" envDefault:"/workflows/run"`

	// KeepaliveTimeout is the idle bound (seconds) before a heartbeat comment
	// goes downstream; ChunkTimeout bounds the wait for the next upstream chunk.
	KeepaliveTimeout int `env:"SSE_KEEPALIVE_TIMEOUT" envDefault:"30"`
	ChunkTimeout     int `env:"SSE_CHUNK_TIMEOUT" envDefault:"60"`

	// DatabaseURL enables the workflow run log when set.
	DatabaseURL      string `env:"DATABASE_URL"`
	NATSStoreDir     string `env:"NATS_STORE_DIR" envDefault:"/tmp/waza-nats"`
	WriterBufferSize int    `env:"WRITER_BUFFER_SIZE" envDefault:"10000"`
	WriterBatchSize  int    `env:"WRITER_BATCH_SIZE" envDefault:"100"`
	WriterFlushMs    int    `env:"WRITER_FLUSH_MS" envDefault:"100"`
}

func Load() (*Config, error) {
	// Optional .env for local development; a missing file is not an error.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
