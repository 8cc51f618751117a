package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Trading struct {
	Symbols []string
	// TickInterval is the decision-loop cadence.
	TickInterval time.Duration
	// Horizon is the signal lookahead in minutes.
	Horizon int
	// Threshold is the volatility level above which a trade triggers.
	Threshold float64
	// DryRun selects the inert executor: decisions are logged, nothing is
	// sent to the custody network.
	DryRun bool
	// Grace bounds how long shutdown waits for in-flight fan-outs.
	Grace time.Duration
}

type Custody struct {
	// Mode is "devnet" (in-process quorum) or "remote".
	Mode    string
	BaseURL string
	Timeout time.Duration
	// DevnetNodes sizes the in-process quorum (N = 3t+1).
	DevnetNodes int
}

type Signal struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Exchange struct {
	BaseURL string
	Timeout time.Duration
}

type Service struct {
	APIAddr string
	DBPath  string
	LogFile string
}

type Config struct {
	Service  Service
	Trading  Trading
	Custody  Custody
	Signal   Signal
	Exchange Exchange
}

func Default() Config {
	return Config{
		Service: Service{
			APIAddr: ":4002",
			DBPath:  "data/users.db",
			LogFile: "data/keeper.log",
		},
		Trading: Trading{
			Symbols:      []string{"ETH"},
			TickInterval: time.Minute,
			Horizon:      60,
			Threshold:    0.008260869599999996,
			DryRun:       true,
			Grace:        10 * time.Second,
		},
		Custody: Custody{
			Mode:        "devnet",
			BaseURL:     "",
			Timeout:     30 * time.Second,
			DevnetNodes: 4,
		},
		Signal: Signal{
			BaseURL: "https://api.xtreamly.io",
			Timeout: 10 * time.Second,
		},
		Exchange: Exchange{
			BaseURL: "https://api.hyperliquid-testnet.xyz",
			Timeout: 15 * time.Second,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := Default()

	cfg.Service.APIAddr = getEnvString("API_ADDR", cfg.Service.APIAddr)
	cfg.Service.DBPath = getEnvString("DB_PATH", cfg.Service.DBPath)
	cfg.Service.LogFile = getEnvString("LOG_FILE", cfg.Service.LogFile)

	if v := os.Getenv("TRADE_SYMBOLS"); v != "" {
		cfg.Trading.Symbols = splitSymbols(v)
	}
	cfg.Trading.TickInterval = getEnvDuration("TICK_INTERVAL", cfg.Trading.TickInterval)
	cfg.Trading.Horizon = getEnvInt("SIGNAL_HORIZON", cfg.Trading.Horizon)
	cfg.Trading.Threshold = getEnvFloat("VOLATILITY_THRESHOLD", cfg.Trading.Threshold)
	cfg.Trading.DryRun = getEnvBool("DRY_RUN", cfg.Trading.DryRun)
	cfg.Trading.Grace = getEnvDuration("SHUTDOWN_GRACE", cfg.Trading.Grace)

	cfg.Custody.Mode = getEnvString("CUSTODY_MODE", cfg.Custody.Mode)
	cfg.Custody.BaseURL = getEnvString("CUSTODY_URL", cfg.Custody.BaseURL)
	cfg.Custody.Timeout = getEnvDuration("CUSTODY_TIMEOUT", cfg.Custody.Timeout)
	cfg.Custody.DevnetNodes = getEnvInt("CUSTODY_DEVNET_NODES", cfg.Custody.DevnetNodes)

	cfg.Signal.BaseURL = getEnvString("SIGNAL_URL", cfg.Signal.BaseURL)
	cfg.Signal.APIKey = getEnvString("SIGNAL_API_KEY", cfg.Signal.APIKey)
	cfg.Signal.Timeout = getEnvDuration("SIGNAL_TIMEOUT", cfg.Signal.Timeout)

	cfg.Exchange.BaseURL = getEnvString("EXCHANGE_URL", cfg.Exchange.BaseURL)
	cfg.Exchange.Timeout = getEnvDuration("EXCHANGE_TIMEOUT", cfg.Exchange.Timeout)

	return cfg
}

func splitSymbols(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
