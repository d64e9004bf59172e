package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type ServerConfig struct {
	Port        string  `mapstructure:"port"`
	AdminRPS    float64 `mapstructure:"admin_rps"`
	AdminBurst  int     `mapstructure:"admin_burst"`
	MetricsPath string  `mapstructure:"metrics_path"`
}

type AuthConfig struct {
	AdminKey string `mapstructure:"admin_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ExchangeConfig struct {
	Name            string  `mapstructure:"name"` // bitfinex | paper
	BaseURL         string  `mapstructure:"base_url"`
	PublicURL       string  `mapstructure:"public_url"`
	WSURL           string  `mapstructure:"ws_url"`
	APIKey          string  `mapstructure:"api_key"`
	APISecret       string  `mapstructure:"api_secret"`
	TimeoutMs       int     `mapstructure:"timeout_ms"`
	MaxRetries      int     `mapstructure:"max_retries"`
	RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec"`
	Burst           int     `mapstructure:"burst"`
	TickerStream    bool    `mapstructure:"ticker_stream"`
	// Paper mode starting wallet
	PaperBalance float64 `mapstructure:"paper_balance"`
}

func (c ExchangeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type TradingConfig struct {
	Currency     string  `mapstructure:"currency"`       // e.g. USD
	MinOrderSize float64 `mapstructure:"min_order_size"` // 交易所最小挂单额
	MaxOrderSize float64 `mapstructure:"max_order_size"` // 单笔上限, 0 = 不限
	Period       int     `mapstructure:"period"`         // 放贷天数
}

type StrategyConfig struct {
	Name     string         `mapstructure:"name"`
	Ladder   LadderConfig   `mapstructure:"ladder"`
	Adaptive AdaptiveConfig `mapstructure:"adaptive"`
	Spread   SpreadConfig   `mapstructure:"spread"`
	Taker    TakerConfig    `mapstructure:"taker"`
}

type LadderConfig struct {
	Tranches      int     `mapstructure:"tranches"`
	BaseRate      float64 `mapstructure:"base_rate"` // 0 = use best bid
	RateIncrement float64 `mapstructure:"rate_increment"`
	MinRate       float64 `mapstructure:"min_rate"`
}

type AdaptiveConfig struct {
	LookbackHours        int     `mapstructure:"lookback_hours"`
	VolatilityMultiplier float64 `mapstructure:"volatility_multiplier"`
}

type SpreadConfig struct {
	Tranches  int     `mapstructure:"tranches"`
	FillRatio float64 `mapstructure:"fill_ratio"`
	MinSpread float64 `mapstructure:"min_spread"`
}

type TakerConfig struct {
	AmountRatio float64 `mapstructure:"amount_ratio"`
	Premium     float64 `mapstructure:"premium"`
}

type RiskConfig struct {
	MaxExposure        float64 `mapstructure:"max_exposure"`        // 0 = disabled
	MinReserve         float64 `mapstructure:"min_reserve"`         // 保留的闲置资金
	UtilizationCeiling float64 `mapstructure:"utilization_ceiling"` // 百分比, 0 = disabled
}

type SchedulerConfig struct {
	CycleInterval     time.Duration `mapstructure:"cycle_interval"`
	SettlementTime    string        `mapstructure:"settlement_time"` // HH:MM UTC
	SubmitConcurrency int           `mapstructure:"submit_concurrency"`
	SubmitTimeout     time.Duration `mapstructure:"submit_timeout"`
	GuardTTL          time.Duration `mapstructure:"guard_ttl"`
	RunOnStart        bool          `mapstructure:"run_on_start"`
}

// SettlementClock parses SettlementTime.
func (c SchedulerConfig) SettlementClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.SettlementTime)
	if err != nil {
		return 0, 0, fmt.Errorf("settlement_time %q: %w", c.SettlementTime, err)
	}
	return t.Hour(), t.Minute(), nil
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres | sqlite | memory
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type NotifyConfig struct {
	JournalDir string         `mapstructure:"journal_dir"`
	Webhook    WebhookConfig  `mapstructure:"webhook"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
	Discord    DiscordConfig  `mapstructure:"discord"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`
}

type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID string `mapstructure:"chat_id"`
}

type DiscordConfig struct {
	Token     string `mapstructure:"token"`
	ChannelID string `mapstructure:"channel_id"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Load reads config.yaml from the given directories (default "." and
// "./configs"), then environment variables such as POLYLEND_TRADING_CURRENCY.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./configs"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("polylend")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Trading.Currency = strings.ToUpper(cfg.Trading.Currency)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.admin_rps", 5.0)
	v.SetDefault("server.admin_burst", 10)
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("auth.admin_key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("exchange.name", "bitfinex")
	v.SetDefault("exchange.base_url", "https://api.bitfinex.com")
	v.SetDefault("exchange.public_url", "https://api-pub.bitfinex.com")
	v.SetDefault("exchange.ws_url", "wss://api-pub.bitfinex.com/ws/2")
	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.api_secret", "")
	v.SetDefault("exchange.timeout_ms", 10000)
	v.SetDefault("exchange.max_retries", 3)
	v.SetDefault("exchange.rate_limit_per_sec", 1.5)
	v.SetDefault("exchange.burst", 3)
	v.SetDefault("exchange.ticker_stream", true)
	v.SetDefault("exchange.paper_balance", 10000.0)

	v.SetDefault("trading.currency", "USD")
	v.SetDefault("trading.min_order_size", 150.0)
	v.SetDefault("trading.max_order_size", 10000.0)
	v.SetDefault("trading.period", 2)

	v.SetDefault("strategy.name", "laddering")
	v.SetDefault("strategy.ladder.tranches", 5)
	v.SetDefault("strategy.ladder.base_rate", 0.0)
	v.SetDefault("strategy.ladder.rate_increment", 0.0001)
	v.SetDefault("strategy.ladder.min_rate", 0.0)
	v.SetDefault("strategy.adaptive.lookback_hours", 24)
	v.SetDefault("strategy.adaptive.volatility_multiplier", 1.5)
	v.SetDefault("strategy.spread.tranches", 1)
	v.SetDefault("strategy.spread.fill_ratio", 0.5)
	v.SetDefault("strategy.spread.min_spread", 0.0001)
	v.SetDefault("strategy.taker.amount_ratio", 1.0)
	v.SetDefault("strategy.taker.premium", 0.0)

	v.SetDefault("risk.max_exposure", 0.0)
	v.SetDefault("risk.min_reserve", 0.0)
	v.SetDefault("risk.utilization_ceiling", 0.0)

	v.SetDefault("scheduler.cycle_interval", "30m")
	v.SetDefault("scheduler.settlement_time", "00:05")
	v.SetDefault("scheduler.submit_concurrency", 4)
	v.SetDefault("scheduler.submit_timeout", "15s")
	v.SetDefault("scheduler.guard_ttl", "10m")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "polylend.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "polylend")

	v.SetDefault("notify.journal_dir", "./logs")
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.telegram.token", "")
	v.SetDefault("notify.telegram.chat_id", "")
	v.SetDefault("notify.discord.token", "")
	v.SetDefault("notify.discord.channel_id", "")
	v.SetDefault("notify.nats.url", "")
	v.SetDefault("notify.nats.subject", "polylend.events")
	v.SetDefault("notify.kafka.brokers", []string{})
	v.SetDefault("notify.kafka.topic", "polylend-events")
}

var knownStrategies = map[string]bool{
	"laddering":          true,
	"adaptive_laddering": true,
	"spread_filler":      true,
	"market_taker":       true,
}

// Validate rejects configurations the engine must not start with.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Trading.Currency == "" {
		add("trading.currency is required")
	}
	if c.Trading.MinOrderSize <= 0 {
		add("trading.min_order_size must be positive")
	}
	if c.Trading.MaxOrderSize < 0 || (c.Trading.MaxOrderSize > 0 && c.Trading.MaxOrderSize < c.Trading.MinOrderSize) {
		add("trading.max_order_size must be 0 or >= min_order_size")
	}
	if c.Trading.Period < 2 || c.Trading.Period > 120 {
		add("trading.period must be between 2 and 120 days")
	}

	if !knownStrategies[c.Strategy.Name] {
		add("strategy.name %q is not a known strategy", c.Strategy.Name)
	}
	if c.Strategy.Ladder.Tranches <= 0 {
		add("strategy.ladder.tranches must be positive")
	}
	if c.Strategy.Ladder.BaseRate < 0 || c.Strategy.Ladder.RateIncrement < 0 || c.Strategy.Ladder.MinRate < 0 {
		add("strategy.ladder rates must not be negative")
	}
	if c.Strategy.Adaptive.LookbackHours <= 0 || c.Strategy.Adaptive.VolatilityMultiplier < 0 {
		add("strategy.adaptive parameters out of range")
	}
	if c.Strategy.Spread.Tranches <= 0 || c.Strategy.Spread.FillRatio < 0 || c.Strategy.Spread.FillRatio > 1 {
		add("strategy.spread.fill_ratio must be within [0,1] with positive tranches")
	}
	if c.Strategy.Taker.AmountRatio <= 0 || c.Strategy.Taker.AmountRatio > 1 || c.Strategy.Taker.Premium < 0 {
		add("strategy.taker.amount_ratio must be within (0,1] and premium >= 0")
	}

	if c.Risk.MaxExposure < 0 || c.Risk.MinReserve < 0 {
		add("risk limits must not be negative")
	}
	if c.Risk.UtilizationCeiling < 0 || c.Risk.UtilizationCeiling > 100 {
		add("risk.utilization_ceiling must be within [0,100]")
	}

	if c.Scheduler.CycleInterval < 10*time.Second {
		add("scheduler.cycle_interval must be at least 10s")
	}
	if _, _, err := c.Scheduler.SettlementClock(); err != nil {
		add("scheduler.settlement_time must be HH:MM")
	}
	if c.Scheduler.SubmitConcurrency <= 0 {
		add("scheduler.submit_concurrency must be positive")
	}
	if c.Scheduler.SubmitTimeout <= 0 {
		add("scheduler.submit_timeout must be positive")
	}

	switch c.Exchange.Name {
	case "paper":
	case "bitfinex":
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			add("exchange.api_key and exchange.api_secret are required for bitfinex")
		}
	default:
		add("exchange.name %q is not supported", c.Exchange.Name)
	}
	if c.Exchange.MaxRetries <= 0 {
		add("exchange.max_retries must be positive")
	}

	switch c.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		add("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.DSN == "" {
		add("database.dsn is required for %s", c.Database.Driver)
	}

	if len(problems) > 0 {
		return apperrors.Configuration("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
