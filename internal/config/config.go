package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// BreakerConfig 会话熔断配置
type BreakerConfig struct {
	Enable    bool          `mapstructure:"enable"`
	Threshold int           `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// ProxyConfig RTU over TCP 监听配置
type ProxyConfig struct {
	Bind           string        `mapstructure:"bind"`
	Port           int           `mapstructure:"port"`
	MaxConnections int           `mapstructure:"maxConnections"`
	AcceptRate     int           `mapstructure:"acceptRate"`
	AcceptBurst    int           `mapstructure:"acceptBurst"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	ReadBufferSize int           `mapstructure:"readBufferSize"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
}

// Addr 监听地址 host:port
func (c ProxyConfig) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// LoggerConfig Solarman 数据采集器连接配置
type LoggerConfig struct {
	Address          string        `mapstructure:"address"`
	Port             int           `mapstructure:"port"`
	Serial           uint32        `mapstructure:"serial"`
	AutoReconnect    bool          `mapstructure:"autoReconnect"`
	SocketTimeoutSec int           `mapstructure:"socketTimeoutSec"`
	ConnectTimeout   time.Duration `mapstructure:"connectTimeout"`
	AnswerKeepalive  bool          `mapstructure:"answerKeepalive"`
	StrictCRC        bool          `mapstructure:"strictCRC"`
	MaxFrameLen      int           `mapstructure:"maxFrameLen"`
}

// Addr logger 地址；address 已带端口时原样返回
func (c LoggerConfig) Addr() string {
	if _, _, err := net.SplitHostPort(c.Address); err == nil {
		return c.Address
	}
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// SocketTimeout 单次交换等待响应的超时
func (c LoggerConfig) SocketTimeout() time.Duration {
	return time.Duration(c.SocketTimeoutSec) * time.Second
}

// SerialConfig 本地串口前端配置
type SerialConfig struct {
	Enable   bool          `mapstructure:"enable"`
	Port     string        `mapstructure:"port"`
	BaudRate int           `mapstructure:"baudRate"`
	DataBits int           `mapstructure:"dataBits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stopBits"`
	Silence  time.Duration `mapstructure:"silence"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Enable       bool          `mapstructure:"enable"`
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// RedisConfig Redis 状态发布配置
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	KeyPrefix    string        `mapstructure:"keyPrefix"`
	StatusTTL    time.Duration `mapstructure:"statusTTL"`
}

// Config 顶层配置结构
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	Serial  SerialConfig  `mapstructure:"serial"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// FlagKeys 命令行 flag 名到配置键的映射
var FlagKeys = map[string]string{
	"bind":           "proxy.bind",
	"port":           "proxy.port",
	"logger":         "logger.address",
	"logger-port":    "logger.port",
	"serial":         "logger.serial",
	"auto-reconnect": "logger.autoReconnect",
	"timeout":        "logger.socketTimeoutSec",
	"log-level":      "logging.level",
}

// Load 从 YAML/TOML/JSON 文件、环境变量与命令行 flag 加载配置。
// 若 path 为空，则尝试从环境变量 SOLARMAN_CONFIG 读取；否则回退到 configs/example.yaml。
// flags 可为 nil；仅绑定 FlagKeys 中出现且已定义的 flag。
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 环境变量覆盖：前缀 SOLARMAN_，并将点号替换为下划线
	v.SetEnvPrefix("SOLARMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	// 默认值
	setDefaults(v)

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// 允许缺少配置文件，依赖默认值、环境变量与 flag
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate 校验必填项与取值范围
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Logger.Address) == "" {
		errs = append(errs, errors.New("logger.address is required"))
	}
	if c.Logger.Serial == 0 {
		errs = append(errs, errors.New("logger.serial is required"))
	}
	if c.Proxy.Port <= 0 || c.Proxy.Port > 65535 {
		errs = append(errs, fmt.Errorf("proxy.port out of range: %d", c.Proxy.Port))
	}
	if c.Logger.Port <= 0 || c.Logger.Port > 65535 {
		errs = append(errs, fmt.Errorf("logger.port out of range: %d", c.Logger.Port))
	}
	if c.Logger.SocketTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("logger.socketTimeoutSec must be positive: %d", c.Logger.SocketTimeoutSec))
	}
	if c.Logger.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("logger.connectTimeout must be positive: %s", c.Logger.ConnectTimeout))
	}
	if c.Serial.Enable && c.Serial.Port == "" {
		errs = append(errs, errors.New("serial.port is required when serial.enable is set"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "solarman-proxy")
	v.SetDefault("app.env", "dev")

	v.SetDefault("proxy.bind", "0.0.0.0")
	v.SetDefault("proxy.port", 1502)
	v.SetDefault("proxy.maxConnections", 64)
	v.SetDefault("proxy.acceptRate", 50)
	v.SetDefault("proxy.acceptBurst", 100)
	v.SetDefault("proxy.idleTimeout", "0s")
	v.SetDefault("proxy.readBufferSize", 1024)
	v.SetDefault("proxy.breaker.enable", true)
	v.SetDefault("proxy.breaker.threshold", 5)
	v.SetDefault("proxy.breaker.cooldown", "10s")

	v.SetDefault("logger.address", "")
	v.SetDefault("logger.port", 8899)
	v.SetDefault("logger.serial", 0)
	v.SetDefault("logger.autoReconnect", true)
	v.SetDefault("logger.socketTimeoutSec", 10)
	v.SetDefault("logger.connectTimeout", "5s")
	v.SetDefault("logger.answerKeepalive", true)
	v.SetDefault("logger.strictCRC", false)
	v.SetDefault("logger.maxFrameLen", 1024)

	v.SetDefault("serial.enable", false)
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baudRate", 9600)
	v.SetDefault("serial.dataBits", 8)
	v.SetDefault("serial.parity", "none")
	v.SetDefault("serial.stopBits", 1)
	v.SetDefault("serial.silence", "50ms")

	v.SetDefault("http.enable", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 4)
	v.SetDefault("redis.minIdleConns", 1)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")
	v.SetDefault("redis.keyPrefix", "solarman:")
	v.SetDefault("redis.statusTTL", "2m")
}
