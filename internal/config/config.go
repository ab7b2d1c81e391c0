package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envRegex = regexp.MustCompile(`\$\{([^:}]+)(?::([^}]*))?\}`)

type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Migration MigrationConfig `yaml:"migration" json:"migration"`
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	JWT       JWTConfig       `yaml:"jwt" json:"jwt"`
	Backup    BackupConfig    `yaml:"backup" json:"backup"`
	Bootstrap BootstrapConfig `yaml:"bootstrap" json:"bootstrap"`
	Log       LogConfig       `yaml:"log" json:"log"`
}

type ServerConfig struct {
	Port        int      `yaml:"port" json:"port"`
	Mode        string   `yaml:"mode" json:"mode"` // debug, release, test
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
}

// DatabaseConfig 数据库配置，driver 为 sqlite 时只使用 path
type DatabaseConfig struct {
	Driver          string `yaml:"driver" json:"driver"`
	Path            string `yaml:"path" json:"path"`
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	User            string `yaml:"user" json:"user"`
	Password        string `yaml:"password" json:"-"`
	Name            string `yaml:"name" json:"name"`
	SSLMode         string `yaml:"sslmode" json:"sslmode"`
	MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime"` // 秒
}

// DSN 返回 postgres 连接字符串
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" sslmode=" + c.SSLMode
}

// URL 返回 pg_dump 使用的连接 URL
func (c *DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password +
		"@" + c.Host + ":" + strconv.Itoa(c.Port) +
		"/" + c.Name + "?sslmode=" + c.SSLMode
}

type MigrationConfig struct {
	BackupDir       string `yaml:"backup_dir" json:"backup_dir"`
	RequireBackup   bool   `yaml:"require_backup" json:"require_backup"`
	VerifyChecksums bool   `yaml:"verify_checksums" json:"verify_checksums"`
	PgDumpPath      string `yaml:"pg_dump_path" json:"pg_dump_path"`
}

type RedisConfig struct {
	Enabled         bool     `yaml:"enabled" json:"enabled"`
	Addresses       []string `yaml:"addresses" json:"addresses"`
	Password        string   `yaml:"password" json:"-"`
	DB              int      `yaml:"db" json:"db"`
	PoolSize        int      `yaml:"pool_size" json:"pool_size"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`
}

type JWTConfig struct {
	Secret      string `yaml:"secret" json:"-"`
	ExpireHours int    `yaml:"expire_hours" json:"expire_hours"`
}

// BackupConfig 定时备份，schedule 为空时不启用
type BackupConfig struct {
	Schedule string `yaml:"schedule" json:"schedule"`
}

// BootstrapConfig 首次启动时创建的管理员，用户名为空时跳过
type BootstrapConfig struct {
	AdminUsername string `yaml:"admin_username" json:"admin_username"`
	AdminPassword string `yaml:"admin_password" json:"-"`
	AdminEmail    string `yaml:"admin_email" json:"admin_email"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json, console
}

// Load 加载配置，path 为空时只使用环境变量和默认值
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		// 展开环境变量: ${VAR:DEFAULT}
		expanded := ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Redis.Enabled && len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("redis.addresses is required when redis is enabled")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        GetEnvInt("HTTP_PORT", 3001),
			Mode:        GetEnv("GIN_MODE", "debug"),
			CORSOrigins: GetEnvSlice("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Driver:          GetEnv("DB_TYPE", "sqlite"),
			Path:            GetEnv("DB_PATH", "./data/syntagma.db"),
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnvInt("DB_PORT", 5432),
			User:            GetEnv("DB_USER", "syntagma"),
			Password:        GetEnv("DB_PASSWORD", ""),
			Name:            GetEnv("DB_NAME", "syntagma"),
			SSLMode:         GetEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    GetEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    GetEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: GetEnvInt("DB_CONN_MAX_LIFETIME", 3600),
		},
		Migration: MigrationConfig{
			BackupDir:       GetEnv("BACKUP_DIR", "./backups"),
			RequireBackup:   GetEnvBool("MIGRATION_REQUIRE_BACKUP", false),
			VerifyChecksums: GetEnvBool("MIGRATION_VERIFY_CHECKSUMS", true),
			PgDumpPath:      GetEnv("PG_DUMP_PATH", "pg_dump"),
		},
		Redis: RedisConfig{
			Enabled:         GetEnvBool("REDIS_ENABLED", false),
			Addresses:       GetEnvSlice("REDIS_ADDR", []string{"localhost:6379"}),
			Password:        GetEnv("REDIS_PASSWORD", ""),
			DB:              GetEnvInt("REDIS_DB", 0),
			PoolSize:        GetEnvInt("REDIS_POOL_SIZE", 10),
			CacheTTLSeconds: GetEnvInt("REDIS_CACHE_TTL", 300),
		},
		JWT: JWTConfig{
			Secret:      GetEnv("JWT_SECRET", ""),
			ExpireHours: GetEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Backup: BackupConfig{
			Schedule: GetEnv("BACKUP_SCHEDULE", ""),
		},
		Bootstrap: BootstrapConfig{
			AdminUsername: GetEnv("ADMIN_USERNAME", ""),
			AdminPassword: GetEnv("ADMIN_PASSWORD", ""),
			AdminEmail:    GetEnv("ADMIN_EMAIL", ""),
		},
		Log: LogConfig{
			Level:  GetEnv("LOG_LEVEL", "info"),
			Format: GetEnv("LOG_FORMAT", "json"),
		},
	}
}

// ExpandEnv 展开环境变量，支持 ${VAR:DEFAULT} 格式
func ExpandEnv(s string) string {
	return envRegex.ReplaceAllStringFunc(s, func(m string) string {
		matches := envRegex.FindStringSubmatch(m)
		if len(matches) < 2 {
			return m
		}
		if val, ok := os.LookupEnv(matches[1]); ok {
			return val
		}
		return matches[2]
	})
}

// GetEnv 获取环境变量，支持默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt 获取整数环境变量
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvBool 获取布尔环境变量
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvSlice 获取逗号分隔的字符串切片
func GetEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
