package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LibraryDir             string        `json:"library_dir"`              // 监听/索引的曲谱目录
	OutputDir              string        `json:"output_dir"`               // 渲染与导出目录
	DataDir                string        `json:"data_dir"`                 // SQLite数据库文件存放目录
	DBFileName             string        `json:"db_file_name"`             // SQLite数据库文件名
	DBPath                 string        `json:"-"`                        // 完整的数据库文件路径
	Abcm2psPath            string        `json:"abcm2ps_path"`             // SVG 渲染工具
	Abc2midiPath           string        `json:"abc2midi_path"`            // MIDI 生成工具
	FallbackCharset        string        `json:"fallback_charset"`         // 非 UTF-8 文件的回退编码
	StripComments          bool          `json:"strip_comments"`           // 拆分前删除注释行
	ConvertTitles          bool          `json:"convert_titles"`           // 曲名繁转简
	StabilityCheckInterval time.Duration `json:"stability_check_interval"` // 每次检查的间隔
	StabilityQuietDuration time.Duration `json:"stability_quiet_duration"` // 文件在多长时间内没有变化才算稳定
	StabilityMaxWait       time.Duration `json:"stability_max_wait"`       // 最长等待文件稳定的时间
	ToolTimeout            time.Duration `json:"tool_timeout"`             // 单首曲子外部工具超时
}

const (
	libraryDir = "/app/tunes"
	outputDir  = "/app/output"
	dataDir    = "/app/data"

	dbFileName      = "tunebook.db"
	abcm2ps         = "abcm2ps"
	abc2midi        = "abc2midi"
	fallbackCharset = "latin1"

	// 文件稳定性检查相关参数
	stabilityCheckInterval = 2 * time.Second
	stabilityQuietDuration = 5 * time.Second
	stabilityMaxWait       = 10 * time.Minute

	toolTimeout = 30 * time.Second
)

// LoadConfig 从环境变量或默认值加载配置
func LoadConfig() (*Config, error) {
	// 尝试加载 .env 文件
	_ = godotenv.Load()

	cfg := &Config{
		LibraryDir:             getenvOrDefault("LIBRARY_DIR", libraryDir),
		OutputDir:              getenvOrDefault("OUTPUT_DIR", outputDir),
		DataDir:                getenvOrDefault("DATA_DIR", dataDir),
		DBFileName:             getenvOrDefault("DB_FILE_NAME", dbFileName),
		Abcm2psPath:            getenvOrDefault("ABCM2PS_PATH", abcm2ps),
		Abc2midiPath:           getenvOrDefault("ABC2MIDI_PATH", abc2midi),
		FallbackCharset:        getenvOrDefault("FALLBACK_CHARSET", fallbackCharset),
		StripComments:          parseBoolOrDefault(os.Getenv("STRIP_COMMENTS"), true),
		ConvertTitles:          parseBoolOrDefault(os.Getenv("CONVERT_TITLES"), false),
		StabilityCheckInterval: parseDurationOrDefault(os.Getenv("STABILITY_CHECK_INTERVAL"), stabilityCheckInterval),
		StabilityQuietDuration: parseDurationOrDefault(os.Getenv("STABILITY_QUIET_DURATION"), stabilityQuietDuration),
		StabilityMaxWait:       parseDurationOrDefault(os.Getenv("STABILITY_MAX_WAIT"), stabilityMaxWait),
		ToolTimeout:            parseDurationOrDefault(os.Getenv("TOOL_TIMEOUT"), toolTimeout),
	}
	if cfg.StabilityCheckInterval <= 0 {
		return nil, fmt.Errorf("STABILITY_CHECK_INTERVAL must be positive, got %v", cfg.StabilityCheckInterval)
	}
	cfg.DBPath = filepath.Join(cfg.DataDir, cfg.DBFileName)
	return cfg, nil
}

// EnsureDirs 创建索引、输出和数据库目录；只在需要写盘的命令中调用
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.LibraryDir, c.OutputDir, c.DataDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func getenvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func parseDurationOrDefault(s string, defaultValue time.Duration) time.Duration {
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Warning: Could not parse duration '%s', using default '%v'. Error: %v", s, defaultValue, err)
		return defaultValue
	}
	return d
}

func parseBoolOrDefault(s string, defaultValue bool) bool {
	if s == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		log.Printf("Warning: Could not parse bool '%s', using default '%v'. Error: %v", s, defaultValue, err)
		return defaultValue
	}
	return b
}
