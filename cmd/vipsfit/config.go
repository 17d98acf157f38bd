package main

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	envConfig       = "VIPSFIT_CONFIG"
	envHTTPAddr     = "VIPSFIT_HTTP_ADDR"
	envSourceDir    = "VIPSFIT_SOURCE_DIR"
	envThumbnailDir = "VIPSFIT_THUMBNAIL_DIR"
	envEngine       = "VIPSFIT_ENGINE"
	envLogLevel     = "VIPSFIT_LOG_LEVEL"
	envAllowedExts  = "VIPSFIT_ALLOWED_EXTS"

	engineVips    = "vips"
	engineImaging = "imaging"
)

type config struct {
	HTTPAddr         string   `toml:"http_addr"`
	SourceDir        string   `toml:"source_dir"`
	ThumbnailDir     string   `toml:"thumbnail_dir"`
	AllowedExts      []string `toml:"allowed_exts"`
	Engine           string   `toml:"engine"`
	LogLevel         string   `toml:"log_level"`
	ThumbnailQuality uint8    `toml:"thumbnail_quality"`
	MaxUploadSize    int64    `toml:"max_upload_size"`

	Vips struct {
		MaxCacheMem   int `toml:"max_cache_mem"`
		MaxCacheSize  int `toml:"max_cache_size"`
		MaxCacheFiles int `toml:"max_cache_files"`
	} `toml:"vips"`
}

func defaultConfig() config {
	return config{
		HTTPAddr:     ":7664",
		SourceDir:    "data/source",
		ThumbnailDir: "data/thumbnail",
		AllowedExts:  []string{".jpg", ".jpeg", ".png", ".webp", ".avif", ".gif", ".pdf", ".svg"},
		Engine:       engineVips,
		LogLevel:     "INFO",
	}
}

// loadConfig layers the defaults, an optional TOML file and the environment.
// A .env file in the working directory is loaded into the environment first.
func loadConfig(path string) (config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return config{}, errors.Wrap(err, "load .env")
	}

	conf := defaultConfig()
	if path == "" {
		path = os.Getenv(envConfig)
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &conf); err != nil {
			return config{}, errors.Wrapf(err, "decode config file %s", path)
		}
	}

	conf.HTTPAddr = getenv(envHTTPAddr, conf.HTTPAddr)
	conf.SourceDir = getenv(envSourceDir, conf.SourceDir)
	conf.ThumbnailDir = getenv(envThumbnailDir, conf.ThumbnailDir)
	conf.Engine = getenv(envEngine, conf.Engine)
	conf.LogLevel = getenv(envLogLevel, conf.LogLevel)
	if v := os.Getenv(envAllowedExts); v != "" {
		conf.AllowedExts = splitList(v)
	}

	switch conf.Engine {
	case engineVips, engineImaging:
	default:
		return config{}, errors.Errorf("unknown engine %q", conf.Engine)
	}
	return conf, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if len(value) == 0 {
		return fallback
	}
	return value
}
