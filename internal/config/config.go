package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig   `mapstructure:"paths"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	Server   ServerConfig  `mapstructure:"server"`
	TTS      TTSConfig     `mapstructure:"tts"`
	LogLevel string        `mapstructure:"log_level"`
}

type PathsConfig struct {
	// ModelDir holds onnx/ and voice_styles/ as laid out by `model download`.
	ModelDir string `mapstructure:"model_dir"`
}

type RuntimeConfig struct {
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
	ORTAPIVersion  uint32 `mapstructure:"ort_api_version"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	AudioCacheDir   string `mapstructure:"audio_cache_dir"`
}

type TTSConfig struct {
	Voice          string  `mapstructure:"voice"`
	Language       string  `mapstructure:"language"`
	TotalSteps     int     `mapstructure:"total_steps"`
	Speed          float64 `mapstructure:"speed"`
	SilenceSeconds float64 `mapstructure:"silence_seconds"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelDir: "assets",
		},
		Runtime: RuntimeConfig{
			ORTLibraryPath: "",
			ORTVersion:     "",
			ORTAPIVersion:  23,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         1,
			ShutdownTimeout: 30,
			MaxTextBytes:    8192,
			RequestTimeout:  120,
			AudioCacheDir:   "audio_cache",
		},
		TTS: TTSConfig{
			Voice:          "M1",
			Language:       "en",
			TotalSteps:     5,
			Speed:          1.05,
			SilenceSeconds: 0.3,
		},
		LogLevel: "info",
	}
}

// flagKeys binds each command-line flag to its nested config key.
var flagKeys = []struct {
	flag string
	key  string
}{
	{"paths-model-dir", "paths.model_dir"},
	{"model-dir", "paths.model_dir"},
	{"runtime-ort-library-path", "runtime.ort_library_path"},
	{"ort-lib", "runtime.ort_library_path"},
	{"runtime-ort-version", "runtime.ort_version"},
	{"runtime-ort-api-version", "runtime.ort_api_version"},
	{"server-listen-addr", "server.listen_addr"},
	{"workers", "server.workers"},
	{"server-shutdown-timeout", "server.shutdown_timeout"},
	{"server-max-text-bytes", "server.max_text_bytes"},
	{"server-request-timeout", "server.request_timeout"},
	{"server-audio-cache-dir", "server.audio_cache_dir"},
	{"tts-voice", "tts.voice"},
	{"tts-language", "tts.language"},
	{"tts-total-steps", "tts.total_steps"},
	{"tts-speed", "tts.speed"},
	{"tts-silence-seconds", "tts.silence_seconds"},
	{"log-level", "log_level"},
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-dir", defaults.Paths.ModelDir, "Directory containing onnx/ and voice_styles/")
	fs.String("model-dir", defaults.Paths.ModelDir, "Model directory (alias for --paths-model-dir)")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.String("runtime-ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Uint32("runtime-ort-api-version", defaults.Runtime.ORTAPIVersion, "ONNX Runtime C API version")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("workers", defaults.Server.Workers, "Max concurrent synthesis requests admitted by the HTTP server")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum request text size in bytes")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request synthesis timeout in seconds")
	fs.String("server-audio-cache-dir", defaults.Server.AudioCacheDir, "Directory for saved chunk audio")
	fs.String("tts-voice", defaults.TTS.Voice, "Voice style ID (M1-M5, F1-F5) or path to a style .json")
	fs.String("tts-language", defaults.TTS.Language, "Language code (en|ko|es|pt|fr)")
	fs.Int("tts-total-steps", defaults.TTS.TotalSteps, "Denoising steps")
	fs.Float64("tts-speed", defaults.TTS.Speed, "Speech speed factor (>0)")
	fs.Float64("tts-silence-seconds", defaults.TTS.SilenceSeconds, "Silence inserted between chunks")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("SUPERTONIC")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.ort_library_path", "SUPERTONIC_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("supertonic")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// bindFlags binds registered flags to their nested keys. An alias flag only
// takes over the key when it was set explicitly, so the canonical flag keeps
// its binding otherwise.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	bound := make(map[string]bool, len(flagKeys))

	for _, fk := range flagKeys {
		f := fs.Lookup(fk.flag)
		if f == nil {
			continue
		}

		if bound[fk.key] && !f.Changed {
			continue
		}

		if err := v.BindPFlag(fk.key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", fk.flag, err)
		}

		bound[fk.key] = true
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_dir", c.Paths.ModelDir)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.audio_cache_dir", c.Server.AudioCacheDir)
	v.SetDefault("tts.voice", c.TTS.Voice)
	v.SetDefault("tts.language", c.TTS.Language)
	v.SetDefault("tts.total_steps", c.TTS.TotalSteps)
	v.SetDefault("tts.speed", c.TTS.Speed)
	v.SetDefault("tts.silence_seconds", c.TTS.SilenceSeconds)
	v.SetDefault("log_level", c.LogLevel)
}
