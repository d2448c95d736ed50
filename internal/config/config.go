package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig   `mapstructure:"paths"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	Server   ServerConfig  `mapstructure:"server"`
	TTS      TTSConfig     `mapstructure:"tts"`
	DSP      DSPConfig     `mapstructure:"dsp"`
	LogLevel string        `mapstructure:"log_level"`
}

type PathsConfig struct {
	// ModelDir holds the ONNX bundle: tts.json, the four graphs, and the
	// unicode indexer.
	ModelDir string `mapstructure:"model_dir"`
	// VoicesDir holds voice style files (.json or .bin). Empty derives
	// <model_dir>/voices, matching the published bundle layout.
	VoicesDir string `mapstructure:"voices_dir"`
	// VoiceManifest optionally pins the voice set to a manifest file
	// instead of scanning VoicesDir.
	VoiceManifest string `mapstructure:"voice_manifest"`
}

type RuntimeConfig struct {
	Threads        int    `mapstructure:"threads"`
	InterOpThreads int    `mapstructure:"inter_op_threads"`
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
}

type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type TTSConfig struct {
	Voice          string  `mapstructure:"voice"`
	Language       string  `mapstructure:"language"`
	LanguagePolicy string  `mapstructure:"language_policy"`
	Speed          float64 `mapstructure:"speed"`
	Steps          int     `mapstructure:"steps"`
	Silence        float64 `mapstructure:"silence"`
	MaxTextLength  int     `mapstructure:"max_text_length"`
	// MaxLatentFrames caps the refinement latent length; requests whose
	// predicted audio would exceed it are rejected before refinement.
	MaxLatentFrames int `mapstructure:"max_latent_frames"`
	ChunkLength     int `mapstructure:"chunk_length"`
	// ChunkLengths overrides ChunkLength per language code.
	ChunkLengths map[string]int `mapstructure:"chunk_lengths"`
	// Seed fixes the latent noise source for reproducible output; zero
	// keeps synthesis nondeterministic.
	Seed uint64 `mapstructure:"seed"`
}

// DSPConfig is the post-processing chain applied to finished waveforms.
// Filters here need the full stitched waveform, so streamed output is
// emitted unfiltered regardless of these settings. The synth command's
// DSP flags replace this chain when any of them is set.
type DSPConfig struct {
	Normalize bool    `mapstructure:"normalize"`
	DCBlock   bool    `mapstructure:"dc_block"`
	Gain      float64 `mapstructure:"gain"`
	FadeInMS  float64 `mapstructure:"fade_in_ms"`
	FadeOutMS float64 `mapstructure:"fade_out_ms"`
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
			ModelDir:      "models/supertonic",
			VoicesDir:     "",
			VoiceManifest: "",
		},
		Runtime: RuntimeConfig{
			Threads:        4,
			InterOpThreads: 1,
			ORTLibraryPath: "",
			ORTVersion:     "",
		},
		Server: ServerConfig{
			ListenAddr:     ":8080",
			MaxConcurrent:  2,
			RequestTimeout: 2 * time.Minute,
		},
		TTS: TTSConfig{
			Voice:           "F1",
			Language:        "en",
			LanguagePolicy:  "strict",
			Speed:           1.05,
			Steps:           5,
			Silence:         0.3,
			MaxTextLength:   5000,
			MaxLatentFrames: 30000,
			ChunkLength:     300,
			ChunkLengths:    map[string]int{"ko": 120},
			Seed:            0,
		},
		DSP: DSPConfig{
			Normalize: false,
			DCBlock:   false,
			Gain:      1.0,
			FadeInMS:  0,
			FadeOutMS: 0,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-dir", defaults.Paths.ModelDir, "Directory holding the ONNX model bundle")
	fs.String("paths-voices-dir", defaults.Paths.VoicesDir, "Directory holding voice style files (default <model_dir>/voices)")
	fs.String("paths-voice-manifest", defaults.Paths.VoiceManifest, "Voice manifest file (overrides directory scan)")
	fs.Int("runtime-threads", defaults.Runtime.Threads, "ONNX Runtime intra-op thread count")
	fs.Int("runtime-inter-op-threads", defaults.Runtime.InterOpThreads, "ONNX Runtime inter-op thread count")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.String("runtime-ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-max-concurrent", defaults.Server.MaxConcurrent, "Max synthesis requests served concurrently")
	fs.Duration("server-request-timeout", defaults.Server.RequestTimeout, "Per-request synthesis deadline")
	fs.String("tts-voice", defaults.TTS.Voice, "Default voice id")
	fs.String("tts-language", defaults.TTS.Language, "Default language for untagged text")
	fs.String("tts-language-policy", defaults.TTS.LanguagePolicy, "Unsupported-language handling (strict|coerce)")
	fs.Float64("tts-speed", defaults.TTS.Speed, "Default speech speed multiplier")
	fs.Int("tts-steps", defaults.TTS.Steps, "Default refinement step count")
	fs.Float64("tts-silence", defaults.TTS.Silence, "Default silence between stitched chunks in seconds")
	fs.Int("tts-max-text-length", defaults.TTS.MaxTextLength, "Maximum accepted text length in characters")
	fs.Int("tts-max-latent-frames", defaults.TTS.MaxLatentFrames, "Maximum latent frames per synthesis batch")
	fs.Int("tts-chunk-length", defaults.TTS.ChunkLength, "Maximum chunk length in characters")
	fs.StringToInt("tts-chunk-lengths", defaults.TTS.ChunkLengths, "Per-language chunk length overrides (lang=len)")
	fs.Uint64("tts-seed", defaults.TTS.Seed, "Latent noise seed (0 keeps output nondeterministic)")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

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
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
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

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_dir", c.Paths.ModelDir)
	v.SetDefault("paths.voices_dir", c.Paths.VoicesDir)
	v.SetDefault("paths.voice_manifest", c.Paths.VoiceManifest)
	v.SetDefault("runtime.threads", c.Runtime.Threads)
	v.SetDefault("runtime.inter_op_threads", c.Runtime.InterOpThreads)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_concurrent", c.Server.MaxConcurrent)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("tts.voice", c.TTS.Voice)
	v.SetDefault("tts.language", c.TTS.Language)
	v.SetDefault("tts.language_policy", c.TTS.LanguagePolicy)
	v.SetDefault("tts.speed", c.TTS.Speed)
	v.SetDefault("tts.steps", c.TTS.Steps)
	v.SetDefault("tts.silence", c.TTS.Silence)
	v.SetDefault("tts.max_text_length", c.TTS.MaxTextLength)
	v.SetDefault("tts.max_latent_frames", c.TTS.MaxLatentFrames)
	v.SetDefault("tts.chunk_length", c.TTS.ChunkLength)
	v.SetDefault("tts.chunk_lengths", c.TTS.ChunkLengths)
	v.SetDefault("tts.seed", c.TTS.Seed)
	v.SetDefault("dsp.normalize", c.DSP.Normalize)
	v.SetDefault("dsp.dc_block", c.DSP.DCBlock)
	v.SetDefault("dsp.gain", c.DSP.Gain)
	v.SetDefault("dsp.fade_in_ms", c.DSP.FadeInMS)
	v.SetDefault("dsp.fade_out_ms", c.DSP.FadeOutMS)
	v.SetDefault("log_level", c.LogLevel)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("paths.model_dir", "paths-model-dir")
	v.RegisterAlias("paths.voices_dir", "paths-voices-dir")
	v.RegisterAlias("paths.voice_manifest", "paths-voice-manifest")
	v.RegisterAlias("runtime.threads", "runtime-threads")
	v.RegisterAlias("runtime.inter_op_threads", "runtime-inter-op-threads")
	v.RegisterAlias("runtime.ort_library_path", "runtime-ort-library-path")
	v.RegisterAlias("runtime.ort_library_path", "ort-lib")
	v.RegisterAlias("runtime.ort_version", "runtime-ort-version")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.max_concurrent", "server-max-concurrent")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
	v.RegisterAlias("tts.voice", "tts-voice")
	v.RegisterAlias("tts.language", "tts-language")
	v.RegisterAlias("tts.language_policy", "tts-language-policy")
	v.RegisterAlias("tts.speed", "tts-speed")
	v.RegisterAlias("tts.steps", "tts-steps")
	v.RegisterAlias("tts.silence", "tts-silence")
	v.RegisterAlias("tts.max_text_length", "tts-max-text-length")
	v.RegisterAlias("tts.max_latent_frames", "tts-max-latent-frames")
	v.RegisterAlias("tts.chunk_length", "tts-chunk-length")
	v.RegisterAlias("tts.chunk_lengths", "tts-chunk-lengths")
	v.RegisterAlias("tts.seed", "tts-seed")
	v.RegisterAlias("log_level", "log-level")
}
