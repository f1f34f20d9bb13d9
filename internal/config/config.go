package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Port        string `validate:"required,numeric"`
	UploadDir   string `validate:"required"`
	MaxUploadMB int    `validate:"min=1,max=4096"`
	LogLevel    string `validate:"oneof=debug info warn error"`
	// SubmitRatePerMin caps job submissions over HTTP; 0 disables the limit.
	SubmitRatePerMin int `validate:"min=0"`

	// DefaultChain is the ordered list of engines tried when a job does not pin one.
	DefaultChain      []string      `validate:"dive,oneof=local google openai fpt"`
	AdapterTimeout    time.Duration `validate:"min=1s"`
	DefaultConfidence float64       `validate:"gte=0,lte=1"`
	RealtimeFactor    float64       `validate:"gt=0"`
	Language          string

	FFmpegBin        string `validate:"required"`
	FFprobeBin       string `validate:"required"`
	WhisperBin       string `validate:"required"`
	WhisperModelPath string

	GoogleProjectID string
	GoogleKeyFile   string
	GoogleLanguage  string

	OpenAIKey           string
	OpenAIBaseURL       string
	OpenAISTTModel      string
	OpenAIAnalysisModel string
	AnalysisEnabled     bool

	FPTApiKey string
	FPTSTTURL string `validate:"omitempty,url"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	timeout, err := getDuration("STT_ADAPTER_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	maxUpload, err := getInt("MAX_UPLOAD_MB", 200)
	if err != nil {
		return nil, err
	}
	confidence, err := getFloat("STT_DEFAULT_CONFIDENCE", 0.8)
	if err != nil {
		return nil, err
	}
	realtime, err := getFloat("STT_REALTIME_FACTOR", 0.5)
	if err != nil {
		return nil, err
	}
	analysis, err := getBool("ANALYSIS_ENABLED", true)
	if err != nil {
		return nil, err
	}
	submitRate, err := getInt("SUBMIT_RATE_PER_MIN", 60)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadMB: maxUpload,
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),

		SubmitRatePerMin: submitRate,

		DefaultChain:      splitList(getEnv("STT_DEFAULT_CHAIN", "local,google,openai")),
		AdapterTimeout:    timeout,
		DefaultConfidence: confidence,
		RealtimeFactor:    realtime,
		Language:          getEnv("STT_LANGUAGE", "auto"),

		FFmpegBin:        getEnv("FFMPEG_BIN", "ffmpeg"),
		FFprobeBin:       getEnv("FFPROBE_BIN", "ffprobe"),
		WhisperBin:       getEnv("WHISPER_BIN", "whisper-cli"),
		WhisperModelPath: getEnv("WHISPER_MODEL_PATH", defaultModelPath()),

		GoogleProjectID: os.Getenv("GOOGLE_STT_PROJECT_ID"),
		GoogleKeyFile:   os.Getenv("GOOGLE_STT_KEY_FILE"),
		GoogleLanguage:  getEnv("GOOGLE_STT_LANGUAGE", "en-US"),

		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		OpenAISTTModel:      getEnv("OPENAI_STT_MODEL", "whisper-1"),
		OpenAIAnalysisModel: getEnv("OPENAI_ANALYSIS_MODEL", "gpt-4o-mini"),
		AnalysisEnabled:     analysis,

		FPTApiKey: os.Getenv("FPT_AI_API_KEY"),
		FPTSTTURL: getEnv("FPT_AI_STT_URL", "https://api.fpt.ai/hmi/asr/v1"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func defaultModelPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".scribeflow", "models")
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
