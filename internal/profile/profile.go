package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where staffsense stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// JWTSecret signs the access tokens accepted on the chat endpoints
	JWTSecret string

	// Forecast backend configuration
	BackendBaseURL string // STAFFSENSE_BACKEND_BASE_URL
	BackendTimeout int    // STAFFSENSE_BACKEND_TIMEOUT_SECONDS (default: 30)

	// LLM configuration
	LLMProvider           string  // STAFFSENSE_LLM_PROVIDER (openai or any OpenAI-compatible endpoint)
	LLMAPIKey             string  // STAFFSENSE_LLM_API_KEY
	LLMBaseURL            string  // STAFFSENSE_LLM_BASE_URL
	LLMModel              string  // STAFFSENSE_LLM_MODEL (default: gpt-4o-mini)
	LLMMaxTokens          int     // STAFFSENSE_LLM_MAX_TOKENS (default: 2048)
	LLMTemperature        float32 // STAFFSENSE_LLM_TEMPERATURE (default: 0.2)
	LLMInsecureSkipVerify bool    // STAFFSENSE_LLM_INSECURE_SKIP_VERIFY (corporate proxy)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMEnabled returns true if an LLM endpoint is configured. Without it the
// assistant falls back to deterministic rule-based processing only.
func (p *Profile) IsLLMEnabled() bool {
	return p.LLMAPIKey != "" || p.LLMBaseURL != ""
}

// FromEnv loads configuration from STAFFSENSE_* environment variables via viper.
func (p *Profile) FromEnv() {
	v := viper.New()
	v.SetEnvPrefix("staffsense")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("backend_timeout_seconds", 30)
	v.SetDefault("llm_provider", "openai")
	v.SetDefault("llm_base_url", "https://api.openai.com/v1")
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("llm_max_tokens", 2048)
	v.SetDefault("llm_temperature", 0.2)

	if p.JWTSecret == "" {
		p.JWTSecret = v.GetString("jwt_secret")
	}
	if p.BackendBaseURL == "" {
		p.BackendBaseURL = v.GetString("backend_base_url")
	}
	p.BackendTimeout = v.GetInt("backend_timeout_seconds")
	p.LLMProvider = v.GetString("llm_provider")
	p.LLMAPIKey = v.GetString("llm_api_key")
	p.LLMBaseURL = v.GetString("llm_base_url")
	p.LLMModel = v.GetString("llm_model")
	p.LLMMaxTokens = v.GetInt("llm_max_tokens")
	p.LLMTemperature = float32(v.GetFloat64("llm_temperature"))
	p.LLMInsecureSkipVerify = v.GetBool("llm_insecure_skip_verify")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "staffsense")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/staffsense"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("staffsense_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a DSN")
	}

	if p.Mode == "prod" && p.JWTSecret == "" {
		return errors.New("jwt secret is required in prod mode")
	}

	if p.BackendBaseURL == "" {
		return errors.New("forecast backend base URL is required")
	}

	return nil
}
