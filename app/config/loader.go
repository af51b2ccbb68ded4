package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"graphgen/internal/domain/entity"
)

// Environment variable names.
const (
	EnvAPIKey      = "GEMINI_API_KEY"
	EnvModel       = "GEMINI_MODEL"
	EnvBaseURL     = "GEMINI_BASE_URL"
	EnvConfigFile  = "GRAPHGEN_CONFIG"
	EnvOutputDir   = "GRAPHGEN_OUTPUT_DIR"
	EnvSandboxURL  = "SANDBOX_URL"
	EnvSandboxAddr = "SANDBOX_LISTEN_ADDR"
	EnvMongoURI    = "MONGO_URI"
	EnvMongoDB     = "MONGO_DB"
	EnvServerHost  = "SERVER_HOST"
	EnvServerPort  = "SERVER_PORT"
)

// fileConfig mirrors the HCL config file. Every attribute is optional; unset
// values keep their defaults.
type fileConfig struct {
	LLM      *llmBlock      `hcl:"llm,block"`
	Sandbox  *sandboxBlock  `hcl:"sandbox,block"`
	Output   *outputBlock   `hcl:"output,block"`
	Server   *serverBlock   `hcl:"server,block"`
	Mongo    *mongoBlock    `hcl:"mongo,block"`
	FileRepo *fileRepoBlock `hcl:"file_repo,block"`
}

type llmBlock struct {
	BaseURL string `hcl:"base_url,optional"`
	Model   string `hcl:"model,optional"`
	Timeout string `hcl:"timeout,optional"`
	Search  *bool  `hcl:"search,optional"`
}

type sandboxBlock struct {
	Mode           string   `hcl:"mode,optional"`
	Runtime        string   `hcl:"runtime,optional"`
	Command        []string `hcl:"command,optional"`
	URL            string   `hcl:"url,optional"`
	Timeout        string   `hcl:"timeout,optional"`
	MaxOutputBytes int      `hcl:"max_output_bytes,optional"`
	MaxConcurrent  int      `hcl:"max_concurrent,optional"`
	ListenAddr     string   `hcl:"listen_addr,optional"`
	Validate       *bool    `hcl:"validate,optional"`
	DeniedModules  []string `hcl:"denied_modules,optional"`
}

type outputBlock struct {
	Dir      string `hcl:"dir,optional"`
	FileName string `hcl:"file_name,optional"`
	PerRun   *bool  `hcl:"per_run,optional"`
}

type serverBlock struct {
	Host         string  `hcl:"host,optional"`
	Port         int     `hcl:"port,optional"`
	MetricsAddr  string  `hcl:"metrics_addr,optional"`
	ReadTimeout  string  `hcl:"read_timeout,optional"`
	WriteTimeout string  `hcl:"write_timeout,optional"`
	RateLimit    float64 `hcl:"rate_limit,optional"`
	Burst        int     `hcl:"burst,optional"`
}

type mongoBlock struct {
	URI      string `hcl:"uri,optional"`
	Database string `hcl:"database,optional"`
}

type fileRepoBlock struct {
	Dir string `hcl:"dir,optional"`
}

// Load builds the configuration from defaults, the optional HCL file named by
// GRAPHGEN_CONFIG, and then the environment. All failures wrap entity.ErrConfig.
func Load(getenv func(string) string) (*Config, error) {
	cfg, err := load(getenv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSandbox is Load for the sandbox server, which never talks to the model
// and so does not require an API key.
func LoadSandbox(getenv func(string) string) (*Config, error) {
	cfg, err := load(getenv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Sandbox.validateRuntime(); err != nil {
		return nil, err
	}
	if cfg.Sandbox.ListenAddr == "" {
		return nil, fmt.Errorf("%w: sandbox listen address is required", entity.ErrConfig)
	}
	if cfg.Sandbox.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("%w: sandbox max_concurrent must be positive", entity.ErrConfig)
	}
	return cfg, nil
}

func load(getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path := getenv(EnvConfigFile); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var fc fileConfig
	if err := hclsimple.DecodeFile(path, nil, &fc); err != nil {
		return fmt.Errorf("%w: decode %s: %v", entity.ErrConfig, path, err)
	}

	if b := fc.LLM; b != nil {
		setString(&cfg.LLM.BaseURL, b.BaseURL)
		setString(&cfg.LLM.Model, b.Model)
		if err := setDuration(&cfg.LLM.Timeout, "llm.timeout", b.Timeout); err != nil {
			return err
		}
		setBool(&cfg.LLM.Search, b.Search)
	}
	if b := fc.Sandbox; b != nil {
		setString(&cfg.Sandbox.Mode, b.Mode)
		setString(&cfg.Sandbox.Runtime, b.Runtime)
		setString(&cfg.Sandbox.URL, b.URL)
		setString(&cfg.Sandbox.ListenAddr, b.ListenAddr)
		if len(b.Command) > 0 {
			cfg.Sandbox.Command = b.Command
		}
		if err := setDuration(&cfg.Sandbox.Timeout, "sandbox.timeout", b.Timeout); err != nil {
			return err
		}
		setInt(&cfg.Sandbox.MaxOutputBytes, b.MaxOutputBytes)
		setInt(&cfg.Sandbox.MaxConcurrent, b.MaxConcurrent)
		setBool(&cfg.Sandbox.Validate, b.Validate)
		cfg.Sandbox.DeniedModules = append(cfg.Sandbox.DeniedModules, b.DeniedModules...)
	}
	if b := fc.Output; b != nil {
		setString(&cfg.Output.Dir, b.Dir)
		setString(&cfg.Output.FileName, b.FileName)
		setBool(&cfg.Output.PerRun, b.PerRun)
	}
	if b := fc.Server; b != nil {
		setString(&cfg.Server.Host, b.Host)
		setInt(&cfg.Server.Port, b.Port)
		setString(&cfg.Server.MetricsAddr, b.MetricsAddr)
		if err := setDuration(&cfg.Server.ReadTimeout, "server.read_timeout", b.ReadTimeout); err != nil {
			return err
		}
		if err := setDuration(&cfg.Server.WriteTimeout, "server.write_timeout", b.WriteTimeout); err != nil {
			return err
		}
		if b.RateLimit > 0 {
			cfg.Server.RateLimit = b.RateLimit
		}
		setInt(&cfg.Server.Burst, b.Burst)
	}
	if b := fc.Mongo; b != nil {
		setString(&cfg.Mongo.URI, b.URI)
		setString(&cfg.Mongo.Database, b.Database)
	}
	if b := fc.FileRepo; b != nil {
		setString(&cfg.FileRepo.Dir, b.Dir)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	cfg.LLM.APIKey = strings.TrimSpace(getenv(EnvAPIKey))
	setString(&cfg.LLM.Model, getenv(EnvModel))
	setString(&cfg.LLM.BaseURL, getenv(EnvBaseURL))
	setString(&cfg.Output.Dir, getenv(EnvOutputDir))
	if url := getenv(EnvSandboxURL); url != "" {
		cfg.Sandbox.URL = url
		cfg.Sandbox.Mode = SandboxModeRemote
	}
	setString(&cfg.Sandbox.ListenAddr, getenv(EnvSandboxAddr))
	setString(&cfg.Mongo.URI, getenv(EnvMongoURI))
	setString(&cfg.Mongo.Database, getenv(EnvMongoDB))
	setString(&cfg.Server.Host, getenv(EnvServerHost))
	if v := getenv(EnvServerPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a port number", entity.ErrConfig, EnvServerPort, v)
		}
		cfg.Server.Port = port
	}
	return nil
}

// Validate checks the configuration once at startup.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%w: %s env variable is required", entity.ErrConfig, EnvAPIKey)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("%w: llm model is required", entity.ErrConfig)
	}
	switch c.Sandbox.Mode {
	case SandboxModeProcess:
		if err := c.Sandbox.validateRuntime(); err != nil {
			return err
		}
	case SandboxModeRemote:
		if c.Sandbox.URL == "" {
			return fmt.Errorf("%w: sandbox url is required in remote mode", entity.ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown sandbox mode %q", entity.ErrConfig, c.Sandbox.Mode)
	}
	if c.Output.FileName == "" && !c.Output.PerRun {
		return fmt.Errorf("%w: output file name is required", entity.ErrConfig)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port %d", entity.ErrConfig, c.Server.Port)
	}
	return nil
}

func (s SandboxConfig) validateRuntime() error {
	if s.Runtime != SandboxRuntimePython {
		return fmt.Errorf("%w: unsupported sandbox runtime %q", entity.ErrConfig, s.Runtime)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", entity.ErrConfig, name, err)
	}
	*dst = d
	return nil
}
