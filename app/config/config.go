package config

import "time"

type Config struct {
	Server   HTTPServerConfig
	LLM      LLMConfig
	Sandbox  SandboxConfig
	Output   OutputConfig
	Mongo    MongoConfig
	FileRepo FileRepoConfig
}

type HTTPServerConfig struct {
	Host         string
	Port         int
	MetricsAddr  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RateLimit is generation requests per second across the API; Burst the bucket size.
	RateLimit float64
	Burst     int
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// Search enables the model's built-in search tool.
	Search bool
}

type SandboxConfig struct {
	// Mode is "process" (local subprocess) or "remote" (sandbox server at URL).
	Mode           string
	Runtime        string
	Command        []string
	URL            string
	// ListenAddr is where graphgen-sandbox serves.
	ListenAddr     string
	Timeout        time.Duration
	MaxOutputBytes int
	MaxConcurrent  int
	Validate       bool
	DeniedModules  []string
}

type OutputConfig struct {
	Dir      string
	FileName string
	// PerRun names artifacts after the run id instead of FileName.
	PerRun bool
}

type MongoConfig struct {
	URI      string
	Database string
}

type FileRepoConfig struct {
	Dir string
}

const (
	SandboxModeProcess = "process"
	SandboxModeRemote  = "remote"

	// SandboxRuntimePython is the only runtime the script validator understands.
	SandboxRuntimePython = "python"
)

func Default() *Config {
	return &Config{
		Server: HTTPServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			MetricsAddr:  ":2112",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
			RateLimit:    1,
			Burst:        5,
		},
		LLM: LLMConfig{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Model:   "gemini-2.0-flash",
			Timeout: 2 * time.Minute,
			Search:  true,
		},
		Sandbox: SandboxConfig{
			Mode:           SandboxModeProcess,
			Runtime:        SandboxRuntimePython,
			ListenAddr:     "127.0.0.1:8090",
			Timeout:        60 * time.Second,
			MaxOutputBytes: 1 << 20,
			MaxConcurrent:  3,
			Validate:       true,
		},
		Output: OutputConfig{
			Dir:      ".",
			FileName: "output.png",
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "graphgen",
		},
		FileRepo: FileRepoConfig{
			Dir: "./runs",
		},
	}
}
