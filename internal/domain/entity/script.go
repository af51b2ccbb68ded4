package entity

import "time"

// Script is a code payload to execute and the path its artifact is written to.
type Script struct {
	Code         string
	ArtifactPath string
}

type ExecutionResult struct {
	Success      bool          `json:"success"`
	ArtifactPath string        `json:"artifact_path,omitempty"`
	Error        string        `json:"error,omitempty"`
	Stdout       string        `json:"stdout,omitempty"`
	Stderr       string        `json:"stderr,omitempty"`
	ExitCode     int           `json:"exit_code"`
	Duration     time.Duration `json:"duration"`
}

type ValidationFinding struct {
	Line    int    `json:"line" bson:"line"`
	Rule    string `json:"rule" bson:"rule"`
	Message string `json:"message" bson:"message"`
}

type ValidationResult struct {
	Passed   bool
	Findings []ValidationFinding
}
