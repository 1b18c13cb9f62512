package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	WorkflowPath  string // workflow .hcl file or directory
	TemplatesPath string // template manifest .hcl files

	// OutDir is the results root where routed artifacts and workflow
	// outputs land. WorkDir is the scratch root for per-node work folders;
	// when empty it defaults to a folder under OutDir.
	OutDir  string
	WorkDir string

	// Inputs are run-level input overrides (name=value pairs already split),
	// converted to the declared types before execution.
	Inputs map[string]string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
}

// NewConfig validates a Config and applies defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkflowPath == "" {
		return nil, errors.New("WorkflowPath is a required configuration field and cannot be empty")
	}
	if cfg.OutDir == "" {
		return nil, errors.New("OutDir is a required configuration field and cannot be empty")
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 10
	}
	return &cfg, nil
}
