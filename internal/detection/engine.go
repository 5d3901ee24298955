package detection

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

type Engine struct {
	detector *detect.Detector
}

// Result is one rule match. The matched secret itself is never retained.
type Result struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	StartColumn int    `json:"start_column"`
	EndColumn   int    `json:"end_column"`
}

// NewEngine creates a detection engine from a gitleaks TOML rules file, or
// from the built-in gitleaks rules when configPath is empty.
func NewEngine(configPath string) (*Engine, error) {
	if configPath == "" {
		detector, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load default rules: %w", err)
		}
		return &Engine{detector: detector}, nil
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Parse into gitleaks config format
	var vc config.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("failed to translate config: %w", err)
	}

	return &Engine{
		detector: detect.NewDetector(cfg),
	}, nil
}

// Detect scans text and reports every rule match. It is safe for
// concurrent use.
func (e *Engine) Detect(text string) []Result {
	results := []Result{}
	for _, f := range e.detector.DetectString(text) {
		results = append(results, Result{
			RuleID:      f.RuleID,
			Description: f.Description,
			StartLine:   f.StartLine,
			EndLine:     f.EndLine,
			StartColumn: f.StartColumn,
			EndColumn:   f.EndColumn,
		})
	}
	return results
}
