package config

import (
	"os"
	"path/filepath"
)

// DefaultsManager derives defaults from the working environment
type DefaultsManager struct {
	workingDir string
	homeDir    string
}

// NewDefaultsManager creates a new defaults manager
func NewDefaultsManager() *DefaultsManager {
	wd, _ := os.Getwd()
	home, _ := os.UserHomeDir()
	return &DefaultsManager{
		workingDir: wd,
		homeDir:    home,
	}
}

// GetRecommendedStoragePath returns where persisted cache entries should live.
// Inside a project checkout it is project local, otherwise under the home
// directory.
func (dm *DefaultsManager) GetRecommendedStoragePath() string {
	projectMarkers := []string{".git", "go.mod", "package.json"}

	for _, marker := range projectMarkers {
		if dm.workingDir == "" {
			break
		}
		if _, err := os.Stat(filepath.Join(dm.workingDir, marker)); err == nil {
			return filepath.Join(dm.workingDir, ".acessivel", "cache")
		}
	}

	if dm.homeDir == "" {
		return filepath.Join(os.TempDir(), "acessivel", "cache")
	}
	return filepath.Join(dm.homeDir, ".acessivel", "cache")
}

// GetUserFriendlyFeedback describes the effective configuration in a few lines
func (dm *DefaultsManager) GetUserFriendlyFeedback(config *Config) []string {
	var feedback []string

	switch config.Storage.Backend {
	case "local":
		feedback = append(feedback, "Cache entries persisted to "+config.Storage.BaseDir)
	case "memory":
		feedback = append(feedback, "Cache entries kept in memory only")
	default:
		feedback = append(feedback, "Cache entries persisted to "+config.Storage.Backend+" bucket "+config.Storage.Bucket+config.Storage.Container)
	}

	if config.Backend.Type == "dynamodb" {
		feedback = append(feedback, "Documents stored in DynamoDB table "+config.Backend.Table)
	} else {
		feedback = append(feedback, "Documents stored in memory (demo mode)")
	}

	if !config.Cache.Persist {
		feedback = append(feedback, "Cache persistence disabled")
	}

	return feedback
}
