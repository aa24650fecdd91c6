package config

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// AuthChecker checks whether credentials for the configured cloud
// backends are present
type AuthChecker struct {
	homeDir  string
	lookPath func(string) (string, error)
	getenv   func(string) string
}

// NewAuthChecker creates a new auth checker
func NewAuthChecker() *AuthChecker {
	home, _ := os.UserHomeDir()
	return &AuthChecker{
		homeDir:  home,
		lookPath: exec.LookPath,
		getenv:   os.Getenv,
	}
}

// AuthResult contains authentication check results
type AuthResult struct {
	Authenticated bool   `json:"authenticated" yaml:"authenticated"`
	Message       string `json:"message" yaml:"message"`
	ProjectID     string `json:"project_id,omitempty" yaml:"project_id,omitempty"` // For GCP
	Region        string `json:"region,omitempty" yaml:"region,omitempty"`         // For AWS
	Profile       string `json:"profile,omitempty" yaml:"profile,omitempty"`       // For AWS
	Account       string `json:"account,omitempty" yaml:"account,omitempty"`       // For Azure
}

// CheckFor returns the checks relevant to cfg, keyed by provider
func (a *AuthChecker) CheckFor(cfg *Config) map[string]AuthResult {
	results := make(map[string]AuthResult)

	if cfg.Storage.Backend == "s3" || cfg.Backend.Type == "dynamodb" {
		results["aws"] = a.CheckAWS()
	}
	if cfg.Storage.Backend == "gcs" {
		results["gcp"] = a.CheckGCP()
	}
	if cfg.Storage.Backend == "azure" {
		results["azure"] = a.CheckAzure(cfg.Storage)
	}

	return results
}

// CheckGCP checks for application default credentials
func (a *AuthChecker) CheckGCP() AuthResult {
	result := AuthResult{ProjectID: a.getenv("GOOGLE_CLOUD_PROJECT")}

	if path := a.getenv("GOOGLE_APPLICATION_CREDENTIALS"); path != "" {
		if _, err := os.Stat(path); err == nil {
			result.Authenticated = true
			result.Message = "authenticated via service account key"
			return result
		}
		result.Message = "GOOGLE_APPLICATION_CREDENTIALS points to a missing file"
		return result
	}

	adc := filepath.Join(a.homeDir, ".config", "gcloud", "application_default_credentials.json")
	if _, err := os.Stat(adc); err == nil {
		result.Authenticated = true
		result.Message = "authenticated via application default credentials"
		return result
	}

	if _, err := a.lookPath("gcloud"); err == nil {
		result.Message = "not authenticated, run: gcloud auth application-default login"
		return result
	}

	result.Message = "no GCP credentials found"
	return result
}

// CheckAWS checks AWS authentication
func (a *AuthChecker) CheckAWS() AuthResult {
	result := AuthResult{}

	// Check environment variables first
	if a.getenv("AWS_ACCESS_KEY_ID") != "" && a.getenv("AWS_SECRET_ACCESS_KEY") != "" {
		result.Authenticated = true
		result.Message = "authenticated via environment variables"
		result.Region = a.getenv("AWS_REGION")
		if result.Region == "" {
			result.Region = a.getenv("AWS_DEFAULT_REGION")
		}
		return result
	}

	// Check credentials file
	credFile := filepath.Join(a.homeDir, ".aws", "credentials")
	if _, err := os.Stat(credFile); err == nil {
		result.Authenticated = true
		result.Message = "authenticated via credentials file"

		result.Profile = a.getenv("AWS_PROFILE")
		if result.Profile == "" {
			result.Profile = "default"
		}

		return result
	}

	result.Authenticated = false
	result.Message = "no AWS credentials found"
	return result
}

// CheckAzure checks that a storage account and SAS token are configured
func (a *AuthChecker) CheckAzure(storage StorageConfig) AuthResult {
	result := AuthResult{Account: storage.Account}

	if storage.Account == "" {
		result.Message = "storage.account is not set"
		return result
	}

	token := storage.SASToken
	if token == "" {
		token = a.getenv("AZURE_STORAGE_SAS_TOKEN")
	}
	if strings.TrimSpace(token) == "" {
		result.Message = "no SAS token configured"
		return result
	}

	result.Authenticated = true
	result.Message = "SAS token configured"
	return result
}
