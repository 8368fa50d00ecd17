// Package credentials loads API keys from standard locations.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInsecurePermissions is returned when credentials file has overly permissive permissions.
var ErrInsecurePermissions = fmt.Errorf("credentials file has insecure permissions")

// Credentials holds keys loaded from credentials.toml. LLM providers are
// loaded generically so new providers need no code change; the IPFS
// pinning endpoint gets its own section because it carries a URL as well
// as a token.
type Credentials struct {
	// LLM is the generic LLM API key (used when provider-specific key not found)
	LLM *ProviderCreds `toml:"llm"`

	// IPFS configures the pinning service used to publish deliveries.
	IPFS *IPFSCreds `toml:"ipfs"`

	// Provider-specific sections (loaded dynamically)
	providers map[string]*ProviderCreds
}

// ProviderCreds holds credentials for a single provider
type ProviderCreds struct {
	APIKey string `toml:"api_key"`
}

// IPFSCreds holds the pinning service endpoint and token.
type IPFSCreds struct {
	Endpoint string `toml:"endpoint"`
	Token    string `toml:"token"`
}

// StandardPaths returns the standard credential file locations in order of priority
func StandardPaths() []string {
	paths := []string{}

	// 1. Current directory
	paths = append(paths, "credentials.toml")

	// 2. ~/.config/flowwork/credentials.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "flowwork", "credentials.toml"))
	}

	// 3. ~/.flowwork/credentials.toml (fallback)
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".flowwork", "credentials.toml"))
	}

	return paths
}

// Load loads credentials from the first available standard location
func Load() (*Credentials, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			creds, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return creds, path, nil
		}
	}
	return nil, "", nil // No credentials file found (not an error)
}

// LoadFile loads credentials from a specific file.
// Returns ErrInsecurePermissions if file is readable by group or others.
func LoadFile(path string) (*Credentials, error) {
	// Check file permissions (Unix only)
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		mode := info.Mode().Perm()
		// Credentials must be 0400 (owner read-only)
		if mode != 0400 {
			return nil, fmt.Errorf("%w: %s has mode %04o (must be 0400)",
				ErrInsecurePermissions, path, mode)
		}
	}

	// First pass: decode into a generic map to get all sections
	var rawData map[string]interface{}
	if _, err := toml.DecodeFile(path, &rawData); err != nil {
		return nil, err
	}

	creds := &Credentials{
		providers: make(map[string]*ProviderCreds),
	}

	// Extract sections
	for key, value := range rawData {
		section, ok := value.(map[string]interface{})
		if !ok {
			continue
		}

		if key == "ipfs" {
			endpoint, _ := section["endpoint"].(string)
			token, _ := section["token"].(string)
			if endpoint != "" || token != "" {
				creds.IPFS = &IPFSCreds{Endpoint: endpoint, Token: token}
			}
			continue
		}

		apiKey, _ := section["api_key"].(string)
		if apiKey == "" {
			continue
		}

		provCreds := &ProviderCreds{APIKey: apiKey}

		if key == "llm" {
			creds.LLM = provCreds
		} else {
			creds.providers[key] = provCreds
		}
	}

	return creds, nil
}

// GetAPIKey returns the API key for a provider.
// Priority: [provider] section > [llm] section > environment variable
func (c *Credentials) GetAPIKey(provider string) string {
	if c != nil {
		// Normalize provider name (lowercase, no dashes)
		normalized := strings.ToLower(strings.ReplaceAll(provider, "-", ""))

		// Check provider-specific section first
		if creds, ok := c.providers[provider]; ok && creds.APIKey != "" {
			return creds.APIKey
		}
		// Try normalized name
		if creds, ok := c.providers[normalized]; ok && creds.APIKey != "" {
			return creds.APIKey
		}

		// Fall back to generic [llm] section
		if c.LLM != nil && c.LLM.APIKey != "" {
			return c.LLM.APIKey
		}
	}

	// Fallback to environment variable
	return os.Getenv(envVarForProvider(provider))
}

// GetIPFS returns the pinning endpoint and token, falling back to the
// IPFS_ENDPOINT and IPFS_TOKEN environment variables.
func (c *Credentials) GetIPFS() (endpoint, token string) {
	if c != nil && c.IPFS != nil {
		endpoint, token = c.IPFS.Endpoint, c.IPFS.Token
	}
	if endpoint == "" {
		endpoint = os.Getenv("IPFS_ENDPOINT")
	}
	if token == "" {
		token = os.Getenv("IPFS_TOKEN")
	}
	return endpoint, token
}

// envVarForProvider returns the environment variable name for a provider.
func envVarForProvider(provider string) string {
	// Known providers with standard env vars
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	default:
		// Generic: PROVIDER_API_KEY
		return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
	}
}
