// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package settings

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvOverrides is the small set of environment-variable-only settings
// spec.md §6 names: credentials/endpoints and the AXON_HOME storage
// override. These never round-trip through settings.json (spec.md's
// credentials.json is a separate file, kept out of the versioned settings
// merge on purpose) — they're read fresh from the process environment via
// viper, repurposed here from the drone subsystem's config reader in the
// teacher repo.
type EnvOverrides struct {
	APIKey               string
	APIURL               string
	EmbeddingBackendURL  string
	VectorStoreURL       string
	DefaultCollection    string
	ConfigRoot           string
}

// LoadEnvOverrides reads AXON_* environment variables via viper's env
// binding, matching the teacher's convention of a typed, defaulted reader
// over raw os.Getenv calls scattered through the codebase.
func LoadEnvOverrides() EnvOverrides {
	v := viper.New()
	v.SetEnvPrefix("axon")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("api_url", "")
	v.SetDefault("embedding_url", "http://localhost:8000")
	v.SetDefault("vector_store_url", "localhost:6334")
	v.SetDefault("collection", "web")
	v.SetDefault("home", "")

	return EnvOverrides{
		APIKey:              v.GetString("api_key"),
		APIURL:              v.GetString("api_url"),
		EmbeddingBackendURL: v.GetString("embedding_url"),
		VectorStoreURL:      v.GetString("vector_store_url"),
		DefaultCollection:   v.GetString("collection"),
		ConfigRoot:          v.GetString("home"),
	}
}
