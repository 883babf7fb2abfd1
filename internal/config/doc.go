// Package config provides configuration management for soundcloud-offline.
//
// This package handles:
//   - Loading and saving settings from JSON or YAML files
//   - Default configuration values
//   - Environment overrides for OAuth2 credentials and log level
//   - Conversion to the per-component configs (auth, transport, naming)
//
// # Default Settings
//
// Use DefaultSettings() to get sensible defaults:
//
//	settings := config.DefaultSettings()
//	// Talks to https://api.soundcloud.com
//	// Stores credentials and metadata in ~/.soundcloud-offline/library.db
//	// ID3 tagging enabled
//
// # Loading from File
//
// The file format follows the extension: .yaml and .yml are YAML, anything
// else is JSON.
//
//	settings, err := config.Load("/path/to/config.yaml")
//	if err != nil {
//	    // Uses defaults if file doesn't exist
//	}
//
// # Environment
//
// SC_CLIENT_ID, SC_CLIENT_SECRET, SC_REDIRECT_URI and SC_LOG_LEVEL override
// the file values when set, so secrets can stay out of the config file.
//
// # Saving Settings
//
//	settings.DownloadsPath = "/custom/path"
//	err := settings.Save("/path/to/config.json")
package config
