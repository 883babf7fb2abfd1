package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/handiism/soundcloud-offline/internal/auth"
	"github.com/handiism/soundcloud-offline/internal/http"
	"github.com/handiism/soundcloud-offline/internal/model"
)

// Settings holds all configuration options.
type Settings struct {
	// API endpoints
	APIBaseURL   string `json:"api_base_url" yaml:"api_base_url"`
	TokenURL     string `json:"token_url" yaml:"token_url"`
	AuthorizeURL string `json:"authorize_url" yaml:"authorize_url"`

	// OAuth2 application
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	RedirectURI  string `json:"redirect_uri" yaml:"redirect_uri"`

	// Transport
	RequestTimeoutSeconds int     `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	RequestsPerSecond     float64 `json:"requests_per_second" yaml:"requests_per_second"`
	RequestBurst          int     `json:"request_burst" yaml:"request_burst"`
	UserAgent             string  `json:"user_agent" yaml:"user_agent"`
	PageSize              int     `json:"page_size" yaml:"page_size"`

	// Storage
	DatabasePath    string `json:"database_path" yaml:"database_path"`
	DownloadsPath   string `json:"downloads_path" yaml:"downloads_path"`
	ArtifactBackend string `json:"artifact_backend" yaml:"artifact_backend"` // file, redis
	RedisURL        string `json:"redis_url" yaml:"redis_url"`

	// File naming
	FileNameFormat         string `json:"file_name_format" yaml:"file_name_format"`
	PlaylistFileNameFormat string `json:"playlist_file_name_format" yaml:"playlist_file_name_format"`

	// Tag settings
	ModifyTags            bool `json:"modify_tags" yaml:"modify_tags"`
	SaveCoverArtInTags    bool `json:"save_cover_art_in_tags" yaml:"save_cover_art_in_tags"`
	CoverArtInTagsResize  bool `json:"cover_art_in_tags_resize" yaml:"cover_art_in_tags_resize"`
	CoverArtInTagsMaxSize int  `json:"cover_art_in_tags_max_size" yaml:"cover_art_in_tags_max_size"`
	ConvertCoverArtToJPG  bool `json:"convert_cover_art_to_jpg" yaml:"convert_cover_art_to_jpg"`
	ArtworkCacheSize      int  `json:"artwork_cache_size" yaml:"artwork_cache_size"`

	// Playlist settings
	PlaylistFormat string `json:"playlist_format" yaml:"playlist_format"` // m3u, pls, wpl, zpl
	M3UExtended    bool   `json:"m3u_extended" yaml:"m3u_extended"`

	// Observability
	LogLevel         string `json:"log_level" yaml:"log_level"`
	LogFormat        string `json:"log_format" yaml:"log_format"` // text, json
	MetricsNamespace string `json:"metrics_namespace" yaml:"metrics_namespace"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".soundcloud-offline")
	return &Settings{
		APIBaseURL:   "https://api.soundcloud.com",
		TokenURL:     "https://secure.soundcloud.com/oauth/token",
		AuthorizeURL: "https://secure.soundcloud.com/authorize",
		RedirectURI:  "http://localhost:8085/callback",

		RequestTimeoutSeconds: 60,
		RequestsPerSecond:     10,
		RequestBurst:          5,
		UserAgent:             "soundcloud-offline",
		PageSize:              50,

		DatabasePath:    filepath.Join(dataDir, "library.db"),
		DownloadsPath:   filepath.Join(dataDir, "tracks"),
		ArtifactBackend: "file",
		RedisURL:        "redis://localhost:6379/0",

		FileNameFormat:         "{artist} - {title}.mp3",
		PlaylistFileNameFormat: "{title}",

		ModifyTags:            true,
		SaveCoverArtInTags:    true,
		CoverArtInTagsResize:  true,
		CoverArtInTagsMaxSize: 1000,
		ConvertCoverArtToJPG:  true,
		ArtworkCacheSize:      64,

		PlaylistFormat: "m3u",
		M3UExtended:    true,

		LogLevel:         "info",
		LogFormat:        "text",
		MetricsNamespace: "soundcloud_offline",
	}
}

// Load reads settings from a JSON or YAML file (chosen by extension) and
// applies environment overrides. A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if isYAML(path) {
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}

	settings.ApplyEnv()
	return settings, nil
}

// ApplyEnv overrides fields from SC_CLIENT_ID, SC_CLIENT_SECRET,
// SC_REDIRECT_URI and SC_LOG_LEVEL when they are set.
func (s *Settings) ApplyEnv() {
	s.ClientID = getEnvOrDefault("SC_CLIENT_ID", s.ClientID)
	s.ClientSecret = getEnvOrDefault("SC_CLIENT_SECRET", s.ClientSecret)
	s.RedirectURI = getEnvOrDefault("SC_REDIRECT_URI", s.RedirectURI)
	s.LogLevel = getEnvOrDefault("SC_LOG_LEVEL", s.LogLevel)
}

// Save writes settings to a JSON or YAML file, chosen by extension.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(s)
	} else {
		data, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return err
	}

	// client_secret may be stored here
	return os.WriteFile(path, data, 0600)
}

// ToAuthConfig converts settings to the auth gateway configuration.
func (s *Settings) ToAuthConfig() auth.Config {
	return auth.Config{
		TokenURL:     s.TokenURL,
		AuthorizeURL: s.AuthorizeURL,
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURI:  s.RedirectURI,
	}
}

// ToTransportConfig converts settings to the HTTP transport configuration.
func (s *Settings) ToTransportConfig() http.Config {
	return http.Config{
		Timeout:           time.Duration(s.RequestTimeoutSeconds) * time.Second,
		RequestsPerSecond: s.RequestsPerSecond,
		Burst:             s.RequestBurst,
		UserAgent:         s.UserAgent,
	}
}

// ToTrackConfig converts settings to TrackConfig.
func (s *Settings) ToTrackConfig() *model.TrackConfig {
	return &model.TrackConfig{
		FileNameFormat: s.FileNameFormat,
	}
}

// ToPlaylistFormat converts the playlist_format setting.
func (s *Settings) ToPlaylistFormat() model.PlaylistFormat {
	return model.ParsePlaylistFormat(s.PlaylistFormat)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func getEnvOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
