package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server         ServerSettings         `json:"server"`
	Catalog        CatalogSettings        `json:"catalog"`
	Cache          CacheSettings          `json:"cache"`
	Library        LibrarySettings        `json:"library"`
	Log            LogConfig              `json:"log"`
	ScheduledTasks ScheduledTasksSettings `json:"scheduledTasks,omitempty"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// CatalogSettings configures the external catalog clients.
type CatalogSettings struct {
	TMDBAPIKey        string `json:"tmdbApiKey"`
	Language          string `json:"language"`
	RequestTimeoutSec int    `json:"requestTimeoutSec"` // per upstream request (0 = 15s)
	SearchPerSource   int    `json:"searchPerSource"`   // results requested from each source per query
}

type CacheSettings struct {
	Directory       string `json:"directory"`
	CatalogTTLHours int    `json:"catalogTtlHours"`
}

// LibrarySettings configures the collection store.
type LibrarySettings struct {
	DatabasePath string `json:"databasePath"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// ScheduledTaskType defines the type of scheduled task
type ScheduledTaskType string

const (
	ScheduledTaskTypeCachePrune      ScheduledTaskType = "cache_prune"
	ScheduledTaskTypeWatchingRefresh ScheduledTaskType = "watching_refresh"
)

// ScheduledTaskFrequency defines how often a task runs
type ScheduledTaskFrequency string

const (
	ScheduledTaskFrequency15Min   ScheduledTaskFrequency = "15min"
	ScheduledTaskFrequency30Min   ScheduledTaskFrequency = "30min"
	ScheduledTaskFrequencyHourly  ScheduledTaskFrequency = "hourly"
	ScheduledTaskFrequency6Hours  ScheduledTaskFrequency = "6hours"
	ScheduledTaskFrequency12Hours ScheduledTaskFrequency = "12hours"
	ScheduledTaskFrequencyDaily   ScheduledTaskFrequency = "daily"
)

// ScheduledTaskStatus represents the last run status
type ScheduledTaskStatus string

const (
	ScheduledTaskStatusPending ScheduledTaskStatus = "pending"
	ScheduledTaskStatusRunning ScheduledTaskStatus = "running"
	ScheduledTaskStatusSuccess ScheduledTaskStatus = "success"
	ScheduledTaskStatusError   ScheduledTaskStatus = "error"
)

// ScheduledTask represents a single scheduled task configuration
type ScheduledTask struct {
	ID             string                 `json:"id"`
	Type           ScheduledTaskType      `json:"type"`
	Name           string                 `json:"name"`
	Enabled        bool                   `json:"enabled"`
	Frequency      ScheduledTaskFrequency `json:"frequency"`
	Config         map[string]string      `json:"config,omitempty"` // Task-specific config (e.g., profileId)
	LastRunAt      *time.Time             `json:"lastRunAt,omitempty"`
	LastStatus     ScheduledTaskStatus    `json:"lastStatus"`
	LastError      string                 `json:"lastError,omitempty"`
	ItemsProcessed int                    `json:"itemsProcessed,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// ScheduledTasksSettings contains all scheduled task configurations
type ScheduledTasksSettings struct {
	Tasks                []ScheduledTask `json:"tasks"`
	CheckIntervalSeconds int             `json:"checkIntervalSeconds"` // How often scheduler checks for due tasks (default: 60)
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 7070},
		Catalog: CatalogSettings{
			TMDBAPIKey:        "",
			Language:          "en",
			RequestTimeoutSec: 15,
			SearchPerSource:   20,
		},
		Cache:   CacheSettings{Directory: "cache", CatalogTTLHours: 24},
		Library: LibrarySettings{DatabasePath: "cache/library.db"},
		Log: LogConfig{
			File:       "cache/logs/backend.log",
			Level:      "info",
			MaxSize:    50,   // 50 MB per file
			MaxBackups: 3,    // keep 3 old files
			MaxAge:     7,    // 7 days
			Compress:   true, // compress old files
		},
		ScheduledTasks: ScheduledTasksSettings{
			Tasks: []ScheduledTask{
				{
					ID:         "cache-prune",
					Type:       ScheduledTaskTypeCachePrune,
					Name:       "Prune expired catalog cache",
					Enabled:    true,
					Frequency:  ScheduledTaskFrequency6Hours,
					LastStatus: ScheduledTaskStatusPending,
					CreatedAt:  time.Now().UTC(),
				},
				{
					ID:         "watching-refresh",
					Type:       ScheduledTaskTypeWatchingRefresh,
					Name:       "Refresh totals for watching items",
					Enabled:    true,
					Frequency:  ScheduledTaskFrequencyDaily,
					LastStatus: ScheduledTaskStatusPending,
					CreatedAt:  time.Now().UTC(),
				},
			},
			CheckIntervalSeconds: 60, // Check every 60 seconds
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		// create with defaults
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	// First, try to decode into a raw map to check for old formats
	var raw map[string]interface{}
	dec := json.NewDecoder(f)
	if err := dec.Decode(&raw); err != nil {
		return Settings{}, err
	}

	// Early configs kept the TMDB key under a "metadata" section; move it
	// into "catalog" when the new section is absent.
	if metaRaw, ok := raw["metadata"].(map[string]interface{}); ok {
		if _, hasCatalog := raw["catalog"]; !hasCatalog {
			catalog := map[string]interface{}{}
			if key, _ := metaRaw["tmdbApiKey"].(string); key != "" {
				catalog["tmdbApiKey"] = key
			}
			if lang, _ := metaRaw["language"].(string); lang != "" {
				catalog["language"] = lang
			}
			raw["catalog"] = catalog
		}
		delete(raw, "metadata")
	}

	// Cache TTL used to be named metadataTtlHours.
	if cacheRaw, ok := raw["cache"].(map[string]interface{}); ok {
		if ttl, has := cacheRaw["metadataTtlHours"]; has {
			if _, hasNew := cacheRaw["catalogTtlHours"]; !hasNew {
				cacheRaw["catalogTtlHours"] = ttl
			}
			delete(cacheRaw, "metadataTtlHours")
		}
	}

	// Re-encode and decode into Settings struct
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := json.Unmarshal(rawJSON, &s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for newly introduced settings when config predates them
	if strings.TrimSpace(s.Catalog.Language) == "" {
		s.Catalog.Language = "en"
	}
	if s.Catalog.RequestTimeoutSec == 0 {
		s.Catalog.RequestTimeoutSec = 15
	}
	if s.Catalog.SearchPerSource == 0 {
		s.Catalog.SearchPerSource = 20
	}

	if strings.TrimSpace(s.Cache.Directory) == "" {
		s.Cache.Directory = "cache"
	}
	if s.Cache.CatalogTTLHours == 0 {
		s.Cache.CatalogTTLHours = 24
	}

	if strings.TrimSpace(s.Library.DatabasePath) == "" {
		s.Library.DatabasePath = "cache/library.db"
	}

	// Backfill Log settings
	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = "cache/logs/backend.log"
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = 50
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = 3
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = 7
	}

	// Backfill ScheduledTasks settings
	if s.ScheduledTasks.CheckIntervalSeconds == 0 {
		s.ScheduledTasks.CheckIntervalSeconds = 60
	}
	if s.ScheduledTasks.Tasks == nil {
		s.ScheduledTasks.Tasks = DefaultSettings().ScheduledTasks.Tasks
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
