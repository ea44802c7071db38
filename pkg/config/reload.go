package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/wholebody/wbc/pkg/logger"
	"github.com/wholebody/wbc/pkg/types"
)

// ReloadManager watches a scene file and reloads it on change
type ReloadManager struct {
	configPath     string
	logger         logger.Logger
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	lastModTime    time.Time
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	isWatching     bool
}

// ReloadCallback receives every reload attempt. Exactly one of event.Config and event.Error is set.
type ReloadCallback func(event ReloadEvent)

// ReloadEvent describes one reload attempt
type ReloadEvent struct {
	Path      string           `json:"path"`
	Timestamp time.Time        `json:"timestamp"`
	Config    *types.SceneFile `json:"config,omitempty"`
	Error     error            `json:"error,omitempty"`
	EventType ReloadEventType  `json:"eventType"`
}

// ReloadEventType represents the type of reload event
type ReloadEventType string

const (
	ReloadEventTypeModified ReloadEventType = "modified"
	ReloadEventTypeCreated  ReloadEventType = "created"
	ReloadEventTypeRemoved  ReloadEventType = "removed"
	ReloadEventTypeError    ReloadEventType = "error"
)

// NewReloadManager creates a reload manager for configPath
func NewReloadManager(configPath string, log logger.Logger) *ReloadManager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ReloadManager{
		configPath:     configPath,
		logger:         log.WithComponent("config"),
		debouncePeriod: 500 * time.Millisecond,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// AddCallback adds a reload callback
func (rm *ReloadManager) AddCallback(callback ReloadCallback) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.callbacks = append(rm.callbacks, callback)
}

// RemoveAllCallbacks removes all reload callbacks
func (rm *ReloadManager) RemoveAllCallbacks() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.callbacks = nil
}

// StartWatching begins watching the scene file for changes
func (rm *ReloadManager) StartWatching() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isWatching {
		return fmt.Errorf("already watching configuration file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Editors replace files on save, so the directory is watched rather than the file
	if err := watcher.Add(filepath.Dir(rm.configPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	rm.watcher = watcher

	if stat, err := os.Stat(rm.configPath); err == nil {
		rm.lastModTime = stat.ModTime()
	}
	rm.isWatching = true

	go rm.watchLoop(watcher)

	rm.logger.Debug("Started watching configuration file",
		logger.WithField("path", rm.configPath))
	return nil
}

// StopWatching stops watching the scene file
func (rm *ReloadManager) StopWatching() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if !rm.isWatching {
		return nil
	}

	rm.cancel()
	if rm.debounceTimer != nil {
		rm.debounceTimer.Stop()
		rm.debounceTimer = nil
	}
	if rm.watcher != nil {
		if err := rm.watcher.Close(); err != nil {
			rm.logger.Warn("Error closing file watcher", logger.WithError(err))
		}
		rm.watcher = nil
	}
	rm.isWatching = false

	rm.logger.Debug("Stopped watching configuration file")
	return nil
}

// IsWatching returns whether the manager is currently watching
func (rm *ReloadManager) IsWatching() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.isWatching
}

// TriggerReload reloads the file now, regardless of its modification time
func (rm *ReloadManager) TriggerReload() {
	rm.logger.Debug("Manually triggering configuration reload")
	rm.reload(ReloadEventTypeModified, true)
}

func (rm *ReloadManager) watchLoop(watcher *fsnotify.Watcher) {
	defer func() {
		if r := recover(); r != nil {
			rm.logger.Error("Configuration watcher panic recovered",
				logger.WithField("panic", r))
		}
	}()

	for {
		select {
		case <-rm.ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !rm.isConfigFileEvent(event.Name) {
				continue
			}
			rm.logger.Debug("Configuration file event received",
				logger.WithField("event", event.String()))
			rm.debounceReload(rm.mapFsnotifyEvent(event.Op))

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			rm.logger.Error("Configuration file watcher error", logger.WithError(err))
			rm.notifyCallbacks(nil, err, ReloadEventTypeError)
		}
	}
}

func (rm *ReloadManager) isConfigFileEvent(eventPath string) bool {
	configFileName := filepath.Base(rm.configPath)
	eventFileName := filepath.Base(eventPath)
	if eventFileName == configFileName {
		return true
	}
	// Editor swap files such as scene.yml.tmp
	return strings.HasPrefix(eventFileName, configFileName) && strings.HasSuffix(eventFileName, ".tmp")
}

func (rm *ReloadManager) mapFsnotifyEvent(op fsnotify.Op) ReloadEventType {
	switch {
	case op.Has(fsnotify.Write):
		return ReloadEventTypeModified
	case op.Has(fsnotify.Create):
		return ReloadEventTypeCreated
	case op.Has(fsnotify.Remove):
		return ReloadEventTypeRemoved
	default:
		return ReloadEventTypeModified
	}
}

func (rm *ReloadManager) debounceReload(eventType ReloadEventType) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.debounceTimer != nil {
		rm.debounceTimer.Stop()
	}
	rm.debounceTimer = time.AfterFunc(rm.debouncePeriod, func() {
		rm.reload(eventType, false)
	})
}

func (rm *ReloadManager) reload(eventType ReloadEventType, force bool) {
	rm.logger.Debug("Processing configuration change",
		logger.WithField("eventType", eventType))

	if eventType == ReloadEventTypeRemoved {
		if _, err := os.Stat(rm.configPath); err != nil {
			rm.notifyCallbacks(nil, fmt.Errorf("configuration file was removed: %s", rm.configPath), eventType)
			return
		}
	}

	stat, err := os.Stat(rm.configPath)
	if err != nil {
		rm.logger.Error("Failed to stat configuration file", logger.WithError(err))
		rm.notifyCallbacks(nil, err, ReloadEventTypeError)
		return
	}

	rm.mu.Lock()
	if !force && !stat.ModTime().After(rm.lastModTime) {
		rm.mu.Unlock()
		rm.logger.Debug("Configuration file not modified, skipping reload")
		return
	}
	rm.lastModTime = stat.ModTime()
	rm.mu.Unlock()

	cfg, err := NewManager().LoadConfig(rm.configPath)
	if err != nil {
		rm.logger.Error("Failed to reload configuration", logger.WithError(err))
		rm.notifyCallbacks(nil, err, ReloadEventTypeError)
		return
	}

	rm.logger.Info("Configuration reloaded successfully",
		logger.WithField("constraints", len(cfg.Constraints)))
	rm.notifyCallbacks(cfg, nil, eventType)
}

func (rm *ReloadManager) notifyCallbacks(cfg *types.SceneFile, err error, eventType ReloadEventType) {
	rm.mu.RLock()
	callbacks := make([]ReloadCallback, len(rm.callbacks))
	copy(callbacks, rm.callbacks)
	rm.mu.RUnlock()

	event := ReloadEvent{
		Path:      rm.configPath,
		Timestamp: time.Now(),
		Config:    cfg,
		Error:     err,
		EventType: eventType,
	}

	rm.logger.Debug("Notifying reload callbacks",
		logger.WithField("callbackCount", len(callbacks)),
		logger.WithField("eventType", eventType))

	for _, callback := range callbacks {
		func(cb ReloadCallback) {
			defer func() {
				if r := recover(); r != nil {
					rm.logger.Error("Reload callback panic recovered",
						logger.WithField("panic", r))
				}
			}()
			cb(event)
		}(callback)
	}
}

// SetDebouncePeriod sets the debounce period for file change events
func (rm *ReloadManager) SetDebouncePeriod(period time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.debouncePeriod = period
}

// GetLastReloadTime returns the modification time of the last loaded file
func (rm *ReloadManager) GetLastReloadTime() time.Time {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.lastModTime
}

// GetConfigPath returns the path of the watched scene file
func (rm *ReloadManager) GetConfigPath() string {
	return rm.configPath
}
