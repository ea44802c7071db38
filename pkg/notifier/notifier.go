// Package notifier sends desktop notifications about scene reloads and solver failures
package notifier

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/wholebody/wbc/pkg/logger"
)

// SendFunc delivers one notification
type SendFunc func(title, message string) error

// SolveNotifier reports watch-mode events to the desktop
type SolveNotifier struct {
	enabled bool
	sound   bool
	send    SendFunc
	logger  logger.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
	cooldown time.Duration
}

// Config represents notification configuration
type Config struct {
	Enabled bool
	// Sound plays a beep with failure notifications
	Sound bool
	// Cooldown suppresses repeated notifications with the same title
	Cooldown time.Duration
}

// New creates a notifier delivering through beeep
func New(config Config, log logger.Logger) *SolveNotifier {
	return NewWithSender(config, log, func(title, message string) error {
		return beeep.Notify(title, message, "")
	})
}

// NewWithSender creates a notifier with a custom delivery function
func NewWithSender(config Config, log logger.Logger, send SendFunc) *SolveNotifier {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &SolveNotifier{
		enabled:  config.Enabled,
		sound:    config.Sound,
		send:     send,
		logger:   log.WithComponent("notifier"),
		lastSent: make(map[string]time.Time),
		cooldown: config.Cooldown,
	}
}

// NotifyReload reports a successfully reloaded scene file
func (n *SolveNotifier) NotifyReload(path string, constraints int) {
	n.notify("Scene reloaded", fmt.Sprintf("%s: %d constraints", path, constraints), false)
}

// NotifyReloadFailure reports a scene file that could not be reloaded
func (n *SolveNotifier) NotifyReloadFailure(path string, err error) {
	n.notify("Scene reload failed", fmt.Sprintf("%s: %v", path, err), true)
}

// NotifySolveFailure reports a failed control cycle
func (n *SolveNotifier) NotifySolveFailure(scene string, err error) {
	n.notify("Solve failed", fmt.Sprintf("%s: %v", scene, err), true)
}

// NotifyCycleSummary reports a finished batch of control cycles
func (n *SolveNotifier) NotifyCycleSummary(cycles, failures int, duration time.Duration) {
	title := "Cycles finished"
	if failures > 0 {
		title = "Cycles finished with failures"
	}
	n.notify(title, fmt.Sprintf("%d cycles, %d failed in %s", cycles, failures, formatDuration(duration)), failures > 0)
}

func (n *SolveNotifier) notify(title, message string, failure bool) {
	if !n.enabled {
		return
	}

	n.mu.Lock()
	if last, ok := n.lastSent[title]; ok && n.cooldown > 0 && time.Since(last) < n.cooldown {
		n.mu.Unlock()
		n.logger.Debug("Notification suppressed", logger.WithField("title", title))
		return
	}
	n.lastSent[title] = time.Now()
	n.mu.Unlock()

	if err := n.send(title, message); err != nil {
		// Headless hosts have no notification daemon
		n.logger.Debug("Failed to send notification", logger.WithError(err))
		n.logger.Info(fmt.Sprintf("%s: %s", title, message))
	}
	if failure && n.sound {
		if err := beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithError(err))
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
