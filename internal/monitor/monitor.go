// Package monitor renders a stream of OTA status reports into a
// user-facing rollout dialog state. One Monitor runs per watched
// device as a single goroutine; all state lives inside Run's loop.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/prudhvinik1/wattsync/internal/models"
	"github.com/rs/zerolog"
)

type Stage string

const (
	StageIdle        Stage = "idle"
	StageStarting    Stage = "starting"
	StageDownloading Stage = "downloading"
	StageInstalling  Stage = "installing"
	StageComplete    Stage = "complete"
	StageFailed      Stage = "failed"
	StageNoUpdate    Stage = "no_update"
)

// Snapshot is what a display layer renders: whether the rollout dialog
// is up, and what it shows.
type Snapshot struct {
	Visible  bool
	Stage    Stage
	Progress float64
	Message  string
}

// Notifier receives the one-shot toasts a rollout produces.
type Notifier interface {
	Success(deviceID, message string)
	Failure(deviceID, message string, hints []string)
	Info(deviceID, message string)
}

// FailureHints are the remediation steps shown with a failed rollout.
var FailureHints = []string{
	"Check device internet connection",
	"Ensure device has sufficient storage",
	"Verify firmware file is valid",
}

type Config struct {
	// ActiveTimeout hides the dialog when a device goes silent
	// mid-update.
	ActiveTimeout time.Duration
	// FailedLinger and NoUpdateLinger keep terminal notices readable
	// before auto-hiding.
	FailedLinger   time.Duration
	NoUpdateLinger time.Duration
	// ReconcileWindow bounds how old a stored status may be and still
	// be replayed when a dashboard opens mid-rollout.
	ReconcileWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		ActiveTimeout:   5 * time.Second,
		FailedLinger:    5 * time.Second,
		NoUpdateLinger:  2 * time.Second,
		ReconcileWindow: 5 * time.Minute,
	}
}

// StatusFetcher loads the stored latest status for reconciliation.
// May be nil when no store is available.
type StatusFetcher func(ctx context.Context) (*models.OTAStatusRecord, error)

type Monitor struct {
	deviceID string
	events   <-chan models.OTAStatusRecord
	fetch    StatusFetcher
	notifier Notifier
	onChange func(Snapshot)
	cfg      Config
	log      zerolog.Logger

	// Loop-local; only Run's goroutine touches these.
	snap     Snapshot
	watchdog *time.Timer
	hide     *time.Timer
}

func New(
	deviceID string,
	events <-chan models.OTAStatusRecord,
	fetch StatusFetcher,
	notifier Notifier,
	onChange func(Snapshot),
	cfg Config,
	log zerolog.Logger,
) *Monitor {
	return &Monitor{
		deviceID: deviceID,
		events:   events,
		fetch:    fetch,
		notifier: notifier,
		onChange: onChange,
		cfg:      cfg,
		log:      log,
	}
}

// Run drives the state machine until the context is cancelled or the
// event stream closes. It reconciles against the stored status first,
// so a dashboard opened mid-rollout picks up where the device is.
func (m *Monitor) Run(ctx context.Context) {
	m.snap = Snapshot{Stage: StageIdle}
	m.reconcile(ctx)

	for {
		var watchdogC, hideC <-chan time.Time
		if m.watchdog != nil {
			watchdogC = m.watchdog.C
		}
		if m.hide != nil {
			hideC = m.hide.C
		}

		select {
		case <-ctx.Done():
			m.stopTimers()
			return
		case record, ok := <-m.events:
			if !ok {
				m.stopTimers()
				return
			}
			m.process(record)
		case <-watchdogC:
			m.watchdog = nil
			m.log.Debug().Str("device_id", m.deviceID).Msg("no OTA reports within watchdog window, hiding dialog")
			m.snap.Visible = false
			m.emit()
		case <-hideC:
			m.hide = nil
			m.snap.Visible = false
			m.emit()
		}
	}
}

func (m *Monitor) reconcile(ctx context.Context) {
	if m.fetch == nil {
		return
	}
	record, err := m.fetch(ctx)
	if err != nil {
		m.log.Debug().Err(err).Str("device_id", m.deviceID).Msg("no stored OTA status to reconcile")
		return
	}
	if !record.Status.Active() {
		return
	}
	if time.Since(record.Timestamp) >= m.cfg.ReconcileWindow {
		return
	}
	m.process(*record)
}

func (m *Monitor) process(record models.OTAStatusRecord) {
	progress := float64(record.Progress)

	switch record.Status {
	case models.OTAHeartbeat:
		// Keeps presence alive; means nothing to the dialog.
		return

	case models.OTAStarting:
		m.show(StageStarting, 0, orDefault(record.Message, "Starting firmware update..."))
		m.armWatchdog()

	case models.OTADownloading:
		m.show(StageDownloading, progress,
			orDefault(record.Message, fmt.Sprintf("Downloading firmware... %d%%", record.Progress)))
		m.armWatchdog()

	case models.OTAInstalling:
		// Installation is the last tenth of the displayed bar.
		m.show(StageInstalling, 90+progress/10, "Installing firmware... Please do not power off device")
		m.armWatchdog()

	case models.OTAComplete:
		m.cancelWatchdog()
		message := orDefault(record.Message, "Firmware update completed successfully!")
		m.show(StageComplete, 100, message)
		m.notifier.Success(m.deviceID, message)
		// Hide on the next tick, not this one, so the 100% state gets
		// a final paint.
		m.scheduleHide(0)

	case models.OTAFailed:
		m.cancelWatchdog()
		message := orDefault(record.Message, "Firmware update failed")
		m.show(StageFailed, 0, message)
		m.notifier.Failure(m.deviceID, message, FailureHints)
		m.scheduleHide(m.cfg.FailedLinger)

	case models.OTANoUpdate:
		m.cancelWatchdog()
		m.show(StageNoUpdate, 100, orDefault(record.Message, "No firmware updates available"))
		m.notifier.Info(m.deviceID, "Device is already up to date")
		m.scheduleHide(m.cfg.NoUpdateLinger)

	default:
		m.log.Warn().Str("device_id", m.deviceID).Str("status", string(record.Status)).
			Msg("ignoring unknown OTA status")
	}
}

func (m *Monitor) show(stage Stage, progress float64, message string) {
	// A fresh report supersedes any pending auto-hide.
	m.cancelHide()
	m.snap = Snapshot{Visible: true, Stage: stage, Progress: progress, Message: message}
	m.emit()
}

func (m *Monitor) emit() {
	if m.onChange != nil {
		m.onChange(m.snap)
	}
}

func (m *Monitor) armWatchdog() {
	if m.watchdog != nil {
		m.watchdog.Stop()
	}
	m.watchdog = time.NewTimer(m.cfg.ActiveTimeout)
}

func (m *Monitor) cancelWatchdog() {
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
}

func (m *Monitor) scheduleHide(after time.Duration) {
	m.cancelHide()
	m.hide = time.NewTimer(after)
}

func (m *Monitor) cancelHide() {
	if m.hide != nil {
		m.hide.Stop()
		m.hide = nil
	}
}

func (m *Monitor) stopTimers() {
	m.cancelWatchdog()
	m.cancelHide()
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
