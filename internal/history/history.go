/*
Package history keeps a per-day ledger of extraction runs so that a failing job alerts once per
report day instead of on every scheduled run.
*/
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shanehull/bullionscraper/internal/logger"
)

const (
	historyFileName = "run_history.json"
	historyDirName  = "bullionscraper"
)

// Run is one completed extraction run.
type Run struct {
	Time     time.Time `json:"time"`
	Accepted bool      `json:"accepted"`
	Source   string    `json:"source,omitempty"`
	Attempts int       `json:"attempts"`
	Coverage float64   `json:"coverage"`
	Reason   string    `json:"reason,omitempty"`
}

type History struct {
	ReportDate     string
	Runs           []Run
	FailureAlerted bool
}

type Manager struct {
	history         History
	mutex           sync.Mutex
	historyFilePath string
	reportLocation  *time.Location
	log             *logger.Logger
	now             func() time.Time
}

// NewManager opens the ledger in dir, or in a directory under the system temp dir when dir is
// empty. Report days follow tzName.
func NewManager(dir, tzName string, log *logger.Logger) (*Manager, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), historyDirName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory %s: %w", dir, err)
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone name '%s': %w", tzName, err)
	}
	if log == nil {
		log = logger.Nop()
	}

	m := &Manager{
		historyFilePath: filepath.Join(dir, historyFileName),
		reportLocation:  loc,
		log:             log,
		now:             time.Now,
	}

	m.loadHistory()
	return m, nil
}

func (m *Manager) loadHistory() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	today := m.getCurrentReportDate()
	m.history = History{ReportDate: today}

	data, err := os.ReadFile(m.historyFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.log.Debug("history file not found, starting fresh", logger.String("path", m.historyFilePath))
			return
		}
		m.log.Warn("error reading history file, starting fresh", logger.String("path", m.historyFilePath), logger.Error(err))
		return
	}

	var loaded History
	if err := json.Unmarshal(data, &loaded); err != nil {
		m.log.Warn("error unmarshalling history, starting fresh", logger.Error(err))
		return
	}

	if loaded.ReportDate == today {
		m.history = loaded
		m.log.Debug("loaded run history", logger.Int("runs", len(loaded.Runs)), logger.String("date", today))
		return
	}
	m.log.Debug("history is from a previous day", logger.String("history_date", loaded.ReportDate), logger.String("date", today))
}

func (m *Manager) saveHistory() error {
	data, err := json.MarshalIndent(m.history, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := os.WriteFile(m.historyFilePath, data, 0o644); err != nil {
		return fmt.Errorf("write history file %s: %w", m.historyFilePath, err)
	}
	return nil
}

// rollover starts a new day's ledger when the report date has changed since loading.
func (m *Manager) rollover() {
	if today := m.getCurrentReportDate(); m.history.ReportDate != today {
		m.history = History{ReportDate: today}
	}
}

// RecordRun appends run to today's ledger. An accepted run re-arms the failure alert.
func (m *Manager) RecordRun(run Run) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.rollover()
	m.history.Runs = append(m.history.Runs, run)
	if run.Accepted {
		m.history.FailureAlerted = false
	}
	return m.saveHistory()
}

// ShouldAlert reports whether the latest run failed and no alert has gone out since the last
// success today.
func (m *Manager) ShouldAlert() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.rollover()
	n := len(m.history.Runs)
	return n > 0 && !m.history.Runs[n-1].Accepted && !m.history.FailureAlerted
}

// MarkAlerted records that a failure alert was sent.
func (m *Manager) MarkAlerted() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.rollover()
	m.history.FailureAlerted = true
	return m.saveHistory()
}

// FailuresToday counts rejected runs in today's ledger.
func (m *Manager) FailuresToday() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.rollover()
	n := 0
	for _, r := range m.history.Runs {
		if !r.Accepted {
			n++
		}
	}
	return n
}

func (m *Manager) HistoryFilePath() string {
	return m.historyFilePath
}

func (m *Manager) getCurrentReportDate() string {
	return m.now().In(m.reportLocation).Format("2006-01-02")
}
