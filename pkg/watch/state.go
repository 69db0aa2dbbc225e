package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const stateFileName = "watch_state.json"

// PageState contains the last audit information for a watched page
type PageState struct {
	LastRunTime    time.Time `json:"last_run_time"`
	LastRunSuccess bool      `json:"last_run_success"`
	RunID          string    `json:"run_id,omitempty"`
	TotalLinks     int       `json:"total_links"`
	BrokenLinks    int       `json:"broken_links"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// WatchState contains the persistent state for the watch scheduler
type WatchState struct {
	Pages     map[string]PageState `json:"pages"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// StateManager handles persisting and loading watch state
type StateManager struct {
	stateDir  string
	statePath string
	state     WatchState
	mu        sync.RWMutex
}

// NewStateManager creates a new state manager
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state: WatchState{
			Pages: make(map[string]PageState),
		},
	}
}

// Load loads the state from disk
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No state file yet, start fresh
			m.state = WatchState{
				Pages: make(map[string]PageState),
			}
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}

	if m.state.Pages == nil {
		m.state.Pages = make(map[string]PageState)
	}

	return nil
}

// Save saves the state to disk
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()

	// Ensure state directory exists
	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(m.statePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// GetPageState returns the state for a specific page
func (m *StateManager) GetPageState(pageURL string) (PageState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Pages[pageURL]
	return state, ok
}

// UpdatePageState records the outcome of an audit for a page
func (m *StateManager) UpdatePageState(pageURL string, success bool, runID string, totalLinks, brokenLinks int, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Pages[pageURL] = PageState{
		LastRunTime:    time.Now(),
		LastRunSuccess: success,
		RunID:          runID,
		TotalLinks:     totalLinks,
		BrokenLinks:    brokenLinks,
		ErrorMessage:   errorMsg,
	}
}

// ShouldRun checks if a page should be re-audited based on the interval
func (m *StateManager) ShouldRun(pageURL string, interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Pages[pageURL]
	if !ok {
		// Never audited before, should run now
		return true
	}

	// Check if enough time has passed since the last audit
	return time.Since(state.LastRunTime) >= interval
}

// GetNextRunTime returns when the page should next be audited
func (m *StateManager) GetNextRunTime(pageURL string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Pages[pageURL]
	if !ok {
		return time.Now()
	}

	return state.LastRunTime.Add(interval)
}

// GetAllPageStates returns all page states
func (m *StateManager) GetAllPageStates() map[string]PageState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy
	result := make(map[string]PageState, len(m.state.Pages))
	for k, v := range m.state.Pages {
		result[k] = v
	}
	return result
}
