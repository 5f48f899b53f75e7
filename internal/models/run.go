package models

import "time"

// RunStatus is the state of the merge run
type RunStatus string

const (
	RunIdle    RunStatus = "idle"
	RunRunning RunStatus = "running"
	RunStopped RunStatus = "stopped"
)

// RunStats are cumulative counters for the merge run
type RunStats struct {
	Processed int64 `json:"processed"`
	Created   int64 `json:"created"`
	Failed    int64 `json:"failed"`
}

// RunState is the persisted controller state
type RunState struct {
	Status      RunStatus `json:"status"`
	Stats       RunStats  `json:"stats"`
	SweepCursor string    `json:"sweep_cursor"`
	SweepDone   bool      `json:"sweep_done"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LogSeverity is the severity of an operator log entry
type LogSeverity string

const (
	SeverityInfo  LogSeverity = "info"
	SeverityError LogSeverity = "error"
)

// LogEntry is one line of the operator-visible run log
type LogEntry struct {
	Time    time.Time   `json:"time"`
	Message string      `json:"message"`
	Type    LogSeverity `json:"type"`
}

// StatusResponse is the payload served to the polling client
type StatusResponse struct {
	Status RunStatus   `json:"status"`
	Stats  RunStats    `json:"stats"`
	Queue  QueueCounts `json:"queue"`
	Logs   []LogEntry  `json:"logs"`
}

// StartResult acknowledges a start request
type StartResult struct {
	Message     string `json:"message"`
	QueuedItems int    `json:"queued_items"`
	ItemCount   int    `json:"product_count"`
}

// ProviderCredentials configure one oracle provider
type ProviderCredentials struct {
	APIKey string `json:"api_key,omitempty"`
	Model  string `json:"model,omitempty"`
}

// Settings are the operator-tunable options kept in the settings store
type Settings struct {
	TitleSimilarity float64                        `json:"title_similarity" validate:"gte=0,lte=100"`
	Provider        string                         `json:"provider"`
	Providers       map[string]ProviderCredentials `json:"providers,omitempty"`
}

// Credentials returns the credentials for the selected provider
func (s Settings) Credentials() ProviderCredentials {
	if s.Providers == nil {
		return ProviderCredentials{}
	}
	return s.Providers[s.Provider]
}
