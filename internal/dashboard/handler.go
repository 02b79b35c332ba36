package dashboard

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/fastsql2json/sql2json/internal/pipeline"
)

// FileUpdateData describes one file outcome.
type FileUpdateData struct {
	RunID      string `json:"run_id,omitempty"`
	Path       string `json:"path"`
	Output     string `json:"output"`
	Status     string `json:"status"`
	Rows       int    `json:"rows"`
	Category   string `json:"category,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// RunCompleteData summarizes a finished pass.
type RunCompleteData struct {
	RunID      string `json:"run_id"`
	Total      int    `json:"total"`
	Generated  int    `json:"generated"`
	Fresh      int    `json:"fresh"`
	Locked     int    `json:"locked"`
	Failed     int    `json:"failed"`
	Rows       int    `json:"rows"`
	DurationMS int64  `json:"duration_ms"`
}

// StatsData holds totals since the process started.
type StatsData struct {
	Runs     int            `json:"runs"`
	Files    int            `json:"files"`
	ByStatus map[string]int `json:"by_status"`
	LastRun  *time.Time     `json:"last_run,omitempty"`
}

// Handler turns pipeline events into dashboard messages. It implements
// pipeline.Observer and is safe for concurrent use.
type Handler struct {
	server *Server
	logger *slog.Logger

	mu    sync.Mutex
	stats StatsData
}

var _ pipeline.Observer = (*Handler)(nil)

// NewHandler creates a new event handler connected to a dashboard server.
// New clients are greeted with the current stats.
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: server,
		logger: logger,
		stats:  StatsData{ByStatus: make(map[string]int)},
	}
	server.SetWelcome(h.statsMessage)
	return h
}

// FileDone broadcasts a file_update message and the updated stats.
func (h *Handler) FileDone(runID string, o pipeline.Outcome) {
	data := FileUpdateData{
		RunID:      runID,
		Path:       o.Path,
		Output:     o.Output,
		Status:     string(o.Status),
		Rows:       o.Rows,
		Category:   o.Category(),
		DurationMS: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		data.Error = o.Err.Error()
	}

	h.mu.Lock()
	h.stats.Files++
	h.stats.ByStatus[string(o.Status)]++
	h.mu.Unlock()

	h.send(MessageTypeFileUpdate, data)
	h.server.Broadcast(h.statsMessage())
}

// RunDone broadcasts a run_complete message.
func (h *Handler) RunDone(r *pipeline.Report) {
	h.logger.Debug("Run complete", "run_id", r.RunID, "files", r.Total())

	data := RunCompleteData{
		RunID:      r.RunID,
		Total:      r.Total(),
		Generated:  r.Generated,
		Fresh:      r.Fresh,
		Locked:     r.Locked,
		Failed:     r.Failed,
		Rows:       r.Rows,
		DurationMS: r.Duration.Milliseconds(),
	}

	h.mu.Lock()
	h.stats.Runs++
	finished := r.Started.Add(r.Duration)
	h.stats.LastRun = &finished
	h.mu.Unlock()

	h.send(MessageTypeRunComplete, data)
}

// GetStats returns a copy of the current statistics.
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()

	cp := h.stats
	cp.ByStatus = make(map[string]int, len(h.stats.ByStatus))
	for k, v := range h.stats.ByStatus {
		cp.ByStatus[k] = v
	}
	return cp
}

func (h *Handler) statsMessage() Message {
	dataJSON, err := json.Marshal(h.GetStats())
	if err != nil {
		h.logger.Error("Failed to marshal stats", "error", err)
		return Message{Type: MessageTypeStats, Timestamp: time.Now()}
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: dataJSON}
}

func (h *Handler) send(typ MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to marshal message data", "type", typ, "error", err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: dataJSON})
}
