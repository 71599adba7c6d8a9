package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"ChainFM/logger"
	"ChainFM/model"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProgressUpdate is one push to a subscribed upload client.
type ProgressUpdate struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// ProgressHub fans upload pipeline progress out to websocket
// subscribers. It implements upload.Notifier; Notify never blocks the
// pipeline, a subscriber with a full buffer just misses that update.
type ProgressHub struct {
	mu   sync.RWMutex
	subs map[string][]chan ProgressUpdate
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[string][]chan ProgressUpdate)}
}

// Notify pushes one update to every subscriber of jobID.
func (hub *ProgressHub) Notify(jobID, status string, progress int) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for _, ch := range hub.subs[jobID] {
		select {
		case ch <- ProgressUpdate{JobID: jobID, Status: status, Progress: progress}:
		default:
		}
	}
}

func (hub *ProgressHub) subscribe(jobID string) chan ProgressUpdate {
	ch := make(chan ProgressUpdate, 16)
	hub.mu.Lock()
	hub.subs[jobID] = append(hub.subs[jobID], ch)
	hub.mu.Unlock()
	return ch
}

func (hub *ProgressHub) unsubscribe(jobID string, ch chan ProgressUpdate) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channels := hub.subs[jobID]
	for i, c := range channels {
		if c == ch {
			hub.subs[jobID] = append(channels[:i], channels[i+1:]...)
			break
		}
	}
	if len(hub.subs[jobID]) == 0 {
		delete(hub.subs, jobID)
	}
}

// JobProgressWSHandler streams progress updates for one upload job over
// a websocket until the job reaches a terminal state or the client
// disconnects.
func (h *APIHandler) JobProgressWSHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := h.jobs.Get(jobID)
	if err != nil || job == nil {
		writeError(w, http.StatusNotFound, "upload job not found")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	// Send the current state first so late subscribers see something
	// immediately.
	if err := conn.WriteJSON(ProgressUpdate{JobID: job.ID, Status: job.Status, Progress: job.Progress}); err != nil {
		return
	}
	if job.Terminal() {
		return
	}

	ch := h.hub.subscribe(jobID)
	defer h.hub.unsubscribe(jobID, ch)

	for {
		select {
		case update := <-ch:
			if err := conn.WriteJSON(update); err != nil {
				return
			}
			if update.Status == model.JobCompleted || update.Status == model.JobFailed {
				return
			}
		case <-time.After(30 * time.Second):
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
