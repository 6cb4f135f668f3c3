package ingest

import "time"

// SubjectIndexRebuilt is the NATS subject announcing a completed rebuild.
// API processes holding a cached index handle drop it on this event so the
// next query reopens the fresh index.
const SubjectIndexRebuilt = "kb.index.rebuilt"

// RebuiltEvent is the payload published on SubjectIndexRebuilt.
type RebuiltEvent struct {
	Source     string    `json:"source"`
	Docs       int       `json:"docs"`
	FinishedAt time.Time `json:"finished_at"`
}
