package events

import (
	"sync"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

type orgHistory struct {
	ring        []Envelope
	start       int
	size        int
	lastDropped uint64
}

// history keeps the last N client events of each organization.
type history struct {
	mu        sync.Mutex
	retention int
	lastID    uint64
	orgs      map[models.OrganizationID]*orgHistory
}

func newHistory(retention int) *history {
	if retention < 1 {
		retention = 1
	}
	return &history{retention: retention, orgs: make(map[models.OrganizationID]*orgHistory)}
}

func (h *history) append(ev ClientEvent) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastID++
	env := Envelope{ID: h.lastID, Event: ev}

	oh, ok := h.orgs[ev.Organization()]
	if !ok {
		oh = &orgHistory{ring: make([]Envelope, h.retention)}
		h.orgs[ev.Organization()] = oh
	}
	if oh.size < h.retention {
		oh.ring[(oh.start+oh.size)%h.retention] = env
		oh.size++
	} else {
		oh.lastDropped = oh.ring[oh.start].ID
		oh.ring[oh.start] = env
		oh.start = (oh.start + 1) % h.retention
	}
	return env.ID
}

func (h *history) since(org models.OrganizationID, lastID uint64) ([]Envelope, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if lastID > h.lastID {
		// Client comes from a previous server run.
		return nil, false
	}
	oh, ok := h.orgs[org]
	if !ok {
		return nil, true
	}
	if lastID < oh.lastDropped {
		return nil, false
	}
	var out []Envelope
	for i := 0; i < oh.size; i++ {
		env := oh.ring[(oh.start+i)%h.retention]
		if env.ID > lastID {
			out = append(out, env)
		}
	}
	return out, true
}

func (h *history) last() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastID
}
