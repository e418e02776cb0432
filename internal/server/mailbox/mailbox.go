// Package mailbox holds the per-agent single-slot configuration-update
// mailbox. An armed update waits until the agent's next beacon drains it;
// arming again before then overwrites the previous update (last-writer-wins,
// updates are never queued or merged).
package mailbox

import (
	"sync"

	"github.com/arclight-c2/arclight/internal/models"
)

type Mailbox struct {
	mu    sync.Mutex
	slots map[string]*models.ConfigUpdate
}

func New() *Mailbox {
	return &Mailbox{
		slots: make(map[string]*models.ConfigUpdate),
	}
}

// Arm sets the pending update for an agent, overwriting any unconsumed one.
// Empty updates are ignored.
func (m *Mailbox) Arm(agentID string, update *models.ConfigUpdate) {
	if update.Empty() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[agentID] = update
}

// Drain atomically returns and clears the agent's pending update. Returns nil
// when nothing is armed.
func (m *Mailbox) Drain(agentID string) *models.ConfigUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	update := m.slots[agentID]
	delete(m.slots, agentID)
	return update
}

// Forget drops any pending update for an agent. Called when the agent is
// deleted.
func (m *Mailbox) Forget(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, agentID)
}
