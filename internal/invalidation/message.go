// Package invalidation propagates grid-cache invalidation messages
// through Kafka so every cache replica converges after a write.
package invalidation

import (
	"fmt"
	"strings"
)

const ActionInvalidateGrid = "INVALIDATE_GRID"

// Message is the wire format on the cache-management topic. Delivery is
// at-least-once with no ordering guarantee; consumers must stay
// idempotent.
type Message struct {
	Action string `json:"action"`
	GridID string `json:"gridId"`
}

func (m Message) Validate() error {
	if m.Action != ActionInvalidateGrid {
		return fmt.Errorf("action must be %s", ActionInvalidateGrid)
	}
	if strings.TrimSpace(m.GridID) == "" {
		return fmt.Errorf("gridId is required")
	}
	return nil
}
