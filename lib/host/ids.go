package host

import (
	"fmt"

	"github.com/google/uuid"
)

// InstanceID names one connected client.
type InstanceID = uuid.UUID

// SessionID names one shown presentation.
type SessionID = uuid.UUID

func newID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to generate id: %w", err)
	}
	return id, nil
}
