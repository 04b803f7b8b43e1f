package utils

import (
	"strings"

	"github.com/google/uuid"
)

const idLength = 9

// NewID returns a short random identifier for nodes, messages and runs.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:idLength]
}
