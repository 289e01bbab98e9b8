package tokenizer

import (
	"strings"

	"github.com/google/uuid"
)

// Namer hands out opaque display names for anonymized tokens.
type Namer interface {
	Next() string
}

// RandomNamer produces a fresh random name on every call.
type RandomNamer struct{}

// NewRandomNamer creates a RandomNamer.
func NewRandomNamer() *RandomNamer { return &RandomNamer{} }

// Next implements Namer.
func (RandomNamer) Next() string {
	return "v" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
