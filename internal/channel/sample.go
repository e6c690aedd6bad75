package channel

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"EnvData-Apps/internal/codec"
	"EnvData-Apps/internal/sensor"
)

// Role is the direction a handle is bound for.
type Role int

const (
	RoleWriter Role = iota
	RoleReader
)

func (r Role) String() string {
	switch r {
	case RoleWriter:
		return "writer"
	case RoleReader:
		return "reader"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// SampleInfo is the metadata delivered alongside a reading.
type SampleInfo struct {
	Writer          uuid.UUID
	Seq             uint64
	SourceTimestamp time.Time
	State           codec.State
}

// Sample is one delivery from a reader. When Valid is false the sample
// only signals an instance lifecycle change and Reading must not be used.
type Sample struct {
	Reading sensor.Reading
	Valid   bool
	Info    SampleInfo
}
