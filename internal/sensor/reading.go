// Package sensor holds the environmental reading entity, the sensor kinds
// and their value generators.
package sensor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// TypeName is the data type registered for every sensor channel.
const TypeName = "EnvironmentalData::Environmental"

// maxHostLen mirrors the 20-byte host buffer used when ids were first issued.
const maxHostLen = 19

var ErrEmptyNodeID = errors.New("node id must not be empty")

// Reading is one sensor's last measured value. ID is fixed at creation;
// Value is overwritten on every publish cycle.
type Reading struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"`
	Value float32 `json:"value"`
}

// NewReading builds the reading for kind on the given host and node.
func NewReading(host, nodeID string, k Kind) (Reading, error) {
	id, err := SensorID(host, nodeID, k.Index(), k.Suffix())
	if err != nil {
		return Reading{}, err
	}
	return Reading{ID: id, Type: k.TypeLabel()}, nil
}

// SensorID composes <host>N<node>S<index><suffix>, e.g. host1N1S0hum.
func SensorID(host, nodeID string, index int, suffix string) (string, error) {
	if strings.TrimSpace(nodeID) == "" {
		return "", ErrEmptyNodeID
	}
	if index < 0 {
		return "", fmt.Errorf("negative sensor index %d", index)
	}
	if len(host) > maxHostLen {
		cut := maxHostLen
		for cut > 0 && !utf8.RuneStart(host[cut]) {
			cut--
		}
		host = host[:cut]
	}
	var b strings.Builder
	b.WriteString(host)
	b.WriteByte('N')
	b.WriteString(nodeID)
	b.WriteByte('S')
	b.WriteString(strconv.Itoa(index))
	b.WriteString(suffix)
	return b.String(), nil
}

// FormatValue renders v the way an iostream does by default: six
// significant digits, no trailing zeros.
func FormatValue(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', 6, 32)
}
