package sensor

import (
	"fmt"
	"strings"
)

// Kind is a sensor category. Each kind has exactly one channel per process.
type Kind int

const (
	Humidity Kind = iota
	Temperature
	Rain
)

type kindInfo struct {
	channel string
	index   int
	suffix  string
	label   string
	console string
}

var kinds = map[Kind]kindInfo{
	Humidity:    {channel: "humidity", index: 0, suffix: "hum", label: "humidity sensor", console: "Humi"},
	Temperature: {channel: "temperature", index: 1, suffix: "tem", label: "temperature sensor", console: "Temperature"},
	Rain:        {channel: "rain", index: 2, suffix: "rai", label: "rain sensor", console: "Rain"},
}

// PublishOrder is the per-iteration send order of the publisher.
var PublishOrder = []Kind{Humidity, Temperature, Rain}

// PollOrder is the per-iteration drain order of the subscriber. It carries
// no priority.
var PollOrder = []Kind{Humidity, Rain, Temperature}

func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Channel is the channel name bound for this kind.
func (k Kind) Channel() string { return kinds[k].channel }

// Index is the sensor index used in the id.
func (k Kind) Index() int { return kinds[k].index }

// Suffix is the three-letter type suffix used in the id.
func (k Kind) Suffix() string { return kinds[k].suffix }

// TypeLabel is the human readable category stored in Reading.Type.
func (k Kind) TypeLabel() string { return kinds[k].label }

// ConsoleLabel prefixes subscriber console lines.
func (k Kind) ConsoleLabel() string { return kinds[k].console }

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.channel
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind accepts a channel name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, info := range kinds {
		if info.channel == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown sensor kind %q", s)
}

// KindForChannel is ParseKind for exact channel names.
func KindForChannel(channel string) (Kind, bool) {
	for k, info := range kinds {
		if info.channel == channel {
			return k, true
		}
	}
	return 0, false
}
