// Package qos loads the QoS profile that channel bindings are created with.
// The profile is opaque to the publisher and subscriber loops: they hand it
// to the channel participant and never look inside.
package qos

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ReliabilityKind string

const (
	BestEffort ReliabilityKind = "best_effort"
	Reliable   ReliabilityKind = "reliable"
)

type HistoryKind string

const (
	KeepLast HistoryKind = "keep_last"
	KeepAll  HistoryKind = "keep_all"
)

const DefaultPartition = "EnvironmentalData"

// Profile mirrors the sections of a DDS QoS profile this system uses.
type Profile struct {
	Name       string                     `yaml:"name"`
	Topic      TopicQos                   `yaml:"topic"`
	Publisher  PartitionQos               `yaml:"publisher"`
	Subscriber PartitionQos               `yaml:"subscriber"`
	DataWriter DataWriterQos              `yaml:"datawriter"`
	DataReader DataReaderQos              `yaml:"datareader"`
	Channels   map[string]ChannelOverride `yaml:"channels"`
}

type TopicQos struct {
	Reliability ReliabilityKind `yaml:"reliability"`
}

type PartitionQos struct {
	Partition string `yaml:"partition"`
}

type DataWriterQos struct {
	Reliability     ReliabilityKind `yaml:"reliability"`
	MaxBlockingTime time.Duration   `yaml:"max_blocking_time"`
	MaxSendRetries  uint64          `yaml:"max_send_retries"`
	// AutodisposeUnregistered makes Close publish a disposed sample rather
	// than an unregistered one.
	AutodisposeUnregistered bool `yaml:"autodispose_unregistered_instances"`
}

type DataReaderQos struct {
	Reliability    ReliabilityKind `yaml:"reliability"`
	History        HistoryQos      `yaml:"history"`
	Deadline       time.Duration   `yaml:"deadline"`
	ResourceLimits ResourceLimits  `yaml:"resource_limits"`
}

type HistoryQos struct {
	Kind  HistoryKind `yaml:"kind"`
	Depth int         `yaml:"depth"`
}

type ResourceLimits struct {
	MaxSamples int `yaml:"max_samples"`
}

// ChannelOverride overrides reader settings for a single channel.
type ChannelOverride struct {
	Deadline *time.Duration `yaml:"deadline"`
	History  *HistoryQos    `yaml:"history"`
}

// Default is the profile used when no file is given.
func Default() Profile {
	return Profile{
		Name:       "DefaultQosProfile",
		Topic:      TopicQos{Reliability: Reliable},
		Publisher:  PartitionQos{Partition: DefaultPartition},
		Subscriber: PartitionQos{Partition: DefaultPartition},
		DataWriter: DataWriterQos{
			Reliability:             Reliable,
			MaxBlockingTime:         100 * time.Millisecond,
			MaxSendRetries:          3,
			AutodisposeUnregistered: false,
		},
		DataReader: DataReaderQos{
			Reliability:    Reliable,
			History:        HistoryQos{Kind: KeepAll},
			ResourceLimits: ResourceLimits{MaxSamples: 5000},
		},
	}
}

// Load reads a YAML profile. Fields absent from the file keep their
// defaults. An empty path returns Default().
func Load(path string) (Profile, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read qos profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse qos profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("qos profile %s: %w", path, err)
	}
	return p, nil
}

func (p Profile) Validate() error {
	var errs []error
	for name, k := range map[string]ReliabilityKind{
		"topic.reliability":      p.Topic.Reliability,
		"datawriter.reliability": p.DataWriter.Reliability,
		"datareader.reliability": p.DataReader.Reliability,
	} {
		if k != BestEffort && k != Reliable {
			errs = append(errs, fmt.Errorf("%s: unknown kind %q", name, k))
		}
	}
	if err := p.DataReader.History.validate(); err != nil {
		errs = append(errs, fmt.Errorf("datareader.history: %w", err))
	}
	if p.DataReader.Deadline < 0 {
		errs = append(errs, errors.New("datareader.deadline must be >= 0"))
	}
	if p.DataReader.ResourceLimits.MaxSamples < 0 {
		errs = append(errs, errors.New("datareader.resource_limits.max_samples must be >= 0"))
	}
	if p.DataWriter.MaxBlockingTime < 0 {
		errs = append(errs, errors.New("datawriter.max_blocking_time must be >= 0"))
	}
	for name, o := range p.Channels {
		if o.History != nil {
			if err := o.History.validate(); err != nil {
				errs = append(errs, fmt.Errorf("channels.%s.history: %w", name, err))
			}
		}
		if o.Deadline != nil && *o.Deadline < 0 {
			errs = append(errs, fmt.Errorf("channels.%s.deadline must be >= 0", name))
		}
	}
	return errors.Join(errs...)
}

func (h HistoryQos) validate() error {
	switch h.Kind {
	case KeepAll:
		return nil
	case KeepLast:
		if h.Depth < 1 {
			return errors.New("keep_last needs depth >= 1")
		}
		return nil
	default:
		return fmt.Errorf("unknown kind %q", h.Kind)
	}
}

// ReaderFor returns the reader QoS with per-channel overrides applied.
func (p Profile) ReaderFor(channel string) DataReaderQos {
	r := p.DataReader
	if o, ok := p.Channels[channel]; ok {
		if o.Deadline != nil {
			r.Deadline = *o.Deadline
		}
		if o.History != nil {
			r.History = *o.History
		}
	}
	return r
}

// TopicFor joins a partition and channel name into a transport topic.
func TopicFor(partition, channel string) string {
	if partition == "" {
		partition = DefaultPartition
	}
	return partition + "." + channel
}
