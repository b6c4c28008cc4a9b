package bus

import (
	"strings"
	"time"

	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/pkg/errors"
)

// NewBus creates a Bus instance from configuration. A configured
// journal path wraps the bus with an append-only event journal.
func NewBus(cfg config.BusConfig) (Bus, error) {
	inner, err := newBus(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.JournalPath == "" {
		return inner, nil
	}
	journal, err := NewJournal(cfg.JournalPath, true)
	if err != nil {
		inner.Close()
		return nil, err
	}
	return NewJournaledBus(inner, journal), nil
}

func newBus(cfg config.BusConfig) (Bus, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		var opts []MemoryOption
		if cfg.MaxInFlight > 0 {
			opts = append(opts, WithMaxInFlight(cfg.MaxInFlight))
		}
		return NewMemoryBus(opts...), nil

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.KindConfiguration, "kafka brokers not configured")
		}

		consumerGroup := cfg.KafkaGroup
		if consumerGroup == "" {
			consumerGroup = "sable-search"
		}

		return NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: consumerGroup,
			ClientID:      "sable-search-bus",
			Timeout:       30 * time.Second,
		})

	default:
		return nil, errors.New(errors.KindConfiguration, "unknown bus type").
			WithContext("type", cfg.Type)
	}
}
