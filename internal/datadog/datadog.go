package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Enabled   bool
	AgentAddr string
	Namespace string
	Tags      []string
}

var (
	dogstatsd *statsd.Client
	enabled   bool
)

func InitMetrics(opts Options) {
	enabled = opts.Enabled
	if !opts.Enabled {
		log.Info().Msg("Datadog metrics disabled")
		return
	}

	var err error
	dogstatsd, err = statsd.New(opts.AgentAddr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}

	dogstatsd.Namespace = opts.Namespace
	dogstatsd.Tags = opts.Tags

	log.Info().
		Str("addr", opts.AgentAddr).
		Str("namespace", opts.Namespace).
		Strs("tags", opts.Tags).
		Msg("Datadog metrics initialized")
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd != nil {
		err := dogstatsd.Gauge(name, value, tags, 1)
		if err != nil && enabled {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
		}
	}
}

func Incr(name string, tags ...string) {
	if dogstatsd != nil {
		err := dogstatsd.Incr(name, tags, 1)
		if err != nil && enabled {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
		}
	}
}

func Close() {
	if dogstatsd != nil {
		dogstatsd.Close()
		dogstatsd = nil
	}
}
