package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 10 * time.Second

// Step is one piece of teardown, run in the order given to Shutdown.
type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}

// NotifyContext returns a context that is cancelled on SIGINT or SIGTERM.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Shutdown runs every step under a shared deadline. A failing step is logged
// and the remaining steps still run. It reports whether all steps succeeded.
func Shutdown(timeout time.Duration, steps ...Step) bool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ok := true
	for _, s := range steps {
		if err := s.Fn(ctx); err != nil {
			log.Error().Err(err).Str("step", s.Name).Msg("Shutdown step failed")
			ok = false
			continue
		}
		log.Debug().Str("step", s.Name).Msg("Shutdown step complete")
	}
	log.Info().Msg("Status bot stopped")
	return ok
}

var exit = os.Exit

func ShutdownWithError(err error, msg string, steps ...Step) {
	log.Error().Err(err).Msg(msg)
	Shutdown(DefaultTimeout, steps...)
	exit(1)
}
