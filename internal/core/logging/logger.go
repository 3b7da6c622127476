package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component returns a child of the global logger tagged with the component
// name under the "cmp" key so log lines can be filtered per subsystem.
func Component(name string) zerolog.Logger {
	return log.With().Str("cmp", name).Logger()
}
