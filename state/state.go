package state

import (
	"context"
	"log/slog"
)

// Env is shared by every goroutine of a router and is never mutated after construction
type Env struct {
	RouterCfg
	Context context.Context
	Cancel  context.CancelCauseFunc
	Log     *slog.Logger
}
