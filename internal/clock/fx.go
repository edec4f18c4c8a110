package clock

import "go.uber.org/fx"

func newSystemClock() Clock { return SystemClock{} }

// Module provides the wall clock. Tests swap in Fixed instead.
var Module = fx.Module("clock",
	fx.Provide(newSystemClock),
)
