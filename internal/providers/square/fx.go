package square

import "go.uber.org/fx"

var Module = fx.Module("providers.square",
	fx.Provide(NewFromConfig),
)
