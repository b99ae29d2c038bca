package providers

import (
	"github.com/smallbiznis/loadpass/internal/providers/square"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	square.Module,
)
