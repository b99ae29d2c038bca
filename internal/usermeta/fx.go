package usermeta

import (
	"github.com/smallbiznis/loadpass/internal/usermeta/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("usermeta.repository",
	fx.Provide(repository.Provide),
)
