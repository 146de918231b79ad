//go:build wireinject

package app

import (
	"github.com/google/wire"

	"wick/internal/config"
)

func buildAppWithWire(cfg *config.Config) (*App, error) {
	wire.Build(provideAppBuilder, provideAppFromBuilder)
	return nil, nil
}
