package main

import (
	"context"

	"github.com/rs/zerolog/log"

	configx "github.com/raincheckbot/raincheck/pkg/config"
	logx "github.com/raincheckbot/raincheck/pkg/logger"
	weatherx "github.com/raincheckbot/raincheck/pkg/weather"
	whatsappx "github.com/raincheckbot/raincheck/pkg/whatsapp"
	"github.com/raincheckbot/raincheck/relay/orchestrator"
	"github.com/raincheckbot/raincheck/relay/resolver"
	"github.com/raincheckbot/raincheck/relay/store"
	"github.com/raincheckbot/raincheck/server"
)

func main() {
	logCfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*logCfg)

	storeCfg := configx.MustNew[store.Config]("POSTGRES")
	contacts, err := store.Open(*storeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open contact store")
	}
	defer contacts.Close()

	if err := contacts.CreateSchema(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	resolverCfg := configx.MustNew[resolver.Config]("OPENAI")
	intents, err := resolver.New(*resolverCfg, resolver.Persona())
	if err != nil {
		log.Fatal().Err(err).Msg("build intent resolver")
	}

	weatherCfg := configx.MustNew[weatherx.Config]("WEATHER")
	weather := weatherx.MustNew(*weatherCfg)

	whatsappCfg := configx.MustNew[whatsappx.Config]("WHATSAPP")
	dispatcher := whatsappx.MustNew(*whatsappCfg)

	orch, err := orchestrator.New(contacts, intents, weather, dispatcher)
	if err != nil {
		log.Fatal().Err(err).Msg("build orchestrator")
	}

	serverCfg := configx.MustNew[server.Config]("SERVER")
	router := server.NewRouter(orch, dispatcher)

	log.Info().Str("addr", serverCfg.Addr).Msg("listening")
	if err := router.Run(serverCfg.Addr); err != nil {
		log.Fatal().Err(err).Msg("http server stopped")
	}
}
