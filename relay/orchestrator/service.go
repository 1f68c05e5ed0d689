// Package orchestrator drives one inbound message turn: contact resolution,
// dedup ledger, intent resolution, side effects, outbound reply.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/raincheckbot/raincheck/relay/contract"
)

// Degrade reason codes. Every caught failure that changes the shape of a
// turn is recorded under one of these, both in the log and in the Ack.
const (
	ReasonContactUnavailable = "contact_unavailable"
	ReasonDedupCheckFailed   = "dedup_check_failed"
	ReasonMessageLogFailed   = "message_log_failed"
	ReasonResolverFailed     = "resolver_failed"
	ReasonUnrecognized       = "unrecognized_intent"
	ReasonLocationSaveFailed = "location_save_failed"
	ReasonWeatherUnavailable = "weather_unavailable"
	ReasonDispatchFailed     = "dispatch_failed"
)

type Orchestrator struct {
	store      contractx.ContactStore
	resolver   contractx.IntentResolver
	weather    contractx.WeatherService
	dispatcher contractx.ReplyDispatcher
}

func New(
	store contractx.ContactStore,
	resolver contractx.IntentResolver,
	weather contractx.WeatherService,
	dispatcher contractx.ReplyDispatcher,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("contact store is required")
	}
	if resolver == nil {
		return nil, errors.New("intent resolver is required")
	}
	if weather == nil {
		return nil, errors.New("weather service is required")
	}
	if dispatcher == nil {
		return nil, errors.New("reply dispatcher is required")
	}

	return &Orchestrator{
		store:      store,
		resolver:   resolver,
		weather:    weather,
		dispatcher: dispatcher,
	}, nil
}

// Handle processes one inbound event. It never returns an error: the webhook
// caller needs its acknowledgment no matter what happened inside, so every
// failure is caught here and turned into a degraded-but-complete turn.
func (o *Orchestrator) Handle(ctx context.Context, ev contractx.InboundEvent) contractx.Ack {
	if !ev.HasText() {
		// Status callbacks and other non-message traffic land here.
		log.Debug().Str("message_id", ev.MessageID).Msg("webhook event has no text body")
		return contractx.Ack{Outcome: contractx.OutcomeIgnored}
	}

	logger := log.With().
		Str("turn_id", uuid.NewString()).
		Str("message_id", ev.MessageID).
		Str("phone", ev.From).
		Logger()

	var reasons []string

	contact, err := o.store.FindOrCreate(ctx, ev.From, ev.ProfileName, ev.AccountID)
	if err != nil {
		logger.Error().Err(err).Str("reason", ReasonContactUnavailable).Msg("turn degraded")
		return contractx.Ack{Outcome: contractx.OutcomeSilent, Reasons: []string{ReasonContactUnavailable}}
	}

	seen, err := o.store.Seen(ctx, ev.MessageID, contact.ID)
	switch {
	case err != nil:
		// Availability wins over dedup: process the message anyway.
		reasons = append(reasons, ReasonDedupCheckFailed)
		logger.Warn().Err(err).Str("reason", ReasonDedupCheckFailed).Msg("turn degraded")
	case seen:
		logger.Info().Msg("duplicate message delivery, turn skipped")
		return contractx.Ack{Outcome: contractx.OutcomeDuplicate, Reasons: reasons}
	}

	if err := o.store.RecordMessage(ctx, ev.MessageID, ev.Body, contact.ID); err != nil {
		reasons = append(reasons, ReasonMessageLogFailed)
		logger.Warn().Err(err).Str("reason", ReasonMessageLogFailed).Msg("turn degraded")
	}

	result, err := o.resolver.Resolve(ctx, buildTurnContext(contact, ev))
	if err != nil {
		reasons = append(reasons, ReasonResolverFailed)
		logger.Error().Err(err).Str("reason", ReasonResolverFailed).Msg("turn degraded")
		return contractx.Ack{Outcome: contractx.OutcomeSilent, Reasons: reasons}
	}

	switch result.Kind {
	case contractx.IntentPlainReply:
		return o.dispatch(ctx, logger, ev.From, result.Reply, reasons)

	case contractx.IntentSaveLocation:
		if result.Location == nil {
			reasons = append(reasons, ReasonUnrecognized)
			logger.Error().Str("reason", ReasonUnrecognized).Msg("save intent without location payload")
			return contractx.Ack{Outcome: contractx.OutcomeSilent, Reasons: reasons}
		}
		return o.handleSaveLocation(ctx, logger, contact, *result.Location, ev.From, reasons)

	case contractx.IntentUnrecognized:
		reasons = append(reasons, ReasonUnrecognized)
		logger.Warn().Str("reason", ReasonUnrecognized).Str("raw", result.Raw).Msg("turn degraded")
		return contractx.Ack{Outcome: contractx.OutcomeSilent, Reasons: reasons}

	default:
		reasons = append(reasons, ReasonUnrecognized)
		logger.Error().Str("kind", string(result.Kind)).Msg("unknown intent kind")
		return contractx.Ack{Outcome: contractx.OutcomeSilent, Reasons: reasons}
	}
}

func (o *Orchestrator) handleSaveLocation(
	ctx context.Context,
	logger zerolog.Logger,
	contact contractx.Contact,
	loc contractx.SaveLocation,
	to string,
	reasons []string,
) contractx.Ack {
	locationName := loc.DisplayName()

	saved := true
	if _, err := o.store.SaveLocation(ctx, contact.ID, locationName, loc); err != nil {
		saved = false
		reasons = append(reasons, ReasonLocationSaveFailed)
		logger.Error().Err(err).Str("reason", ReasonLocationSaveFailed).Msg("turn degraded")
	}

	summary, err := o.weather.Current(ctx, locationName)
	haveWeather := err == nil
	if err != nil {
		reasons = append(reasons, ReasonWeatherUnavailable)
		logger.Warn().Err(err).Str("reason", ReasonWeatherUnavailable).Msg("turn degraded")
	}

	reply := composeLocationReply(locationName, saved, haveWeather, summary)
	return o.dispatch(ctx, logger, to, reply, reasons)
}

func (o *Orchestrator) dispatch(
	ctx context.Context,
	logger zerolog.Logger,
	to, body string,
	reasons []string,
) contractx.Ack {
	if err := o.dispatcher.SendText(ctx, to, body); err != nil {
		reasons = append(reasons, ReasonDispatchFailed)
		logger.Error().Err(err).Str("reason", ReasonDispatchFailed).Msg("turn degraded")
		return contractx.Ack{Outcome: contractx.OutcomeSilent, Reasons: reasons}
	}
	logger.Info().Msg("reply dispatched")
	return contractx.Ack{Outcome: contractx.OutcomeReplied, Reasons: reasons}
}

// buildTurnContext renders the per-turn context string handed to the
// resolver. This is the pipeline's only memory mechanism.
func buildTurnContext(contact contractx.Contact, ev contractx.InboundEvent) string {
	ctx := fmt.Sprintf("You got a message from phone %s.\n", contact.Phone)
	if contact.Name != "" {
		ctx += fmt.Sprintf("The user's name is %s.\n", contact.Name)
	}
	if contact.HasLocation() {
		ctx += fmt.Sprintf("The user's location is %s.\n", contact.LocationName)
	} else {
		ctx += "We do not know the user's location yet.\n"
	}
	return ctx + "\nHere is their message:\n\n" + ev.Body
}

func composeLocationReply(locationName string, saved, haveWeather bool, summary contractx.WeatherSummary) string {
	if !saved {
		return fmt.Sprintf("I heard %s — saved, but let me double check that. Ask me about the weather there in a moment!", locationName)
	}
	if !haveWeather {
		return fmt.Sprintf("Got it, you're in %s! I couldn't peek at the sky just now, so maybe keep an umbrella handy just in case.", locationName)
	}
	if summary.WillRain {
		return fmt.Sprintf(
			"Got it, you're in %s! ☔ Rain is on the way — it's %.0f°C (feels like %.0f°C, humidity %d%%). Keep that umbrella close!",
			locationName, summary.TemperatureC, summary.FeelsLikeC, summary.HumidityPct,
		)
	}
	return fmt.Sprintf(
		"Got it, you're in %s! No rain in sight — it's %.0f°C (feels like %.0f°C, humidity %d%%). The umbrella can stay home today.",
		locationName, summary.TemperatureC, summary.FeelsLikeC, summary.HumidityPct,
	)
}
