package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/raincheckbot/raincheck/relay/contract"
)

type savedLocation struct {
	contactID int64
	name      string
	raw       contractx.SaveLocation
}

type fakeStore struct {
	contact   contractx.Contact
	findErr   error
	seen      bool
	seenErr   error
	recordErr error
	saveErr   error

	findCalls   int
	seenCalls   int
	recordCalls int
	saveCalls   int
	saves       []savedLocation
	recorded    []string
}

func (f *fakeStore) FindOrCreate(ctx context.Context, phone, name, accountID string) (contractx.Contact, error) {
	f.findCalls++
	if f.findErr != nil {
		return contractx.Contact{}, f.findErr
	}
	c := f.contact
	if c.Phone == "" {
		c.Phone = phone
	}
	return c, nil
}

func (f *fakeStore) SaveLocation(ctx context.Context, contactID int64, locationName string, raw contractx.SaveLocation) (contractx.Contact, error) {
	f.saveCalls++
	if f.saveErr != nil {
		return contractx.Contact{}, f.saveErr
	}
	f.saves = append(f.saves, savedLocation{contactID: contactID, name: locationName, raw: raw})
	c := f.contact
	c.LocationName = locationName
	c.Location = &raw
	return c, nil
}

func (f *fakeStore) RecordMessage(ctx context.Context, messageID, body string, contactID int64) error {
	f.recordCalls++
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, messageID)
	return nil
}

func (f *fakeStore) Seen(ctx context.Context, messageID string, contactID int64) (bool, error) {
	f.seenCalls++
	if f.seenErr != nil {
		return false, f.seenErr
	}
	return f.seen, nil
}

type fakeResolver struct {
	result contractx.IntentResult
	err    error

	calls    int
	contexts []string
}

func (f *fakeResolver) Resolve(ctx context.Context, turnContext string) (contractx.IntentResult, error) {
	f.calls++
	f.contexts = append(f.contexts, turnContext)
	if f.err != nil {
		return contractx.IntentResult{}, f.err
	}
	return f.result, nil
}

type fakeWeather struct {
	summary contractx.WeatherSummary
	err     error

	calls     int
	locations []string
}

func (f *fakeWeather) Current(ctx context.Context, location string) (contractx.WeatherSummary, error) {
	f.calls++
	f.locations = append(f.locations, location)
	if f.err != nil {
		return contractx.WeatherSummary{}, f.err
	}
	return f.summary, nil
}

type sentMessage struct {
	to   string
	body string
}

type fakeDispatcher struct {
	err  error
	sent []sentMessage
}

func (f *fakeDispatcher) SendText(ctx context.Context, to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: to, body: body})
	return nil
}

type fixture struct {
	store      *fakeStore
	resolver   *fakeResolver
	weather    *fakeWeather
	dispatcher *fakeDispatcher
	orch       *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:      &fakeStore{contact: contractx.Contact{ID: 7, Phone: "311234"}},
		resolver:   &fakeResolver{},
		weather:    &fakeWeather{},
		dispatcher: &fakeDispatcher{},
	}

	orch, err := New(f.store, f.resolver, f.weather, f.dispatcher)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.orch = orch
	return f
}

func textEvent() contractx.InboundEvent {
	return contractx.InboundEvent{
		MessageID: "wamid.1",
		From:      "311234",
		Body:      "I'm in Lisbon, Portugal",
	}
}

func hasReason(ack contractx.Ack, reason string) bool {
	for _, r := range ack.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeResolver{}, &fakeWeather{}, &fakeDispatcher{}); err == nil {
		t.Fatal("New() with nil store should fail")
	}
	if _, err := New(&fakeStore{}, nil, &fakeWeather{}, &fakeDispatcher{}); err == nil {
		t.Fatal("New() with nil resolver should fail")
	}
	if _, err := New(&fakeStore{}, &fakeResolver{}, nil, &fakeDispatcher{}); err == nil {
		t.Fatal("New() with nil weather service should fail")
	}
	if _, err := New(&fakeStore{}, &fakeResolver{}, &fakeWeather{}, nil); err == nil {
		t.Fatal("New() with nil dispatcher should fail")
	}
}

func TestHandleIgnoresEventsWithoutBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ack := f.orch.Handle(context.Background(), contractx.InboundEvent{
		MessageID: "wamid.status",
		From:      "311234",
	})

	if ack.Outcome != contractx.OutcomeIgnored {
		t.Fatalf("Outcome = %s, want %s", ack.Outcome, contractx.OutcomeIgnored)
	}
	if f.store.findCalls != 0 || f.store.recordCalls != 0 {
		t.Fatalf("store touched for bodyless event: find=%d record=%d", f.store.findCalls, f.store.recordCalls)
	}
	if f.resolver.calls != 0 {
		t.Fatalf("resolver called %d times, want 0", f.resolver.calls)
	}
	if len(f.dispatcher.sent) != 0 {
		t.Fatalf("dispatched %d messages, want 0", len(f.dispatcher.sent))
	}
}

func TestHandlePlainReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.resolver.result = contractx.IntentResult{
		Kind:  contractx.IntentPlainReply,
		Reply: "Tell me where you live and I'll watch the sky for you!",
	}

	ack := f.orch.Handle(context.Background(), textEvent())

	if ack.Outcome != contractx.OutcomeReplied {
		t.Fatalf("Outcome = %s, want %s", ack.Outcome, contractx.OutcomeReplied)
	}
	if len(f.dispatcher.sent) != 1 {
		t.Fatalf("dispatched %d messages, want 1", len(f.dispatcher.sent))
	}
	if got := f.dispatcher.sent[0]; got.to != "311234" || got.body != f.resolver.result.Reply {
		t.Fatalf("dispatched %+v, want verbatim reply to sender", got)
	}
	if f.store.saveCalls != 0 {
		t.Fatalf("SaveLocation called %d times for a plain reply", f.store.saveCalls)
	}
	if f.weather.calls != 0 {
		t.Fatalf("weather called %d times for a plain reply", f.weather.calls)
	}
}

func TestHandleSaveLocationEndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.resolver.result = contractx.IntentResult{
		Kind:     contractx.IntentSaveLocation,
		Location: &contractx.SaveLocation{CityName: "Lisbon", CountryName: "Portugal"},
	}
	f.weather.summary = contractx.WeatherSummary{WillRain: true, TemperatureC: 17, FeelsLikeC: 16, HumidityPct: 80}

	ack := f.orch.Handle(context.Background(), textEvent())

	if ack.Outcome != contractx.OutcomeReplied {
		t.Fatalf("Outcome = %s, want %s (reasons=%v)", ack.Outcome, contractx.OutcomeReplied, ack.Reasons)
	}
	if len(f.store.saves) != 1 {
		t.Fatalf("saves = %d, want 1", len(f.store.saves))
	}
	if save := f.store.saves[0]; save.contactID != 7 || save.name != "Lisbon, Portugal" {
		t.Fatalf("saved %+v, want contact 7 with %q", save, "Lisbon, Portugal")
	}
	if len(f.weather.locations) != 1 || f.weather.locations[0] != "Lisbon, Portugal" {
		t.Fatalf("weather locations = %v, want [Lisbon, Portugal]", f.weather.locations)
	}
	if len(f.dispatcher.sent) != 1 {
		t.Fatalf("dispatched %d messages, want 1", len(f.dispatcher.sent))
	}
	body := f.dispatcher.sent[0].body
	if !strings.Contains(body, "Lisbon, Portugal") {
		t.Fatalf("reply %q does not echo the location name", body)
	}
	if !strings.Contains(body, "Rain is on the way") {
		t.Fatalf("reply %q does not state the rain verdict", body)
	}
}

func TestHandleSaveLocationNoRainWording(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.resolver.result = contractx.IntentResult{
		Kind:     contractx.IntentSaveLocation,
		Location: &contractx.SaveLocation{CityName: "Rotterdam", StateName: "Zuid-Holland", CountryName: "NL"},
	}
	f.weather.summary = contractx.WeatherSummary{WillRain: false, TemperatureC: 21}

	ack := f.orch.Handle(context.Background(), textEvent())

	if ack.Outcome != contractx.OutcomeReplied {
		t.Fatalf("Outcome = %s, want %s", ack.Outcome, contractx.OutcomeReplied)
	}
	body := f.dispatcher.sent[0].body
	if !strings.Contains(body, "Rotterdam, Zuid-Holland, NL") {
		t.Fatalf("reply %q does not echo the three-part location name", body)
	}
	if !strings.Contains(body, "No rain") {
		t.Fatalf("reply %q does not state the no-rain verdict", body)
	}
}

func TestWeatherFailureStillPersistsAndReplies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.resolver.result = contractx.IntentResult{
		Kind:     contractx.IntentSaveLocation,
		Location: &contractx.SaveLocation{CityName: "Lisbon", CountryName: "Portugal"},
	}
	f.weather.err = errors.New("upstream down")

	ack := f.orch.Handle(context.Background(), textEvent())

	if ack.Outcome != contractx.OutcomeReplied {
		t.Fatalf("Outcome = %s, want %s", ack.Outcome, contractx.OutcomeReplied)
	}
	if !hasReason(ack, ReasonWeatherUnavailable) {
		t.Fatalf("reasons = %v, want %s", ack.Reasons, ReasonWeatherUnavailable)
	}
	if len(f.store.saves) != 1 {
		t.Fatalf("location not persisted despite weather failure: saves=%d", len(f.store.saves))
	}
	body := f.dispatcher.sent[0].body
	if !strings.Contains(body, "Lisbon, Portugal") {
		t.Fatalf("fallback reply %q does not echo the location", body)
	}
	if strings.Contains(body, "Rain is on the way") || strings.Contains(body, "No rain") {
		t.Fatalf("fallback reply %q claims a weather verdict it does not have", body)
	}
}

func TestSaveFailureProducesDegradedReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.resolver.result = contractx.IntentResult{
		Kind:     contractx.IntentSaveLocation,
		Location: &contractx.SaveLocation{CityName: "Lisbon", CountryName: "Portugal"},
	}
	f.store.saveErr = errors.New("connection reset")

	ack := f.orch.Handle(context.Background(), textEvent())

	if ack.Outcome != contractx.OutcomeReplied {
		t.Fatalf("Outcome = %s, want %s", ack.Outcome, contractx.OutcomeReplied)
	}
	if !hasReason(ack, ReasonLocationSaveFailed) {
		t.Fatalf("reasons = %v, want %s", ack.Reasons, ReasonLocationSaveFailed)
	}
	body := f.dispatcher.sent[0].body
	if !strings.Contains(body, "double check") {
		t.Fatalf("degraded reply %q does not admit the save may have failed", body)
	}
}

func TestRecordMessageFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.recordErr = errors.New("insert failed")
	f.resolver.result = contractx.IntentResult{Kind: contractx.IntentPlainReply, Reply: "hi"}

	ack := f.orch.Handle(context.Background(), textEvent())

	if ack.Outcome != contractx.OutcomeReplied {
		t.Fatalf("Outcome = %s, want %s", ack.Outcome, contractx.OutcomeReplied)
	}
	if !hasReason(ack, ReasonMessageLogFailed) {
		t.Fatalf("reasons = %v, want %s", ack.Reasons, ReasonMessageLogFailed)
	}
	if f.resolver.calls != 1 {
		t.Fatalf("resolver calls = %d, want 1", f.resolver.calls)
	}
}

func TestDuplicateMessageShortCircuits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.seen = true

	ack := f.orch.Handle(context.Background(), textEvent())

	if ack.Outcome != contractx.OutcomeDuplicate {
		t.Fatalf("Outcome = %s, want %s", ack.Outcome, contractx.OutcomeDuplicate)
	}
	if f.resolver.calls != 0 {
		t.Fatalf("resolver called %d times for a duplicate", f.resolver.calls)
	}
	if f.store.recordCalls != 0 {
		t.Fatalf("duplicate recorded again: recordCalls=%d", f.store.recordCalls)
	}
	if len(f.dispatcher.sent) != 0 {
		t.Fatalf("dispatched %d messages for a duplicate", len(f.dispatcher.sent))
	}
}

func TestDedupCheckFailureProceeds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.seenErr = errors.New("ledger unreachable")
	f.resolver.result = contractx.IntentResult{Kind: contractx.IntentPlainReply, Reply: "hi"}

	ack := f.orch.Handle(context.Background(), textEvent())

	if ack.Outcome != contractx.OutcomeReplied {
		t.Fatalf("Outcome = %s, want %s", ack.Outcome, contractx.OutcomeReplied)
	}
	if !hasReason(ack, ReasonDedupCheckFailed) {
		t.Fatalf("reasons = %v, want %s", ack.Reasons, ReasonDedupCheckFailed)
	}
}

func TestResolverFailureConcludesSilently(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.resolver.err = errors.New("model timeout")

	ack := f.orch.Handle(context.Background(), textEvent())

	if ack.Outcome != contractx.OutcomeSilent {
		t.Fatalf("Outcome = %s, want %s", ack.Outcome, contractx.OutcomeSilent)
	}
	if !hasReason(ack, ReasonResolverFailed) {
		t.Fatalf("reasons = %v, want %s", ack.Reasons, ReasonResolverFailed)
	}
	if len(f.dispatcher.sent) != 0 {
		t.Fatalf("dispatched %d messages after resolver failure", len(f.dispatcher.sent))
	}
}

func TestUnrecognizedIntentSendsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.resolver.result = contractx.IntentResult{Kind: contractx.IntentUnrecognized, Raw: "{}"}

	ack := f.orch.Handle(context.Background(), textEvent())

	if ack.Outcome != contractx.OutcomeSilent {
		t.Fatalf("Outcome = %s, want %s", ack.Outcome, contractx.OutcomeSilent)
	}
	if !hasReason(ack, ReasonUnrecognized) {
		t.Fatalf("reasons = %v, want %s", ack.Reasons, ReasonUnrecognized)
	}
	if len(f.dispatcher.sent) != 0 {
		t.Fatalf("dispatched %d messages for unrecognized intent", len(f.dispatcher.sent))
	}
}

func TestDispatchFailureIsCaught(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.resolver.result = contractx.IntentResult{Kind: contractx.IntentPlainReply, Reply: "hi"}
	f.dispatcher.err = errors.New("graph api 500")

	ack := f.orch.Handle(context.Background(), textEvent())

	if ack.Outcome != contractx.OutcomeSilent {
		t.Fatalf("Outcome = %s, want %s", ack.Outcome, contractx.OutcomeSilent)
	}
	if !hasReason(ack, ReasonDispatchFailed) {
		t.Fatalf("reasons = %v, want %s", ack.Reasons, ReasonDispatchFailed)
	}
}

func TestContactFailureConcludesSilently(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.findErr = errors.New("db down")

	ack := f.orch.Handle(context.Background(), textEvent())

	if ack.Outcome != contractx.OutcomeSilent {
		t.Fatalf("Outcome = %s, want %s", ack.Outcome, contractx.OutcomeSilent)
	}
	if !hasReason(ack, ReasonContactUnavailable) {
		t.Fatalf("reasons = %v, want %s", ack.Reasons, ReasonContactUnavailable)
	}
	if f.resolver.calls != 0 {
		t.Fatalf("resolver called %d times without a contact", f.resolver.calls)
	}
}

func TestTurnContextMentionsKnownState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.contact = contractx.Contact{ID: 7, Phone: "311234", Name: "Leonie", LocationName: "Lisbon, Portugal"}
	f.resolver.result = contractx.IntentResult{Kind: contractx.IntentPlainReply, Reply: "hi"}

	f.orch.Handle(context.Background(), textEvent())

	if len(f.resolver.contexts) != 1 {
		t.Fatalf("resolver contexts = %d, want 1", len(f.resolver.contexts))
	}
	got := f.resolver.contexts[0]
	for _, want := range []string{"311234", "Leonie", "Lisbon, Portugal", "I'm in Lisbon, Portugal"} {
		if !strings.Contains(got, want) {
			t.Fatalf("turn context %q missing %q", got, want)
		}
	}
}

func TestTurnContextMarksUnknownLocation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.resolver.result = contractx.IntentResult{Kind: contractx.IntentPlainReply, Reply: "hi"}

	f.orch.Handle(context.Background(), textEvent())

	got := f.resolver.contexts[0]
	if !strings.Contains(got, "do not know the user's location") {
		t.Fatalf("turn context %q missing the unknown-location marker", got)
	}
}
