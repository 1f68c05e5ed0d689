package contract

import "context"

type ContactStore interface {
	// FindOrCreate resolves the contact for a phone identifier, inserting a
	// new record when none exists. Name and accountID are captured only at
	// creation and never overwrite an existing record.
	FindOrCreate(ctx context.Context, phone, name, accountID string) (Contact, error)

	// SaveLocation updates the location fields of an existing contact,
	// last-write-wins.
	SaveLocation(ctx context.Context, contactID int64, locationName string, raw SaveLocation) (Contact, error)

	// RecordMessage appends one processed message to the dedup ledger.
	RecordMessage(ctx context.Context, messageID, body string, contactID int64) error

	// Seen reports whether a message id was already recorded for the contact.
	Seen(ctx context.Context, messageID string, contactID int64) (bool, error)
}

type IntentResolver interface {
	Resolve(ctx context.Context, turnContext string) (IntentResult, error)
}

type WeatherService interface {
	Current(ctx context.Context, location string) (WeatherSummary, error)
}

type ReplyDispatcher interface {
	SendText(ctx context.Context, to, body string) error
}
