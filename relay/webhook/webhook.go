// Package webhook turns raw Meta Cloud API payloads into typed events.
// All the optional, deeply nested traversal lives here; everything past this
// point works with contract.InboundEvent only.
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/raincheckbot/raincheck/relay/contract"
)

type payload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseEvent extracts the first message of a webhook delivery. A payload
// that decodes but carries no message (status callbacks, read receipts)
// yields an event with an empty Body, which the orchestrator treats as a
// no-op. Only undecodable payloads are an error.
func ParseEvent(raw []byte) (contractx.InboundEvent, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return contractx.InboundEvent{}, fmt.Errorf("%w: decode webhook payload: %v", contractx.ErrValidation, err)
	}

	var ev contractx.InboundEvent
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) == 0 {
				continue
			}
			m := change.Value.Messages[0]
			ev.MessageID = strings.TrimSpace(m.ID)
			ev.From = strings.TrimSpace(m.From)
			ev.Body = strings.TrimSpace(m.Text.Body)

			for _, c := range change.Value.Contacts {
				if c.WaID != m.From && c.WaID != "" && m.From != "" {
					continue
				}
				ev.ProfileName = strings.TrimSpace(c.Profile.Name)
				ev.AccountID = strings.TrimSpace(c.WaID)
				break
			}
			return ev, nil
		}
	}

	return ev, nil
}
