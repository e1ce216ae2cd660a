package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Contact is one contact entry attached to a resolved candidate.
type Contact struct {
	Type    string
	Value   string
	SubType string
}

// SocialProfile is one social link attached to a resolved candidate.
type SocialProfile struct {
	Type string `json:"type"`
	Link string `json:"link"`
}

// Candidate is the provider's resolved person for a submitted identifier.
// All fields are optional on the wire.
type Candidate struct {
	UID      string
	FullName string
	Contacts []Contact
	Social   []SocialProfile
}

// CallbackItem is one per-identifier result object from a callback delivery.
// Candidate is nil when the provider could not resolve the identifier.
type CallbackItem struct {
	Status    string
	Item      string
	Candidate *Candidate
}

// LinkedInURL returns the candidate's LinkedIn profile link when present,
// falling back to the originally submitted identifier.
func (i CallbackItem) LinkedInURL() string {
	if i.Candidate != nil {
		for _, s := range i.Candidate.Social {
			switch strings.ToLower(strings.TrimSpace(s.Type)) {
			case "li", "linkedin":
				if s.Link != "" {
					return s.Link
				}
			}
		}
	}
	return i.Item
}

// Wire shapes vary across provider versions; alternate key spellings are
// coalesced here instead of leaking into the rest of the code.

type contactWire struct {
	Type         string `json:"type"`
	Value        string `json:"value"`
	SubType      string `json:"subType"`
	SubTypeSnake string `json:"sub_type"`
}

type candidateWire struct {
	UID           string          `json:"uid"`
	FullName      string          `json:"fullName"`
	FullNameSnake string          `json:"full_name"`
	Contacts      []contactWire   `json:"contacts"`
	Social        []SocialProfile `json:"social"`
}

type callbackItemWire struct {
	Status    string         `json:"status"`
	Item      string         `json:"item"`
	Candidate *candidateWire `json:"candidate"`
}

func (w callbackItemWire) toDomain() CallbackItem {
	item := CallbackItem{
		Status: w.Status,
		Item:   w.Item,
	}
	if w.Candidate == nil {
		return item
	}

	candidate := &Candidate{
		UID:      w.Candidate.UID,
		FullName: coalesce(w.Candidate.FullName, w.Candidate.FullNameSnake),
		Social:   w.Candidate.Social,
	}
	for _, c := range w.Candidate.Contacts {
		candidate.Contacts = append(candidate.Contacts, Contact{
			Type:    c.Type,
			Value:   c.Value,
			SubType: coalesce(c.SubType, c.SubTypeSnake),
		})
	}
	item.Candidate = candidate
	return item
}

// DecodeCallbackPayload parses a callback body into per-identifier items.
// The provider normally sends an array; a bare object is accepted as a
// single-item delivery. Anything else is a client error.
func DecodeCallbackPayload(body []byte) ([]CallbackItem, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty callback body", ErrValidation)
	}

	var wires []callbackItemWire
	if err := json.Unmarshal([]byte(trimmed), &wires); err != nil {
		var single callbackItemWire
		if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
			return nil, fmt.Errorf("%w: unparsable callback body: %v", ErrValidation, err)
		}
		wires = []callbackItemWire{single}
	}

	items := make([]CallbackItem, 0, len(wires))
	for _, w := range wires {
		items = append(items, w.toDomain())
	}
	return items, nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
