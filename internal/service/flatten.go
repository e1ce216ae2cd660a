package service

import (
	"time"

	"github.com/kursadbilgin/enrich-engine/internal/domain"
)

// flattenCallbackItems projects callback payload items into result rows:
// one row per contact entry, and exactly one row with empty contact fields
// when a candidate carries no contacts, so every processed identifier
// leaves a trace in the result table.
func flattenCallbackItems(batchID string, items []domain.CallbackItem, at time.Time) []domain.ResultRow {
	rows := make([]domain.ResultRow, 0, len(items))

	for _, item := range items {
		base := domain.ResultRow{
			BatchID:     batchID,
			Status:      item.Status,
			LinkedInURL: item.LinkedInURL(),
			CreatedAt:   at,
		}
		if item.Candidate != nil {
			base.UID = item.Candidate.UID
			base.FullName = item.Candidate.FullName
		}

		if item.Candidate == nil || len(item.Candidate.Contacts) == 0 {
			rows = append(rows, base)
			continue
		}

		for _, contact := range item.Candidate.Contacts {
			row := base
			row.ContactType = optionalString(contact.Type)
			row.ContactValue = optionalString(contact.Value)
			row.ContactSubType = optionalString(contact.SubType)
			rows = append(rows, row)
		}
	}

	return rows
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
