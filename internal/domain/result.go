package domain

import "time"

// ResultRow is one flattened projection of a callback payload item.
// Contact fields are nil when the candidate carried no contacts; the row
// still exists so every processed identifier stays traceable.
type ResultRow struct {
	BatchID        string
	UID            string
	FullName       string
	Status         string
	LinkedInURL    string
	ContactType    *string
	ContactValue   *string
	ContactSubType *string
	CreatedAt      time.Time
}
