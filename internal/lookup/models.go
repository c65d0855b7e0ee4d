// Package lookup holds the result model shared by the transcoder, the
// gateway and the response caches.
package lookup

import (
	"time"

	"idlookup/internal/identifier"
)

// FallbackReason explains why a result was synthesized instead of fetched.
type FallbackReason string

const (
	FallbackNone FallbackReason = ""
	// FallbackCircuitOpen means the breaker refused the call; no network attempt was made.
	FallbackCircuitOpen FallbackReason = "circuit_open"
	// FallbackUpstreamFailure means every attempt failed or a terminal error was returned.
	FallbackUpstreamFailure FallbackReason = "upstream_failure"
)

const (
	MessageSuccess     = "query completed successfully"
	MessageNotFound    = "no data found for identifier"
	MessageUnavailable = "service temporarily unavailable"
)

// Result is the registry data returned for one identifier. Person fields are
// nil when the upstream left them blank.
type Result struct {
	GivenNames      *string `json:"given_names,omitempty"`
	FirstSurname    *string `json:"first_surname,omitempty"`
	SecondSurname   *string `json:"second_surname,omitempty"`
	FullName        *string `json:"full_name,omitempty"`
	BirthDate       *string `json:"birth_date,omitempty"`
	BirthPlace      *string `json:"birth_place,omitempty"`
	Sex             *string `json:"sex,omitempty"`
	MaritalStatus   *string `json:"marital_status,omitempty"`
	RegionCode      *string `json:"region_code,omitempty"`
	SequenceNumber  *string `json:"sequence_number,omitempty"`
	VerifierDigit   *string `json:"verifier_digit,omitempty"`
	NationalityCode *string `json:"nationality_code,omitempty"`
	Nationality     *string `json:"nationality,omitempty"`
	ExpiryDate      *string `json:"expiry_date,omitempty"`
	CategoryCode    *string `json:"category_code,omitempty"`
	Category        *string `json:"category,omitempty"`
	RegistryStatus  *string `json:"registry_status,omitempty"`
	PhotoURL        *string `json:"photo_url,omitempty"`

	Success        bool                      `json:"success"`
	Message        string                    `json:"message"`
	QueriedAt      time.Time                 `json:"queried_at"`
	ValidationInfo identifier.ValidationInfo `json:"validation_info"`
	Fallback       FallbackReason            `json:"fallback,omitempty"`
}

// IsFallback reports whether the result was synthesized by the gateway.
func (r *Result) IsFallback() bool {
	return r != nil && r.Fallback != FallbackNone
}

// Unavailable builds the synthesized result returned when the upstream cannot
// be reached.
func Unavailable(id identifier.Identifier, reason FallbackReason, now time.Time) *Result {
	return &Result{
		Success:        false,
		Message:        MessageUnavailable,
		QueriedAt:      now,
		ValidationInfo: id.ValidationInfo(),
		Fallback:       reason,
	}
}
