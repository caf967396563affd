// Package constants provides shared constants used throughout the icsync
// codebase: timeouts, retry bounds, search limits, and the widths of the
// identity tokens written into remote records.
package constants

import "time"

// Timeout and retry constants for calls against the Discourse API.
const (
	// HTTPTimeout is the fixed per-call timeout for remote requests.
	HTTPTimeout = 60 * time.Second

	// MaxAttempts is the total number of attempts for a remote call,
	// including the first one.
	MaxAttempts = 6

	// RetryBackoff is the initial backoff delay between attempts.
	RetryBackoff = 1 * time.Second

	// MaxRetryBackoff caps the exponential backoff delay.
	MaxRetryBackoff = 30 * time.Second

	// RetryJitter is the upper bound of the random jitter added to
	// every backoff delay.
	RetryJitter = 500 * time.Millisecond

	// WriteCooldown is a short pause after every successful call so a
	// large calendar does not hammer the remote instance.
	WriteCooldown = 200 * time.Millisecond
)

// Matching pipeline limits.
const (
	// DefaultScanPages is how many pages of the recent-activity listing
	// the exhaustive fallback walks before giving up.
	DefaultScanPages = 8

	// MaxSearchCandidates caps the number of unique topics the
	// description-search stage will fetch and verify.
	MaxSearchCandidates = 12

	// MaxSearchPhrases caps how many quoted phrases the description
	// search derives from a rendered event body.
	MaxSearchPhrases = 4

	// MinPhraseLength is the minimum length of a body line before it is
	// considered distinctive enough to be used as a search phrase.
	MinPhraseLength = 12
)

// Identity token constants. These widths and prefixes are load-bearing:
// they must match the tokens already stored on live records.
const (
	// TagTokenPrefix prefixes the hash-derived Discourse tag.
	TagTokenPrefix = "ics-"

	// TagTokenWidth is the number of hash hex digits in the tag token.
	TagTokenWidth = 10

	// MarkerTokenPrefix prefixes the hash-derived in-content marker.
	MarkerTokenPrefix = "ICSUID:"

	// MarkerTokenWidth is the number of hash hex digits in the marker.
	MarkerTokenWidth = 16
)

// Source reader constants.
const (
	// SourceFetchTimeout is the timeout for downloading an ICS feed.
	SourceFetchTimeout = 60 * time.Second

	// MaxOccurrencesPerEvent caps recurrence expansion per VEVENT.
	MaxOccurrencesPerEvent = 500

	// DefaultExpandHorizon is how far ahead recurring events are
	// expanded when no explicit horizon is configured.
	DefaultExpandHorizon = 365 * 24 * time.Hour
)

// Default values.
const (
	// DefaultSiteTimezone is the timezone used for rendering event times
	// when none is configured.
	DefaultSiteTimezone = "Europe/London"

	// DefaultAPIUsername is the Api-Username sent when none is
	// configured.
	DefaultAPIUsername = "system"
)

// Time formats.
const (
	// TimeFormatCanonical is the "YYYY-MM-DD HH:MM" layout used inside
	// event blocks and everywhere triples are compared.
	TimeFormatCanonical = "2006-01-02 15:04"

	// TimeFormatInstanceKey is the compact layout appended to a UID to
	// identify one occurrence of a recurring event.
	TimeFormatInstanceKey = "20060102T1504"
)
