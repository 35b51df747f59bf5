package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation.
var (
	ErrMissingTitle       = errors.New("title is required")
	ErrMissingSource      = errors.New("source is required")
	ErrMissingExternalID  = errors.New("external_id is required")
	ErrMissingToken       = errors.New("token is required")
	ErrMissingChannels    = errors.New("channel_ids is required")
	ErrInvalidSlackToken  = errors.New("token must be a Slack bot token (xoxb-...)")
	ErrInvalidSyncType    = errors.New("sync_type must be 'full' or 'incremental'")
	ErrSeverityOutOfRange = errors.New("severity must be between 1 and 5")
	ErrInstructionTooLong = errors.New("instruction must be at most 5000 characters")
)

// Sentinel errors for entity lookups.
var (
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrIssueNotFound       = errors.New("issue not found")
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrGroupNotFound       = errors.New("issue group not found")
)

// ErrIntegrationInactive indicates an operation that requires an active
// integration hit a pending or deactivated row.
var ErrIntegrationInactive = errors.New("integration is not active")

// ErrDuplicateActive indicates the one-active-row-per-provider invariant
// would be violated (maps to HTTP 409 Conflict with needs_disconnect).
var ErrDuplicateActive = errors.New("an active integration already exists for this provider")

// ErrSyncInProgress indicates a sync is already running or queued for the
// integration.
var ErrSyncInProgress = errors.New("sync already in progress for this integration")

// ErrNotConnected indicates the stored credentials failed validation against
// the provider. Provider clients return this instead of raw 401s.
var ErrNotConnected = errors.New("provider not connected")

// ErrFieldTooLong returns an error indicating a field exceeds its maximum length.
func ErrFieldTooLong(field string, maxLen int) error {
	return fmt.Errorf("%s exceeds maximum length of %d", field, maxLen)
}
