package registers

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/lucero-pos/lucero/internal/shared"
)

// CashRegister is a named physical till. Registers are never hard-deleted;
// their history must stay queryable forever.
type CashRegister struct {
	ID                 uuid.UUID           `json:"id"`
	BusinessID         uuid.UUID           `json:"businessId"`
	Name               string              `json:"name"`
	IsActive           bool                `json:"isActive"`
	Created            shared.AuditStamp   `json:"created"`
	Updated            *shared.AuditStamp  `json:"updated,omitempty"`
	Deactivated        *shared.AuditStamp  `json:"deactivated,omitempty"`
	DeactivationReason string              `json:"deactivationReason,omitempty"`
}

// DeletePolicy declares registers as soft-delete only.
func (CashRegister) DeletePolicy() shared.DeletePolicy { return shared.DeleteNever }

var (
	// ErrDuplicateName indicates the business already has a register with
	// that exact name.
	ErrDuplicateName = errors.New("registers: name already in use")
	// ErrLastActiveRegister indicates deactivation would leave the business
	// with no active register.
	ErrLastActiveRegister = fmt.Errorf("registers: %w: business must retain at least one active register", shared.ErrStateConflict)
	// ErrOpenSnapshotExists indicates the register still has an open daily
	// snapshot.
	ErrOpenSnapshotExists = fmt.Errorf("registers: %w: register has an open snapshot", shared.ErrStateConflict)
	// ErrAlreadyActive indicates a reactivation of an active register.
	ErrAlreadyActive = fmt.Errorf("registers: %w: register already active", shared.ErrStateConflict)
	// ErrAlreadyInactive indicates a deactivation of an inactive register.
	ErrAlreadyInactive = fmt.Errorf("registers: %w: register already inactive", shared.ErrStateConflict)
)

const (
	nameMinLen = 2
	nameMaxLen = 50
)

// forbiddenNameChars are rejected anywhere in a register name.
const forbiddenNameChars = `<>:"/\|?*`

var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// NormalizeName trims and NFC-normalizes a register name so uniqueness
// compares canonical forms.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateName applies the register naming policy to an already-normalized name.
func ValidateName(name string) error {
	fields := shared.FieldErrors{}
	length := utf8.RuneCountInString(name)
	switch {
	case length < nameMinLen:
		fields.Add("name", fmt.Sprintf("must be at least %d characters", nameMinLen))
	case length > nameMaxLen:
		fields.Add("name", fmt.Sprintf("must be at most %d characters", nameMaxLen))
	}
	if strings.ContainsAny(name, forbiddenNameChars) {
		fields.Add("name", `must not contain any of < > : " / \ | ? *`)
	}
	if _, ok := reservedNames[strings.ToUpper(name)]; ok {
		fields.Add("name", "is a reserved name")
	}
	return fields.AsError()
}

// CreateInput carries the parameters for a new register.
type CreateInput struct {
	Name string `json:"name" validate:"required,min=2,max=50"`
}

// DeactivateInput carries the parameters for a deactivation.
type DeactivateInput struct {
	Reason string `json:"reason" validate:"required"`
}

// Validate requires the deactivation audit fields to be complete.
func (in DeactivateInput) Validate(actor shared.Identity) error {
	fields := shared.FieldErrors{}
	if strings.TrimSpace(in.Reason) == "" {
		fields.Add("reason", "is required")
	}
	if actor.ActorID == uuid.Nil || actor.ActorName == "" {
		fields.Add("actor", "deactivation audit fields are incomplete")
	}
	return fields.AsError()
}
