package models

import "time"

// maxInstructionLen bounds each tenant instruction field.
const maxInstructionLen = 5000

// TenantSettings holds per-tenant natural-language guidance that is folded
// into AI prompts: how to group duplicates, how to classify issue types, and
// how to weigh severity. Empty fields fall back to the built-in prompts.
type TenantSettings struct {
	TenantID             string    `json:"tenant_id"`
	GroupingInstructions string    `json:"grouping_instructions"`
	TypeInstructions     string    `json:"type_classification_instructions"`
	SeverityInstructions string    `json:"severity_calculation_instructions"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// TenantSettingsUpdate is a partial settings update. Nil fields keep their
// stored value; empty strings clear the instruction.
type TenantSettingsUpdate struct {
	GroupingInstructions *string `json:"grouping_instructions"`
	TypeInstructions     *string `json:"type_classification_instructions"`
	SeverityInstructions *string `json:"severity_calculation_instructions"`
}

// Validate bounds the instruction lengths.
func (u *TenantSettingsUpdate) Validate() error {
	for _, f := range []*string{u.GroupingInstructions, u.TypeInstructions, u.SeverityInstructions} {
		if f != nil && len(*f) > maxInstructionLen {
			return ErrInstructionTooLong
		}
	}
	return nil
}
