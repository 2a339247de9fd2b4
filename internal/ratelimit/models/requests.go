package models

import "strings"

// ResetRequest asks to clear one client's counter under a policy.
type ResetRequest struct {
	Policy     string `json:"policy"`
	Identifier string `json:"identifier"`
}

// Normalize trims whitespace from all fields.
func (r *ResetRequest) Normalize() {
	r.Policy = strings.TrimSpace(r.Policy)
	r.Identifier = strings.TrimSpace(r.Identifier)
}

// Validate returns field-level problems, or nil.
func (r ResetRequest) Validate() map[string][]string {
	problems := map[string][]string{}
	if r.Policy == "" {
		problems["policy"] = []string{"policy is required"}
	}
	if r.Identifier == "" {
		problems["identifier"] = []string{"identifier is required"}
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}
