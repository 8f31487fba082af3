package ledgercommon

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const planIdAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
const planIdLength = 14

// NewPlanId returns a short, url-safe identifier for rollback plans. Plans are
// quoted in tickets and chat, so the id stays human-pasteable rather than a
// full UUID.
func NewPlanId() string {
	id, err := gonanoid.Generate(planIdAlphabet, planIdLength)
	if err != nil {
		return ""
	}
	return "rp_" + id
}
