package versionmanager

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// ConflictAdvisor predicts a classification for a conflict. Advisors are
// strictly advisory: their output lands in the conflict's
// advisory_resolution annotation and never bypasses explicit resolution.
type ConflictAdvisor interface {
	Name() string
	Predict(ctx context.Context, conflict Conflict) (types.ConflictClassification, float64, error)
}

var (
	advisorMu sync.RWMutex
	advisors  []ConflictAdvisor
)

// RegisterConflictAdvisor adds an advisor consulted on every classified
// conflict. Registration order is consultation order.
func RegisterConflictAdvisor(a ConflictAdvisor) {
	if a == nil {
		return
	}
	advisorMu.Lock()
	defer advisorMu.Unlock()
	advisors = append(advisors, a)
}

// adviseConflict asks registered advisors in order and annotates the
// conflict with the first successful prediction. Advisor failures are logged
// and ignored; the merge outcome never depends on them.
func adviseConflict(ctx context.Context, conflict *Conflict) {
	advisorMu.RLock()
	registered := make([]ConflictAdvisor, len(advisors))
	copy(registered, advisors)
	advisorMu.RUnlock()

	for _, a := range registered {
		classification, confidence, err := a.Predict(ctx, *conflict)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("advisor", a.Name()).Str("object", conflict.Ref.String()).Msg("conflict advisor failed")
			continue
		}
		conflict.Advisory = &AdvisoryResolution{
			Classification: classification,
			Confidence:     confidence,
			Advisor:        a.Name(),
		}
		return
	}
}
