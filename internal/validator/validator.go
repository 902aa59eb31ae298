package validator

import (
	"sync/atomic"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
)

// Validator holds the active Rules and swaps them on config reload. Each
// Validate call sees one consistent rule set.
type Validator struct {
	rules atomic.Pointer[Rules]
}

// New compiles cfg into a Validator.
func New(cfg config.ValidationConfig) (*Validator, error) {
	r, err := NewRules(cfg)
	if err != nil {
		return nil, err
	}
	v := &Validator{}
	v.rules.Store(r)
	return v, nil
}

// Update replaces the rules. On error the previous rules stay active.
func (v *Validator) Update(cfg config.ValidationConfig) error {
	r, err := NewRules(cfg)
	if err != nil {
		return err
	}
	v.rules.Store(r)
	return nil
}

// Rules returns the active rule set.
func (v *Validator) Rules() *Rules { return v.rules.Load() }

// Validate runs every check with the active rules.
func (v *Validator) Validate(in Input) domain.ValidationResult {
	return v.rules.Load().Validate(in)
}
