package catalog

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateTaxonomy checks the hierarchy rules: subgenres need a parent,
// top-level genres must not have one.
func ValidateTaxonomy(t *Taxonomy) error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid taxonomy %q: %w", t.Name, err)
	}
	return nil
}

// ValidateEvent checks an engagement event before it is logged.
func ValidateEvent(e *Event) error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	return nil
}

// ValidateBlock checks a user block before it is stored.
func ValidateBlock(b *Block) error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("invalid block: %w", err)
	}
	return nil
}
