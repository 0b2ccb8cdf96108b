// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package folio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/Folio/services/folio/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError reports an intent rejected before it reached the cache.
type ValidationError struct {
	Intent string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Intent, e.Field, e.Reason)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// idInput is the argument of every single-id intent.
type idInput struct {
	ID string `validate:"required,max=128,printascii"`
}

// checkID trims surrounding whitespace from *id and validates the result,
// so " 42" and "42" name the same entity.
func checkID(intent, field string, id *model.ID) error {
	*id = model.ID(strings.TrimSpace(id.String()))
	err := validate.Struct(idInput{ID: id.String()})
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &ValidationError{Intent: intent, Field: field, Reason: "failed " + verrs[0].Tag()}
	}
	return &ValidationError{Intent: intent, Field: field, Reason: err.Error()}
}
