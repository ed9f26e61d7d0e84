package repository

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
)

// checkedRow is a row that validates itself after being decoded.
type checkedRow interface {
	Check() error
}

func checkRows[T checkedRow](rows []T) ([]T, error) {
	for _, row := range rows {
		if err := row.Check(); err != nil {
			return nil, fmt.Errorf("malformed row: %w", err)
		}
	}
	return rows, nil
}

func validateItems[T any](validate *validator.Validate, items []T) error {
	for i := range items {
		if err := validate.Struct(items[i]); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("batch item %d rejected", i))
		}
	}
	return nil
}
