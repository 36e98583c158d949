package devserver

import (
	"errors"
	"fmt"
	"strings"

	"pickandplay/internal/order"
	"pickandplay/internal/payment"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func validateCreate(req order.CreateRequest) error {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if err := validate.Struct(&req); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidOrder, describe(err))
	}
	return validateItems(req.Items)
}

func validateItems(items []order.LineItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	for _, it := range items {
		if err := validate.Struct(&it); err != nil {
			return fmt.Errorf("%w: line item %q: %s", ErrInvalidOrder, it.ProductID, describe(err))
		}
		if it.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line item %q: negative unit price", ErrInvalidOrder, it.ProductID)
		}
	}
	return nil
}

func validateScan(req payment.ScanRequest) error {
	if err := validate.Struct(&req); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidScan, describe(err))
	}
	if req.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount", ErrInvalidScan)
	}
	return nil
}

// describe flattens validation errors into "field rule" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
