package stock

import "fmt"

// InvalidSymbolError is raised when a symbol does not match the
// four-uppercase-letter rule.
type InvalidSymbolError struct {
	Symbol string
}

func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("invalid symbol %q: must be exactly four uppercase letters A-Z", e.Symbol)
}

// InvalidPriceError is raised when a price is outside the configured
// bounds or not positive.
type InvalidPriceError struct {
	Symbol string
	Price  string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price %s for %s: out of allowed bounds", e.Price, e.Symbol)
}
