package service

import "errors"

var (
	ErrNoPortfolios = errors.New("error no portfolios")
	ErrNoQuotes     = errors.New("error no quotes available")
)
