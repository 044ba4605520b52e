package quoteModel

import "github.com/shopspring/decimal"

// Quote is one symbol's price as delivered by the external feed.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// RawQuotesResponse mirrors the feed's wire format.
type RawQuotesResponse struct {
	Quotes []Quote `json:"quotes"`
}
