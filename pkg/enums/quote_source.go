package enums

import "slices"

// QuoteSource records which path produced a shipping quote.
type QuoteSource string

const (
	QuoteSourceRemote   QuoteSource = "remote"
	QuoteSourceFallback QuoteSource = "fallback"
	QuoteSourceCoupon   QuoteSource = "coupon"
)

var validQuoteSources = []QuoteSource{
	QuoteSourceRemote,
	QuoteSourceFallback,
	QuoteSourceCoupon,
}

func (q QuoteSource) String() string {
	return string(q)
}

func (q QuoteSource) IsValid() bool {
	return slices.Contains(validQuoteSources, q)
}

func ParseQuoteSource(value string) (QuoteSource, error) {
	return parse("quote source", validQuoteSources, value)
}
