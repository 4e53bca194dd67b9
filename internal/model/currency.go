package model

// Currency codes supported by the wallet.
type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyEUR Currency = "EUR"
)

// DefaultCurrencies is the balance set seeded on every new wallet.
// The first entry is the primary currency that carries the virtual account.
var DefaultCurrencies = []Currency{CurrencyNGN, CurrencyUSD, CurrencyGBP, CurrencyEUR}

func (c Currency) Valid() bool {
	switch c {
	case CurrencyNGN, CurrencyUSD, CurrencyGBP, CurrencyEUR:
		return true
	}
	return false
}
