package balance

import (
	"context"
	"strings"

	"statementsync/internal/booking"
	"statementsync/internal/components/assert"
	"statementsync/internal/components/telemetry"

	"github.com/shopspring/decimal"
)

const report_resolver_resolve = "resolver.resolve"

// Unavailable is the display value of a balance that could not be fetched.
const Unavailable = "N/A"

// Balance is a client's outstanding balance as displayed and as a number.
type Balance struct {
	// Display is what the site reported prefixed with the currency, or Unavailable.
	Display string
	// Amount is zero when the raw value could not be parsed.
	Amount decimal.Decimal
}

func (b Balance) Available() bool {
	return b.Display != Unavailable
}

// Float returns the amount as a float64 for consumers that do not carry decimals.
func (b Balance) Float() float64 {
	f, _ := b.Amount.Float64()
	return f
}

// Parse turns a raw TotalBalance as formatted by the site ("22,835.03") into a Balance.
func Parse(raw string) Balance {
	amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""))
	if err != nil {
		amount = decimal.Zero
	}
	return Balance{
		Display: booking.Currency + " " + raw,
		Amount:  amount,
	}
}

func unavailable() Balance {
	return Balance{Display: Unavailable, Amount: decimal.Zero}
}

// Source fetches the raw total balance of a client.
//
// note: fault injection point
type Source interface {
	TotalBalance(ctx context.Context, clientId, fromDate string) (string, error)
}

type Resolver struct {
	source Source
	tel    telemetry.API
}

func NewResolver(source Source, tel telemetry.API) Resolver {
	assert.NotNil(source, "source")
	assert.NotNil(tel, "tel")
	return Resolver{source: source, tel: telemetry.NewScopedAPI("balance", tel)}
}

// Resolve never fails, an unavailable balance is reported as a warning and
// returned as ("N/A", 0).
func (r Resolver) Resolve(ctx context.Context, clientId, fromDate string) Balance {
	raw, err := r.source.TotalBalance(ctx, clientId, fromDate)
	if err != nil {
		r.tel.ReportWarning(report_resolver_resolve, clientId, err)
		return unavailable()
	}
	return Parse(raw)
}
