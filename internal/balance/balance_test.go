package balance

import (
	"context"
	"errors"
	"testing"

	"statementsync/internal/components/telemetry"
	"statementsync/internal/failure"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		raw     string
		display string
		amount  string
	}{
		{raw: "22,835.03", display: "SAR 22,835.03", amount: "22835.03"},
		{raw: "0.00", display: "SAR 0.00", amount: "0"},
		{raw: "-1,200.5", display: "SAR -1,200.5", amount: "-1200.5"},
		{raw: "150.5", display: "SAR 150.5", amount: "150.5"},
		{raw: "abc", display: "SAR abc", amount: "0"},
		{raw: "", display: "SAR ", amount: "0"},
	}

	for _, test := range cases {
		t.Run(test.raw, func(t *testing.T) {
			b := Parse(test.raw)
			require.Equal(t, test.display, b.Display)
			require.True(t, decimal.RequireFromString(test.amount).Equal(b.Amount), b.Amount.String())
			require.True(t, b.Available())
		})
	}

	require.Equal(t, 22835.03, Parse("22,835.03").Float())
}

type fakeSource struct {
	raw string
	err error
}

func (f fakeSource) TotalBalance(context.Context, string, string) (string, error) {
	return f.raw, f.err
}

func TestResolve(t *testing.T) {
	tel := &telemetry.RecordingAPI{}

	b := NewResolver(fakeSource{raw: "1,000.25"}, tel).Resolve(context.Background(), "1", "01/01/2025")
	require.Equal(t, "SAR 1,000.25", b.Display)
	require.Equal(t, 1000.25, b.Float())
	require.Empty(t, tel.Reports("warning", ""))

	b = NewResolver(
		fakeSource{err: failure.New(failure.BalanceFetch, errors.New("timeout"))},
		tel,
	).Resolve(context.Background(), "2", "01/01/2025")
	require.Equal(t, Unavailable, b.Display)
	require.True(t, b.Amount.IsZero())
	require.False(t, b.Available())
	require.Len(t, tel.Reports("warning", report_resolver_resolve), 1)
}
