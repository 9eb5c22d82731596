package run

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseClientIds(t *testing.T) {
	cases := []struct {
		input    string
		expected []string
	}{
		{input: "", expected: []string{}},
		{input: " , \n ", expected: []string{}},
		{input: "555", expected: []string{"555"}},
		{input: "1,2 3\n4", expected: []string{"1", "2", "3", "4"}},
		{input: "3, 1,3\n\n2,,1", expected: []string{"3", "1", "2"}},
		{input: "\t7\r\n8 ", expected: []string{"7", "8"}},
	}

	for _, test := range cases {
		if diff := cmp.Diff(test.expected, ParseClientIds(test.input)); diff != "" {
			t.Errorf("ParseClientIds(%q): %s", test.input, diff)
		}
	}
}

func TestCancelToken(t *testing.T) {
	var token CancelToken
	require.False(t, token.Cancelled())
	token.Cancel()
	token.Cancel()
	require.True(t, token.Cancelled())
	token.Reset()
	require.False(t, token.Cancelled())
}

func TestLogBookUpsert(t *testing.T) {
	var book LogBook
	book.Log(Entry{Message: "started"})
	book.Log(Entry{Message: "[1/2] A - 10%", ClientId: "1"})
	book.Log(Entry{Message: "[2/2] B - 0%", ClientId: "2"})
	book.Log(Entry{Message: "[1/2] A - Done", Severity: SeveritySuccess, ClientId: "1"})
	book.Log(Entry{Message: "started"})

	expected := []Entry{
		{Message: "started"},
		{Message: "[1/2] A - Done", Severity: SeveritySuccess, ClientId: "1"},
		{Message: "[2/2] B - 0%", ClientId: "2"},
		{Message: "started"},
	}
	if diff := cmp.Diff(expected, book.Entries()); diff != "" {
		t.Fatal(diff)
	}
}

func TestSummary(t *testing.T) {
	var summary Summary
	require.Equal(t, "Total: SAR 0.00", summary.FormatTotal())

	summary.Add(Row{Id: "1", Name: "A", Balance: "SAR 1,000.50"}, decimal.RequireFromString("1000.50"), true)
	summary.Add(Row{Id: "2", Name: "B", Balance: "SAR 99"}, decimal.RequireFromString("99"), false)
	summary.Add(Row{Id: "3", Name: "C", Balance: "SAR 234.06"}, decimal.RequireFromString("234.06"), true)

	require.Len(t, summary.Rows, 3)
	require.True(t, decimal.RequireFromString("1234.56").Equal(summary.Total))
	require.Equal(t, "Total: SAR 1,234.56", summary.FormatTotal())

	summary.Add(Row{Id: "4"}, decimal.RequireFromString("1000000"), true)
	require.Equal(t, "Total: SAR 1,001,234.56", summary.FormatTotal())
}

func TestSeverityString(t *testing.T) {
	require.Equal(t, "info", SeverityInfo.String())
	require.Equal(t, "success", SeveritySuccess.String())
	require.Equal(t, "error", SeverityError.String())
	require.Equal(t, "warning", SeverityWarning.String())
}
