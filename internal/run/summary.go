package run

import (
	"context"

	"statementsync/internal/booking"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Row is one line of the summary export.
type Row struct {
	Id      string
	Name    string
	Balance string
}

// SummaryHeader is the header row of the summary export.
var SummaryHeader = []string{"ID", "Name", "Balance"}

// Summary holds one row per processed client and the total balance of the
// clients whose statement was downloaded.
type Summary struct {
	Rows  []Row
	Total decimal.Decimal
}

// Add appends a row, amount only counts towards the total when downloaded is set.
func (s *Summary) Add(row Row, amount decimal.Decimal, downloaded bool) {
	s.Rows = append(s.Rows, row)
	if downloaded {
		s.Total = s.Total.Add(amount)
	}
}

var printer = message.NewPrinter(language.English)

// FormatTotal renders the grand total line, ex. "Total: SAR 1,234.56".
func (s Summary) FormatTotal() string {
	total, _ := s.Total.Round(2).Float64()
	return printer.Sprintf("Total: %s %.2f", booking.Currency, total)
}

// Exporter writes the summary of a run somewhere, failures are never fatal.
//
// note: fault injection point
type Exporter interface {
	ExportSummary(ctx context.Context, path string, summary Summary) error
}
