package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"statementsync/internal/failure"
)

const report_session_account_statement = "session.account-statement"

// TotalBalance fetches the raw TotalBalance of a client's account statement as the
// site formats it (ex. "22,835.03"). A response without the field yields "0.00".
// Errors are of kind failure.BalanceFetch.
func (s *Session) TotalBalance(ctx context.Context, clientId, fromDate string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutBalance)
	defer cancel()

	res, err := s.request(ctx, ajaxRequest, pathAccountStatementPage).
		SetQueryParams(map[string]string{
			"AgencyId":                   clientId,
			"HotelId":                    "null",
			"OperationType":              "",
			"BookingStatus":              bookingStatus,
			"RoomStatus":                 roomStatus,
			"PostingStatus":              "",
			"PaymentStatus":              "",
			"findBy":                     "0",
			"fromDate":                   fromDate,
			"toDate":                     "",
			"CurrencyId":                 "",
			"AmountTypeSelected":         "1",
			"Amount":                     "",
			"HidePreviousBalance":        "false",
			"DisplayBookingDateSelected": "0",
			"GroupByDocNumber":           "false",
		}).
		Get(pathAccountStatementJson)
	if err != nil {
		s.tel.ReportDebug(report_session_account_statement, clientId, err)
		return "", failure.New(failure.BalanceFetch, err)
	}
	if res.StatusCode() != http.StatusOK {
		return "", failure.New(failure.BalanceFetch, statusError{Status: res.StatusCode()})
	}

	var body struct {
		TotalBalance *looseString `json:"TotalBalance"`
	}
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		return "", failure.New(failure.BalanceFetch, fmt.Errorf("decode account statement: %w", err))
	}
	if body.TotalBalance == nil || *body.TotalBalance == "" {
		return "0.00", nil
	}
	return string(*body.TotalBalance), nil
}
