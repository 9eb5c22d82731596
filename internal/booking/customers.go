package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"statementsync/internal/failure"
)

const report_session_customers = "session.customers"

// DefaultPageSize is the page size the customer listing is requested with.
const DefaultPageSize = 500

type Customer struct {
	Id   string
	Name string
}

// CustomerPage is one page of the customer listing.
type CustomerPage struct {
	Customers []Customer
	// Entries counts every entry the site returned, including the dropped ones,
	// so callers can tell a short page from a full one.
	Entries int
}

// looseString accepts a JSON string or number and keeps its literal text.
type looseString string

func (l *looseString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*l = ""
		return nil
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = looseString(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*l = looseString(n.String())
		return nil
	}
}

type customerPage struct {
	Data []struct {
		CustomerId   looseString `json:"CustomerId"`
		CustomerName looseString `json:"CustomerName"`
	} `json:"data"`
}

// Customers fetches one page (1-based) of the customer financial status listing.
// Entries without an id or name are dropped. Errors are of kind failure.DirectoryFetch.
func (s *Session) Customers(ctx context.Context, page, pageSize int) (CustomerPage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutDefault)
	defer cancel()

	res, err := s.request(ctx, ajaxRequest, pathFinancialStatusPage).
		SetQueryParams(map[string]string{
			"AgencyType": agencyType,
			"page":       strconv.Itoa(page),
			"pageSize":   strconv.Itoa(pageSize),
		}).
		Get(pathCustomerStatusList)
	if err != nil {
		s.tel.ReportWarning(report_session_customers, page, err)
		return CustomerPage{}, failure.New(failure.DirectoryFetch, err)
	}
	if res.StatusCode() != http.StatusOK {
		err = statusError{Status: res.StatusCode()}
		s.tel.ReportWarning(report_session_customers, page, err)
		return CustomerPage{}, failure.New(failure.DirectoryFetch, err)
	}

	var body customerPage
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		s.tel.ReportWarning(report_session_customers, page, err)
		return CustomerPage{}, failure.New(failure.DirectoryFetch, fmt.Errorf("decode page %d: %w", page, err))
	}

	customers := make([]Customer, 0, len(body.Data))
	for _, entry := range body.Data {
		id := strings.TrimSpace(string(entry.CustomerId))
		name := string(entry.CustomerName)
		if id == "" || name == "" {
			continue
		}
		customers = append(customers, Customer{Id: id, Name: name})
	}
	s.tel.ReportDebug(report_session_customers, page, len(customers))
	return CustomerPage{Customers: customers, Entries: len(body.Data)}, nil
}

// ReportToken fetches the anti-forgery token required by report generation.
// A page without a token yields an empty token and no error.
func (s *Session) ReportToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutDefault)
	defer cancel()

	res, err := s.request(ctx, ajaxRequest, pathFinancialStatusPage).Get(pathFinancialStatusPage)
	if err != nil {
		return "", err
	}
	if res.StatusCode() != http.StatusOK {
		return "", statusError{Status: res.StatusCode()}
	}
	token, _ := s.extract.ReportToken.Token(res.Body())
	return token, nil
}
