package booking

import (
	"fmt"
	"regexp"
	"strings"

	"statementsync/pkg/htmlutil"
)

// TokenExtractor pulls an anti-forgery token out of a page.
//
// note: fault injection point
type TokenExtractor interface {
	Token(body []byte) (string, bool)
}

// ReportIdExtractor pulls the generated report id out of the report generation response.
//
// note: fault injection point
type ReportIdExtractor interface {
	ReportId(body []byte) (string, bool)
}

// ControlIdExtractor pulls the report viewer's control id out of the viewer page.
//
// note: fault injection point
type ControlIdExtractor interface {
	ControlId(body []byte) (string, bool)
}

// TransactionExtractor pulls the selectable transaction ids out of a statement page.
//
// note: fault injection point
type TransactionExtractor interface {
	Transactions(body []byte) ([]string, bool)
}

// Extractors is the set of pluggable extraction strategies a Session uses,
// they are all pure functions of the response body.
type Extractors struct {
	LoginToken   TokenExtractor
	ReportToken  TokenExtractor
	ReportId     ReportIdExtractor
	ControlId    ControlIdExtractor
	Transactions TransactionExtractor
}

var (
	patternAnyValue  = regexp.MustCompile(`value="([^"]+)"`)
	patternReportId  = regexp.MustCompile(`(?i)id=([0-9a-f\-]{36})`)
	patternControlId = regexp.MustCompile(`ControlID=([0-9a-fA-F]{32})`)
)

func DefaultExtractors() Extractors {
	return Extractors{
		LoginToken:   HiddenInput{Name: fieldRequestVerificationToken},
		ReportToken:  Pattern{Regexp: patternAnyValue},
		ReportId:     Pattern{Regexp: patternReportId},
		ControlId:    Pattern{Regexp: patternControlId},
		Transactions: Checkboxes{Name: fieldTransactions},
	}
}

func (e Extractors) withDefaults() Extractors {
	defaults := DefaultExtractors()
	if e.LoginToken == nil {
		e.LoginToken = defaults.LoginToken
	}
	if e.ReportToken == nil {
		e.ReportToken = defaults.ReportToken
	}
	if e.ReportId == nil {
		e.ReportId = defaults.ReportId
	}
	if e.ControlId == nil {
		e.ControlId = defaults.ControlId
	}
	if e.Transactions == nil {
		e.Transactions = defaults.Transactions
	}
	return e
}

// Pattern extracts the first capture group of the first match of a regular expression.
type Pattern struct {
	Regexp *regexp.Regexp
}

func (p Pattern) match(body []byte) (string, bool) {
	groups := p.Regexp.FindSubmatch(body)
	if len(groups) < 2 || len(groups[1]) == 0 {
		return "", false
	}
	return string(groups[1]), true
}

func (p Pattern) Token(body []byte) (string, bool)     { return p.match(body) }
func (p Pattern) ReportId(body []byte) (string, bool)  { return p.match(body) }
func (p Pattern) ControlId(body []byte) (string, bool) { return p.match(body) }

// HiddenInput extracts the value of the first input element with the given name.
type HiddenInput struct {
	Name string
}

func (h HiddenInput) Token(body []byte) (string, bool) {
	doc, err := htmlutil.Parse(body)
	if err != nil {
		return "", false
	}
	value := strings.TrimSpace(
		doc.Find(fmt.Sprintf(`input[name="%s"]`, h.Name)).First().AttrOr("value", ""),
	)
	return value, value != ""
}

// Checkboxes extracts the non-empty values of every checkbox with the given name.
type Checkboxes struct {
	Name string
}

func (c Checkboxes) Transactions(body []byte) ([]string, bool) {
	doc, err := htmlutil.Parse(body)
	if err != nil {
		return nil, false
	}
	values := htmlutil.AttrValues(
		doc.Find(fmt.Sprintf(`input[type="checkbox"][name="%s"]`, c.Name)),
		"value",
	)
	return values, len(values) > 0
}
