// Package bookingtest provides an in-process fake of the booking site for tests.
package bookingtest

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

const (
	SessionCookie = ".AspNet.ApplicationCookie"
	SessionValue  = "fake-authenticated-session"
	LoginToken    = "login-token-123"
	ReportToken   = "report-token-456"
)

// Customer is one entry of the fake customer listing, Id may be a string or a number.
type Customer struct {
	Id   any
	Name string
}

// Client describes what the fake site knows about one client.
type Client struct {
	// Transactions are rendered as checkboxes on the statement page.
	Transactions []string
	// Balance is returned as TotalBalance, nil omits the field.
	Balance any
	// Pdf is the exported statement.
	Pdf []byte

	FailStatementPage bool
	FailReport        bool
	// DropReport closes the connection after reading the report request.
	DropReport        bool
	OmitControlId     bool
	FailBalance       bool
}

// Request is a recorded request made against the fake site.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	Header http.Header
}

type Server struct {
	*httptest.Server

	Username string
	Password string
	// LoginJson answers a successful login with 200 {"success": true} instead of a 302.
	LoginJson bool
	// RejectAll makes every login attempt fail.
	RejectAll bool
	// NoLoginToken omits the anti-forgery token from the login page.
	NoLoginToken bool
	// RejectHtml renders the login page again with a validation message
	// instead of answering a rejected login with json.
	RejectHtml bool

	Customers []Customer
	// FailCustomerPage makes the given page of the listing fail, 0 disables it.
	FailCustomerPage int

	Clients map[string]*Client

	mutex    sync.Mutex
	requests []Request
	reports  map[string]string
	controls map[string]string
}

// NewServer starts a fake booking site, it is closed with the test.
func NewServer(t interface {
	Cleanup(func())
}) *Server {
	s := &Server{
		Username: "agent",
		Password: "secret",
		Clients:  map[string]*Client{},
		reports:  map[string]string{},
		controls: map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/Account/Login", s.handleLogin)
	mux.HandleFunc("/FinancialStatus/CustomerFinancialStatus", s.authenticated(s.handleFinancialStatus))
	mux.HandleFunc("/FinancialStatus/GetCustomerFinancialStatus", s.authenticated(s.handleCustomers))
	mux.HandleFunc("/Finance/AccountStatement/", s.authenticated(s.handleStatementPage))
	mux.HandleFunc("/Finance/GetAccountStatement", s.authenticated(s.handleAccountStatement))
	mux.HandleFunc("/Finance/ReportAccountStatement", s.authenticated(s.handleReport))
	mux.HandleFunc("/Reports/Viewer.aspx", s.authenticated(s.handleViewer))
	mux.HandleFunc("/Reserved.ReportViewerWebControl.axd", s.authenticated(s.handleExport))

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)
	return s
}

// Requests returns the recorded requests whose path starts with the prefix.
func (s *Server) Requests(pathPrefix string) []Request {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var out []Request
	for _, r := range s.requests {
		if strings.HasPrefix(r.Path, pathPrefix) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var form url.Values
		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			form, _ = url.ParseQuery(string(body))
			r.Form = form
		}
		s.mutex.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Form:   form,
			Header: r.Header.Clone(),
		})
		s.mutex.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil || cookie.Value != SessionValue {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		token := ""
		if !s.NoLoginToken {
			token = fmt.Sprintf(`<input name="__RequestVerificationToken" type="hidden" value="%s" />`, LoginToken)
		}
		fmt.Fprintf(w, `<html><body><form action="/Account/Login" method="post">%s
<input name="UserName" /><input name="Password" type="password" /></form></body></html>`, token)
		return
	}

	ok := !s.RejectAll &&
		r.Form.Get("__RequestVerificationToken") == LoginToken &&
		r.Form.Get("UserName") == s.Username &&
		r.Form.Get("Password") == s.Password
	if !ok && s.RejectHtml {
		fmt.Fprint(w, `<html><body><div class="validation-summary-errors" data-valmsg-summary="true">
<ul><li>Invalid   login
	attempt.</li></ul></div></body></html>`)
		return
	}
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success": false}`)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: SessionValue, Path: "/"})
	if s.LoginJson {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success": true}`)
		return
	}
	http.Redirect(w, r, "/BookingWorkflow/Index", http.StatusFound)
}

func (s *Server) handleFinancialStatus(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, `<html><body><form><input name="__RequestVerificationToken" type="hidden" value="%s" /></form></body></html>`, ReportToken)
}

func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if page < 1 || size < 1 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if page == s.FailCustomerPage {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	start := (page - 1) * size
	end := start + size
	if start > len(s.Customers) {
		start = len(s.Customers)
	}
	if end > len(s.Customers) {
		end = len(s.Customers)
	}

	data := []map[string]any{}
	for _, c := range s.Customers[start:end] {
		data = append(data, map[string]any{"CustomerId": c.Id, "CustomerName": c.Name})
	}
	writeJson(w, map[string]any{"data": data, "total": len(s.Customers)})
}

func (s *Server) client(id string) *Client {
	c, ok := s.Clients[id]
	if !ok {
		return &Client{}
	}
	return c
}

func (s *Server) handleStatementPage(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/Finance/AccountStatement/")
	c := s.client(id)
	if c.FailStatementPage {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	var rows strings.Builder
	for _, tx := range c.Transactions {
		fmt.Fprintf(&rows, `<tr><td><input type="checkbox" name="Transactions" value="%s" /></td></tr>`, html.EscapeString(tx))
	}
	fmt.Fprintf(w, `<html><body><table>%s</table></body></html>`, rows.String())
}

func (s *Server) handleAccountStatement(w http.ResponseWriter, r *http.Request) {
	c := s.client(r.URL.Query().Get("AgencyId"))
	if c.FailBalance {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	body := map[string]any{"Data": []any{}}
	if c.Balance != nil {
		body["TotalBalance"] = c.Balance
	}
	writeJson(w, body)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	clientId := r.Form.Get("AgencyId")
	if s.client(clientId).DropReport {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}
	if r.Form.Get("__RequestVerificationToken") != ReportToken || s.client(clientId).FailReport {
		fmt.Fprint(w, `{"success": false}`)
		return
	}

	s.mutex.Lock()
	n := len(s.reports) + 1
	reportId := fmt.Sprintf("%08x-0000-4000-8000-%012x", n, n)
	s.reports[reportId] = clientId
	s.mutex.Unlock()

	writeJson(w, map[string]any{"url": "/Reports/Viewer.aspx?id=" + reportId})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	reportId := r.URL.Query().Get("id")
	s.mutex.Lock()
	clientId, ok := s.reports[reportId]
	s.mutex.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if s.client(clientId).OmitControlId {
		fmt.Fprint(w, `<html><body>viewer unavailable</body></html>`)
		return
	}

	controlId := strings.ReplaceAll(reportId, "-", "")
	s.mutex.Lock()
	s.controls[controlId] = clientId
	s.mutex.Unlock()
	fmt.Fprintf(w, `<html><body><script>var u = "/Reserved.ReportViewerWebControl.axd?OpType=SessionKeepAlive&ControlID=%s";</script></body></html>`, controlId)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	s.mutex.Lock()
	clientId, ok := s.controls[query.Get("ControlID")]
	s.mutex.Unlock()
	if !ok || query.Get("Format") != "PDF" || query.Get("OpType") != "Export" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	pdf := s.client(clientId).Pdf
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.Write(pdf)
}

func writeJson(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
