package booking

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"statementsync/internal/booking/bookingtest"
	"statementsync/internal/components/telemetry"
	"statementsync/internal/failure"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, server *bookingtest.Server) (*Session, *telemetry.RecordingAPI) {
	tel := &telemetry.RecordingAPI{}
	session, err := NewSession(Options{BaseUrl: server.URL}, tel)
	require.NoError(t, err)
	return session, tel
}

func TestLoginRedirect(t *testing.T) {
	server := bookingtest.NewServer(t)
	session, _ := newTestSession(t, server)

	err := session.Login(context.Background(), "agent", "secret")
	require.NoError(t, err)
	require.Equal(t, bookingtest.SessionValue, session.Cookies()[bookingtest.SessionCookie])

	pageRequests := server.Requests("/Account/Login")
	require.Len(t, pageRequests, 2)

	get := pageRequests[0]
	require.Equal(t, "GET", get.Method)
	require.Empty(t, get.Header.Get("X-Requested-With"))
	require.Equal(t, server.URL+pathLoginPage, get.Header.Get("Referer"))
	require.Equal(t, "/BookingWorkflow/Index", get.Query.Get("ReturnUrl"))

	post := pageRequests[1]
	require.Equal(t, "POST", post.Method)
	require.Equal(t, "XMLHttpRequest", post.Header.Get("X-Requested-With"))
	require.Equal(t, contentTypeForm, post.Header.Get("Content-Type"))
	require.Equal(t, server.URL, post.Header.Get("Origin"))
	require.Equal(t, bookingtest.LoginToken, post.Form.Get("__RequestVerificationToken"))
	require.Equal(t, "true", post.Form.Get("RememberMe"))

	// the redirect must not have been followed
	require.Empty(t, server.Requests("/BookingWorkflow"))
}

func TestLoginJson(t *testing.T) {
	server := bookingtest.NewServer(t)
	server.LoginJson = true
	session, _ := newTestSession(t, server)

	require.NoError(t, session.Login(context.Background(), "agent", "secret"))
}

func TestLoginFailures(t *testing.T) {
	cases := []struct {
		name     string
		setup    func(s *bookingtest.Server)
		password string
	}{
		{name: "wrong password", password: "nope"},
		{name: "rejected", password: "secret", setup: func(s *bookingtest.Server) { s.RejectAll = true }},
		{name: "missing token", password: "secret", setup: func(s *bookingtest.Server) { s.NoLoginToken = true }},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			server := bookingtest.NewServer(t)
			if test.setup != nil {
				test.setup(server)
			}
			session, tel := newTestSession(t, server)

			err := session.Login(context.Background(), "agent", test.password)
			require.Error(t, err)
			require.True(t, failure.Is(err, failure.Authentication))
			require.NotEmpty(t, tel.Reports("warning", report_session_login))
		})
	}
}

func TestLoginRejectedPageMessage(t *testing.T) {
	server := bookingtest.NewServer(t)
	server.RejectHtml = true
	session, _ := newTestSession(t, server)

	err := session.Login(context.Background(), "agent", "nope")
	require.True(t, failure.Is(err, failure.Authentication))
	require.ErrorIs(t, err, errLoginRejected)
	require.ErrorContains(t, err, "credentials rejected: Invalid login attempt.")
}

func TestLoginUnreachable(t *testing.T) {
	server := bookingtest.NewServer(t)
	session, _ := newTestSession(t, server)
	server.Close()

	err := session.Login(context.Background(), "agent", "secret")
	require.True(t, failure.Is(err, failure.Authentication))
	require.True(t, failure.Retryable(err))
}

func TestCustomers(t *testing.T) {
	server := bookingtest.NewServer(t)
	server.Customers = []bookingtest.Customer{
		{Id: 555, Name: "Acme"},
		{Id: "556", Name: "Globex"},
		{Id: "", Name: "No id"},
		{Id: 557, Name: ""},
	}
	session, _ := newTestSession(t, server)
	require.NoError(t, session.Login(context.Background(), "agent", "secret"))

	page, err := session.Customers(context.Background(), 1, DefaultPageSize)
	require.NoError(t, err)
	require.Equal(t, 4, page.Entries)
	if diff := cmp.Diff([]Customer{
		{Id: "555", Name: "Acme"},
		{Id: "556", Name: "Globex"},
	}, page.Customers); diff != "" {
		t.Fatal(diff)
	}

	requests := server.Requests("/FinancialStatus/GetCustomerFinancialStatus")
	require.Len(t, requests, 1)
	require.Equal(t, "4", requests[0].Query.Get("AgencyType"))
	require.Equal(t, "500", requests[0].Query.Get("pageSize"))
	require.Equal(t, "XMLHttpRequest", requests[0].Header.Get("X-Requested-With"))
	require.Equal(t, server.URL+pathFinancialStatusPage, requests[0].Header.Get("Referer"))
}

func TestCustomersUnauthenticated(t *testing.T) {
	server := bookingtest.NewServer(t)
	session, _ := newTestSession(t, server)

	_, err := session.Customers(context.Background(), 1, DefaultPageSize)
	require.True(t, failure.Is(err, failure.DirectoryFetch))
	require.True(t, IsStatus(err, 401))
}

func TestStatementFlow(t *testing.T) {
	server := bookingtest.NewServer(t)
	pdf := []byte("%PDF-1.4 statement of acme")
	server.Clients["555"] = &bookingtest.Client{
		Transactions: []string{"11", "12"},
		Pdf:          pdf,
	}
	session, _ := newTestSession(t, server)
	ctx := context.Background()
	require.NoError(t, session.Login(ctx, "agent", "secret"))

	token, err := session.ReportToken(ctx)
	require.NoError(t, err)
	require.Equal(t, bookingtest.ReportToken, token)

	page, err := session.StatementPage(ctx, "555")
	require.NoError(t, err)
	transactions, ok := session.Transactions(page)
	require.True(t, ok)
	require.Equal(t, []string{"11", "12"}, transactions)

	reportId, err := session.RequestReport(ctx, ReportRequest{
		ClientId:     "555",
		Token:        token,
		Transactions: transactions,
		FromDate:     "01/01/2025",
	})
	require.NoError(t, err)
	require.Regexp(t, `^[0-9a-f\-]{36}$`, reportId)

	reportPost := server.Requests("/Finance/ReportAccountStatement")[0]
	require.Equal(t, contentTypeFormCharset, reportPost.Header.Get("Content-Type"))
	require.Equal(t, "11,12", reportPost.Form.Get("Transactions"))
	require.Equal(t, "SAR", reportPost.Form.Get("CurrencyId"))
	require.Equal(t, "3", reportPost.Form.Get("BookingStatus"))
	require.Equal(t, "2", reportPost.Form.Get("RoomStatus"))
	require.Equal(t, "555", reportPost.Form.Get("AgencyId"))

	controlId, err := session.ControlId(ctx, reportId)
	require.NoError(t, err)
	require.Len(t, controlId, 32)

	export, err := session.OpenExport(ctx, controlId, "Acme")
	require.NoError(t, err)
	defer export.Close()
	require.EqualValues(t, len(pdf), export.ContentLength)
	content, err := io.ReadAll(export.Body)
	require.NoError(t, err)
	require.Equal(t, pdf, content)

	exportRequest := server.Requests("/Reserved.ReportViewerWebControl.axd")[0]
	require.Equal(t, "Account%20statement%3A%20Acme", exportRequest.Query.Get("FileName"))
	require.Equal(t, "1033", exportRequest.Query.Get("Culture"))
	require.Equal(t, "OnlyHtmlInline", exportRequest.Query.Get("ContentDisposition"))
	require.Empty(t, exportRequest.Header.Get("X-Requested-With"))
}

func TestStatementFailures(t *testing.T) {
	server := bookingtest.NewServer(t)
	server.Clients["1"] = &bookingtest.Client{FailReport: true}
	server.Clients["2"] = &bookingtest.Client{OmitControlId: true}
	session, _ := newTestSession(t, server)
	ctx := context.Background()
	require.NoError(t, session.Login(ctx, "agent", "secret"))

	_, err := session.RequestReport(ctx, ReportRequest{ClientId: "1", Token: bookingtest.ReportToken})
	require.True(t, failure.Is(err, failure.ReportGeneration))

	reportId, err := session.RequestReport(ctx, ReportRequest{ClientId: "2", Token: bookingtest.ReportToken})
	require.NoError(t, err)
	_, err = session.ControlId(ctx, reportId)
	require.True(t, failure.Is(err, failure.ControlResolution))

	_, err = session.OpenExport(ctx, "0123456789abcdef0123456789abcdef", "Nobody")
	require.True(t, failure.Is(err, failure.Stream))
	require.True(t, IsStatus(err, 404))
}

func TestTotalBalance(t *testing.T) {
	server := bookingtest.NewServer(t)
	server.Clients["1"] = &bookingtest.Client{Balance: "22,835.03"}
	server.Clients["2"] = &bookingtest.Client{Balance: 150.5}
	server.Clients["3"] = &bookingtest.Client{}
	server.Clients["4"] = &bookingtest.Client{FailBalance: true}
	session, _ := newTestSession(t, server)
	ctx := context.Background()
	require.NoError(t, session.Login(ctx, "agent", "secret"))

	raw, err := session.TotalBalance(ctx, "1", "01/01/2025")
	require.NoError(t, err)
	require.Equal(t, "22,835.03", raw)

	raw, err = session.TotalBalance(ctx, "2", "01/01/2025")
	require.NoError(t, err)
	require.Equal(t, "150.5", raw)

	raw, err = session.TotalBalance(ctx, "3", "01/01/2025")
	require.NoError(t, err)
	require.Equal(t, "0.00", raw)

	_, err = session.TotalBalance(ctx, "4", "01/01/2025")
	require.True(t, failure.Is(err, failure.BalanceFetch))

	request := server.Requests("/Finance/GetAccountStatement")[0]
	require.Equal(t, "XMLHttpRequest", request.Header.Get("X-Requested-With"))
	require.Equal(t, server.URL+"/Finance/AccountStatement", request.Header.Get("Referer"))
	require.Equal(t, "null", request.Query.Get("HotelId"))
	require.Equal(t, "01/01/2025", request.Query.Get("fromDate"))
	require.Equal(t, "false", request.Query.Get("GroupByDocNumber"))
}

func TestCookieStore(t *testing.T) {
	server := bookingtest.NewServer(t)
	path := filepath.Join(t.TempDir(), "session_cookies.bin")

	first, tel := newTestSession(t, server)
	store := NewCookieStore(path, tel)
	require.False(t, store.Load(first))

	require.NoError(t, first.Login(context.Background(), "agent", "secret"))
	require.True(t, store.Save(first))

	second, _ := newTestSession(t, server)
	require.True(t, store.Load(second))
	_, err := second.ReportToken(context.Background())
	require.NoError(t, err)
}

func TestCookieStoreEmpty(t *testing.T) {
	server := bookingtest.NewServer(t)
	path := filepath.Join(t.TempDir(), "session_cookies.bin")
	session, tel := newTestSession(t, server)
	store := NewCookieStore(path, tel)

	// nothing to save yet, the file holds an empty set
	require.True(t, store.Save(session))
	require.False(t, store.Load(session))

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))
	require.False(t, store.Load(session))
	require.NotEmpty(t, tel.Reports("warning", report_cookie_store_load))
}

func TestQuoteFileName(t *testing.T) {
	require.Equal(t, "Account%20statement%3A%20Acme", QuoteFileName("Account statement: Acme"))
	require.Equal(t, "a/b_c.d-e~f", QuoteFileName("a/b_c.d-e~f"))
	require.Equal(t, "%D8%B9", QuoteFileName("ع"))
}

func TestExtractors(t *testing.T) {
	defaults := DefaultExtractors()

	reportId, ok := defaults.ReportId.ReportId([]byte(`{"url":"/Reports/Viewer.aspx?ID=ABCDEF01-0000-4000-8000-000000000001"}`))
	require.True(t, ok)
	require.Equal(t, "ABCDEF01-0000-4000-8000-000000000001", reportId)

	_, ok = defaults.ControlId.ControlId([]byte("ControlID=xyz"))
	require.False(t, ok)

	token, ok := defaults.ReportToken.Token([]byte(`<input type="hidden" value="first" /><input value="second" />`))
	require.True(t, ok)
	require.Equal(t, "first", token)

	transactions, ok := defaults.Transactions.Transactions([]byte(
		`<input type="checkbox" name="Transactions" value="7" />
		<input type="checkbox" name="Transactions" value="" />
		<input type="text" name="Transactions" value="9" />`,
	))
	require.True(t, ok)
	require.Equal(t, []string{"7"}, transactions)

	_, ok = defaults.Transactions.Transactions(nil)
	require.False(t, ok)
}

func TestCustomExtractor(t *testing.T) {
	server := bookingtest.NewServer(t)
	session, err := NewSession(Options{
		BaseUrl: server.URL,
		Extractors: Extractors{
			ReportToken: Pattern{Regexp: regexp.MustCompile(`value="(report-[^"]+)"`)},
		},
	}, &telemetry.RecordingAPI{})
	require.NoError(t, err)
	require.NoError(t, session.Login(context.Background(), "agent", "secret"))

	token, err := session.ReportToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, bookingtest.ReportToken, token)
}
