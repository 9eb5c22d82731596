package booking

// DefaultBaseUrl is the booking site the tool was built against.
const DefaultBaseUrl = "https://arkan-int.joodbooking.com"

// paths are part of the wire contract with the booking site, keep them byte for byte.
const (
	pathLoginPage            = "/Account/Login?ReturnUrl=%2FBookingWorkflow%2FIndex"
	pathLoginPost            = "/Account/Login"
	pathFinancialStatusPage  = "/FinancialStatus/CustomerFinancialStatus"
	pathCustomerStatusList   = "/FinancialStatus/GetCustomerFinancialStatus"
	pathAccountStatementPage = "/Finance/AccountStatement"
	pathAccountStatementJson = "/Finance/GetAccountStatement"
	pathReportGeneration     = "/Finance/ReportAccountStatement"
	pathReportViewer         = "/Reports/Viewer.aspx"
	pathReportExport         = "/Reserved.ReportViewerWebControl.axd"
)

// fixed filter codes the site expects on statement related requests.
const (
	Currency      = "SAR"
	bookingStatus = "3"
	roomStatus    = "2"
	agencyType    = "4"
)

const (
	fieldRequestVerificationToken = "__RequestVerificationToken"
	fieldTransactions             = "Transactions"
)

const (
	contentTypeForm        = "application/x-www-form-urlencoded"
	contentTypeFormCharset = "application/x-www-form-urlencoded; charset=UTF-8"
)
