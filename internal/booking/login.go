package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"statementsync/internal/failure"
	"statementsync/pkg/htmlutil"
)

const report_session_login = "session.login"

var errLoginRejected = errors.New("credentials rejected")

// Login authenticates the session with a fresh anti-forgery token.
// Every returned error is of kind failure.Authentication.
func (s *Session) Login(ctx context.Context, username, password string) error {
	err := s.login(ctx, username, password)
	if err != nil {
		s.tel.ReportWarning(report_session_login, err)
		return failure.New(failure.Authentication, err)
	}
	s.tel.ReportDebug(report_session_login, "authenticated")
	return nil
}

func (s *Session) login(ctx context.Context, username, password string) error {
	ctx, cancel := context.WithTimeout(ctx, timeoutDefault)
	defer cancel()

	page, err := s.request(ctx, pageRequest, pathLoginPage).Get(pathLoginPage)
	if err != nil {
		return fmt.Errorf("fetch login page: %w", err)
	}
	if page.StatusCode() != http.StatusOK {
		return fmt.Errorf("fetch login page: %w", statusError{Status: page.StatusCode()})
	}

	token, ok := s.extract.LoginToken.Token(page.Body())
	if !ok {
		return fmt.Errorf("login page has no anti-forgery token")
	}

	form := url.Values{}
	form.Set(fieldRequestVerificationToken, token)
	form.Set("UserName", username)
	form.Set("Password", password)
	form.Set("RememberMe", "true")

	res, err := s.formPost(withoutRedirects(ctx), pathLoginPage, contentTypeForm, form).
		Post(pathLoginPost)
	if err != nil {
		return fmt.Errorf("submit credentials: %w", err)
	}

	switch res.StatusCode() {
	case http.StatusFound:
		return nil
	case http.StatusOK:
		var body struct {
			Success bool `json:"success"`
		}
		if err := json.Unmarshal(res.Body(), &body); err != nil {
			return fmt.Errorf("submit credentials: %w: %s", errLoginRejected, loginMessage(res.Body()))
		}
		if !body.Success {
			return errLoginRejected
		}
		return nil
	default:
		return fmt.Errorf("submit credentials: %w", statusError{Status: res.StatusCode()})
	}
}

// loginMessage returns the validation message of a login page that was
// rendered again instead of redirecting.
func loginMessage(body []byte) string {
	doc, err := htmlutil.Parse(body)
	if err != nil {
		return "unrecognized response"
	}
	found := doc.Find(".validation-summary-errors, .field-validation-error").First()
	if found.Length() == 0 {
		return "unrecognized response"
	}
	message := htmlutil.CleanText(found.Nodes[0])
	if message == "" {
		return "unrecognized response"
	}
	return message
}
