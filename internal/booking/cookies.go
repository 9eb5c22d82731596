package booking

import (
	"bytes"
	"encoding/gob"
	"errors"
	"os"

	"statementsync/internal/components/assert"
	"statementsync/internal/components/telemetry"
)

const (
	report_cookie_store_save = "cookie_store.save"
	report_cookie_store_load = "cookie_store.load"
)

// CookieStore persists the session cookies between runs so a stored session can
// stand in for a failed login.
type CookieStore struct {
	path string
	tel  telemetry.API
}

func NewCookieStore(path string, tel telemetry.API) CookieStore {
	assert.NotNil(tel, "tel")
	return CookieStore{path: path, tel: telemetry.NewScopedAPI("booking", tel)}
}

func (c CookieStore) Path() string {
	return c.path
}

// Save writes the session's cookies, it never fails the caller.
func (c CookieStore) Save(s *Session) bool {
	var buff bytes.Buffer
	err := gob.NewEncoder(&buff).Encode(s.Cookies())
	if err != nil {
		c.tel.ReportWarning(report_cookie_store_save, err)
		return false
	}
	err = os.WriteFile(c.path, buff.Bytes(), 0600)
	if err != nil {
		c.tel.ReportWarning(report_cookie_store_save, err)
		return false
	}
	return true
}

// Load applies stored cookies to the session. It returns true only when a
// non-empty cookie set was found and applied.
func (c CookieStore) Load(s *Session) bool {
	content, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	if err != nil {
		c.tel.ReportWarning(report_cookie_store_load, err)
		return false
	}

	var cookies map[string]string
	err = gob.NewDecoder(bytes.NewReader(content)).Decode(&cookies)
	if err != nil {
		c.tel.ReportWarning(report_cookie_store_load, err)
		return false
	}
	if len(cookies) == 0 {
		return false
	}

	s.SetCookies(cookies)
	return true
}
