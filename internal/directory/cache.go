package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"statementsync/internal/booking"
	"statementsync/internal/components/assert"
	"statementsync/internal/components/chrono"
	"statementsync/internal/components/telemetry"
)

const (
	report_cache_load     = "cache.load"
	report_cache_save     = "cache.save"
	report_cache_download = "cache.download"
)

// DefaultCacheFile is the cache file name used when none is configured.
const DefaultCacheFile = "customers_cache.json"

// cacheFile is the on-disk layout, timestamp is in fractional epoch seconds.
type cacheFile struct {
	Timestamp float64           `json:"timestamp"`
	Customers map[string]string `json:"customers"`
}

// Cache persists the client directory to a flat json file.
type Cache struct {
	path     string
	pageSize int
	time     chrono.TimeAPI
	tel      telemetry.API
}

func NewCache(path string, clock chrono.TimeAPI, tel telemetry.API) Cache {
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "tel")
	return Cache{
		path:     path,
		pageSize: booking.DefaultPageSize,
		time:     clock,
		tel:      telemetry.NewScopedAPI("directory", tel),
	}
}

// WithPageSize returns a copy of the cache that downloads with the given page size.
func (c Cache) WithPageSize(size int) Cache {
	assert.Positive(size, "size")
	c.pageSize = size
	return c
}

// Load reads the cached directory, it reports false if the file is missing,
// unreadable or expired.
func (c Cache) Load() (Directory, bool) {
	content, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return Directory{}, false
	}
	if err != nil {
		c.tel.ReportWarning(report_cache_load, err)
		return Directory{}, false
	}

	var file cacheFile
	err = json.Unmarshal(content, &file)
	if err != nil {
		c.tel.ReportWarning(report_cache_load, fmt.Errorf("decode %s: %w", c.path, err))
		return Directory{}, false
	}

	dir := Directory{
		FetchedAt: fromEpoch(file.Timestamp),
		Customers: file.Customers,
	}
	if dir.Customers == nil {
		dir.Customers = map[string]string{}
	}
	if !dir.Fresh(c.time.Now()) {
		c.tel.ReportDebug(report_cache_load, "expired", dir.FetchedAt)
		return Directory{}, false
	}
	return dir, true
}

// Download pages through the customer listing until a page is short, empty or
// fails, then persists whatever was accumulated. The returned directory is
// usable even when an error is returned, it holds every page fetched before the failure.
func (c Cache) Download(ctx context.Context, fetcher Fetcher) (Directory, error) {
	customers := map[string]string{}

	var fetchErr error
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			fetchErr = err
			break
		}
		result, err := fetcher.Customers(ctx, page, c.pageSize)
		if err != nil {
			c.tel.ReportWarning(report_cache_download, page, err)
			fetchErr = fmt.Errorf("fetch page %d: %w", page, err)
			break
		}
		for _, customer := range result.Customers {
			customers[customer.Id] = customer.Name
		}
		if result.Entries == 0 || result.Entries < c.pageSize {
			break
		}
	}

	dir := Directory{FetchedAt: c.time.Now(), Customers: customers}
	c.tel.ReportCount(report_cache_download, int64(len(customers)))
	c.save(dir)
	return dir, fetchErr
}

// GetAll returns the cached directory when it is fresh and non-empty, otherwise
// it downloads a new one.
func (c Cache) GetAll(ctx context.Context, fetcher Fetcher) (Directory, error) {
	dir, ok := c.Load()
	if ok && dir.Len() > 0 {
		return dir, nil
	}
	return c.Download(ctx, fetcher)
}

func (c Cache) save(dir Directory) {
	var buff bytes.Buffer
	encoder := json.NewEncoder(&buff)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	err := encoder.Encode(cacheFile{
		Timestamp: toEpoch(dir.FetchedAt),
		Customers: dir.Customers,
	})
	if err != nil {
		c.tel.ReportWarning(report_cache_save, err)
		return
	}
	err = os.WriteFile(c.path, buff.Bytes(), 0644)
	if err != nil {
		c.tel.ReportWarning(report_cache_save, err)
	}
}

func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpoch(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}
