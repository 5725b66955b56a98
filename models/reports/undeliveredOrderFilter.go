package reports

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10

	// DateLayout is the wire format of startDate/endDate and of exported dates.
	DateLayout = "2006-01-02"
)

// PageSizes is the allow-list offered by the client's page-size selector.
var PageSizes = []int{10, 20, 30, 50}

var (
	ErrInvalidFilter  = errors.New("invalid filter")
	ErrQueryFailed    = errors.New("query failed")
	ErrExportFailed   = errors.New("export failed")
	ErrExportTooLarge = errors.New("export too large")
)

// FilterError reasons.
const (
	ReasonDateFormat = "must be a date in YYYY-MM-DD format"
	ReasonDateOrder  = "must not be after endDate"
)

// FilterError describes a rejected request parameter. It matches ErrInvalidFilter.
type FilterError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *FilterError) Unwrap() error {
	return ErrInvalidFilter
}

// FilterCriteria is the validated search of one request. Empty strings and
// nil dates mean "no filter on this field".
type FilterCriteria struct {
	OrderNo     string
	MtlItemNo   string
	MtlItemName string
	StartDate   *time.Time
	EndDate     *time.Time
	Page        int
	PageSize    int
}

func (f FilterCriteria) Offset() int64 {
	return int64(f.Page-1) * int64(f.PageSize)
}

func (f FilterCriteria) Limit() int {
	return f.PageSize
}

// WithoutPaging returns the criteria the export path runs with.
func (f FilterCriteria) WithoutPaging() FilterCriteria {
	f.Page = DefaultPage
	f.PageSize = 0
	return f
}

// NormalizeFilter turns query-string parameters into FilterCriteria.
// Malformed dates are rejected; bad paging values fall back to defaults.
func NormalizeFilter(values url.Values) (FilterCriteria, error) {
	f := FilterCriteria{
		OrderNo:     strings.TrimSpace(values.Get("orderNo")),
		MtlItemNo:   strings.TrimSpace(values.Get("mtlItemNo")),
		MtlItemName: strings.TrimSpace(values.Get("mtlItemName")),
		Page:        normalizePage(values.Get("page")),
		PageSize:    normalizePageSize(values.Get("pageSize")),
	}

	var err error
	if f.StartDate, err = parseFilterDate("startDate", values.Get("startDate")); err != nil {
		return FilterCriteria{}, err
	}
	if f.EndDate, err = parseFilterDate("endDate", values.Get("endDate")); err != nil {
		return FilterCriteria{}, err
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return FilterCriteria{}, &FilterError{
			Field:  "startDate",
			Value:  f.StartDate.Format(DateLayout),
			Reason: ReasonDateOrder,
		}
	}

	return f, nil
}

func parseFilterDate(field string, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return nil, &FilterError{Field: field, Value: raw, Reason: ReasonDateFormat}
	}
	return &t, nil
}

func normalizePage(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		return DefaultPage
	}
	if page > math.MaxInt32 {
		return math.MaxInt32
	}
	return page
}

func normalizePageSize(raw string) int {
	size, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultPageSize
	}
	for _, allowed := range PageSizes {
		if size == allowed {
			return size
		}
	}
	return DefaultPageSize
}
