package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// legacyRow is an order line as the ERP stores it, flags included.
type legacyRow struct {
	rec       OrderLineRecord
	confirmed bool // TC027 = 'Y'
	closed    bool // TD016 = 'Y'
	approved  bool // TD021 = 'Y'
}

// memoryQuerier evaluates statements against in-memory legacy rows using
// the statement's bound parameters, the way the ERP database would.
type memoryQuerier struct {
	mu         sync.Mutex
	rows       []legacyRow
	countErr   error
	rowsErr    error
	countCalls int
	rowsCalls  int
	statements []Statement
}

func (q *memoryQuerier) Count(ctx context.Context, stmt Statement) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.countCalls++
	q.statements = append(q.statements, stmt)
	if q.countErr != nil {
		return 0, q.countErr
	}
	matched, err := q.match(stmt)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (q *memoryQuerier) Rows(ctx context.Context, stmt Statement) ([]*OrderLineRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rowsCalls++
	q.statements = append(q.statements, stmt)
	if q.rowsErr != nil {
		return nil, q.rowsErr
	}
	matched, err := q.match(stmt)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(stmt.SQL, "ORDER BY b.TD013") {
		return nil, errors.New("data statement without ORDER BY")
	}

	start, end := int64(0), int64(len(matched))
	if offset, ok := stmt.Params[ParamOffset].(int64); ok {
		start = offset
		end = offset + int64(stmt.Params[ParamPageSize].(int))
	}
	if limit, ok := stmt.Params[ParamExportLimit].(int); ok {
		end = int64(limit)
	}
	if start > int64(len(matched)) {
		start = int64(len(matched))
	}
	if end > int64(len(matched)) {
		end = int64(len(matched))
	}
	return matched[start:end], nil
}

func (q *memoryQuerier) match(stmt Statement) ([]*OrderLineRecord, error) {
	for _, s := range undeliveredOrderStructural {
		if !strings.Contains(stmt.SQL, s) {
			return nil, fmt.Errorf("statement lacks structural predicate %q", s)
		}
	}
	for _, name := range []string{ParamOrderNo, ParamMtlItemNo, ParamMtlItemName, ParamStartDate, ParamEndDate} {
		if _, bound := stmt.Params[name]; bound != strings.Contains(stmt.SQL, "@"+name) {
			return nil, fmt.Errorf("parameter %s bound=%v but referenced=%v", name, bound, !bound)
		}
	}

	matched := make([]*OrderLineRecord, 0)
	for i := range q.rows {
		r := q.rows[i]
		if !r.confirmed || r.closed || !r.approved {
			continue
		}
		if r.rec.OrderQty.Sub(r.rec.DeliveryQty).IsNegative() {
			continue
		}
		if !likeMatches(stmt.Params[ParamOrderNo], r.rec.OrderNo) ||
			!likeMatches(stmt.Params[ParamMtlItemNo], r.rec.MtlItemNo) ||
			!likeMatches(stmt.Params[ParamMtlItemName], r.rec.MtlItemName) {
			continue
		}
		if v, ok := stmt.Params[ParamStartDate].(string); ok && r.rec.ExpectDeliveryDate < v {
			continue
		}
		if v, ok := stmt.Params[ParamEndDate].(string); ok && r.rec.ExpectDeliveryDate > v {
			continue
		}
		rec := r.rec
		matched = append(matched, &rec)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.ExpectDeliveryDate != b.ExpectDeliveryDate {
			return a.ExpectDeliveryDate < b.ExpectDeliveryDate
		}
		if a.OrderNo != b.OrderNo {
			return a.OrderNo < b.OrderNo
		}
		return a.OrderSeq < b.OrderSeq
	})
	return matched, nil
}

var likeUnescaper = strings.NewReplacer(`\\`, `\`, `\%`, `%`, `\_`, `_`, `\[`, `[`)

func likeMatches(param interface{}, value string) bool {
	if param == nil {
		return true
	}
	p := param.(string)
	p = strings.TrimSuffix(strings.TrimPrefix(p, "%"), "%")
	return strings.Contains(value, likeUnescaper.Replace(p))
}

func openLine(orderNo string, seq int, item string, date string, qty string, delivered string) legacyRow {
	return legacyRow{
		rec: OrderLineRecord{
			OrderNo:            orderNo,
			OrderSeq:           fmt.Sprintf("%04d", seq),
			MtlItemNo:          item,
			MtlItemName:        "Item " + item,
			MtlItemSpec:        "SPEC-" + item,
			ExpectDeliveryDate: date,
			OrderQty:           decimal.RequireFromString(qty),
			UnitPrice:          decimal.RequireFromString("12.50"),
			Amount:             decimal.RequireFromString(qty).Mul(decimal.RequireFromString("12.50")),
			DeliveryQty:        decimal.RequireFromString(delivered),
		},
		confirmed: true,
		approved:  true,
	}
}

// a100Fixture has 25 open A100 lines in January 2024 (stored out of date
// order) plus lines every structural or user filter must exclude.
func a100Fixture() []legacyRow {
	rows := make([]legacyRow, 0, 40)
	for i := 25; i >= 1; i-- {
		rows = append(rows, openLine(
			fmt.Sprintf("2210-2024%04d", i), i, "A100",
			fmt.Sprintf("202401%02d", i), "10.30", "0.10",
		))
	}

	rows = append(rows,
		openLine("2210-20231201", 1, "A100", "20231231", "5", "1"),
		openLine("2210-20240201", 1, "A100", "20240201", "5", "1"),
		openLine("2210-20240110", 2, "B200", "20240110", "5", "1"),
		openLine("2210-20240111", 1, "A100", "20240111", "5", "6"),
	)

	closed := openLine("2210-20240112", 1, "A100", "20240112", "5", "0")
	closed.closed = true
	unconfirmed := openLine("2210-20240113", 1, "A100", "20240113", "5", "0")
	unconfirmed.confirmed = false
	unapproved := openLine("2210-20240114", 1, "A100", "20240114", "5", "0")
	unapproved.approved = false

	return append(rows, closed, unconfirmed, unapproved)
}

func a100Criteria(page, pageSize int) FilterCriteria {
	start := mustDate("2024-01-01")
	end := mustDate("2024-01-31")
	return FilterCriteria{
		MtlItemNo: "A100",
		StartDate: &start,
		EndDate:   &end,
		Page:      page,
		PageSize:  pageSize,
	}
}

func newTestReport(q Querier) *UndeliveredOrderReport {
	return NewUndeliveredOrderReport(q, Options{MaxExportRows: 1000})
}

func lineKey(l OrderLine) string {
	return fmt.Sprintf("%s#%d", l.OrderNo, l.OrderSeq)
}

func mustDate(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}
