package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/erpweb/erp_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("erp_backend/reports")

// OrderLineRecord is one scanned row of the undelivered order statements.
// OrderSeq and ExpectDeliveryDate are CHAR columns in the legacy schema.
type OrderLineRecord struct {
	OrderNo            string          `gorm:"column:OrderNo"`
	OrderSeq           string          `gorm:"column:OrderSeq"`
	MtlItemNo          string          `gorm:"column:MtlItemNo"`
	MtlItemName        string          `gorm:"column:MtlItemName"`
	MtlItemSpec        string          `gorm:"column:MtlItemSpec"`
	ExpectDeliveryDate string          `gorm:"column:ExpectDeliveryDate"`
	OrderQty           decimal.Decimal `gorm:"column:OrderQty"`
	UnitPrice          decimal.Decimal `gorm:"column:UnitPrice"`
	Amount             decimal.Decimal `gorm:"column:Amount"`
	DeliveryQty        decimal.Decimal `gorm:"column:DeliveryQty"`
}

type OrderLine struct {
	OrderNo            string
	OrderSeq           int
	MtlItemNo          string
	MtlItemName        string
	MtlItemSpec        string
	ExpectDeliveryDate time.Time
	OrderQty           decimal.Decimal
	UnitPrice          decimal.Decimal
	Amount             decimal.Decimal
	DeliveryQty        decimal.Decimal
	UndeliveredQty     decimal.Decimal
}

// MarshalJSON keeps the client's field names and writes decimals as exact JSON numbers.
func (l OrderLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		OrderNo            string          `json:"OrderNo"`
		OrderSeq           int             `json:"OrderSeq"`
		MtlItemNo          string          `json:"MtlItemNo"`
		MtlItemName        string          `json:"MtlItemName"`
		MtlItemSpec        string          `json:"MtlItemSpec"`
		ExpectDeliveryDate string          `json:"ExpectDeliveryDate"`
		OrderQty           json.RawMessage `json:"OrderQty"`
		UnitPrice          json.RawMessage `json:"UnitPrice"`
		Amount             json.RawMessage `json:"Amount"`
		DeliveryQty        json.RawMessage `json:"DeliveryQty"`
		UndeliveredQty     json.RawMessage `json:"unDeliveryQty"`
	}{
		OrderNo:            l.OrderNo,
		OrderSeq:           l.OrderSeq,
		MtlItemNo:          l.MtlItemNo,
		MtlItemName:        l.MtlItemName,
		MtlItemSpec:        l.MtlItemSpec,
		ExpectDeliveryDate: l.ExpectDeliveryDate.Format(DateLayout),
		OrderQty:           json.RawMessage(l.OrderQty.String()),
		UnitPrice:          json.RawMessage(l.UnitPrice.String()),
		Amount:             json.RawMessage(l.Amount.String()),
		DeliveryQty:        json.RawMessage(l.DeliveryQty.String()),
		UndeliveredQty:     json.RawMessage(l.UndeliveredQty.String()),
	})
}

// toOrderLine is the only place UndeliveredQty is derived.
func (r *OrderLineRecord) toOrderLine(erpDateLayout string) (OrderLine, error) {
	seq, err := strconv.Atoi(strings.TrimSpace(r.OrderSeq))
	if err != nil {
		return OrderLine{}, fmt.Errorf("order %s: bad sequence %q", r.OrderNo, r.OrderSeq)
	}
	date, err := parseErpDate(r.ExpectDeliveryDate, erpDateLayout)
	if err != nil {
		return OrderLine{}, fmt.Errorf("order %s-%d: %w", r.OrderNo, seq, err)
	}
	return OrderLine{
		OrderNo:            strings.TrimSpace(r.OrderNo),
		OrderSeq:           seq,
		MtlItemNo:          strings.TrimSpace(r.MtlItemNo),
		MtlItemName:        strings.TrimSpace(r.MtlItemName),
		MtlItemSpec:        strings.TrimSpace(r.MtlItemSpec),
		ExpectDeliveryDate: date,
		OrderQty:           r.OrderQty,
		UnitPrice:          r.UnitPrice,
		Amount:             r.Amount,
		DeliveryQty:        r.DeliveryQty,
		UndeliveredQty:     r.OrderQty.Sub(r.DeliveryQty),
	}, nil
}

// parseErpDate accepts the legacy CHAR layout as well as native date values,
// which database/sql hands over as RFC 3339 strings.
func parseErpDate(raw string, erpDateLayout string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{erpDateLayout, DateLayout, time.RFC3339Nano} {
		if layout == "" {
			continue
		}
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad expect delivery date %q", raw)
}

// Querier executes report statements against the legacy ERP database.
type Querier interface {
	Count(ctx context.Context, stmt Statement) (int64, error)
	Rows(ctx context.Context, stmt Statement) ([]*OrderLineRecord, error)
}

// GormQuerier runs statements through gorm's Raw with named parameters.
type GormQuerier struct {
	db func() *gorm.DB
}

// NewGormQuerier resolves the connection on every call, so it can be built
// before the database is connected (pass config.GetErpDB).
func NewGormQuerier(db func() *gorm.DB) *GormQuerier {
	return &GormQuerier{db: db}
}

var errErpNotConnected = errors.New("erp database not connected")

// statement prepares stmt for execution. The parameter map is bound only when
// it has entries: gorm hands an unused map to the driver as a positional
// argument, which the sqlserver driver rejects.
func (q *GormQuerier) statement(ctx context.Context, stmt Statement) (*gorm.DB, error) {
	db := q.db()
	if db == nil {
		return nil, errErpNotConnected
	}
	if len(stmt.Params) == 0 {
		return db.WithContext(ctx).Raw(stmt.SQL), nil
	}
	return db.WithContext(ctx).Raw(stmt.SQL, stmt.Params), nil
}

func (q *GormQuerier) Count(ctx context.Context, stmt Statement) (int64, error) {
	tx, err := q.statement(ctx, stmt)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := tx.Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (q *GormQuerier) Rows(ctx context.Context, stmt Statement) ([]*OrderLineRecord, error) {
	tx, err := q.statement(ctx, stmt)
	if err != nil {
		return nil, err
	}
	var records []*OrderLineRecord
	if err := tx.Scan(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

type Options struct {
	ErpDateLayout string
	QueryTimeout  time.Duration
	SlowThreshold time.Duration
	MaxExportRows int
	Logger        *logrus.Logger
}

// OptionsFromEnv reads ERP_DATE_LAYOUT, REPORT_QUERY_TIMEOUT_SECONDS (30),
// REPORT_SLOW_MS (500) and EXPORT_MAX_ROWS (50000).
func OptionsFromEnv(logger *logrus.Logger) Options {
	return Options{
		ErpDateLayout: strings.TrimSpace(os.Getenv("ERP_DATE_LAYOUT")),
		QueryTimeout:  time.Duration(positiveIntFromEnv("REPORT_QUERY_TIMEOUT_SECONDS", 30)) * time.Second,
		SlowThreshold: time.Duration(positiveIntFromEnv("REPORT_SLOW_MS", 500)) * time.Millisecond,
		MaxExportRows: min(positiveIntFromEnv("EXPORT_MAX_ROWS", 50000), maxExportRowsLimit),
		Logger:        logger,
	}
}

func positiveIntFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// maxExportRowsLimit bounds MaxExportRows so the one-past-the-cap fetch cannot overflow.
const maxExportRowsLimit = math.MaxInt32

type UndeliveredOrderPage struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
	Data     []OrderLine `json:"data"`
}

type UndeliveredOrderReport struct {
	querier Querier
	builder QueryBuilder
	opts    Options
}

func NewUndeliveredOrderReport(querier Querier, opts Options) *UndeliveredOrderReport {
	if opts.MaxExportRows <= 0 {
		opts.MaxExportRows = 50000
	}
	if opts.MaxExportRows > maxExportRowsLimit {
		opts.MaxExportRows = maxExportRowsLimit
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &UndeliveredOrderReport{
		querier: querier,
		builder: NewQueryBuilder(opts.ErpDateLayout),
		opts:    opts,
	}
}

func (r *UndeliveredOrderReport) MaxExportRows() int {
	return r.opts.MaxExportRows
}

// Query returns one page of undelivered order lines and the total match count.
// The count and the page are read concurrently; either failure fails both.
func (r *UndeliveredOrderReport) Query(ctx context.Context, f FilterCriteria) (page *UndeliveredOrderPage, err error) {
	ctx, span := tracer.Start(ctx, "UndeliveredOrders.Query", trace.WithAttributes(
		attribute.Int("page", f.Page),
		attribute.Int("pageSize", f.PageSize),
	))
	defer func() { endSpan(span, err) }()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	defer r.logSlow(ctx, "UndeliveredOrders.Query", time.Now(), f)

	countStmt, dataStmt := r.builder.Build(f)

	var (
		total   int64
		records []*OrderLineRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := r.querier.Count(gctx, countStmt)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		rows, err := r.querier.Rows(gctx, dataStmt)
		if err != nil {
			return fmt.Errorf("rows: %w", err)
		}
		records = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	lines, err := r.toOrderLines(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return &UndeliveredOrderPage{
		Total:    total,
		Page:     f.Page,
		PageSize: f.PageSize,
		Data:     lines,
	}, nil
}

// ExportRows returns every line matching f, ignoring its paging.
// More than MaxExportRows matches is ErrExportTooLarge.
func (r *UndeliveredOrderReport) ExportRows(ctx context.Context, f FilterCriteria) (lines []OrderLine, err error) {
	ctx, span := tracer.Start(ctx, "UndeliveredOrders.ExportRows", trace.WithAttributes(
		attribute.Int("maxRows", r.opts.MaxExportRows),
	))
	defer func() { endSpan(span, err) }()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	defer r.logSlow(ctx, "UndeliveredOrders.ExportRows", time.Now(), f)

	// one row past the cap tells "exactly max" apart from "more than max"
	stmt := r.builder.BuildExport(f.WithoutPaging(), r.opts.MaxExportRows+1)
	records, err := r.querier.Rows(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	if len(records) > r.opts.MaxExportRows {
		return nil, fmt.Errorf("%w: more than %d rows", ErrExportTooLarge, r.opts.MaxExportRows)
	}

	lines, err = r.toOrderLines(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return lines, nil
}

// Export encodes every line matching f into an xlsx workbook. The workbook
// is complete in memory before it is returned.
func (r *UndeliveredOrderReport) Export(ctx context.Context, f FilterCriteria) (*bytes.Buffer, error) {
	lines, err := r.ExportRows(ctx, f)
	if err != nil {
		if errors.Is(err, ErrExportTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	buf, err := EncodeUndeliveredOrders(lines)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return buf, nil
}

func (r *UndeliveredOrderReport) toOrderLines(records []*OrderLineRecord) ([]OrderLine, error) {
	lines := make([]OrderLine, 0, len(records))
	for _, rec := range records {
		line, err := rec.toOrderLine(r.builder.ErpDateLayout)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (r *UndeliveredOrderReport) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opts.QueryTimeout)
}

func (r *UndeliveredOrderReport) logSlow(ctx context.Context, name string, started time.Time, f FilterCriteria) {
	d := time.Since(started)
	if r.opts.SlowThreshold <= 0 || d < r.opts.SlowThreshold {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	r.opts.Logger.WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"correlation_id": cid,
		"filter":         f,
	}).Warn("slow report")
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
