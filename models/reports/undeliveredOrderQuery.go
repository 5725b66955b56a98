package reports

import (
	"strings"
)

// DefaultErpDateLayout is how the legacy ERP stores TD013 (CHAR(8) YYYYMMDD).
const DefaultErpDateLayout = "20060102"

// Named parameters shared by every statement.
const (
	ParamOrderNo     = "orderNo"
	ParamMtlItemNo   = "mtlItemNo"
	ParamMtlItemName = "mtlItemName"
	ParamStartDate   = "startDate"
	ParamEndDate     = "endDate"
	ParamOffset      = "offset"
	ParamPageSize    = "pageSize"
	ParamExportLimit = "exportLimit"
)

const undeliveredOrderProjection = `
SELECT
    a.TC001 + '-' + a.TC002 AS OrderNo,
    b.TD003 AS OrderSeq,
    b.TD004 AS MtlItemNo,
    b.TD005 AS MtlItemName,
    b.TD006 AS MtlItemSpec,
    b.TD013 AS ExpectDeliveryDate,
    b.TD008 AS OrderQty,
    b.TD011 AS UnitPrice,
    b.TD012 AS Amount,
    b.TD009 AS DeliveryQty`

const undeliveredOrderCountProjection = `
SELECT
    COUNT(*) AS total`

const undeliveredOrderFrom = `
FROM COPTC a
    INNER JOIN COPTD b ON a.TC001 = b.TD001 AND a.TC002 = b.TD002`

// structural predicates: confirmed order, not over-delivered, line not
// closed, line approved. Never user controlled.
var undeliveredOrderStructural = []string{
	"a.TC027 = 'Y'",
	"b.TD008 - b.TD009 >= 0",
	"b.TD016 = 'N'",
	"b.TD021 = 'Y'",
}

// order line keys break date ties so OFFSET paging never repeats or skips a row.
const undeliveredOrderOrderBy = `
ORDER BY b.TD013, a.TC001, a.TC002, b.TD003`

// Predicate is one optional WHERE clause and its bound value.
type Predicate struct {
	Clause string
	Param  string
	Value  interface{}
}

// Statement is raw SQL with @named parameters, as accepted by gorm's Raw.
type Statement struct {
	SQL    string
	Params map[string]interface{}
}

// QueryBuilder renders the undelivered order statements. Every statement is
// rendered from the same BuildPredicates result.
type QueryBuilder struct {
	// ErpDateLayout formats startDate/endDate for comparison against TD013.
	ErpDateLayout string
}

func NewQueryBuilder(erpDateLayout string) QueryBuilder {
	if erpDateLayout == "" {
		erpDateLayout = DefaultErpDateLayout
	}
	return QueryBuilder{ErpDateLayout: erpDateLayout}
}

// BuildPredicates returns the optional predicates for f in fixed order:
// orderNo, mtlItemNo, mtlItemName, startDate, endDate.
func (b QueryBuilder) BuildPredicates(f FilterCriteria) []Predicate {
	predicates := make([]Predicate, 0, 5)
	if f.OrderNo != "" {
		predicates = append(predicates, Predicate{
			Clause: "a.TC001 + '-' + a.TC002 LIKE @" + ParamOrderNo + ` ESCAPE '\'`,
			Param:  ParamOrderNo,
			Value:  containsPattern(f.OrderNo),
		})
	}
	if f.MtlItemNo != "" {
		predicates = append(predicates, Predicate{
			Clause: "b.TD004 LIKE @" + ParamMtlItemNo + ` ESCAPE '\'`,
			Param:  ParamMtlItemNo,
			Value:  containsPattern(f.MtlItemNo),
		})
	}
	if f.MtlItemName != "" {
		predicates = append(predicates, Predicate{
			Clause: "b.TD005 LIKE @" + ParamMtlItemName + ` ESCAPE '\'`,
			Param:  ParamMtlItemName,
			Value:  containsPattern(f.MtlItemName),
		})
	}
	if f.StartDate != nil {
		predicates = append(predicates, Predicate{
			Clause: "b.TD013 >= @" + ParamStartDate,
			Param:  ParamStartDate,
			Value:  f.StartDate.Format(b.layout()),
		})
	}
	if f.EndDate != nil {
		predicates = append(predicates, Predicate{
			Clause: "b.TD013 <= @" + ParamEndDate,
			Param:  ParamEndDate,
			Value:  f.EndDate.Format(b.layout()),
		})
	}
	return predicates
}

// Build returns the count and the paginated data statement for f.
func (b QueryBuilder) Build(f FilterCriteria) (count Statement, data Statement) {
	predicates := b.BuildPredicates(f)

	count = Statement{
		SQL:    undeliveredOrderCountProjection + undeliveredOrderFrom + whereClause(predicates),
		Params: predicateParams(predicates),
	}

	data = Statement{
		SQL: undeliveredOrderProjection + undeliveredOrderFrom + whereClause(predicates) + undeliveredOrderOrderBy + `
OFFSET @` + ParamOffset + ` ROWS
FETCH NEXT @` + ParamPageSize + ` ROWS ONLY`,
		Params: predicateParams(predicates),
	}
	data.Params[ParamOffset] = f.Offset()
	data.Params[ParamPageSize] = f.Limit()

	return count, data
}

// BuildExport returns the unpaginated data statement, fetching at most limit rows.
func (b QueryBuilder) BuildExport(f FilterCriteria, limit int) Statement {
	predicates := b.BuildPredicates(f)
	stmt := Statement{
		SQL: undeliveredOrderProjection + undeliveredOrderFrom + whereClause(predicates) + undeliveredOrderOrderBy + `
OFFSET 0 ROWS
FETCH NEXT @` + ParamExportLimit + ` ROWS ONLY`,
		Params: predicateParams(predicates),
	}
	stmt.Params[ParamExportLimit] = limit
	return stmt
}

func (b QueryBuilder) layout() string {
	if b.ErpDateLayout == "" {
		return DefaultErpDateLayout
	}
	return b.ErpDateLayout
}

func whereClause(predicates []Predicate) string {
	clauses := make([]string, 0, len(undeliveredOrderStructural)+len(predicates))
	clauses = append(clauses, undeliveredOrderStructural...)
	for _, p := range predicates {
		clauses = append(clauses, p.Clause)
	}
	return "\nWHERE " + strings.Join(clauses, "\n    AND ")
}

func predicateParams(predicates []Predicate) map[string]interface{} {
	params := make(map[string]interface{}, len(predicates)+2)
	for _, p := range predicates {
		params[p.Param] = p.Value
	}
	return params
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `[`, `\[`)

// containsPattern builds a T-SQL LIKE pattern matching token literally anywhere.
func containsPattern(token string) string {
	return "%" + likeEscaper.Replace(token) + "%"
}
