package reports

import (
	"bytes"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	UndeliveredOrderSheet    = "UndeliveredOrders"
	UndeliveredOrderFilename = "UndeliveredOrders.xlsx"
	XlsxContentType          = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// UndeliveredOrderHeadings are the interactive table's column labels, in order.
var UndeliveredOrderHeadings = []string{
	"訂單號碼",
	"序號",
	"品號",
	"品名",
	"規格",
	"預計交貨日",
	"訂單數量",
	"單價",
	"金額",
	"已交數量",
	"未交數量",
}

var quantityFormat = "#,##0.00"

// EncodeUndeliveredOrders writes a header row and one row per line.
func EncodeUndeliveredOrders(lines []OrderLine) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", UndeliveredOrderSheet); err != nil {
		return nil, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	quantityStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &quantityFormat})
	if err != nil {
		return nil, err
	}

	sw, err := f.NewStreamWriter(UndeliveredOrderSheet)
	if err != nil {
		return nil, err
	}
	if err := sw.SetColWidth(1, len(UndeliveredOrderHeadings), 16); err != nil {
		return nil, err
	}

	header := make([]interface{}, len(UndeliveredOrderHeadings))
	for i, h := range UndeliveredOrderHeadings {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return nil, err
	}

	for i, l := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			l.OrderNo,
			l.OrderSeq,
			l.MtlItemNo,
			l.MtlItemName,
			l.MtlItemSpec,
			l.ExpectDeliveryDate.Format(DateLayout),
			quantityCell(l.OrderQty, quantityStyle),
			quantityCell(l.UnitPrice, quantityStyle),
			quantityCell(l.Amount, quantityStyle),
			quantityCell(l.DeliveryQty, quantityStyle),
			quantityCell(l.UndeliveredQty, quantityStyle),
		}
		if err := sw.SetRow(cell, row); err != nil {
			return nil, err
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, err
	}

	return f.WriteToBuffer()
}

// quantityCell writes d as a number, or as its exact text when a float64
// cannot hold it.
func quantityCell(d decimal.Decimal, styleID int) excelize.Cell {
	f := d.InexactFloat64()
	if !d.Equal(decimal.NewFromFloat(f)) {
		return excelize.Cell{StyleID: styleID, Value: d.String()}
	}
	return excelize.Cell{StyleID: styleID, Value: f}
}
