package billing

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/pch10086/BUPT-Hotel/internal/db"
)

const timeLayout = "2006-01-02 15:04:05"

// TimeMapper 把详单里的逻辑时间换算成真实时间
type TimeMapper func(time.Time) time.Time

func identity(t time.Time) time.Time { return t }

var csvHeader = []string{
	"room_id", "request_time", "start_time", "end_time",
	"duration_seconds", "fan_speed", "fee", "cumulative_fee",
}

// WriteDetailsCSV 导出详单
func WriteDetailsCSV(w io.Writer, details []db.BillingDetail, toReal TimeMapper) error {
	if toReal == nil {
		toReal = identity
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, d := range details {
		row := []string{
			d.RoomID,
			toReal(d.RequestTime).Format(timeLayout),
			toReal(d.StartTime).Format(timeLayout),
			toReal(d.EndTime).Format(timeLayout),
			strconv.FormatFloat(d.DurationSeconds, 'f', 1, 64),
			string(d.FanSpeed),
			strconv.FormatFloat(d.Fee, 'f', 2, 64),
			strconv.FormatFloat(d.CumulativeFee, 'f', 2, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// PDFWriter 生成 PDF 账单。FontPath 指向 UTF-8 字体时可显示中文姓名，
// 为空时使用内置 Helvetica
type PDFWriter struct {
	FontPath string
	Now      func() time.Time
}

func (p PDFWriter) font(pdf *gofpdf.Fpdf) string {
	if p.FontPath == "" {
		return "Helvetica"
	}
	pdf.AddUTF8Font("bill", "", p.FontPath)
	return "bill"
}

// WriteStatement 生成包含住宿费、空调费和详单表格的账单
func (p PDFWriter) WriteStatement(w io.Writer, st *Statement, toReal TimeMapper) error {
	if toReal == nil {
		toReal = identity
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()
	font := p.font(pdf)

	pdf.SetFont(font, "", 18)
	pdf.Cell(190, 12, "BUPT Hotel - Statement")
	pdf.Ln(15)

	pdf.SetFont(font, "", 11)
	pdf.Cell(95, 8, fmt.Sprintf("Room: %s", st.Room.RoomID))
	pdf.Cell(95, 8, fmt.Sprintf("Guest: %s", st.Room.CustomerName))
	pdf.Ln(8)
	if st.AC != nil {
		pdf.Cell(95, 8, "Check-in: "+st.AC.CheckInTime.Format(timeLayout))
		pdf.Cell(95, 8, "Check-out: "+st.AC.CheckOutTime.Format(timeLayout))
		pdf.Ln(10)
	}
	pdf.Line(10, pdf.GetY(), 200, pdf.GetY())
	pdf.Ln(5)

	if st.Lodging != nil {
		pdf.Cell(95, 8, "Days stayed:")
		pdf.Cell(95, 8, strconv.Itoa(st.Lodging.Days))
		pdf.Ln(8)
		pdf.Cell(95, 8, "Rate per day:")
		pdf.Cell(95, 8, fmt.Sprintf("%.2f", st.Lodging.PricePerDay))
		pdf.Ln(8)
		pdf.Cell(95, 8, "Lodging subtotal:")
		pdf.Cell(95, 8, fmt.Sprintf("%.2f", st.Lodging.Fee))
		pdf.Ln(8)
	}
	if st.AC != nil {
		pdf.Cell(95, 8, "Air conditioning subtotal:")
		pdf.Cell(95, 8, fmt.Sprintf("%.2f", st.AC.TotalFee))
		pdf.Ln(8)
	}
	pdf.SetFont(font, "", 13)
	pdf.SetTextColor(0, 102, 204)
	pdf.Cell(95, 10, "Total:")
	pdf.Cell(95, 10, fmt.Sprintf("%.2f", st.Total))
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(14)

	drawDetailTable(pdf, font, st.Details, toReal)

	pdf.SetY(-15)
	pdf.SetFont(font, "", 8)
	pdf.SetTextColor(128, 128, 128)
	pdf.Cell(190, 10, "Printed at "+now().Format(timeLayout))

	return pdf.Output(w)
}

func drawDetailTable(pdf *gofpdf.Fpdf, font string, details []db.BillingDetail, toReal TimeMapper) {
	headers := []struct {
		width float64
		name  string
	}{
		{38, "Start"},
		{38, "End"},
		{28, "Duration (s)"},
		{24, "Fan"},
		{28, "Fee"},
		{34, "Cumulative"},
	}
	drawHeader := func() {
		pdf.SetFont(font, "", 10)
		pdf.SetFillColor(240, 240, 240)
		for _, h := range headers {
			pdf.CellFormat(h.width, 8, h.name, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(8)
		pdf.SetFont(font, "", 9)
	}
	drawHeader()

	fill := false
	for _, d := range details {
		if pdf.GetY() > 260 {
			pdf.AddPage()
			drawHeader()
		}
		if fill {
			pdf.SetFillColor(249, 249, 249)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		cells := []string{
			toReal(d.StartTime).Format(timeLayout),
			toReal(d.EndTime).Format(timeLayout),
			fmt.Sprintf("%.1f", d.DurationSeconds),
			string(d.FanSpeed),
			fmt.Sprintf("%.2f", d.Fee),
			fmt.Sprintf("%.2f", d.CumulativeFee),
		}
		for i, c := range cells {
			pdf.CellFormat(headers[i].width, 7, c, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(7)
		fill = !fill
	}
}
