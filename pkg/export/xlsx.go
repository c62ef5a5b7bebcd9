// Package export renders booking listings as Excel workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
	"github.com/xuri/excelize/v2"
)

const SheetName = "Записи"

var header = []string{"№", "Дата", "Начало", "Конец", "Услуга", "Длительность, мин", "Мастер", "Клиент", "Телефон"}

// WriteBookings writes the listing as a single-sheet xlsx workbook with a title row
// above the header.
func WriteBookings(w io.Writer, title string, list []model.BookingView) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return errs.New("error renaming sheet").Wrap(err)
	}

	// Заголовок периода
	if err := f.SetCellValue(SheetName, "A1", title); err != nil {
		return errs.New("error writing title").Wrap(err)
	}

	headStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return errs.New("error creating style").Wrap(err)
	}
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return errs.New("error writing header").Wrap(err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 2)
	if err := f.SetCellStyle(SheetName, "A2", last, headStyle); err != nil {
		return errs.New("error styling header").Wrap(err)
	}

	for i, b := range list {
		row := []interface{}{
			b.ID,
			b.Day.Format("02.01.2006"),
			b.StartTime.String(),
			b.EndTime.String(),
			b.ServiceName,
			b.DurationMin,
			b.MasterName,
			b.ClientName,
			b.ClientPhone,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return errs.New("error writing row").Arg("booking_id", b.ID).Wrap(err)
		}
	}

	for col, width := range map[string]float64{"B": 12, "E": 24, "G": 18, "H": 20, "I": 16} {
		_ = f.SetColWidth(SheetName, col, col, width)
	}

	if _, err := f.WriteTo(w); err != nil {
		return errs.New("error writing workbook").Wrap(err)
	}
	return nil
}

// Filename is the attachment name for a period export.
func Filename(period string) string {
	return fmt.Sprintf("bookings_%s.xlsx", period)
}
