// Package export writes recommendation snapshots to spreadsheets.
package export

import (
	"io"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"github.com/vadiminshakov/skinsync/internal/services/currency"
	"github.com/xuri/excelize/v2"
)

const (
	SheetAll    = "All"
	SheetDigest = "Digest"
)

var header = []any{"App ID", "Market hash name", "Name", "Current price", "Predicted price", "Change %", "Advice"}

// WriteXLSX renders snap as a workbook with the full table and the digest, prices in cur.
func WriteXLSX(w io.Writer, snap domain.RecommendationSnapshot, cur string) error {
	all, err := currency.ConvertRecords(snap.All, cur)
	if err != nil {
		return err
	}
	digest, err := currency.ConvertRecords(snap.Digest.Records(), cur)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetAll); err != nil {
		return errors.Wrap(err, "rename default sheet")
	}
	if _, err := f.NewSheet(SheetDigest); err != nil {
		return errors.Wrap(err, "create digest sheet")
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "create header style")
	}

	for sheet, records := range map[string][]domain.RecommendationRecord{SheetAll: all, SheetDigest: digest} {
		if err := writeSheet(f, sheet, records, bold); err != nil {
			return errors.Wrapf(err, "write sheet %s", sheet)
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Recommendations " + snap.ID,
		Created: snap.Timestamp.Format("2006-01-02T15:04:05Z"),
	}); err != nil {
		return errors.Wrap(err, "set document properties")
	}

	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, records []domain.RecommendationRecord, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "G1", headerStyle); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "B", "C", 40); err != nil {
		return err
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			r.Item.AppID,
			r.Item.MarketHashName,
			r.Item.DisplayName(),
			priceCell(r.CurrentPrice),
			priceCell(r.PredictedPrice),
			r.OverallChange.Round(2).InexactFloat64(),
			string(r.Advice()),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// priceCell keeps prices numeric so the sheet can be sorted, sentinels become text.
func priceCell(p domain.Price) any {
	if !p.IsAvailable() {
		return p.String()
	}
	return p.Amount.Round(2).InexactFloat64()
}
