package ward

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"
)

const (
	wardSheet = "Wards"
	typeSheet = "Room Types"
)

var (
	wardHeader = []string{"Ward", "Total", "Occupied", "Available", "Maintenance", "Reserved", "Occupancy %"}
	typeHeader = []string{"Room Type", "Total", "Occupied", "Available"}
)

// OccupancyWorkbook renders a Summary as a two-sheet spreadsheet. The caller
// owns the returned file and must Close it.
func OccupancyWorkbook(s *Summary) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", wardSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(typeSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	wards := make([]string, 0, len(s.WardOccupancy))
	for name := range s.WardOccupancy {
		wards = append(wards, name)
	}
	sort.Strings(wards)

	rows := [][]interface{}{}
	for _, name := range wards {
		ws := s.WardOccupancy[name]
		rows = append(rows, []interface{}{name, ws.Total, ws.Occupied, ws.Available, ws.Maintenance, ws.Reserved, ws.OccupancyRate})
	}
	rows = append(rows, []interface{}{"All wards", s.Total, s.Occupied, s.Available, s.Maintenance, s.Reserved, s.OccupancyRate})
	if err := writeSheet(f, wardSheet, wardHeader, rows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	rows = rows[:0]
	for _, rt := range RoomTypes {
		ts := s.ByType[rt]
		if ts == nil {
			ts = &TypeStats{}
		}
		rows = append(rows, []interface{}{string(rt), ts.Total, ts.Occupied, ts.Available})
	}
	if err := writeSheet(f, typeSheet, typeHeader, rows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// OccupancyWorkbookBytes renders the workbook and serializes it.
func OccupancyWorkbookBytes(s *Summary) ([]byte, error) {
	f, err := OccupancyWorkbook(s)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]interface{}, headerStyle int) error {
	for col, h := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("style header %s: %w", cell, err)
		}
	}
	for r, row := range rows {
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
