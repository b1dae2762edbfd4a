package spreadsheet

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// buildXLSX собирает книгу в памяти: первая строка — заголовок.
func buildXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func TestParse_XLSX(t *testing.T) {
	data := buildXLSX(t, [][]any{
		{"SKU", "Description", "SOH Quantity", "Location"},
		{"A1", "Widget", 10},
		{"", "Gadget", 5},
		{"B2", "Bolt", 12.5, "Aisle 3"},
	})

	sheet, err := ParseBytes(data)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if sheet.Name != "Sheet1" {
		t.Errorf("Name = %q, ожидался Sheet1", sheet.Name)
	}
	if !reflect.DeepEqual(sheet.Header, []string{"SKU", "Description", "SOH Quantity", "Location"}) {
		t.Errorf("Header = %v", sheet.Header)
	}
	if len(sheet.Rows) != 3 {
		t.Fatalf("Rows = %d, ожидалось 3", len(sheet.Rows))
	}

	first := sheet.Rows[0]
	if first.Number != 2 {
		t.Errorf("номер первой строки данных = %d, ожидался 2", first.Number)
	}
	if v, _ := first.Value("SOH Quantity"); v != "10" {
		t.Errorf("SOH Quantity = %q, ожидалось 10", v)
	}
	if v, ok := first.Value("Location"); !ok || v != "" {
		t.Errorf("Location = %q, %v: недостающая ячейка должна быть пустой", v, ok)
	}

	second := sheet.Rows[1]
	if second.Number != 3 {
		t.Errorf("номер второй строки = %d, ожидался 3", second.Number)
	}
	if v, _ := second.Value("SKU"); v != "" {
		t.Errorf("SKU = %q, ожидалась пустая строка", v)
	}

	if v, _ := sheet.Rows[2].Value("SOH Quantity"); v != "12.5" {
		t.Errorf("SOH Quantity = %q, ожидалось 12.5", v)
	}
}

func TestParse_XLSX_FirstSheetOnly(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetRow("Sheet1", "A1", &[]any{"SKU", "Description", "SOH Quantity"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewSheet("Other"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow("Other", "A1", &[]any{"X"}); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow("Other", "A2", &[]any{"Y"}); err != nil {
		t.Fatal(err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	sheet, err := ParseBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if !sheet.Empty() {
		t.Errorf("данные второго листа не должны читаться: %d строк", len(sheet.Rows))
	}
	if len(sheet.Header) != 3 {
		t.Errorf("Header = %v", sheet.Header)
	}
}

func TestParse_CSV(t *testing.T) {
	input := "\uFEFFSKU,Description,SOH Quantity\nA1,Widget,5\n,,\nB2,\"Bolt, zinc\",7\n"

	sheet, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sheet.Header[0] != "SKU" {
		t.Errorf("BOM не удалён: %q", sheet.Header[0])
	}
	if len(sheet.Rows) != 2 {
		t.Fatalf("Rows = %d, ожидалось 2 (пустая строка пропускается)", len(sheet.Rows))
	}
	// Пустая строка не занимает номер
	if sheet.Rows[1].Number != 3 {
		t.Errorf("номер строки после пустой = %d, ожидался 3", sheet.Rows[1].Number)
	}
	if v, _ := sheet.Rows[1].Value("Description"); v != "Bolt, zinc" {
		t.Errorf("Description = %q", v)
	}
	if sheet.Name != "" {
		t.Errorf("Name = %q, для CSV ожидалось пустое", sheet.Name)
	}
}

func TestParse_EmptyAndHeaderOnly(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"пустой файл", ""},
		{"только заголовок", "SKU,Description,SOH Quantity\n"},
		{"заголовок и пустые строки", "SKU,Description,SOH Quantity\n,,\n , ,\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet, err := Parse(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !sheet.Empty() {
				t.Errorf("Empty() = false, строк %d", len(sheet.Rows))
			}
		})
	}
}

func TestSheet_MissingColumns(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   []string
	}{
		{"все на месте", []string{"Description", "SKU", "SOH Quantity"}, nil},
		{"нет SKU", []string{"Description", "SOH Quantity"}, []string{"SKU"}},
		{"регистр учитывается", []string{"sku", "Description", "SOH quantity"}, []string{"SKU", "SOH Quantity"}},
		{"пробелы учитываются", []string{" SKU", "Description", "SOH Quantity"}, []string{"SKU"}},
		{"пустой заголовок", nil, []string{"SKU", "Description", "SOH Quantity"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Sheet{Header: tt.header}
			got := s.MissingColumns("SKU", "Description", "SOH Quantity")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MissingColumns = %v, ожидалось %v", got, tt.want)
			}
		})
	}
}

func TestParse_UnsupportedBinary(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	_, err := ParseBytes(png)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("ожидался ErrUnsupportedFormat, получено %v", err)
	}
}
