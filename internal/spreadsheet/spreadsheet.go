// Пакет spreadsheet — чтение первого листа табличного файла.
// CSV и текст читаются через encoding/csv, остальное открывается
// как книга Excel через excelize.
package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat — содержимое не является CSV или книгой Excel.
var ErrUnsupportedFormat = errors.New("неподдерживаемый формат файла")

const utf8BOM = "\uFEFF"

// Sheet — первый лист файла.
type Sheet struct {
	// Name — имя листа книги (пусто для CSV)
	Name string
	// Format — MIME-тип, определённый по содержимому
	Format string
	// Header — ячейки первой строки как есть
	Header []string
	// Rows — непустые строки данных
	Rows []Row
}

// Row — строка данных.
type Row struct {
	// Number — порядковый номер среди строк данных плюс 2: первая строка
	// данных получает 2, заголовок считается строкой 1. Пустые строки
	// номеров не получают.
	Number int
	// Cells — значения по имени колонки заголовка
	Cells map[string]string
}

// Value возвращает значение ячейки колонки.
func (r Row) Value(column string) (string, bool) {
	v, ok := r.Cells[column]
	return v, ok
}

// Empty сообщает, что в файле нет строк данных.
func (s *Sheet) Empty() bool {
	return len(s.Rows) == 0
}

// MissingColumns возвращает обязательные колонки, отсутствующие в заголовке.
// Сравнение точное: пробелы и регистр учитываются.
func (s *Sheet) MissingColumns(required ...string) []string {
	present := make(map[string]bool, len(s.Header))
	for _, h := range s.Header {
		present[h] = true
	}
	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

// Parse читает r целиком и разбирает первый лист.
func Parse(r io.Reader) (*Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("чтение файла: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes разбирает содержимое файла, определяя формат по сигнатуре.
func ParseBytes(data []byte) (*Sheet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &Sheet{}, nil
	}
	mt := mimetype.Detect(data)

	var (
		name  string
		table [][]string
		err   error
	)
	if isText(mt) {
		table, err = readCSV(data)
	} else {
		name, table, err = readWorkbook(data)
	}
	if err != nil {
		return nil, err
	}

	sheet := build(table)
	sheet.Name = name
	sheet.Format = mt.String()
	return sheet, nil
}

// isText — text/plain и его потомки (text/csv, text/tab-separated-values).
func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func readCSV(data []byte) ([][]string, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	table, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("разбор CSV: %w", err)
	}
	if len(table) > 0 && len(table[0]) > 0 {
		table[0][0] = strings.TrimPrefix(table[0][0], utf8BOM)
	}
	return table, nil
}

func readWorkbook(data []byte) (string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil, nil
	}

	// Сырые значения: формат отображения не должен округлять количество
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return "", nil, fmt.Errorf("чтение листа %q: %w", sheets[0], err)
	}
	return sheets[0], rows, nil
}

// build превращает таблицу в Sheet. Полностью пустые строки пропускаются
// и в нумерации не участвуют.
func build(table [][]string) *Sheet {
	sheet := &Sheet{}
	if len(table) == 0 {
		return sheet
	}
	sheet.Header = table[0]

	for _, cells := range table[1:] {
		if blank(cells) {
			continue
		}
		row := Row{
			Number: len(sheet.Rows) + 2,
			Cells:  make(map[string]string, len(sheet.Header)),
		}
		for col, name := range sheet.Header {
			if _, dup := row.Cells[name]; dup {
				continue
			}
			if col < len(cells) {
				row.Cells[name] = cells[col]
			} else {
				row.Cells[name] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
