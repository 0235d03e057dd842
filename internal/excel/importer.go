package excel

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/example/cardsched/pkg/models"
	"github.com/xuri/excelize/v2"
)

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath       string // Path to the Excel or CSV file
	IDColumn       string // Column with a stable word id, optional
	HanziColumn    string // Column with the characters
	PinyinColumn   string // Column with the pinyin reading
	EnglishColumn  string // Column with the English meaning
	CategoryColumn string // Column with the part of speech, optional
	SheetName      string // Name of the sheet to import
	StartRow       int    // The row to start importing from (1-based index)
	// Category used when the row has none and no category header row preceded it
	DefaultCategory string
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		HanziColumn:     "A",
		PinyinColumn:    "B",
		EnglishColumn:   "C",
		CategoryColumn:  "D",
		SheetName:       "Sheet1",
		StartRow:        2, // By default, start from the second row (skip header)
		DefaultCategory: "other",
	}
}

// WordSink receives imported words, e.g. a database repository.
type WordSink interface {
	// UpsertWord stores w, filling in its ID, and reports whether it was newly created.
	UpsertWord(w *models.Word) (bool, error)
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Updated        int
	Skipped        int
	Errors         []string
	Words          []models.Word
}

var errSkipRow = errors.New("skipping row")

// ImportWords imports words from an Excel or CSV file. When sink is nil the words are only
// returned in the result, numbered by row unless an id column is configured.
func ImportWords(config ImportConfig, sink WordSink) (*ImportResult, error) {
	// Check the file extension
	ext := strings.ToLower(filepath.Ext(config.FilePath))

	var rows [][]string
	var err error
	if ext == ".csv" {
		rows, err = readCSV(config.FilePath)
	} else {
		rows, err = readExcel(config.FilePath, config.SheetName)
	}
	if err != nil {
		return nil, err
	}
	return importRows(rows, config, sink), nil
}

// readExcel returns all rows of the sheet
func readExcel(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

// readCSV returns all records of the file
func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func importRows(rows [][]string, config ImportConfig, sink WordSink) *ImportResult {
	result := &ImportResult{Errors: make([]string, 0)}
	currentCategory := config.DefaultCategory
	nextID := 1

	for i, row := range rows {
		rowNum := i + 1
		// Skip header rows
		if rowNum < config.StartRow {
			continue
		}

		// A row with only its first cell set is a category header ("verb,,,")
		if isHeaderRow(row) {
			currentCategory = strings.Trim(strings.TrimSpace(row[0]), "\"")
			continue
		}

		result.TotalProcessed++

		word, err := parseRow(row, config, currentCategory)
		if err == errSkipRow {
			result.Skipped++
			continue
		}
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
			continue
		}
		if word.ID == 0 {
			word.ID = nextID
		}
		if word.ID >= nextID {
			nextID = word.ID + 1
		}

		if sink != nil {
			created, err := sink.UpsertWord(&word)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
				continue
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		} else {
			result.Created++
		}
		result.Words = append(result.Words, word)
	}

	return result
}

func isHeaderRow(row []string) bool {
	if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
		return false
	}
	for _, cell := range row[1:] {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// parseRow extracts a word from a single row
func parseRow(row []string, config ImportConfig, currentCategory string) (models.Word, error) {
	cell := func(column string) string {
		if column == "" {
			return ""
		}
		if idx := columnToIndex(column); idx >= 0 && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	hanzi := cell(config.HanziColumn)
	if hanzi == "" {
		return models.Word{}, errSkipRow
	}

	w := models.Word{
		Hanzi:    hanzi,
		Pinyin:   cell(config.PinyinColumn),
		English:  cleanMeaning(cell(config.EnglishColumn)),
		Category: strings.ToLower(cell(config.CategoryColumn)),
	}
	if w.Category == "" {
		w.Category = currentCategory
	}
	if w.Pinyin == "" {
		return models.Word{}, fmt.Errorf("pinyin cannot be empty")
	}
	if w.English == "" {
		return models.Word{}, fmt.Errorf("meaning cannot be empty")
	}

	if raw := cell(config.IDColumn); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			return models.Word{}, fmt.Errorf("invalid id %q", raw)
		}
		w.ID = id
	}
	return w, nil
}

// cleanMeaning drops trailing usage notes in brackets: "to eat (food)" -> "to eat"
func cleanMeaning(s string) string {
	if i := strings.Index(s, "("); i > 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

// Helper function to convert Excel column letter to index
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		if column[i] < 'A' || column[i] > 'Z' {
			return -1
		}
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
