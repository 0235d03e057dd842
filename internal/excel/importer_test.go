package excel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/example/cardsched/pkg/models"
)

type recordingSink struct {
	words map[string]*models.Word
	next  int
}

func (s *recordingSink) UpsertWord(w *models.Word) (bool, error) {
	if existing, ok := s.words[w.Hanzi]; ok {
		w.ID = existing.ID
		*existing = *w
		return false, nil
	}
	s.next++
	w.ID = 100 + s.next
	cp := *w
	s.words[w.Hanzi] = &cp
	return true, nil
}

func TestImportCSVWithCategoryHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hsk1.csv")
	content := "hanzi,pinyin,english,category\n" +
		"verb,,,\n" +
		"吃,chī,to eat (food),\n" +
		"喝,hē,to drink,\n" +
		"noun,,,\n" +
		"水,shuǐ,water,\n" +
		"好,hǎo,good,adjective\n" +
		"坏,,bad,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := DefaultImportConfig()
	cfg.FilePath = path
	res, err := ImportWords(cfg, nil)
	require.NoError(t, err)

	require.Len(t, res.Words, 4)
	assert.Equal(t, 5, res.TotalProcessed)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, res.Errors, 1)

	assert.Equal(t, models.Word{ID: 1, Hanzi: "吃", Pinyin: "chī", English: "to eat", Category: "verb"}, res.Words[0])
	assert.Equal(t, "verb", res.Words[1].Category)
	assert.Equal(t, "noun", res.Words[2].Category)
	assert.Equal(t, "adjective", res.Words[3].Category)
	assert.Equal(t, 4, res.Words[3].ID)
}

func TestImportExcelIntoSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hsk1.xlsx")
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"id", "hanzi", "pinyin", "english", "category"},
		{10, "我", "wǒ", "I, me", "pronoun"},
		{11, "你", "nǐ", "you", "pronoun"},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	cfg := ImportConfig{
		FilePath:       path,
		IDColumn:       "A",
		HanziColumn:    "B",
		PinyinColumn:   "C",
		EnglishColumn:  "D",
		CategoryColumn: "E",
		SheetName:      "Sheet1",
		StartRow:       2,
	}
	sink := &recordingSink{words: map[string]*models.Word{}}
	res, err := ImportWords(cfg, sink)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	require.Len(t, res.Words, 2)
	assert.Equal(t, 101, res.Words[0].ID)

	res, err = ImportWords(cfg, sink)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 2, res.Updated)
}

func TestColumnToIndex(t *testing.T) {
	assert.Equal(t, 0, columnToIndex("A"))
	assert.Equal(t, 25, columnToIndex("z"))
	assert.Equal(t, 26, columnToIndex("AA"))
	assert.Equal(t, -1, columnToIndex("1"))
}
