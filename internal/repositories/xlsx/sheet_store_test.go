package xlsx

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/SAP-F-2025/quiro-companion/internal/models"
	"github.com/SAP-F-2025/quiro-companion/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func seedWorkbook(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "soal.xlsx")
	err := CreateWorkbook(path,
		[]models.SheetQuestion{
			{Number: 1, Text: "Apa ibu kota Jawa Barat?"},
			{Number: 2, Text: "Berapa 7 x 8?", MediaDrive: "https://drive.google.com/file/d/abc/view"},
			{Number: 3, Text: "Sebutkan tiga warna primer!"},
		},
		[]models.Card{
			{ID: "KARTU-01", QuestionNumber: 1},
			{ID: "KARTU-02", QuestionNumber: 9},
		},
	)
	require.NoError(t, err)
	return path
}

func TestSheetStore_Lookup(t *testing.T) {
	store, err := Open(seedWorkbook(t), nil)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	card, err := store.GetCard(ctx, " KARTU-01 ")
	require.NoError(t, err)
	assert.Equal(t, 1, card.QuestionNumber)

	q, err := store.GetQuestion(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Berapa 7 x 8?", q.Text)
	assert.Equal(t, "https://drive.google.com/file/d/abc/view", q.MediaDrive)

	_, err = store.GetCard(ctx, "KARTU-99")
	assert.ErrorIs(t, err, repositories.ErrCardNotFound)

	_, err = store.GetQuestion(ctx, 9)
	assert.ErrorIs(t, err, repositories.ErrQuestionNotFound)

	numbers, err := store.QuestionNumbers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, numbers)

	cards, err := store.ListCards(ctx)
	require.NoError(t, err)
	assert.Len(t, cards, 2)
}

func TestSheetStore_AdvanceCardPersists(t *testing.T) {
	path := seedWorkbook(t)
	store, err := Open(path, nil)
	require.NoError(t, err)
	ctx := context.Background()

	var seen []int
	advance, err := store.AdvanceCard(ctx, "KARTU-01", func(current int, available []int) int {
		seen = available
		assert.Equal(t, 1, current)
		return 3
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, 1, advance.FromNumber)
	assert.Equal(t, 3, advance.ToNumber)
	assert.Equal(t, "xlsx", advance.Metadata["store"])
	require.NoError(t, store.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	card, err := reopened.GetCard(ctx, "KARTU-01")
	require.NoError(t, err)
	assert.Equal(t, 3, card.QuestionNumber)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	history, err := f.GetRows(HistorySheet)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, []string{"KARTU-01", "1", "3"}, history[1][:3])
}

func TestSheetStore_AdvanceUnknownCard(t *testing.T) {
	store, err := Open(seedWorkbook(t), nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.AdvanceCard(context.Background(), "NOPE", func(int, []int) int { return 1 })
	assert.ErrorIs(t, err, repositories.ErrCardNotFound)
}

func TestSheetStore_AdvanceRolledBackWhenSaveFails(t *testing.T) {
	store, err := Open(seedWorkbook(t), nil)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	store.file.Path = filepath.Join(t.TempDir(), "missing", "soal.xlsx")
	_, err = store.AdvanceCard(ctx, "KARTU-01", func(int, []int) int { return 3 })
	require.Error(t, err)

	card, err := store.GetCard(ctx, "KARTU-01")
	require.NoError(t, err)
	assert.Equal(t, 1, card.QuestionNumber, "unsaved advance must not be served")

	history, err := store.file.GetRows(HistorySheet)
	require.NoError(t, err)
	assert.Len(t, history, 1, "only the header row remains")
}

func TestOpen_RequiresSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err := Open(path, nil)
	assert.Error(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "missing.xlsx"), nil)
	assert.Error(t, err)
}

func TestColumnIndex_HeaderOrder(t *testing.T) {
	rows := [][]string{{"Nomor Soal", "id"}}
	assert.Equal(t, []int{1, 0}, columnIndex(rows, cardHeaders))
	assert.Equal(t, []int{0, 1}, columnIndex(nil, cardHeaders))
}
