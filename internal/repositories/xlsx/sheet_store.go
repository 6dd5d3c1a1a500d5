package xlsx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/models"
	"github.com/SAP-F-2025/quiro-companion/internal/repositories"
	"github.com/xuri/excelize/v2"
	"gorm.io/datatypes"
)

const (
	QuestionSheet = "Soal"
	CardSheet     = "Kartu"
	HistorySheet  = "Riwayat"
)

var errEmptyNumber = errors.New("empty number")

var (
	questionHeaders = []string{"Nomor", "Pertanyaan", "MediaDrive", "MediaLainnya"}
	cardHeaders     = []string{"ID", "NomorSoal"}
	historyHeaders  = []string{"ID", "Dari", "Ke", "Waktu"}
)

// SheetStore keeps the question and card sheets in an .xlsx workbook. Every
// change is saved back to the file before the call returns.
type SheetStore struct {
	mu     sync.Mutex
	path   string
	file   *excelize.File
	logger *slog.Logger
}

func Open(path string, logger *slog.Logger) (*SheetStore, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	for _, sheet := range []string{QuestionSheet, CardSheet} {
		if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
			f.Close()
			return nil, fmt.Errorf("workbook %s has no %q sheet", path, sheet)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SheetStore{path: path, file: f, logger: logger}, nil
}

func NewSheetStore(path string, logger *slog.Logger) (repositories.SheetRepository, error) {
	store, err := Open(path, logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// CreateWorkbook writes a fresh workbook with the given rows.
func CreateWorkbook(path string, questions []models.SheetQuestion, cards []models.Card) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", QuestionSheet); err != nil {
		return fmt.Errorf("failed to create %s sheet: %w", QuestionSheet, err)
	}
	if _, err := f.NewSheet(CardSheet); err != nil {
		return fmt.Errorf("failed to create %s sheet: %w", CardSheet, err)
	}

	if err := writeRow(f, QuestionSheet, 1, toRow(questionHeaders)); err != nil {
		return err
	}
	for i, q := range questions {
		if err := writeRow(f, QuestionSheet, i+2, []interface{}{q.Number, q.Text, q.MediaDrive, q.MediaLainnya}); err != nil {
			return err
		}
	}

	if err := writeRow(f, CardSheet, 1, toRow(cardHeaders)); err != nil {
		return err
	}
	for i, c := range cards {
		if err := writeRow(f, CardSheet, i+2, []interface{}{c.ID, c.QuestionNumber}); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

func (s *SheetStore) GetCard(ctx context.Context, id string) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, _, _, err := s.findCardLocked(id)
	return card, err
}

func (s *SheetStore) GetQuestion(ctx context.Context, number int) (*models.SheetQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	questions, err := s.questionsLocked()
	if err != nil {
		return nil, err
	}
	for _, q := range questions {
		if q.Number == number {
			return q, nil
		}
	}
	return nil, repositories.ErrQuestionNotFound
}

func (s *SheetStore) QuestionNumbers(ctx context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionNumbersLocked()
}

func (s *SheetStore) ListCards(ctx context.Context) ([]*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.file.GetRows(CardSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s sheet: %w", CardSheet, err)
	}
	idCol, numCol := cardColumns(rows)

	var cards []*models.Card
	for _, row := range dataRows(rows) {
		id := cell(row, idCol)
		if id == "" {
			continue
		}
		n, _ := parseNumber(cell(row, numCol))
		cards = append(cards, &models.Card{ID: id, QuestionNumber: n})
	}
	return cards, nil
}

func (s *SheetStore) AdvanceCard(ctx context.Context, id string, pick repositories.NumberPicker) (*models.CardAdvance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, rowNum, numCol, err := s.findCardLocked(id)
	if err != nil {
		return nil, err
	}
	numbers, err := s.questionNumbersLocked()
	if err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		return nil, repositories.ErrNoQuestions
	}

	next := pick(card.QuestionNumber, numbers)
	target, err := excelize.CoordinatesToCellName(numCol+1, rowNum)
	if err != nil {
		return nil, err
	}
	if err := s.file.SetCellValue(CardSheet, target, next); err != nil {
		return nil, fmt.Errorf("failed to update card %s: %w", id, err)
	}

	advance := &models.CardAdvance{
		CardID:     card.ID,
		FromNumber: card.QuestionNumber,
		ToNumber:   next,
		Metadata:   datatypes.JSONMap{"store": "xlsx", "row": rowNum},
		CreatedAt:  time.Now().UTC(),
	}
	historyRow, err := s.appendHistoryLocked(advance)
	if err != nil {
		s.rollbackLocked(target, card.QuestionNumber, 0)
		return nil, err
	}
	if err := s.file.Save(); err != nil {
		s.rollbackLocked(target, card.QuestionNumber, historyRow)
		return nil, fmt.Errorf("failed to save workbook %s: %w", s.path, err)
	}

	s.logger.Info("Card advanced", "card_id", card.ID, "from", advance.FromNumber, "to", advance.ToNumber)
	return advance, nil
}

func (s *SheetStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// findCardLocked returns the card, its 1-based sheet row and the 0-based
// column holding its question number.
func (s *SheetStore) findCardLocked(id string) (*models.Card, int, int, error) {
	id = strings.TrimSpace(id)
	rows, err := s.file.GetRows(CardSheet)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read %s sheet: %w", CardSheet, err)
	}
	idCol, numCol := cardColumns(rows)

	for i, row := range rows {
		if i == 0 || cell(row, idCol) != id {
			continue
		}
		n, err := parseNumber(cell(row, numCol))
		if err != nil {
			return nil, 0, 0, fmt.Errorf("card %s has an invalid question number: %w", id, err)
		}
		return &models.Card{ID: id, QuestionNumber: n}, i + 1, numCol, nil
	}
	return nil, 0, 0, repositories.ErrCardNotFound
}

func (s *SheetStore) questionsLocked() ([]*models.SheetQuestion, error) {
	rows, err := s.file.GetRows(QuestionSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s sheet: %w", QuestionSheet, err)
	}
	cols := columnIndex(rows, questionHeaders)

	var questions []*models.SheetQuestion
	for _, row := range dataRows(rows) {
		n, err := parseNumber(cell(row, cols[0]))
		if err != nil {
			continue
		}
		questions = append(questions, &models.SheetQuestion{
			Number:       n,
			Text:         cell(row, cols[1]),
			MediaDrive:   cell(row, cols[2]),
			MediaLainnya: cell(row, cols[3]),
		})
	}
	return questions, nil
}

func (s *SheetStore) questionNumbersLocked() ([]int, error) {
	questions, err := s.questionsLocked()
	if err != nil {
		return nil, err
	}
	numbers := make([]int, 0, len(questions))
	for _, q := range questions {
		numbers = append(numbers, q.Number)
	}
	return numbers, nil
}

// rollbackLocked undoes an unsaved advance so memory matches the file again.
// historyRow 0 means no history row was written.
func (s *SheetStore) rollbackLocked(cardCell string, number, historyRow int) {
	if err := s.file.SetCellValue(CardSheet, cardCell, number); err != nil {
		s.logger.Error("Failed to restore card cell", "cell", cardCell, "error", err)
	}
	if historyRow > 0 {
		if err := s.file.RemoveRow(HistorySheet, historyRow); err != nil {
			s.logger.Error("Failed to drop history row", "row", historyRow, "error", err)
		}
	}
}

// appendHistoryLocked writes one history row and returns its row number.
func (s *SheetStore) appendHistoryLocked(advance *models.CardAdvance) (int, error) {
	idx, err := s.file.GetSheetIndex(HistorySheet)
	if err != nil {
		return 0, err
	}
	if idx < 0 {
		if _, err := s.file.NewSheet(HistorySheet); err != nil {
			return 0, fmt.Errorf("failed to create %s sheet: %w", HistorySheet, err)
		}
		if err := writeRow(s.file, HistorySheet, 1, toRow(historyHeaders)); err != nil {
			return 0, err
		}
	}
	rows, err := s.file.GetRows(HistorySheet)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s sheet: %w", HistorySheet, err)
	}
	row := len(rows) + 1
	err = writeRow(s.file, HistorySheet, row, []interface{}{
		advance.CardID, advance.FromNumber, advance.ToNumber, advance.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return 0, err
	}
	return row, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, start, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toRow(values []string) []interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

func cardColumns(rows [][]string) (int, int) {
	cols := columnIndex(rows, cardHeaders)
	return cols[0], cols[1]
}

// columnIndex maps wanted headers to their columns, falling back to the
// positional layout when a header is missing.
func columnIndex(rows [][]string, wanted []string) []int {
	found := make(map[string]int)
	if len(rows) > 0 {
		for i, h := range rows[0] {
			found[normalizeHeader(h)] = i
		}
	}
	cols := make([]int, len(wanted))
	for i, w := range wanted {
		if idx, ok := found[normalizeHeader(w)]; ok {
			cols[i] = idx
		} else {
			cols[i] = i
		}
	}
	return cols
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "").Replace(h)
}

func dataRows(rows [][]string) [][]string {
	if len(rows) < 2 {
		return nil
	}
	return rows[1:]
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func parseNumber(s string) (int, error) {
	if s == "" {
		return 0, errEmptyNumber
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
