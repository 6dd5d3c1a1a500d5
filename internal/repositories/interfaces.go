package repositories

import (
	"context"
	"errors"

	"github.com/SAP-F-2025/quiro-companion/internal/models"
)

var (
	ErrCardNotFound     = errors.New("card not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrNoQuestions      = errors.New("question sheet is empty")
)

// NumberPicker chooses the next question number for a card from the
// available numbers.
type NumberPicker func(current int, available []int) int

// SheetRepository is the storage behind the spreadsheet backend: a sheet of
// questions and a sheet of cards pointing at them.
type SheetRepository interface {
	GetCard(ctx context.Context, id string) (*models.Card, error)
	GetQuestion(ctx context.Context, number int) (*models.SheetQuestion, error)
	QuestionNumbers(ctx context.Context) ([]int, error)
	ListCards(ctx context.Context) ([]*models.Card, error)

	// AdvanceCard moves a card to the number chosen by pick and records the
	// change. The read and the write are atomic with respect to other calls.
	AdvanceCard(ctx context.Context, id string, pick NumberPicker) (*models.CardAdvance, error)

	Close() error
}
