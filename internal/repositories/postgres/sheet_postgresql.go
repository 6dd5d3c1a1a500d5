package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/SAP-F-2025/quiro-companion/internal/models"
	"github.com/SAP-F-2025/quiro-companion/internal/repositories"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SheetPostgreSQL struct {
	db *gorm.DB
}

func NewSheetPostgreSQL(db *gorm.DB) repositories.SheetRepository {
	return &SheetPostgreSQL{db: db}
}

// Migrate creates the cards, questions and card_advances tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.SheetQuestion{}, &models.Card{}, &models.CardAdvance{})
}

func (s *SheetPostgreSQL) GetCard(ctx context.Context, id string) (*models.Card, error) {
	var card models.Card
	if err := s.db.WithContext(ctx).First(&card, "id = ?", id).Error; err != nil {
		return nil, translate(err, repositories.ErrCardNotFound)
	}
	return &card, nil
}

func (s *SheetPostgreSQL) GetQuestion(ctx context.Context, number int) (*models.SheetQuestion, error) {
	var question models.SheetQuestion
	if err := s.db.WithContext(ctx).First(&question, "number = ?", number).Error; err != nil {
		return nil, translate(err, repositories.ErrQuestionNotFound)
	}
	return &question, nil
}

func (s *SheetPostgreSQL) QuestionNumbers(ctx context.Context) ([]int, error) {
	return questionNumbers(s.db.WithContext(ctx))
}

func (s *SheetPostgreSQL) ListCards(ctx context.Context) ([]*models.Card, error) {
	var cards []*models.Card
	if err := s.db.WithContext(ctx).Order("id").Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *SheetPostgreSQL) AdvanceCard(ctx context.Context, id string, pick repositories.NumberPicker) (*models.CardAdvance, error) {
	var advance *models.CardAdvance

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card models.Card
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&card, "id = ?", id).Error; err != nil {
			return translate(err, repositories.ErrCardNotFound)
		}

		numbers, err := questionNumbers(tx)
		if err != nil {
			return err
		}
		if len(numbers) == 0 {
			return repositories.ErrNoQuestions
		}

		next := pick(card.QuestionNumber, numbers)
		if err := tx.Model(&card).Update("question_number", next).Error; err != nil {
			return fmt.Errorf("failed to update card %s: %w", id, err)
		}

		advance = &models.CardAdvance{
			CardID:     card.ID,
			FromNumber: card.QuestionNumber,
			ToNumber:   next,
			Metadata:   datatypes.JSONMap{"store": "postgres", "candidates": len(numbers)},
		}
		return tx.Create(advance).Error
	})
	if err != nil {
		return nil, err
	}
	return advance, nil
}

func (s *SheetPostgreSQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func questionNumbers(db *gorm.DB) ([]int, error) {
	var numbers []int
	if err := db.Model(&models.SheetQuestion{}).Order("number").Pluck("number", &numbers).Error; err != nil {
		return nil, err
	}
	return numbers, nil
}

func translate(err, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}
