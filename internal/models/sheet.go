package models

import (
	"time"

	"gorm.io/datatypes"
)

// Card maps a printed QR card to the question currently assigned to it.
type Card struct {
	ID             string    `json:"id" gorm:"primaryKey;size:64"`
	QuestionNumber int       `json:"nomor_soal" gorm:"not null;index"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SheetQuestion is one row of the question sheet.
type SheetQuestion struct {
	Number       int    `json:"nomor" gorm:"primaryKey;autoIncrement:false"`
	Text         string `json:"pertanyaan" gorm:"type:text;not null"`
	MediaDrive   string `json:"media_drive" gorm:"size:512"`
	MediaLainnya string `json:"media_lainnya" gorm:"size:512"`
}

func (SheetQuestion) TableName() string {
	return "questions"
}

// CardAdvance records one update_number call against a card.
type CardAdvance struct {
	ID         uint              `json:"id" gorm:"primaryKey"`
	CardID     string            `json:"card_id" gorm:"size:64;not null;index"`
	FromNumber int               `json:"from_number"`
	ToNumber   int               `json:"to_number"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ToQuestion builds the wire payload for a card and its current question.
func (q *SheetQuestion) ToQuestion(cardID string) *Question {
	return &Question{
		ID:           cardID,
		Number:       QuestionNumber(itoa(q.Number)),
		Text:         q.Text,
		MediaDrive:   q.MediaDrive,
		MediaLainnya: q.MediaLainnya,
	}
}
