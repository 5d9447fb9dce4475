package domain

import "time"

// MaxFreeEntries caps how many Q&A entries can be readable without a subscription.
const MaxFreeEntries = 5

// Category groups Q&A entries.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description,omitempty"`
	SortOrder   int       `json:"sortOrder"`
	CreatedAt   time.Time `json:"createdAt"`
}

// QA is a single question and answer entry of the knowledge base.
type QA struct {
	ID              string    `json:"id"`
	QuestionTitle   string    `json:"questionTitle"`
	QuestionContent string    `json:"questionContent"`
	AnswerContent   string    `json:"answerContent"`
	CategoryID      *string   `json:"categoryId,omitempty"`
	CategoryName    *string   `json:"categoryName,omitempty"`
	IsPublished     bool      `json:"isPublished"`
	IsFree          bool      `json:"isFree"`
	SortOrder       int       `json:"sortOrder"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type CategoryRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	Slug        string  `json:"slug" validate:"required,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	SortOrder   *int    `json:"sortOrder" validate:"omitempty,min=0"`
}

// QARequest is the validated input for creating or updating an entry.
// IsPublished defaults to true on create when omitted.
type QARequest struct {
	QuestionTitle   string  `json:"questionTitle" validate:"required,min=1,max=300"`
	QuestionContent string  `json:"questionContent" validate:"required"`
	AnswerContent   string  `json:"answerContent" validate:"required"`
	CategoryID      *string `json:"categoryId"`
	IsPublished     *bool   `json:"isPublished"`
	IsFree          bool    `json:"isFree"`
	SortOrder       *int    `json:"sortOrder" validate:"omitempty,min=0"`
}

// MoveRequest reorders an item relative to its neighbour.
type MoveRequest struct {
	Direction string `json:"direction" validate:"required,oneof=up down"`
}

const (
	SortDefault   = "default"
	SortTitleAsc  = "title_asc"
	SortTitleDesc = "title_desc"
	SortCategory  = "category"
	SortFreeFirst = "free_first"
)

// QAQuery filters the published entry listing.
type QAQuery struct {
	CategoryID string
	Term       string
	Sort       string
}

// Stats is the admin dashboard summary.
type Stats struct {
	Users               int `json:"users"`
	Entries             int `json:"entries"`
	Categories          int `json:"categories"`
	ActiveSubscriptions int `json:"activeSubscriptions"`
}
