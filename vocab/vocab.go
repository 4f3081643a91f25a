// Package vocab holds the vocabulary reference data.
package vocab

import "context"

// Language is a natural language words belong to.
type Language struct {
	ID          int32  `json:"id"`
	EnglishName string `json:"english_name"`
}

// WordType is a part of speech.
type WordType struct {
	ID          int32  `json:"id"`
	EnglishName string `json:"english_name"`
}

// Store reads reference data.
type Store interface {
	ListLanguages(ctx context.Context) ([]Language, error)
	ListWordTypes(ctx context.Context) ([]WordType, error)
}
