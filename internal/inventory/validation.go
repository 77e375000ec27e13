package inventory

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// ProductInput is the request body for creating or updating a product.
// Absent fields are nil.
type ProductInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *json.Number     `json:"stock"`
}

const (
	minNameLength        = 3
	maxNameLength        = 100
	minDescriptionLength = 10
)

const (
	msgName        = "name must be between 3 and 100 chars"
	msgDescription = "description must be at least 10 chars"
	msgPrice       = "price must be a number > 0"
	msgStock       = "stock must be an integer >= 0"
)

// ValidateCreate requires every field except category.
func (in ProductInput) ValidateCreate() []string {
	var problems []string
	if in.Name == nil || !validName(*in.Name) {
		problems = append(problems, msgName)
	}
	if in.Description == nil || !validDescription(*in.Description) {
		problems = append(problems, msgDescription)
	}
	if in.Price == nil || !in.Price.IsPositive() {
		problems = append(problems, msgPrice)
	}
	if _, ok := in.stock(); in.Stock == nil || !ok {
		problems = append(problems, msgStock)
	}
	return problems
}

// ValidateUpdate checks only the fields that are present.
func (in ProductInput) ValidateUpdate() []string {
	var problems []string
	if in.Name != nil && !validName(*in.Name) {
		problems = append(problems, msgName)
	}
	if in.Description != nil && !validDescription(*in.Description) {
		problems = append(problems, msgDescription)
	}
	if in.Price != nil && !in.Price.IsPositive() {
		problems = append(problems, msgPrice)
	}
	if _, ok := in.stock(); in.Stock != nil && !ok {
		problems = append(problems, msgStock)
	}
	return problems
}

func (in ProductInput) stock() (int, bool) {
	if in.Stock == nil {
		return 0, false
	}
	n, err := strconv.Atoi(in.Stock.String())
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Patch converts a validated input into a repository patch.
func (in ProductInput) Patch() ProductPatch {
	patch := ProductPatch{
		Name:        trimmed(in.Name),
		Description: trimmed(in.Description),
		Category:    trimmed(in.Category),
		Price:       in.Price,
	}
	if n, ok := in.stock(); ok {
		patch.Stock = &n
	}
	return patch
}

func validName(s string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	return n >= minNameLength && n <= maxNameLength
}

func validDescription(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) >= minDescriptionLength
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
