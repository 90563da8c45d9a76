// Package option holds composable gorm query modifiers used by the generic repository.
package option

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/futorumeshi/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a single WHERE clause. Unknown fields or operators are ignored.
func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if !isIdentifier(cond.Field) {
			return db
		}
		switch cond.Operator {
		case EQ, NEQ, GT, GTE, LT, LTE:
			return db.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), cond.Value)
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", cond.Field), cond.Value)
		default:
			return db
		}
	})
}

type QuerySortBy struct {
	Field     string
	Direction string
}

// WithQuerySortBy validates a sort request against an allow-list, falling back to id desc.
func WithQuerySortBy(field, direction string, allowed map[string]bool) QuerySortBy {
	field = strings.TrimSpace(field)
	if !allowed[field] || !isIdentifier(field) {
		field = "id"
	}
	direction = strings.ToLower(strings.TrimSpace(direction))
	if direction != "asc" {
		direction = "desc"
	}
	return QuerySortBy{Field: field, Direction: direction}
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if sort.Field == "" {
			return db
		}
		db = db.Order(sort.Field + " " + sort.Direction)
		if sort.Field != "id" {
			db = db.Order("id " + sort.Direction)
		}
		return db
	})
}

func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

// ApplyPagination seeks past the cursor id and fetches one extra row so callers can detect has_more.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if token := strings.TrimSpace(p.PageToken); token != "" {
			if cursor, err := pagination.DecodeCursor(token); err == nil && cursor.ID != "" {
				if id, err := snowflake.ParseString(cursor.ID); err == nil {
					db = db.Where("id < ?", id)
				}
			}
		}
		size := p.PageSize
		if size <= 0 {
			size = 10
		}
		return db.Limit(size + 1)
	})
}

func isIdentifier(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
