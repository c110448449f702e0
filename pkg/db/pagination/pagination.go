package pagination

import "gorm.io/gorm"

const (
	defaultLimit = 25
	maxLimit     = 200
)

type Pagination struct {
	Limit  int `json:"limit" form:"limit"`
	Offset int `json:"offset" form:"offset"`
}

type PageInfo struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Scope applies the pagination to a gorm query.
func (p Pagination) Scope(tx *gorm.DB) *gorm.DB {
	p = p.Normalize()
	return tx.Limit(p.Limit).Offset(p.Offset)
}

func (p Pagination) PageInfo(total int64) *PageInfo {
	p = p.Normalize()
	return &PageInfo{Total: total, Limit: p.Limit, Offset: p.Offset}
}
