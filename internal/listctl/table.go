package listctl

import (
	"context"

	"github.com/wso2/identity-apps-sub079/internal/filter"
)

// Table is a type-erased Controller used by the CLI and HTTP surfaces.
type Table interface {
	Load(ctx context.Context) error
	Search(term string)
	ApplyFilter(p filter.Predicate) error
	BuildFilter(attr, op, value string) (filter.Predicate, error)
	ClearFilter()
	ChangeSort(key string, ascending bool) error
	ChangePage(n int) error
	ChangePageSize(limit int) error
	DeleteKey(ctx context.Context, key string) error
	Rows() Rows
	Close()
}

// Rows is a rendered page.
type Rows struct {
	Columns []string          `json:"columns"`
	Keys    []string          `json:"keys"`
	Rows    [][]string        `json:"rows"`
	Items   []any             `json:"items"`
	Total   int               `json:"total"`
	Fetched int               `json:"fetched"`
	Page    Page              `json:"page"`
	Number  int               `json:"page_number"`
	Pages   int               `json:"pages"`
	Filter  *filter.Predicate `json:"filter,omitempty"`
	Sort    Sort              `json:"sort"`
	State   State             `json:"state"`
}

type table[T any] struct {
	*Controller[T]
}

// AsTable erases c's item type.
func AsTable[T any](c *Controller[T]) Table {
	return table[T]{c}
}

func (t table[T]) BuildFilter(attr, op, value string) (filter.Predicate, error) {
	return t.opts.Schema.Build(attr, op, value)
}

func (t table[T]) Rows() Rows {
	v := t.Snapshot()
	cols := t.opts.Schema.Attributes()
	out := Rows{
		Columns: cols,
		Keys:    make([]string, 0, len(v.Items)),
		Rows:    make([][]string, 0, len(v.Items)),
		Items:   make([]any, 0, len(v.Items)),
		Total:   v.Total,
		Fetched: v.Fetched,
		Page:    v.Page,
		Number:  v.Number,
		Pages:   v.Pages,
		Filter:  v.Filter,
		Sort:    v.Sort,
		State:   v.State,
	}
	for _, it := range v.Items {
		row := make([]string, len(cols))
		for i, col := range cols {
			row[i], _ = t.opts.Schema.Value(it, col)
		}
		out.Keys = append(out.Keys, t.opts.Key(it))
		out.Rows = append(out.Rows, row)
		out.Items = append(out.Items, it)
	}
	return out
}
