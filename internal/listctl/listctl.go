// Package listctl keeps a paginated, filterable, sortable view over a
// collection fetched from a remote resource.
package listctl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"slices"
	"sync"

	"github.com/wso2/identity-apps-sub079/internal/alert"
	"github.com/wso2/identity-apps-sub079/internal/filter"
	"github.com/wso2/identity-apps-sub079/internal/remote"
)

// DefaultPageSize mirrors the console's default resource list limit.
const DefaultPageSize = 10

var (
	ErrClosed      = errors.New("list controller closed")
	ErrNotFound    = errors.New("item not found")
	ErrInvalidPage = errors.New("invalid page")
)

// DeletePolicy decides what happens to the local collection after a
// successful remote delete.
type DeletePolicy string

const (
	// Reload re-fetches the collection.
	Reload DeletePolicy = "reload"
	// RemoveLocal drops the item from the held collection.
	RemoveLocal DeletePolicy = "remove"
)

// Messages are the fallback texts for alerts.
type Messages struct {
	LoadFailed    alert.Text
	DeleteFailed  alert.Text
	DeleteSuccess alert.Text
}

// Options configures a Controller.
type Options[T any] struct {
	Resource     remote.Resource[T]
	Schema       *filter.Schema[T]
	Key          func(T) string
	Alerts       alert.Sink
	Messages     Messages
	PageSize     int
	DeletePolicy DeletePolicy
	// Params are sent with every fetch (domain, attributes, server filter).
	Params remote.ListParams
	Logger *log.Logger
}

// Sort is the active sort key and direction. An empty key keeps fetch
// order.
type Sort struct {
	Key       string `json:"key"`
	Ascending bool   `json:"ascending"`
}

// Page is the current window.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// State distinguishes loading, empty and populated views.
type State string

const (
	StateLoading State = "loading"
	StateEmpty   State = "empty"
	StateReady   State = "ready"
	// StateError means nothing was ever fetched because the last load failed.
	StateError State = "error"
)

// View is a consistent snapshot of the controller.
type View[T any] struct {
	Items   []T               `json:"items"`
	Total   int               `json:"total"`
	Fetched int               `json:"fetched"`
	Page    Page              `json:"page"`
	Number  int               `json:"page_number"`
	Pages   int               `json:"pages"`
	Filter  *filter.Predicate `json:"filter,omitempty"`
	Sort    Sort              `json:"sort"`
	State   State             `json:"state"`
}

// Controller owns one list view's state. It is safe for concurrent use.
type Controller[T any] struct {
	opts Options[T]

	life   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	all      []T
	visible  []T
	total    int
	filter   *filter.Predicate
	sort     Sort
	page     Page
	inflight int
	failed   bool
	closed   bool
}

// New creates a controller. Nothing is fetched until Load.
func New[T any](opts Options[T]) *Controller[T] {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Alerts == nil {
		opts.Alerts = alert.Discard
	}
	if opts.DeletePolicy == "" {
		opts.DeletePolicy = Reload
	}
	if opts.Schema == nil {
		panic("listctl: schema required")
	}
	if opts.Key == nil {
		panic("listctl: key func required")
	}
	life, cancel := context.WithCancel(context.Background())
	return &Controller[T]{
		opts:   opts,
		life:   life,
		cancel: cancel,
		page:   Page{Offset: 0, Limit: opts.PageSize},
	}
}

func (c *Controller[T]) logger() *log.Logger {
	if c.opts.Logger != nil {
		return c.opts.Logger
	}
	return log.Default()
}

// Load fetches the collection. Results are applied in the order requests
// resolve, so with two loads in flight the one that resolves last wins.
// On failure the held collection stays visible and one alert is emitted.
func (c *Controller[T]) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.inflight++
	params := c.opts.Params
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.life, cancel)
	defer stop()

	items, err := c.opts.Resource.FetchList(ctx, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if c.closed {
		return ErrClosed
	}
	if err != nil {
		c.logger().Printf("listctl: load failed: %v", err)
		c.opts.Alerts.Add(alert.FromError(err, c.opts.Messages.LoadFailed))
		c.failed = true
		return err
	}
	c.failed = false
	if items == nil {
		items = []T{}
	}
	c.all = items
	c.derive()
	return nil
}

// ApplyFilter validates p against the schema, sets it, and resets the
// offset to zero. Invalid predicates are returned and not applied.
func (c *Controller[T]) ApplyFilter(p filter.Predicate) error {
	p, err := c.opts.Schema.Normalize(p)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = &p
	c.page.Offset = 0
	c.derive()
	return nil
}

// Search applies the default single-box search. An empty term clears the
// filter.
func (c *Controller[T]) Search(term string) {
	p := c.opts.Schema.Search(term)
	if p.Value == "" {
		c.ClearFilter()
		return
	}
	_ = c.ApplyFilter(p)
}

// ClearFilter removes the filter and keeps the current offset and limit.
func (c *Controller[T]) ClearFilter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = nil
	c.derive()
}

// ChangeSort sorts by key. Ties keep fetch order.
func (c *Controller[T]) ChangeSort(key string, ascending bool) error {
	if key != "" && !c.opts.Schema.Has(key) {
		return &filter.ValidationError{Field: "sort", Err: fmt.Errorf("%w %q", filter.ErrUnknownAttribute, key)}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sort = Sort{Key: key, Ascending: ascending}
	c.derive()
	return nil
}

// ChangePage moves to the 1-based page n without fetching.
func (c *Controller[T]) ChangePage(n int) error {
	if n < 1 {
		return fmt.Errorf("%w %d", ErrInvalidPage, n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if n-1 > (math.MaxInt-1)/c.page.Limit {
		return fmt.Errorf("%w %d", ErrInvalidPage, n)
	}
	c.page.Offset = (n - 1) * c.page.Limit
	c.derive()
	return nil
}

// ChangePageSize sets the limit. The offset is left where it is.
func (c *Controller[T]) ChangePageSize(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("%w size %d", ErrInvalidPage, limit)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.page.Limit = limit
	c.derive()
	return nil
}

// Delete removes item remotely and then applies the delete policy.
func (c *Controller[T]) Delete(ctx context.Context, item T) error {
	return c.DeleteKey(ctx, c.opts.Key(item))
}

// DeleteKey deletes the held item with the given key.
func (c *Controller[T]) DeleteKey(ctx context.Context, key string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	found := slices.ContainsFunc(c.all, func(it T) bool { return c.opts.Key(it) == key })
	c.mu.Unlock()
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.life, cancel)
	defer stop()

	if err := c.opts.Resource.Delete(ctx, key); err != nil {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return ErrClosed
		}
		c.logger().Printf("listctl: delete %s failed: %v", key, err)
		c.opts.Alerts.Add(alert.FromError(err, c.opts.Messages.DeleteFailed))
		return err
	}
	c.opts.Alerts.Add(alert.Succeeded(c.opts.Messages.DeleteSuccess))

	// The remote delete stands from here on. A failed reload has already
	// alerted, so the item is dropped locally instead.
	if c.opts.DeletePolicy == Reload {
		err := c.Load(ctx)
		if err == nil || errors.Is(err, ErrClosed) {
			return nil
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.all = slices.DeleteFunc(slices.Clone(c.all), func(it T) bool { return c.opts.Key(it) == key })
	c.derive()
	return nil
}

// Snapshot returns the current derived view.
func (c *Controller[T]) Snapshot() View[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View[T]{
		Items:   slices.Clone(c.visible),
		Total:   c.total,
		Fetched: len(c.all),
		Page:    c.page,
		Number:  c.page.Offset/c.page.Limit + 1,
		Sort:    c.sort,
	}
	if c.total > 0 {
		v.Pages = (c.total-1)/c.page.Limit + 1
	}
	if v.Items == nil {
		v.Items = []T{}
	}
	if c.filter != nil {
		f := *c.filter
		v.Filter = &f
	}
	switch {
	case c.inflight > 0 && c.all == nil:
		v.State = StateLoading
	case c.failed && c.all == nil:
		v.State = StateError
	case len(c.all) == 0:
		v.State = StateEmpty
	default:
		v.State = StateReady
	}
	return v
}

// Items returns a copy of the full held collection.
func (c *Controller[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.all)
}

// Close ends the controller's lifetime. In-flight requests are cancelled
// and their results ignored.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

// derive recomputes visible from all; callers hold mu.
func (c *Controller[T]) derive() {
	matched := make([]T, 0, len(c.all))
	for _, it := range c.all {
		if c.filter == nil || c.opts.Schema.Matches(it, *c.filter) {
			matched = append(matched, it)
		}
	}
	if c.sort.Key != "" {
		key, asc := c.sort.Key, c.sort.Ascending
		slices.SortStableFunc(matched, func(a, b T) int {
			cmp := c.opts.Schema.Compare(a, b, key)
			if !asc {
				cmp = -cmp
			}
			return cmp
		})
	}
	c.total = len(matched)
	start := min(c.page.Offset, len(matched))
	end := start + min(c.page.Limit, len(matched)-start)
	c.visible = matched[start:end]
}
