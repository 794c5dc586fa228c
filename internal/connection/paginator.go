package connection

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"shelf/internal/domain"
	"shelf/internal/metrics"
)

// Args are relay-style pagination arguments. Nil means absent.
type Args struct {
	First  *int
	After  *string
	Last   *int
	Before *string
}

// Sequence is a resolved membership at one generation.
type Sequence struct {
	CollectionID uuid.UUID
	Generation   int64
	Items        []domain.ProductRef
}

// Edge is one item of a page with the cursor that points at it.
type Edge struct {
	Cursor string            `json:"cursor"`
	Node   domain.ProductRef `json:"node"`
}

// PageInfo describes the window a page covers.
type PageInfo struct {
	HasNextPage     bool    `json:"has_next_page"`
	HasPreviousPage bool    `json:"has_previous_page"`
	StartCursor     *string `json:"start_cursor"`
	EndCursor       *string `json:"end_cursor"`
}

// Connection is one page over a Sequence.
type Connection struct {
	Edges      []Edge   `json:"edges"`
	PageInfo   PageInfo `json:"page_info"`
	TotalCount int      `json:"total_count"`
	Generation int64    `json:"generation"`
}

// Paginator cuts sequences into cursor-addressed pages. It holds no mutable
// state and is safe for concurrent use.
type Paginator struct {
	codec           *CursorCodec
	defaultPageSize int
	maxPageSize     int
}

// NewPaginator creates a Paginator. A maxPageSize of zero disables the upper bound.
func NewPaginator(codec *CursorCodec, defaultPageSize, maxPageSize int) *Paginator {
	return &Paginator{
		codec:           codec,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

// Page returns the window of seq selected by args. Exactly one direction is
// honored: forward (First/After) or backward (Last/Before).
func (p *Paginator) Page(seq *Sequence, args Args) (*Connection, error) {
	conn, err := p.page(seq, args)
	switch {
	case err == nil:
		metrics.PagesServed.WithLabelValues("ok").Inc()
	case isStale(err):
		metrics.PagesServed.WithLabelValues("stale_cursor").Inc()
	default:
		metrics.PagesServed.WithLabelValues("invalid_arguments").Inc()
	}
	return conn, err
}

func (p *Paginator) page(seq *Sequence, args Args) (*Connection, error) {
	if err := p.Validate(args); err != nil {
		return nil, err
	}

	n := len(seq.Items)
	start, end := 0, n

	if args.Last != nil || args.Before != nil {
		if args.Before != nil {
			pos, err := p.locate(seq, *args.Before)
			if err != nil {
				return nil, err
			}
			end = pos
		}
		start = max(end-p.size(args.Last), 0)
	} else {
		if args.After != nil {
			pos, err := p.locate(seq, *args.After)
			if err != nil {
				return nil, err
			}
			start = pos + 1
		}
		end = min(start+p.size(args.First), n)
	}

	edges, err := p.edges(seq, start, end)
	if err != nil {
		return nil, err
	}

	conn := &Connection{
		Edges: edges,
		PageInfo: PageInfo{
			HasNextPage:     end < n,
			HasPreviousPage: start > 0,
		},
		TotalCount: n,
		Generation: seq.Generation,
	}
	if len(edges) > 0 {
		conn.PageInfo.StartCursor = &edges[0].Cursor
		conn.PageInfo.EndCursor = &edges[len(edges)-1].Cursor
	}
	return conn, nil
}

// Validate checks the shape of args without touching any sequence.
func (p *Paginator) Validate(args Args) error {
	forward := args.First != nil || args.After != nil
	backward := args.Last != nil || args.Before != nil
	if forward && backward {
		return fmt.Errorf("%w: forward and backward arguments cannot be combined", domain.ErrInvalidPaginationArguments)
	}
	for name, c := range map[string]*string{"after": args.After, "before": args.Before} {
		if c != nil && *c == "" {
			return fmt.Errorf("%w: %s must not be empty", domain.ErrInvalidPaginationArguments, name)
		}
	}
	for name, v := range map[string]*int{"first": args.First, "last": args.Last} {
		if v == nil {
			continue
		}
		if *v < 0 {
			return fmt.Errorf("%w: %s must be non-negative", domain.ErrInvalidPaginationArguments, name)
		}
		if p.maxPageSize > 0 && *v > p.maxPageSize {
			return fmt.Errorf("%w: %s must be at most %d", domain.ErrInvalidPaginationArguments, name, p.maxPageSize)
		}
	}
	return nil
}

func (p *Paginator) size(v *int) int {
	if v == nil {
		return p.defaultPageSize
	}
	return *v
}

// locate resolves a cursor to an index of seq. A cursor from another
// generation is honored only when the item it names is still at the same
// position behind an identical prefix.
func (p *Paginator) locate(seq *Sequence, token string) (int, error) {
	cur, err := p.codec.Decode(token)
	if err != nil {
		return 0, err
	}
	if cur.CollectionID != seq.CollectionID {
		return 0, fmt.Errorf("%w: cursor belongs to another collection", domain.ErrStaleCursor)
	}
	if cur.Position >= len(seq.Items) || seq.Items[cur.Position].ID != cur.Key {
		return 0, fmt.Errorf("%w: item at position %d changed since generation %d",
			domain.ErrStaleCursor, cur.Position, cur.Generation)
	}
	if digestThrough(seq.Items, cur.Position) != cur.Digest {
		return 0, fmt.Errorf("%w: items before position %d changed since generation %d",
			domain.ErrStaleCursor, cur.Position, cur.Generation)
	}
	return cur.Position, nil
}

func (p *Paginator) edges(seq *Sequence, start, end int) ([]Edge, error) {
	edges := make([]Edge, 0, end-start)
	var d prefixDigest
	for i := 0; i < end; i++ {
		d.add(seq.Items[i].ID)
		if i < start {
			continue
		}
		token, err := p.codec.Encode(Cursor{
			CollectionID: seq.CollectionID,
			Generation:   seq.Generation,
			Key:          seq.Items[i].ID,
			Position:     i,
			Digest:       d.String(),
		})
		if err != nil {
			return nil, err
		}
		edges = append(edges, Edge{Cursor: token, Node: seq.Items[i]})
	}
	return edges, nil
}

func isStale(err error) bool {
	return errors.Is(err, domain.ErrStaleCursor)
}
