package models

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Page selects a window of an order listing. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// Normalize clamps the page into the supported range.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	switch {
	case p.Size <= 0:
		p.Size = DefaultPageSize
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Size
}
