package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Params holds page-based pagination parameters extracted from a request.
type Params struct {
	Page    int
	PerPage int
}

// New normalises page and perPage into valid bounds.
func New(page, perPage int) Params {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Params{Page: page, PerPage: perPage}
}

// FromContext reads ?page= and ?per_page= from the request.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("per_page"))
	return New(page, perPage)
}

// Limit is the SQL LIMIT for the page.
func (p Params) Limit() int {
	return p.PerPage
}

// Offset is the SQL OFFSET for the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Pages returns the number of pages needed for total rows.
func (p Params) Pages(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + p.PerPage - 1) / p.PerPage
}

// Response wraps a paginated API response.
type Response struct {
	Data        interface{} `json:"data"`
	Total       int         `json:"total"`
	Pages       int         `json:"pages"`
	CurrentPage int         `json:"current_page"`
	PerPage     int         `json:"per_page"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Data:        data,
		Total:       total,
		Pages:       p.Pages(total),
		CurrentPage: p.Page,
		PerPage:     p.PerPage,
	}
}
