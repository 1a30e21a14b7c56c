package domain

import "strings"

// Raca is a dog breed.
type Raca struct {
	ID        int64  `json:"id" db:"id"`
	Nome      string `json:"nome" db:"nome" validate:"required,notblank,max=100"`
	Descricao string `json:"descricao" db:"descricao" validate:"max=500"`
}

// FichaCachorro is the optional history sheet of a dog.
type FichaCachorro struct {
	DescricaoHistoria     string `json:"descricaoHistoria" validate:"max=1000"`
	TemperamentoPrincipal string `json:"temperamentoPrincipal" validate:"max=100"`
	HabilidadesEspeciais  string `json:"habilidadesEspeciais" validate:"max=500"`
}

// Cachorro is a rescued dog available for adoption.
type Cachorro struct {
	ID               int64          `json:"id"`
	Nome             string         `json:"nome" validate:"required,notblank,max=100"`
	DataDeNascimento *Date          `json:"dataDeNascimento,omitempty"`
	LocalDeResgate   string         `json:"localDeResgate" validate:"max=200"`
	Ficha            *FichaCachorro `json:"ficha,omitempty" validate:"omitempty"`
}

// Adocao is an adoption request for a dog, optionally listing preferred breeds.
type Adocao struct {
	ID              int64     `json:"id"`
	DataSolicitacao Date      `json:"dataSolicitacao" validate:"required"`
	Justificativa   string    `json:"justificativa" validate:"required,notblank,max=500"`
	Status          string    `json:"status" validate:"required,notblank,max=50"`
	Cachorro        *Cachorro `json:"cachorro" validate:"-"`
	Racas           []Raca    `json:"racas" validate:"-"`
}

// SortDirection orders search results.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortDirection maps "desc" (any case) to SortDesc and anything else to SortAsc.
func ParseSortDirection(s string) SortDirection {
	if strings.EqualFold(s, string(SortDesc)) {
		return SortDesc
	}
	return SortAsc
}

// Order is a sort field and direction. Field is an entity JSON name.
type Order struct {
	Field     string
	Direction SortDirection
}

// SearchQuery is a paged free-text query.
type SearchQuery struct {
	Text  string
	Order Order
	Page  int
	Size  int
}

// Offset returns the row offset of the page.
func (q SearchQuery) Offset() int {
	if q.Page < 0 || q.Size <= 0 {
		return 0
	}
	return q.Page * q.Size
}

// SearchResult is one page of matches and the total match count.
type SearchResult[T any] struct {
	Items      []T    `json:"items"`
	Total      int64  `json:"total"`
	TotalPages int    `json:"totalPages"`
	HasMore    bool   `json:"hasMore"`
	NextPage   string `json:"nextPage"`
}

// PageCount returns the number of pages of size for total rows.
func PageCount(total int64, size int) int {
	if size <= 0 {
		if total > 0 {
			return 1
		}
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
