package catalog

import "time"

// DefaultBorrowDays is applied when a book has no borrow-duration policy.
const DefaultBorrowDays = 14

// Book is a catalog entry. FileURL is the content pointer into the vault;
// books without one cannot be borrowed.
type Book struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Author             string    `json:"author"`
	ISBN               string    `json:"isbn,omitempty"`
	Publisher          string    `json:"publisher,omitempty"`
	PublishYear        int       `json:"publish_year,omitempty"`
	Pages              int       `json:"pages,omitempty"`
	Language           string    `json:"language,omitempty"`
	GradeLevel         string    `json:"grade_level,omitempty"`
	Subjects           []string  `json:"subjects,omitempty"`
	Description        string    `json:"description,omitempty"`
	CategoryID         string    `json:"category_id,omitempty"`
	CoverURL           string    `json:"cover_url,omitempty"`
	FileURL            string    `json:"file_url,omitempty"`
	FileType           string    `json:"file_type,omitempty"`
	BorrowDurationDays int       `json:"borrow_duration_days"`
	TotalCopies        int       `json:"total_copies"`
	AvailableCopies    int       `json:"available_copies"`
	Available          bool      `json:"available"`
	TotalBorrows       int       `json:"total_borrows"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// BorrowDays returns the book's borrow-duration policy with the default applied.
func (b Book) BorrowDays() int {
	if b.BorrowDurationDays > 0 {
		return b.BorrowDurationDays
	}
	return DefaultBorrowDays
}

// Borrowable reports whether the book has readable content in the vault.
func (b Book) Borrowable() bool {
	return b.FileURL != ""
}

// BookDetail is a Book enriched with its category name and review summary.
type BookDetail struct {
	Book
	CategoryName string  `json:"category_name,omitempty"`
	Rating       float64 `json:"rating"`
	ReviewCount  int     `json:"review_count"`
}

// Category groups books for browsing.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Color       string    `json:"color,omitempty"`
	BookCount   int       `json:"book_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Sort orders accepted by the browse endpoint.
const (
	SortNewest  = "newest"
	SortTitle   = "title"
	SortAuthor  = "author"
	SortPopular = "popular"
)

// Filter narrows a catalog listing.
type Filter struct {
	Query         string
	CategoryID    string
	GradeLevel    string
	AvailableOnly bool
	Sort          string
	Limit         int
	Offset        int
}

// Normalize clamps paging and defaults the sort order.
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 24
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	switch f.Sort {
	case SortNewest, SortTitle, SortAuthor, SortPopular:
	default:
		f.Sort = SortNewest
	}
	return f
}

// Stats powers the admin dashboard counters.
type Stats struct {
	Books       int `json:"books"`
	Readers     int `json:"readers"`
	ActiveLoans int `json:"active_loans"`
	Reviews     int `json:"reviews"`
}
