package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"

	"openshelf.org/internal/catalog"
	"openshelf.org/internal/ids"
)

// bookRow mirrors the books table. Subjects are stored as jsonb.
type bookRow struct {
	ID                 string         `db:"id"`
	Title              string         `db:"title"`
	Author             string         `db:"author"`
	ISBN               string         `db:"isbn"`
	Publisher          string         `db:"publisher"`
	PublishYear        int            `db:"publish_year"`
	Pages              int            `db:"pages"`
	Language           string         `db:"language"`
	GradeLevel         string         `db:"grade_level"`
	Subjects           []byte         `db:"subjects"`
	Description        string         `db:"description"`
	CategoryID         sql.NullString `db:"category_id"`
	CoverURL           string         `db:"cover_url"`
	FileURL            string         `db:"file_url"`
	FileType           string         `db:"file_type"`
	BorrowDurationDays int            `db:"borrow_duration_days"`
	TotalCopies        int            `db:"total_copies"`
	AvailableCopies    int            `db:"available_copies"`
	Available          bool           `db:"available"`
	TotalBorrows       int            `db:"total_borrows"`
	CreatedAt          sql.NullTime   `db:"created_at"`
	UpdatedAt          sql.NullTime   `db:"updated_at"`
	CategoryName       sql.NullString `db:"category_name"`
	Rating             float64        `db:"rating"`
	ReviewCount        int            `db:"review_count"`
}

var bookColumns = []any{
	goqu.I("b.id"), goqu.I("b.title"), goqu.I("b.author"), goqu.I("b.isbn"),
	goqu.I("b.publisher"), goqu.I("b.publish_year"), goqu.I("b.pages"),
	goqu.I("b.language"), goqu.I("b.grade_level"), goqu.I("b.subjects"),
	goqu.I("b.description"), goqu.I("b.category_id"), goqu.I("b.cover_url"),
	goqu.I("b.file_url"), goqu.I("b.file_type"), goqu.I("b.borrow_duration_days"),
	goqu.I("b.total_copies"), goqu.I("b.available_copies"), goqu.I("b.available"),
	goqu.I("b.total_borrows"), goqu.I("b.created_at"), goqu.I("b.updated_at"),
}

func (r bookRow) toBook() (catalog.Book, error) {
	b := catalog.Book{
		ID:                 r.ID,
		Title:              r.Title,
		Author:             r.Author,
		ISBN:               r.ISBN,
		Publisher:          r.Publisher,
		PublishYear:        r.PublishYear,
		Pages:              r.Pages,
		Language:           r.Language,
		GradeLevel:         r.GradeLevel,
		Description:        r.Description,
		CategoryID:         r.CategoryID.String,
		CoverURL:           r.CoverURL,
		FileURL:            r.FileURL,
		FileType:           r.FileType,
		BorrowDurationDays: r.BorrowDurationDays,
		TotalCopies:        r.TotalCopies,
		AvailableCopies:    r.AvailableCopies,
		Available:          r.Available,
		TotalBorrows:       r.TotalBorrows,
		CreatedAt:          r.CreatedAt.Time,
		UpdatedAt:          r.UpdatedAt.Time,
	}
	if len(r.Subjects) > 0 {
		if err := json.Unmarshal(r.Subjects, &b.Subjects); err != nil {
			return catalog.Book{}, fmt.Errorf("decode subjects for book %s: %w", r.ID, err)
		}
	}
	return b, nil
}

func (s *Store) ListBooks(ctx context.Context, filter catalog.Filter) ([]catalog.Book, int, error) {
	filter = filter.Normalize()

	stmt := builder.From(goqu.T("books").As("b")).Select(bookColumns...)
	where := []goqu.Expression{}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pat := "%" + q + "%"
		where = append(where, goqu.Or(
			goqu.I("b.title").ILike(pat),
			goqu.I("b.author").ILike(pat),
			goqu.I("b.isbn").ILike(pat),
		))
	}
	if filter.CategoryID != "" {
		where = append(where, goqu.I("b.category_id").Eq(filter.CategoryID))
	}
	if filter.GradeLevel != "" {
		where = append(where, goqu.I("b.grade_level").Eq(filter.GradeLevel))
	}
	if filter.AvailableOnly {
		where = append(where, goqu.I("b.available").IsTrue())
	}
	if len(where) > 0 {
		stmt = stmt.Where(where...)
	}

	switch filter.Sort {
	case catalog.SortTitle:
		stmt = stmt.Order(goqu.I("b.title").Asc())
	case catalog.SortAuthor:
		stmt = stmt.Order(goqu.I("b.author").Asc())
	case catalog.SortPopular:
		stmt = stmt.Order(goqu.I("b.total_borrows").Desc(), goqu.I("b.created_at").Desc())
	default:
		stmt = stmt.Order(goqu.I("b.created_at").Desc())
	}
	stmt = stmt.Limit(uint(filter.Limit)).Offset(uint(filter.Offset))

	query, args, err := stmt.Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, err
	}
	var rows []bookRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, err
	}
	books := make([]catalog.Book, 0, len(rows))
	for _, r := range rows {
		b, err := r.toBook()
		if err != nil {
			return nil, 0, err
		}
		books = append(books, b)
	}

	countStmt := builder.From(goqu.T("books").As("b")).Select(goqu.COUNT(goqu.Star()))
	if len(where) > 0 {
		countStmt = countStmt.Where(where...)
	}
	query, args, err = countStmt.Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.db.GetContext(ctx, &total, query, args...); err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

func (s *Store) GetBook(ctx context.Context, id string) (catalog.BookDetail, error) {
	var row bookRow
	err := s.db.GetContext(ctx, &row, `
        select b.id, b.title, b.author, b.isbn, b.publisher, b.publish_year, b.pages,
               b.language, b.grade_level, b.subjects, b.description, b.category_id,
               b.cover_url, b.file_url, b.file_type, b.borrow_duration_days,
               b.total_copies, b.available_copies, b.available, b.total_borrows,
               b.created_at, b.updated_at,
               c.name as category_name,
               coalesce((select avg(rating)::float8 from reviews r where r.book_id = b.id and r.approved), 0) as rating,
               (select count(*) from reviews r where r.book_id = b.id and r.approved)::int as review_count
        from books b
        left join categories c on c.id = b.category_id
        where b.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.BookDetail{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.BookDetail{}, err
	}
	book, err := row.toBook()
	if err != nil {
		return catalog.BookDetail{}, err
	}
	return catalog.BookDetail{
		Book:         book,
		CategoryName: row.CategoryName.String,
		Rating:       row.Rating,
		ReviewCount:  row.ReviewCount,
	}, nil
}

func (s *Store) RelatedBooks(ctx context.Context, categoryID, excludeID string, limit int) ([]catalog.Book, error) {
	if limit <= 0 || limit > 12 {
		limit = 4
	}
	if categoryID == "" {
		return nil, nil
	}
	var rows []bookRow
	err := s.db.SelectContext(ctx, &rows, `
        select b.id, b.title, b.author, b.isbn, b.publisher, b.publish_year, b.pages,
               b.language, b.grade_level, b.subjects, b.description, b.category_id,
               b.cover_url, b.file_url, b.file_type, b.borrow_duration_days,
               b.total_copies, b.available_copies, b.available, b.total_borrows,
               b.created_at, b.updated_at
        from books b
        where b.category_id = $1 and b.id <> $2
        order by b.total_borrows desc, b.created_at desc
        limit $3`, categoryID, excludeID, limit)
	if err != nil {
		return nil, err
	}
	books := make([]catalog.Book, 0, len(rows))
	for _, r := range rows {
		b, err := r.toBook()
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, nil
}

func (s *Store) CreateBook(ctx context.Context, book *catalog.Book) error {
	if err := catalog.ValidateBook(book); err != nil {
		return err
	}
	if book.ID == "" {
		book.ID = ids.New()
	}
	now := s.now().UTC()
	book.CreatedAt = now
	book.UpdatedAt = now
	subjects, err := json.Marshal(book.Subjects)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
        insert into books (id, title, author, isbn, publisher, publish_year, pages,
                           language, grade_level, subjects, description, category_id,
                           cover_url, file_url, file_type, borrow_duration_days,
                           total_copies, available_copies, available, total_borrows,
                           created_at, updated_at)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,nullif($12,''),$13,$14,$15,$16,$17,$18,$19,0,$20,$20)`,
		book.ID, book.Title, book.Author, book.ISBN, book.Publisher, book.PublishYear,
		book.Pages, book.Language, book.GradeLevel, subjects, book.Description,
		book.CategoryID, book.CoverURL, book.FileURL, book.FileType,
		book.BorrowDurationDays, book.TotalCopies, book.AvailableCopies,
		book.Available, now)
	return err
}

func (s *Store) UpdateBook(ctx context.Context, book *catalog.Book) error {
	if err := catalog.ValidateBook(book); err != nil {
		return err
	}
	now := s.now().UTC()
	book.UpdatedAt = now
	subjects, err := json.Marshal(book.Subjects)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
        update books set
            title=$2, author=$3, isbn=$4, publisher=$5, publish_year=$6, pages=$7,
            language=$8, grade_level=$9, subjects=$10, description=$11,
            category_id=nullif($12,''), cover_url=$13, file_url=$14, file_type=$15,
            borrow_duration_days=$16, total_copies=$17, available_copies=$18,
            available=$19, updated_at=$20
        where id=$1`,
		book.ID, book.Title, book.Author, book.ISBN, book.Publisher, book.PublishYear,
		book.Pages, book.Language, book.GradeLevel, subjects, book.Description,
		book.CategoryID, book.CoverURL, book.FileURL, book.FileType,
		book.BorrowDurationDays, book.TotalCopies, book.AvailableCopies,
		book.Available, now)
	if err != nil {
		return err
	}
	return ensureAffected(res)
}

func (s *Store) DeleteBook(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from books where id=$1`, id)
	if err != nil {
		return err
	}
	return ensureAffected(res)
}

func (s *Store) IncrementBorrows(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `update books set total_borrows = total_borrows + 1 where id=$1`, id)
	if err != nil {
		return err
	}
	return ensureAffected(res)
}

// SetBookPages records the page count the worker measured after upload.
func (s *Store) SetBookPages(ctx context.Context, id string, pages int) error {
	res, err := s.db.ExecContext(ctx, `update books set pages=$2, updated_at=$3 where id=$1`,
		id, pages, s.now().UTC())
	if err != nil {
		return err
	}
	return ensureAffected(res)
}

func (s *Store) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
        select c.id, c.name, c.description, c.icon, c.color, c.created_at,
               (select count(*) from books b where b.category_id = c.id)::int
        from categories c
        order by c.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Category
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Icon, &c.Color, &c.CreatedAt, &c.BookCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (catalog.Stats, error) {
	var st catalog.Stats
	err := s.db.QueryRowContext(ctx, `
        select (select count(*) from books)::int,
               (select count(*) from profiles)::int,
               (select count(*) from loans where status = 'active')::int,
               (select count(*) from reviews)::int`).
		Scan(&st.Books, &st.Readers, &st.ActiveLoans, &st.Reviews)
	return st, err
}

func ensureAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}
