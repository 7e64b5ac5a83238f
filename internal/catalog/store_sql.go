package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dialect captures the differences between SQLite and PostgreSQL that the
// shared SQL store cares about.
type dialect struct {
	name     string
	idColumn string
	numbered bool // $1, $2 placeholders instead of ?
}

var (
	sqliteDialect   = dialect{name: "sqlite", idColumn: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	postgresDialect = dialect{name: "postgresql", idColumn: "BIGSERIAL PRIMARY KEY", numbered: true}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d dialect) schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS frameworks (
			id %s,
			slug TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			website TEXT NOT NULL DEFAULT '',
			logo_url TEXT NOT NULL DEFAULT ''
		)`, d.idColumn),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tags (
			id %s,
			slug TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL
		)`, d.idColumn),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS labels (
			id %s,
			name TEXT NOT NULL UNIQUE,
			color TEXT NOT NULL DEFAULT '',
			text_color TEXT NOT NULL DEFAULT ''
		)`, d.idColumn),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS libraries (
			id %s,
			slug TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			framework_id BIGINT NOT NULL DEFAULT 0,
			website TEXT NOT NULL DEFAULT '',
			github_url TEXT NOT NULL DEFAULT '',
			npm_package TEXT NOT NULL DEFAULT '',
			github_stars BIGINT NOT NULL DEFAULT 0,
			npm_downloads BIGINT NOT NULL DEFAULT 0,
			total_components INTEGER NOT NULL DEFAULT 0,
			styling TEXT NOT NULL DEFAULT '',
			pricing TEXT NOT NULL DEFAULT '',
			last_update BIGINT NOT NULL DEFAULT 0,
			images TEXT NOT NULL DEFAULT '[]'
		)`, d.idColumn),
		`CREATE TABLE IF NOT EXISTS library_frameworks (
			library_id BIGINT NOT NULL,
			framework_id BIGINT NOT NULL,
			is_primary INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (library_id, framework_id)
		)`,
		`CREATE TABLE IF NOT EXISTS library_tags (
			library_id BIGINT NOT NULL,
			tag_id BIGINT NOT NULL,
			PRIMARY KEY (library_id, tag_id)
		)`,
		`CREATE TABLE IF NOT EXISTS library_labels (
			library_id BIGINT NOT NULL,
			label_id BIGINT NOT NULL,
			PRIMARY KEY (library_id, label_id)
		)`,
		`CREATE TABLE IF NOT EXISTS framework_tags (
			framework_id BIGINT NOT NULL,
			tag_id BIGINT NOT NULL,
			PRIMARY KEY (framework_id, tag_id)
		)`,
		`CREATE TABLE IF NOT EXISTS page_content (
			slug TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_libraries_stars ON libraries(github_stars DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_libraries_framework ON libraries(framework_id)`,
		`CREATE INDEX IF NOT EXISTS idx_library_tags_tag ON library_tags(tag_id)`,
		`CREATE INDEX IF NOT EXISTS idx_library_frameworks_framework ON library_frameworks(framework_id)`,
	}
}

// sqlStore implements Store on database/sql for both SQL dialects.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	closeDB bool
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, closeDB bool) (*sqlStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	for _, stmt := range d.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create catalog schema: %w", err)
		}
	}
	return &sqlStore{db: db, dialect: d, closeDB: closeDB}, nil
}

func (s *sqlStore) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(q), args...)
}

const frameworkColumns = `f.id, f.name, f.slug, f.title, f.description, f.website, f.logo_url`

func scanFramework(row interface{ Scan(...any) error }) (Framework, error) {
	var f Framework
	err := row.Scan(&f.ID, &f.Name, &f.Slug, &f.Title, &f.Description, &f.Website, &f.LogoURL)
	return f, err
}

func (s *sqlStore) ListFrameworks(ctx context.Context) ([]Framework, error) {
	rows, err := s.query(ctx, `SELECT `+frameworkColumns+` FROM frameworks f ORDER BY f.name`)
	if err != nil {
		return nil, fmt.Errorf("list frameworks: %w", err)
	}
	defer rows.Close()

	var out []Framework
	for rows.Next() {
		f, err := scanFramework(rows)
		if err != nil {
			return nil, fmt.Errorf("scan framework: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frameworks: %w", err)
	}
	if err := s.attachFrameworkTags(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *sqlStore) GetFrameworkBySlug(ctx context.Context, slug string) (*Framework, error) {
	f, err := scanFramework(s.queryRow(ctx, `SELECT `+frameworkColumns+` FROM frameworks f WHERE f.slug = ?`, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get framework: %w", err)
	}
	list := []Framework{f}
	if err := s.attachFrameworkTags(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *sqlStore) attachFrameworkTags(ctx context.Context, frameworks []Framework) error {
	if len(frameworks) == 0 {
		return nil
	}
	ids := make([]int64, len(frameworks))
	for i, f := range frameworks {
		ids[i] = f.ID
	}
	in, args := inClause(ids)
	rows, err := s.query(ctx, `
		SELECT ft.framework_id, t.id, t.name, t.slug
		FROM framework_tags ft JOIN tags t ON t.id = ft.tag_id
		WHERE ft.framework_id IN `+in+`
		ORDER BY t.name`, args...)
	if err != nil {
		return fmt.Errorf("load framework tags: %w", err)
	}
	defer rows.Close()

	byFramework := map[int64][]Tag{}
	for rows.Next() {
		var fid int64
		var t Tag
		if err := rows.Scan(&fid, &t.ID, &t.Name, &t.Slug); err != nil {
			return fmt.Errorf("scan framework tag: %w", err)
		}
		byFramework[fid] = append(byFramework[fid], t)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate framework tags: %w", err)
	}
	for i := range frameworks {
		frameworks[i].Tags = byFramework[frameworks[i].ID]
	}
	return nil
}

const libraryColumns = `l.id, l.name, l.slug, l.description, l.framework_id, l.website, l.github_url,
	l.npm_package, l.github_stars, l.npm_downloads, l.total_components, l.styling, l.pricing,
	l.last_update, l.images`

func scanLibrary(row interface{ Scan(...any) error }) (Library, error) {
	var (
		l          Library
		lastUpdate int64
		images     string
	)
	err := row.Scan(&l.ID, &l.Name, &l.Slug, &l.Description, &l.FrameworkID, &l.Website, &l.GitHubURL,
		&l.NPMPackage, &l.GitHubStars, &l.NPMDownloads, &l.TotalComponents, &l.Styling, &l.Pricing,
		&lastUpdate, &images)
	if err != nil {
		return l, err
	}
	if lastUpdate > 0 {
		l.LastUpdate = time.Unix(lastUpdate, 0).UTC()
	}
	if images != "" {
		if err := json.Unmarshal([]byte(images), &l.Images); err != nil {
			return l, fmt.Errorf("decode images for %s: %w", l.Slug, err)
		}
	}
	return l, nil
}

func (s *sqlStore) listLibraries(ctx context.Context, q string, args ...any) ([]Library, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer rows.Close()

	var out []Library
	for rows.Next() {
		l, err := scanLibrary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan library: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate libraries: %w", err)
	}
	if err := s.hydrate(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// frameworkMatch restricts libraries l to those linked to a framework by id,
// either as their primary framework or through library_frameworks.
const frameworkMatch = `(l.framework_id = ? OR EXISTS (
	SELECT 1 FROM library_frameworks lf WHERE lf.library_id = l.id AND lf.framework_id = ?))`

func (s *sqlStore) ListLibrariesByFramework(ctx context.Context, frameworkID int64) ([]Library, error) {
	return s.listLibraries(ctx, `SELECT `+libraryColumns+` FROM libraries l
		WHERE `+frameworkMatch+`
		ORDER BY l.github_stars DESC, l.name`, frameworkID, frameworkID)
}

func (s *sqlStore) GetLibraryBySlug(ctx context.Context, slug string) (*Library, error) {
	l, err := scanLibrary(s.queryRow(ctx, `SELECT `+libraryColumns+` FROM libraries l WHERE l.slug = ?`, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get library: %w", err)
	}
	list := []Library{l}
	if err := s.hydrate(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *sqlStore) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.query(ctx, `SELECT id, name, slug FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetTagBySlug(ctx context.Context, slug string) (*Tag, error) {
	var t Tag
	err := s.queryRow(ctx, `SELECT id, name, slug FROM tags WHERE slug = ?`, slug).Scan(&t.ID, &t.Name, &t.Slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return &t, nil
}

func (s *sqlStore) ListLibrariesByTag(ctx context.Context, tagID int64) ([]Library, error) {
	return s.listLibraries(ctx, `SELECT `+libraryColumns+` FROM libraries l
		JOIN library_tags lt ON lt.library_id = l.id
		WHERE lt.tag_id = ?
		ORDER BY l.github_stars DESC, l.name`, tagID)
}

func (s *sqlStore) SearchLibraries(ctx context.Context, query string) ([]Library, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.listLibraries(ctx, `SELECT `+libraryColumns+` FROM libraries l
		WHERE LOWER(l.name) LIKE ? ESCAPE '\' OR LOWER(l.description) LIKE ? ESCAPE '\'
		ORDER BY l.github_stars DESC, l.name`, pattern, pattern)
}

func (s *sqlStore) QueryLibraries(ctx context.Context, q LibraryQuery) (*LibraryPage, error) {
	q = q.Normalize()

	var (
		where []string
		args  []any
	)
	if q.Framework != "" {
		where = append(where, `(l.framework_id IN (SELECT id FROM frameworks WHERE slug = ?) OR EXISTS (
			SELECT 1 FROM library_frameworks lf JOIN frameworks f ON f.id = lf.framework_id
			WHERE lf.library_id = l.id AND f.slug = ?))`)
		args = append(args, q.Framework, q.Framework)
	}
	if q.Styling != "" {
		where = append(where, `l.styling = ?`)
		args = append(args, q.Styling)
	}
	if q.Pricing != "" {
		where = append(where, `l.pricing = ?`)
		args = append(args, q.Pricing)
	}
	if min := q.MinStars(); min > 0 {
		where = append(where, `l.github_stars >= ?`)
		args = append(args, min)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var count int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM libraries l`+clause, args...).Scan(&count); err != nil {
		return nil, fmt.Errorf("count libraries: %w", err)
	}

	page := &LibraryPage{Libraries: []Library{}, TotalCount: count, Page: q.Page, TotalPages: totalPages(count, q.Limit)}
	if count == 0 || q.Offset() >= count {
		return page, nil
	}

	pageArgs := append(append([]any{}, args...), q.Limit, q.Offset())
	libs, err := s.listLibraries(ctx, `SELECT `+libraryColumns+` FROM libraries l`+clause+
		` ORDER BY `+orderBy(q.Sort)+` LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, err
	}
	if libs != nil {
		page.Libraries = libs
	}
	return page, nil
}

func orderBy(sort string) string {
	switch sort {
	case SortLatest:
		return "l.last_update DESC, l.name, l.id"
	case SortComponents:
		return "l.total_components DESC, l.name, l.id"
	case SortDownloads:
		return "l.npm_downloads DESC, l.name, l.id"
	case SortPopular:
		return "l.github_stars DESC, l.name, l.id"
	default:
		return "l.name, l.id"
	}
}

func (s *sqlStore) ListNPMPackages(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, `SELECT DISTINCT npm_package FROM libraries WHERE npm_package <> '' ORDER BY npm_package`)
	if err != nil {
		return nil, fmt.Errorf("list npm packages: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan npm package: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetPage(ctx context.Context, slug string) (*Page, error) {
	p := Page{Slug: slug}
	err := s.queryRow(ctx, `SELECT title, content FROM page_content WHERE slug = ?`, slug).Scan(&p.Title, &p.Content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get page: %w", err)
	}
	return &p, nil
}

// hydrate loads the primary framework, framework links, tags and labels
// for libs in four batched queries.
func (s *sqlStore) hydrate(ctx context.Context, libs []Library) error {
	if len(libs) == 0 {
		return nil
	}
	ids := make([]int64, len(libs))
	index := make(map[int64]int, len(libs))
	for i, l := range libs {
		ids[i] = l.ID
		index[l.ID] = i
		libs[i].Tags = []Tag{}
		libs[i].Labels = []Label{}
		libs[i].Frameworks = []FrameworkRef{}
	}
	in, args := inClause(ids)

	rows, err := s.query(ctx, `
		SELECT lt.library_id, t.id, t.name, t.slug
		FROM library_tags lt JOIN tags t ON t.id = lt.tag_id
		WHERE lt.library_id IN `+in+` ORDER BY t.name`, args...)
	if err != nil {
		return fmt.Errorf("load library tags: %w", err)
	}
	for rows.Next() {
		var lid int64
		var t Tag
		if err := rows.Scan(&lid, &t.ID, &t.Name, &t.Slug); err != nil {
			rows.Close()
			return fmt.Errorf("scan library tag: %w", err)
		}
		libs[index[lid]].Tags = append(libs[index[lid]].Tags, t)
	}
	rows.Close()

	rows, err = s.query(ctx, `
		SELECT ll.library_id, b.id, b.name, b.color, b.text_color
		FROM library_labels ll JOIN labels b ON b.id = ll.label_id
		WHERE ll.library_id IN `+in+` ORDER BY b.name`, args...)
	if err != nil {
		return fmt.Errorf("load library labels: %w", err)
	}
	for rows.Next() {
		var lid int64
		var b Label
		if err := rows.Scan(&lid, &b.ID, &b.Name, &b.Color, &b.TextColor); err != nil {
			rows.Close()
			return fmt.Errorf("scan library label: %w", err)
		}
		libs[index[lid]].Labels = append(libs[index[lid]].Labels, b)
	}
	rows.Close()

	rows, err = s.query(ctx, `
		SELECT lf.library_id, lf.is_primary, `+frameworkColumns+`
		FROM library_frameworks lf JOIN frameworks f ON f.id = lf.framework_id
		WHERE lf.library_id IN `+in+` ORDER BY lf.is_primary DESC, f.name`, args...)
	if err != nil {
		return fmt.Errorf("load library frameworks: %w", err)
	}
	for rows.Next() {
		var (
			lid     int64
			primary int
			f       Framework
		)
		if err := rows.Scan(&lid, &primary, &f.ID, &f.Name, &f.Slug, &f.Title, &f.Description, &f.Website, &f.LogoURL); err != nil {
			rows.Close()
			return fmt.Errorf("scan library framework: %w", err)
		}
		i := index[lid]
		libs[i].Frameworks = append(libs[i].Frameworks, FrameworkRef{Framework: f, IsPrimary: primary != 0})
	}
	rows.Close()

	primaryIDs := map[int64]struct{}{}
	for _, l := range libs {
		if l.FrameworkID > 0 {
			primaryIDs[l.FrameworkID] = struct{}{}
		}
	}
	if len(primaryIDs) == 0 {
		return nil
	}
	fids := make([]int64, 0, len(primaryIDs))
	for id := range primaryIDs {
		fids = append(fids, id)
	}
	fin, fargs := inClause(fids)
	rows, err = s.query(ctx, `SELECT `+frameworkColumns+` FROM frameworks f WHERE f.id IN `+fin, fargs...)
	if err != nil {
		return fmt.Errorf("load primary frameworks: %w", err)
	}
	defer rows.Close()
	byID := map[int64]Framework{}
	for rows.Next() {
		f, err := scanFramework(rows)
		if err != nil {
			return fmt.Errorf("scan primary framework: %w", err)
		}
		byID[f.ID] = f
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate primary frameworks: %w", err)
	}
	for i := range libs {
		if f, ok := byID[libs[i].FrameworkID]; ok {
			libs[i].Framework = &f
		}
	}
	return nil
}

func (s *sqlStore) UpsertTag(ctx context.Context, t *Tag) error {
	if t == nil || t.Slug == "" {
		return fmt.Errorf("tag slug is required")
	}
	err := s.queryRow(ctx, `
		INSERT INTO tags (slug, name) VALUES (?, ?)
		ON CONFLICT (slug) DO UPDATE SET name = excluded.name
		RETURNING id`, t.Slug, t.Name).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("upsert tag %s: %w", t.Slug, err)
	}
	return nil
}

func (s *sqlStore) UpsertLabel(ctx context.Context, l *Label) error {
	if l == nil || l.Name == "" {
		return fmt.Errorf("label name is required")
	}
	err := s.queryRow(ctx, `
		INSERT INTO labels (name, color, text_color) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET color = excluded.color, text_color = excluded.text_color
		RETURNING id`, l.Name, l.Color, l.TextColor).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("upsert label %s: %w", l.Name, err)
	}
	return nil
}

func (s *sqlStore) UpsertFramework(ctx context.Context, f *Framework) error {
	if f == nil || f.Slug == "" {
		return fmt.Errorf("framework slug is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin framework upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, s.dialect.rebind(`
		INSERT INTO frameworks (slug, name, title, description, website, logo_url)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			title = excluded.title,
			description = excluded.description,
			website = excluded.website,
			logo_url = excluded.logo_url
		RETURNING id`), f.Slug, f.Name, f.Title, f.Description, f.Website, f.LogoURL).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("upsert framework %s: %w", f.Slug, err)
	}

	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM framework_tags WHERE framework_id = ?`), f.ID); err != nil {
		return fmt.Errorf("clear framework tags: %w", err)
	}
	for _, t := range f.Tags {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(`INSERT INTO framework_tags (framework_id, tag_id) VALUES (?, ?)`), f.ID, t.ID); err != nil {
			return fmt.Errorf("link framework tag: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) UpsertLibrary(ctx context.Context, l *Library) error {
	if l == nil || l.Slug == "" {
		return fmt.Errorf("library slug is required")
	}
	images, err := json.Marshal(nonNilStrings(l.Images))
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}
	var lastUpdate int64
	if !l.LastUpdate.IsZero() {
		lastUpdate = l.LastUpdate.Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin library upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, s.dialect.rebind(`
		INSERT INTO libraries (slug, name, description, framework_id, website, github_url, npm_package,
			github_stars, npm_downloads, total_components, styling, pricing, last_update, images)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			framework_id = excluded.framework_id,
			website = excluded.website,
			github_url = excluded.github_url,
			npm_package = excluded.npm_package,
			github_stars = excluded.github_stars,
			npm_downloads = excluded.npm_downloads,
			total_components = excluded.total_components,
			styling = excluded.styling,
			pricing = excluded.pricing,
			last_update = excluded.last_update,
			images = excluded.images
		RETURNING id`),
		l.Slug, l.Name, l.Description, l.FrameworkID, l.Website, l.GitHubURL, l.NPMPackage,
		l.GitHubStars, l.NPMDownloads, l.TotalComponents, l.Styling, l.Pricing, lastUpdate, string(images),
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("upsert library %s: %w", l.Slug, err)
	}

	links := []struct {
		clear  string
		insert string
		ids    []int64
		flags  []bool
	}{
		{`DELETE FROM library_tags WHERE library_id = ?`, `INSERT INTO library_tags (library_id, tag_id) VALUES (?, ?)`, tagIDs(l.Tags), nil},
		{`DELETE FROM library_labels WHERE library_id = ?`, `INSERT INTO library_labels (library_id, label_id) VALUES (?, ?)`, labelIDs(l.Labels), nil},
	}
	for _, link := range links {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(link.clear), l.ID); err != nil {
			return fmt.Errorf("clear library links: %w", err)
		}
		for _, id := range link.ids {
			if _, err := tx.ExecContext(ctx, s.dialect.rebind(link.insert), l.ID, id); err != nil {
				return fmt.Errorf("link library %s: %w", l.Slug, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM library_frameworks WHERE library_id = ?`), l.ID); err != nil {
		return fmt.Errorf("clear library frameworks: %w", err)
	}
	for _, ref := range l.Frameworks {
		primary := 0
		if ref.IsPrimary {
			primary = 1
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO library_frameworks (library_id, framework_id, is_primary) VALUES (?, ?, ?)`),
			l.ID, ref.Framework.ID, primary); err != nil {
			return fmt.Errorf("link library framework: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) UpsertPage(ctx context.Context, p *Page) error {
	if p == nil || p.Slug == "" {
		return fmt.Errorf("page slug is required")
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO page_content (slug, title, content) VALUES (?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET title = excluded.title, content = excluded.content`),
		p.Slug, p.Title, p.Content)
	if err != nil {
		return fmt.Errorf("upsert page %s: %w", p.Slug, err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s.closeDB {
		return s.db.Close()
	}
	return nil
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ") + ")", args
}

// escapeLike escapes LIKE wildcards with a backslash.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func tagIDs(tags []Tag) []int64 {
	out := make([]int64, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.ID)
	}
	return out
}

func labelIDs(labels []Label) []int64 {
	out := make([]int64, 0, len(labels))
	for _, l := range labels {
		out = append(out, l.ID)
	}
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
