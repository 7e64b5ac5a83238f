package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoTagDocument struct {
	Slug string `bson:"_id"`
	ID   int64  `bson:"id"`
	Name string `bson:"name"`
}

type mongoLabelDocument struct {
	Name      string `bson:"_id"`
	ID        int64  `bson:"id"`
	Color     string `bson:"color"`
	TextColor string `bson:"text_color"`
}

type mongoFrameworkDocument struct {
	Slug        string  `bson:"_id"`
	ID          int64   `bson:"id"`
	Name        string  `bson:"name"`
	Title       string  `bson:"title"`
	Description string  `bson:"description"`
	Website     string  `bson:"website"`
	LogoURL     string  `bson:"logo_url"`
	TagIDs      []int64 `bson:"tag_ids"`
}

type mongoFrameworkLink struct {
	ID      int64 `bson:"id"`
	Primary bool  `bson:"primary"`
}

type mongoLibraryDocument struct {
	Slug            string               `bson:"_id"`
	ID              int64                `bson:"id"`
	Name            string               `bson:"name"`
	Description     string               `bson:"description"`
	FrameworkID     int64                `bson:"framework_id"`
	Frameworks      []mongoFrameworkLink `bson:"frameworks"`
	FrameworkIDs    []int64              `bson:"framework_ids"`
	TagIDs          []int64              `bson:"tag_ids"`
	LabelIDs        []int64              `bson:"label_ids"`
	Website         string               `bson:"website"`
	GitHubURL       string               `bson:"github_url"`
	NPMPackage      string               `bson:"npm_package"`
	GitHubStars     int64                `bson:"github_stars"`
	NPMDownloads    int64                `bson:"npm_downloads"`
	TotalComponents int                  `bson:"total_components"`
	Styling         string               `bson:"styling"`
	Pricing         string               `bson:"pricing"`
	LastUpdate      int64                `bson:"last_update"`
	Images          []string             `bson:"images"`
}

type mongoPageDocument struct {
	Slug    string `bson:"_id"`
	Title   string `bson:"title"`
	Content string `bson:"content"`
}

// MongoDBStore keeps the catalog in MongoDB. Documents are keyed by slug
// and carry a numeric id derived from it, so ids are stable across reseeds.
type MongoDBStore struct {
	tags       *mongo.Collection
	labels     *mongo.Collection
	frameworks *mongo.Collection
	libraries  *mongo.Collection
	pages      *mongo.Collection
}

// NewMongoDBStore creates collection indexes if needed.
func NewMongoDBStore(database *mongo.Database) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	s := &MongoDBStore{
		tags:       database.Collection("catalog_tags"),
		labels:     database.Collection("catalog_labels"),
		frameworks: database.Collection("catalog_frameworks"),
		libraries:  database.Collection("catalog_libraries"),
		pages:      database.Collection("catalog_pages"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, coll := range []*mongo.Collection{s.tags, s.labels, s.frameworks} {
		if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "id", Value: 1}}}); err != nil {
			return nil, fmt.Errorf("create %s indexes: %w", coll.Name(), err)
		}
	}
	libraryIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}},
		{Keys: bson.D{{Key: "framework_ids", Value: 1}}},
		{Keys: bson.D{{Key: "tag_ids", Value: 1}}},
		{Keys: bson.D{{Key: "github_stars", Value: -1}}},
	}
	if _, err := s.libraries.Indexes().CreateMany(ctx, libraryIndexes); err != nil {
		return nil, fmt.Errorf("create catalog_libraries indexes: %w", err)
	}
	return s, nil
}

// entityID derives a positive int64 id from a natural key.
func entityID(kind, key string) int64 {
	return int64(xxhash.Sum64String(kind+":"+key) >> 1)
}

func (s *MongoDBStore) ListFrameworks(ctx context.Context) ([]Framework, error) {
	return s.findFrameworks(ctx, bson.M{})
}

func (s *MongoDBStore) findFrameworks(ctx context.Context, filter bson.M) ([]Framework, error) {
	cursor, err := s.frameworks.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list frameworks: %w", err)
	}
	var docs []mongoFrameworkDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode frameworks: %w", err)
	}

	var tagIDs []int64
	for _, d := range docs {
		tagIDs = append(tagIDs, d.TagIDs...)
	}
	tags, err := s.tagsByID(ctx, tagIDs)
	if err != nil {
		return nil, err
	}

	out := make([]Framework, 0, len(docs))
	for _, d := range docs {
		f := d.framework()
		for _, id := range d.TagIDs {
			if t, ok := tags[id]; ok {
				f.Tags = append(f.Tags, t)
			}
		}
		sortTags(f.Tags)
		out = append(out, f)
	}
	return out, nil
}

func (d mongoFrameworkDocument) framework() Framework {
	return Framework{
		ID:          d.ID,
		Name:        d.Name,
		Slug:        d.Slug,
		Title:       d.Title,
		Description: d.Description,
		Website:     d.Website,
		LogoURL:     d.LogoURL,
	}
}

func (s *MongoDBStore) GetFrameworkBySlug(ctx context.Context, slug string) (*Framework, error) {
	list, err := s.findFrameworks(ctx, bson.M{"_id": slug})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

var starsFirst = bson.D{{Key: "github_stars", Value: -1}, {Key: "name", Value: 1}}

func (s *MongoDBStore) ListLibrariesByFramework(ctx context.Context, frameworkID int64) ([]Library, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"framework_id": frameworkID},
		bson.M{"framework_ids": frameworkID},
	}}
	return s.findLibraries(ctx, filter, options.Find().SetSort(starsFirst))
}

func (s *MongoDBStore) GetLibraryBySlug(ctx context.Context, slug string) (*Library, error) {
	list, err := s.findLibraries(ctx, bson.M{"_id": slug}, options.Find())
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

func (s *MongoDBStore) ListTags(ctx context.Context) ([]Tag, error) {
	cursor, err := s.tags.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	var docs []mongoTagDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	out := make([]Tag, 0, len(docs))
	for _, d := range docs {
		out = append(out, Tag{ID: d.ID, Name: d.Name, Slug: d.Slug})
	}
	return out, nil
}

func (s *MongoDBStore) GetTagBySlug(ctx context.Context, slug string) (*Tag, error) {
	var d mongoTagDocument
	if err := s.tags.FindOne(ctx, bson.M{"_id": slug}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return &Tag{ID: d.ID, Name: d.Name, Slug: d.Slug}, nil
}

func (s *MongoDBStore) ListLibrariesByTag(ctx context.Context, tagID int64) ([]Library, error) {
	return s.findLibraries(ctx, bson.M{"tag_ids": tagID}, options.Find().SetSort(starsFirst))
}

func (s *MongoDBStore) SearchLibraries(ctx context.Context, query string) ([]Library, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	pattern := bson.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	filter := bson.M{"$or": bson.A{
		bson.M{"name": pattern},
		bson.M{"description": pattern},
	}}
	return s.findLibraries(ctx, filter, options.Find().SetSort(starsFirst))
}

func (s *MongoDBStore) QueryLibraries(ctx context.Context, q LibraryQuery) (*LibraryPage, error) {
	q = q.Normalize()

	filter := bson.M{}
	if q.Framework != "" {
		var fw mongoFrameworkDocument
		err := s.frameworks.FindOne(ctx, bson.M{"_id": q.Framework}).Decode(&fw)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return &LibraryPage{Libraries: []Library{}, Page: q.Page}, nil
		case err != nil:
			return nil, fmt.Errorf("resolve framework filter: %w", err)
		}
		filter["$or"] = bson.A{
			bson.M{"framework_id": fw.ID},
			bson.M{"framework_ids": fw.ID},
		}
	}
	if q.Styling != "" {
		filter["styling"] = q.Styling
	}
	if q.Pricing != "" {
		filter["pricing"] = q.Pricing
	}
	if min := q.MinStars(); min > 0 {
		filter["github_stars"] = bson.M{"$gte": min}
	}

	count, err := s.libraries.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count libraries: %w", err)
	}
	page := &LibraryPage{Libraries: []Library{}, TotalCount: int(count), Page: q.Page, TotalPages: totalPages(int(count), q.Limit)}
	if count == 0 || q.Offset() >= int(count) {
		return page, nil
	}

	opts := options.Find().
		SetSort(mongoSort(q.Sort)).
		SetSkip(int64(q.Offset())).
		SetLimit(int64(q.Limit))
	libs, err := s.findLibraries(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	if libs != nil {
		page.Libraries = libs
	}
	return page, nil
}

func mongoSort(sort string) bson.D {
	tail := bson.D{{Key: "name", Value: 1}, {Key: "id", Value: 1}}
	switch sort {
	case SortLatest:
		return append(bson.D{{Key: "last_update", Value: -1}}, tail...)
	case SortComponents:
		return append(bson.D{{Key: "total_components", Value: -1}}, tail...)
	case SortDownloads:
		return append(bson.D{{Key: "npm_downloads", Value: -1}}, tail...)
	case SortPopular:
		return append(bson.D{{Key: "github_stars", Value: -1}}, tail...)
	default:
		return tail
	}
}

func (s *MongoDBStore) ListNPMPackages(ctx context.Context) ([]string, error) {
	var names []string
	err := s.libraries.Distinct(ctx, "npm_package", bson.M{"npm_package": bson.M{"$ne": ""}}).Decode(&names)
	if err != nil {
		return nil, fmt.Errorf("list npm packages: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MongoDBStore) GetPage(ctx context.Context, slug string) (*Page, error) {
	var d mongoPageDocument
	if err := s.pages.FindOne(ctx, bson.M{"_id": slug}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get page: %w", err)
	}
	return &Page{Slug: d.Slug, Title: d.Title, Content: d.Content}, nil
}

func (s *MongoDBStore) findLibraries(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]Library, error) {
	cursor, err := s.libraries.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	var docs []mongoLibraryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode libraries: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var tagIDs, labelIDs, frameworkIDs []int64
	for _, d := range docs {
		tagIDs = append(tagIDs, d.TagIDs...)
		labelIDs = append(labelIDs, d.LabelIDs...)
		frameworkIDs = append(frameworkIDs, d.FrameworkIDs...)
		if d.FrameworkID > 0 {
			frameworkIDs = append(frameworkIDs, d.FrameworkID)
		}
	}
	tags, err := s.tagsByID(ctx, tagIDs)
	if err != nil {
		return nil, err
	}
	labels, err := s.labelsByID(ctx, labelIDs)
	if err != nil {
		return nil, err
	}
	frameworks, err := s.frameworksByID(ctx, frameworkIDs)
	if err != nil {
		return nil, err
	}

	out := make([]Library, 0, len(docs))
	for _, d := range docs {
		l := Library{
			ID:              d.ID,
			Name:            d.Name,
			Slug:            d.Slug,
			Description:     d.Description,
			FrameworkID:     d.FrameworkID,
			Frameworks:      []FrameworkRef{},
			Tags:            []Tag{},
			Labels:          []Label{},
			Website:         d.Website,
			GitHubURL:       d.GitHubURL,
			NPMPackage:      d.NPMPackage,
			GitHubStars:     d.GitHubStars,
			NPMDownloads:    d.NPMDownloads,
			TotalComponents: d.TotalComponents,
			Styling:         d.Styling,
			Pricing:         d.Pricing,
			Images:          d.Images,
		}
		if d.LastUpdate > 0 {
			l.LastUpdate = time.Unix(d.LastUpdate, 0).UTC()
		}
		if f, ok := frameworks[d.FrameworkID]; ok {
			l.Framework = &f
		}
		for _, id := range d.TagIDs {
			if t, ok := tags[id]; ok {
				l.Tags = append(l.Tags, t)
			}
		}
		sortTags(l.Tags)
		for _, id := range d.LabelIDs {
			if b, ok := labels[id]; ok {
				l.Labels = append(l.Labels, b)
			}
		}
		for _, link := range d.Frameworks {
			if f, ok := frameworks[link.ID]; ok {
				l.Frameworks = append(l.Frameworks, FrameworkRef{Framework: f, IsPrimary: link.Primary})
			}
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *MongoDBStore) tagsByID(ctx context.Context, ids []int64) (map[int64]Tag, error) {
	out := map[int64]Tag{}
	if len(ids) == 0 {
		return out, nil
	}
	cursor, err := s.tags.Find(ctx, bson.M{"id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	var docs []mongoTagDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	for _, d := range docs {
		out[d.ID] = Tag{ID: d.ID, Name: d.Name, Slug: d.Slug}
	}
	return out, nil
}

func (s *MongoDBStore) labelsByID(ctx context.Context, ids []int64) (map[int64]Label, error) {
	out := map[int64]Label{}
	if len(ids) == 0 {
		return out, nil
	}
	cursor, err := s.labels.Find(ctx, bson.M{"id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	var docs []mongoLabelDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	for _, d := range docs {
		out[d.ID] = Label{ID: d.ID, Name: d.Name, Color: d.Color, TextColor: d.TextColor}
	}
	return out, nil
}

func (s *MongoDBStore) frameworksByID(ctx context.Context, ids []int64) (map[int64]Framework, error) {
	out := map[int64]Framework{}
	if len(ids) == 0 {
		return out, nil
	}
	cursor, err := s.frameworks.Find(ctx, bson.M{"id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("load frameworks: %w", err)
	}
	var docs []mongoFrameworkDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode frameworks: %w", err)
	}
	for _, d := range docs {
		out[d.ID] = d.framework()
	}
	return out, nil
}

func (s *MongoDBStore) replace(ctx context.Context, coll *mongo.Collection, key string, doc any) error {
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", coll.Name(), key, err)
	}
	return nil
}

func (s *MongoDBStore) UpsertTag(ctx context.Context, t *Tag) error {
	if t == nil || t.Slug == "" {
		return fmt.Errorf("tag slug is required")
	}
	t.ID = entityID("tag", t.Slug)
	return s.replace(ctx, s.tags, t.Slug, mongoTagDocument{Slug: t.Slug, ID: t.ID, Name: t.Name})
}

func (s *MongoDBStore) UpsertLabel(ctx context.Context, l *Label) error {
	if l == nil || l.Name == "" {
		return fmt.Errorf("label name is required")
	}
	l.ID = entityID("label", l.Name)
	return s.replace(ctx, s.labels, l.Name, mongoLabelDocument{Name: l.Name, ID: l.ID, Color: l.Color, TextColor: l.TextColor})
}

func (s *MongoDBStore) UpsertFramework(ctx context.Context, f *Framework) error {
	if f == nil || f.Slug == "" {
		return fmt.Errorf("framework slug is required")
	}
	f.ID = entityID("framework", f.Slug)
	return s.replace(ctx, s.frameworks, f.Slug, mongoFrameworkDocument{
		Slug:        f.Slug,
		ID:          f.ID,
		Name:        f.Name,
		Title:       f.Title,
		Description: f.Description,
		Website:     f.Website,
		LogoURL:     f.LogoURL,
		TagIDs:      tagIDs(f.Tags),
	})
}

func (s *MongoDBStore) UpsertLibrary(ctx context.Context, l *Library) error {
	if l == nil || l.Slug == "" {
		return fmt.Errorf("library slug is required")
	}
	l.ID = entityID("library", l.Slug)

	links := make([]mongoFrameworkLink, 0, len(l.Frameworks))
	ids := make([]int64, 0, len(l.Frameworks))
	for _, ref := range l.Frameworks {
		links = append(links, mongoFrameworkLink{ID: ref.Framework.ID, Primary: ref.IsPrimary})
		ids = append(ids, ref.Framework.ID)
	}
	var lastUpdate int64
	if !l.LastUpdate.IsZero() {
		lastUpdate = l.LastUpdate.Unix()
	}

	return s.replace(ctx, s.libraries, l.Slug, mongoLibraryDocument{
		Slug:            l.Slug,
		ID:              l.ID,
		Name:            l.Name,
		Description:     l.Description,
		FrameworkID:     l.FrameworkID,
		Frameworks:      links,
		FrameworkIDs:    ids,
		TagIDs:          tagIDs(l.Tags),
		LabelIDs:        labelIDs(l.Labels),
		Website:         l.Website,
		GitHubURL:       l.GitHubURL,
		NPMPackage:      l.NPMPackage,
		GitHubStars:     l.GitHubStars,
		NPMDownloads:    l.NPMDownloads,
		TotalComponents: l.TotalComponents,
		Styling:         l.Styling,
		Pricing:         l.Pricing,
		LastUpdate:      lastUpdate,
		Images:          nonNilStrings(l.Images),
	})
}

func (s *MongoDBStore) UpsertPage(ctx context.Context, p *Page) error {
	if p == nil || p.Slug == "" {
		return fmt.Errorf("page slug is required")
	}
	return s.replace(ctx, s.pages, p.Slug, mongoPageDocument{Slug: p.Slug, Title: p.Title, Content: p.Content})
}

// Close is a no-op; Mongo client lifecycle is managed by storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}

func sortTags(tags []Tag) {
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
}
