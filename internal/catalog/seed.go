package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML document accepted by LoadSeed. Frameworks, tags and
// labels are referenced by slug (labels by name) from libraries.
type Seed struct {
	Tags       []Tag           `yaml:"tags"`
	Labels     []Label         `yaml:"labels"`
	Frameworks []seedFramework `yaml:"frameworks"`
	Libraries  []seedLibrary   `yaml:"libraries"`
	Pages      []Page          `yaml:"pages"`
}

type seedFramework struct {
	Slug        string   `yaml:"slug"`
	Name        string   `yaml:"name"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Website     string   `yaml:"website"`
	LogoURL     string   `yaml:"logo_url"`
	Tags        []string `yaml:"tags"`
}

type seedLibrary struct {
	Slug            string   `yaml:"slug"`
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description"`
	Framework       string   `yaml:"framework"`
	Frameworks      []string `yaml:"frameworks"`
	Tags            []string `yaml:"tags"`
	Labels          []string `yaml:"labels"`
	Website         string   `yaml:"website"`
	GitHubURL       string   `yaml:"github_url"`
	NPMPackage      string   `yaml:"npm_package"`
	GitHubStars     int64    `yaml:"github_stars"`
	NPMDownloads    int64    `yaml:"npm_downloads"`
	TotalComponents int      `yaml:"total_components"`
	Styling         string   `yaml:"styling"`
	Pricing         string   `yaml:"pricing"`
	LastUpdate      string   `yaml:"last_update"`
	Images          []string `yaml:"images"`
}

// SeedResult counts what LoadSeed wrote.
type SeedResult struct {
	Tags       int
	Labels     int
	Frameworks int
	Libraries  int
	Pages      int
}

// ParseSeed decodes a seed document.
func ParseSeed(r io.Reader) (*Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return &s, nil
		}
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	return &s, nil
}

// LoadSeed parses r and upserts its content into w in dependency order.
// Unknown references fail the load before the referencing entity is written.
func LoadSeed(ctx context.Context, w Writer, r io.Reader) (SeedResult, error) {
	var res SeedResult
	seed, err := ParseSeed(r)
	if err != nil {
		return res, err
	}

	tags := make(map[string]Tag, len(seed.Tags))
	for i := range seed.Tags {
		t := seed.Tags[i]
		if err := w.UpsertTag(ctx, &t); err != nil {
			return res, err
		}
		tags[t.Slug] = t
		res.Tags++
	}

	labels := make(map[string]Label, len(seed.Labels))
	for i := range seed.Labels {
		l := seed.Labels[i]
		if err := w.UpsertLabel(ctx, &l); err != nil {
			return res, err
		}
		labels[l.Name] = l
		res.Labels++
	}

	frameworks := make(map[string]Framework, len(seed.Frameworks))
	for _, sf := range seed.Frameworks {
		f := Framework{
			Name:        sf.Name,
			Slug:        sf.Slug,
			Title:       sf.Title,
			Description: sf.Description,
			Website:     sf.Website,
			LogoURL:     sf.LogoURL,
		}
		for _, slug := range sf.Tags {
			t, ok := tags[slug]
			if !ok {
				return res, fmt.Errorf("framework %s: unknown tag %q", sf.Slug, slug)
			}
			f.Tags = append(f.Tags, t)
		}
		if err := w.UpsertFramework(ctx, &f); err != nil {
			return res, err
		}
		frameworks[f.Slug] = f
		res.Frameworks++
	}

	for _, sl := range seed.Libraries {
		l, err := sl.resolve(frameworks, tags, labels)
		if err != nil {
			return res, err
		}
		if err := w.UpsertLibrary(ctx, l); err != nil {
			return res, err
		}
		res.Libraries++
	}

	for i := range seed.Pages {
		p := seed.Pages[i]
		if err := w.UpsertPage(ctx, &p); err != nil {
			return res, err
		}
		res.Pages++
	}
	return res, nil
}

func (sl seedLibrary) resolve(frameworks map[string]Framework, tags map[string]Tag, labels map[string]Label) (*Library, error) {
	l := &Library{
		Name:            sl.Name,
		Slug:            sl.Slug,
		Description:     sl.Description,
		Website:         sl.Website,
		GitHubURL:       sl.GitHubURL,
		NPMPackage:      sl.NPMPackage,
		GitHubStars:     sl.GitHubStars,
		NPMDownloads:    sl.NPMDownloads,
		TotalComponents: sl.TotalComponents,
		Styling:         sl.Styling,
		Pricing:         sl.Pricing,
		Images:          sl.Images,
	}
	if sl.LastUpdate != "" {
		t, err := time.Parse(time.DateOnly, sl.LastUpdate)
		if err != nil {
			return nil, fmt.Errorf("library %s: invalid last_update %q", sl.Slug, sl.LastUpdate)
		}
		l.LastUpdate = t
	}

	if sl.Framework != "" {
		f, ok := frameworks[sl.Framework]
		if !ok {
			return nil, fmt.Errorf("library %s: unknown framework %q", sl.Slug, sl.Framework)
		}
		l.FrameworkID = f.ID
		l.Frameworks = append(l.Frameworks, FrameworkRef{Framework: f, IsPrimary: true})
	}
	for _, slug := range sl.Frameworks {
		if slug == sl.Framework {
			continue
		}
		f, ok := frameworks[slug]
		if !ok {
			return nil, fmt.Errorf("library %s: unknown framework %q", sl.Slug, slug)
		}
		l.Frameworks = append(l.Frameworks, FrameworkRef{Framework: f})
	}
	for _, slug := range sl.Tags {
		t, ok := tags[slug]
		if !ok {
			return nil, fmt.Errorf("library %s: unknown tag %q", sl.Slug, slug)
		}
		l.Tags = append(l.Tags, t)
	}
	for _, name := range sl.Labels {
		b, ok := labels[name]
		if !ok {
			return nil, fmt.Errorf("library %s: unknown label %q", sl.Slug, name)
		}
		l.Labels = append(l.Labels, b)
	}
	return l, nil
}
