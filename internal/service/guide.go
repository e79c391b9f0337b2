package service

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/templui/accountable/internal/markdown"
	"github.com/templui/accountable/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var ErrGuideStepNotFound = errors.New("guide step not found")

// GuideService serves the onboarding guide. Pages are markdown files with a
// frontmatter header, loaded once from the given filesystem.
type GuideService struct {
	parser *markdown.Parser
	fsys   fs.FS
	dir    string

	once  sync.Once
	steps []*model.GuideStep
	err   error
}

func NewGuideService(fsys fs.FS, dir string) *GuideService {
	return &GuideService{
		parser: markdown.NewParser(),
		fsys:   fsys,
		dir:    dir,
	}
}

// Steps returns the guide pages in reading order.
func (s *GuideService) Steps() ([]*model.GuideStep, error) {
	s.once.Do(func() {
		s.steps, s.err = s.load()
	})
	return s.steps, s.err
}

func (s *GuideService) Step(slug string) (*model.GuideStep, error) {
	steps, err := s.Steps()
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		if step.Slug == slug {
			return step, nil
		}
	}
	return nil, ErrGuideStepNotFound
}

func (s *GuideService) load() ([]*model.GuideStep, error) {
	entries, err := fs.ReadDir(s.fsys, s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read guide: %w", err)
	}

	steps := []*model.GuideStep{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		source, err := fs.ReadFile(s.fsys, path.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		html, meta, err := s.parser.Render(source)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", entry.Name(), err)
		}

		slug := slugFromFilename(entry.Name())
		step := &model.GuideStep{
			Title:       meta.Title,
			Slug:        slug,
			Order:       meta.Order,
			Description: meta.Description,
			Content:     string(source),
			HTMLContent: string(html),
		}
		if step.Title == "" {
			step.Title = titleFromSlug(slug)
		}
		steps = append(steps, step)
	}

	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].Order != steps[j].Order {
			return steps[i].Order < steps[j].Order
		}
		return steps[i].Title < steps[j].Title
	})
	return steps, nil
}

// slugFromFilename drops the extension and a leading "NN-" ordering prefix.
func slugFromFilename(name string) string {
	slug := strings.TrimSuffix(name, ".md")
	prefix, rest, ok := strings.Cut(slug, "-")
	if ok && prefix != "" && strings.Trim(prefix, "0123456789") == "" {
		return rest
	}
	return slug
}

func titleFromSlug(slug string) string {
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(slug))
	caser := cases.Title(language.English)
	for i, word := range words {
		words[i] = caser.String(word)
	}
	return strings.Join(words, " ")
}
