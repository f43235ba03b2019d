package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

var ErrNotFound = errors.New("survey not found")

// Catalog resolves survey definitions by id.
type Catalog interface {
	Get(ctx context.Context, id string) (survey.Definition, error)
	List(ctx context.Context) ([]survey.Summary, error)
}

//go:embed catalog.yaml
var builtin []byte

// Registry is a static, read-only Catalog.
type Registry struct {
	order []string
	defs  map[string]survey.Definition
}

type document struct {
	Surveys []survey.Definition `yaml:"surveys"`
}

// Default returns the registry built from the embedded survey table.
func Default() *Registry {
	r, err := Load(bytes.NewReader(builtin))
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded table invalid: %v", err))
	}
	return r
}

func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load parses a YAML survey table. Survey ids must be unique, and so must
// question ids within a survey.
func Load(r io.Reader) (*Registry, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(doc.Surveys...)
}

func New(defs ...survey.Definition) (*Registry, error) {
	reg := &Registry{defs: make(map[string]survey.Definition, len(defs))}
	for _, d := range defs {
		if d.ID == "" {
			return nil, errors.New("survey with empty id")
		}
		if _, dup := reg.defs[d.ID]; dup {
			return nil, fmt.Errorf("duplicate survey id %q", d.ID)
		}
		seen := make(map[string]bool, len(d.Questions))
		for _, q := range d.Questions {
			if q.ID == "" {
				return nil, fmt.Errorf("survey %q: question with empty id", d.ID)
			}
			if seen[q.ID] {
				return nil, fmt.Errorf("survey %q: duplicate question id %q", d.ID, q.ID)
			}
			seen[q.ID] = true
		}
		reg.order = append(reg.order, d.ID)
		reg.defs[d.ID] = d
	}
	return reg, nil
}

func (r *Registry) Get(_ context.Context, id string) (survey.Definition, error) {
	d, ok := r.defs[id]
	if !ok {
		return survey.Definition{}, ErrNotFound
	}
	return d, nil
}

func (r *Registry) List(_ context.Context) ([]survey.Summary, error) {
	out := make([]survey.Summary, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id].Summary())
	}
	return out, nil
}
