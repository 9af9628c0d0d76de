package hcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/recipegrid/internal/config"
	"github.com/vk/recipegrid/internal/ctxlog"
	"github.com/vk/recipegrid/internal/fetch"
	"github.com/vk/recipegrid/internal/fsutil"
	"golang.org/x/sync/errgroup"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	fetcher *fetch.Fetcher
}

// NewLoader creates a new HCL environment file loader that reads files
// through the given fetcher.
func NewLoader(f *fetch.Fetcher) *Loader {
	return &Loader{fetcher: f}
}

// parsedFile is a decoded environment file and the location it came from.
type parsedFile struct {
	source string
	root   *envFile
}

// merger accumulates parsed files into a single model.
type merger struct {
	model       *config.Model
	seen        map[string]bool
	recipeIndex map[string]int
}

// Load orchestrates the entire loading process: paths are expanded into
// files, every file is parsed, imports are followed depth first and the
// result is merged into one model with imported content first.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	sources, err := l.expandPaths(paths)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Discovered environment files.", "count", len(sources))

	m := &merger{
		model:       &config.Model{},
		seen:        make(map[string]bool),
		recipeIndex: make(map[string]int),
	}
	if err := l.loadAll(ctx, sources, nil, m); err != nil {
		return nil, nil, err
	}

	logger.Debug("HCL loading complete.", "files", len(m.model.Sources), "recipes", len(m.model.Recipes), "external_dependencies", len(m.model.ExternalDependencies))
	return m.model, NewConverter(), nil
}

// loadAll parses sources concurrently and merges them in order.
func (l *Loader) loadAll(ctx context.Context, sources []string, stack []string, m *merger) error {
	files, err := l.parseAll(ctx, sources)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := l.merge(ctx, f, stack, m); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) parseAll(ctx context.Context, sources []string) ([]*parsedFile, error) {
	files := make([]*parsedFile, len(sources))
	eg, ectx := errgroup.WithContext(ctx)
	for i, src := range sources {
		eg.Go(func() error {
			f, err := l.parseFile(ectx, src)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (l *Loader) parseFile(ctx context.Context, source string) (*parsedFile, error) {
	data, err := l.fetcher.Get(ctx, source)
	if err != nil {
		return nil, err
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, source)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", source, diags)
	}

	var root envFile
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", source, diags)
	}
	return &parsedFile{source: source, root: &root}, nil
}

// merge adds a file to the model after its imports. A file reached twice is
// merged once; a file importing itself, directly or not, is an error.
func (l *Loader) merge(ctx context.Context, f *parsedFile, stack []string, m *merger) error {
	if slices.Contains(stack, f.source) {
		return fmt.Errorf("import cycle: %s -> %s", strings.Join(stack, " -> "), f.source)
	}
	if m.seen[f.source] {
		return nil
	}

	if len(f.root.Imports) > 0 {
		imports := make([]string, 0, len(f.root.Imports))
		for _, imp := range f.root.Imports {
			resolved, err := fetch.Resolve(f.source, imp)
			if err != nil {
				return fmt.Errorf("resolve import %q of %s: %w", imp, f.source, err)
			}
			imports = append(imports, resolved)
		}
		ctxlog.FromContext(ctx).Debug("Following imports.", "file", f.source, "imports", imports)
		if err := l.loadAll(ctx, imports, append(slices.Clone(stack), f.source), m); err != nil {
			return err
		}
	}

	m.seen[f.source] = true
	l.add(ctx, m, f)
	return nil
}

func (l *Loader) add(ctx context.Context, m *merger, f *parsedFile) {
	logger := ctxlog.FromContext(ctx)
	m.model.Sources = append(m.model.Sources, f.source)
	m.model.Channels = appendUnique(m.model.Channels, f.root.Channels...)
	m.model.ExternalDependencies = appendUnique(m.model.ExternalDependencies, f.root.ExternalDependencies...)

	for _, r := range f.root.Recipes {
		recipe := l.translateRecipe(r, f.source)
		if idx, ok := m.recipeIndex[recipe.Name]; ok {
			logger.Warn("Duplicate recipe definition found, it will be overwritten.", "recipe", recipe.Name, "previous", m.model.Recipes[idx].Source, "file", f.source)
			m.model.Recipes[idx] = recipe
			continue
		}
		m.recipeIndex[recipe.Name] = len(m.model.Recipes)
		m.model.Recipes = append(m.model.Recipes, recipe)
	}
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		if !slices.Contains(dst, item) {
			dst = append(dst, item)
		}
	}
	return dst
}

// expandPaths turns the given locations into a flat list of files. Remote
// URLs are kept as-is, directories are searched recursively for .hcl files.
func (l *Loader) expandPaths(paths []string) ([]string, error) {
	var all []string
	for _, path := range paths {
		if fetch.IsRemote(path) {
			all = appendUnique(all, path)
			continue
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			all = appendUnique(all, abs)
			continue
		}

		files, err := fsutil.FindFilesByExtension(abs, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("error walking %s: %w", path, err)
		}
		all = appendUnique(all, files...)
	}
	return all, nil
}
