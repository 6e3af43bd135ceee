package chat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/marketlens/marketlens/internal/store"
)

// watchDebounce coalesces the burst of fsnotify events most editors
// emit for a single save.
const watchDebounce = 250 * time.Millisecond

// templateFile is the on-disk shape of a prompt template definition.
// One YAML file may define several templates.
type templateFile struct {
	Templates []templateSpec `yaml:"templates"`
}

type templateSpec struct {
	Key          string `yaml:"key"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	SystemPrompt string `yaml:"system_prompt"`
	UserPrompt   string `yaml:"user_prompt"`
	Active       *bool  `yaml:"active"`
}

func (t templateSpec) toModel() *store.PromptTemplate {
	userPrompt := t.UserPrompt
	if strings.TrimSpace(userPrompt) == "" {
		userPrompt = "{message}"
	}
	active := true
	if t.Active != nil {
		active = *t.Active
	}
	return &store.PromptTemplate{
		Key:         t.Key,
		Name:        t.Name,
		Description: t.Description,
		Content:     t.SystemPrompt,
		UserPrompt:  userPrompt,
		IsActive:    active,
	}
}

// loadTemplateDir parses every YAML file in dir, sorted by name so
// seeding order is stable.
func loadTemplateDir(dir string) ([]templateSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read template dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !isTemplateFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var specs []templateSpec
	for _, name := range names {
		fileSpecs, err := loadTemplateFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		specs = append(specs, fileSpecs...)
	}
	return specs, nil
}

func loadTemplateFile(path string) ([]templateSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	var specs []templateSpec
	for _, t := range f.Templates {
		if strings.TrimSpace(t.Key) == "" {
			return nil, fmt.Errorf("template without key in %s", filepath.Base(path))
		}
		specs = append(specs, t)
	}
	return specs, nil
}

func isTemplateFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// SeedTemplates loads the template definitions from dir and stores the
// ones whose key is not yet present. Existing keys are left alone so a
// restart never duplicates or downgrades an edited template. Returns
// the number of templates created. A missing dir seeds nothing.
func SeedTemplates(ctx context.Context, st *store.Store, dir string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("template dir missing, skipping seed", "dir", dir)
		return 0, nil
	}

	specs, err := loadTemplateDir(dir)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, spec := range specs {
		exists, err := st.TemplateExists(ctx, spec.Key)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		if err := st.CreateTemplate(ctx, spec.toModel()); err != nil {
			return created, err
		}
		logger.Info("seeded prompt template", "key", spec.Key)
		created++
	}
	return created, nil
}

// TemplateWatcher reloads prompt templates when their YAML files
// change. Each save stores a new version under the same key, which
// ResolveTemplate then prefers.
type TemplateWatcher struct {
	store  *store.Store
	dir    string
	logger *slog.Logger
}

func NewTemplateWatcher(st *store.Store, dir string, logger *slog.Logger) *TemplateWatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TemplateWatcher{store: st, dir: dir, logger: logger}
}

// Run watches the template directory until ctx is canceled. A missing
// directory is not an error; the watcher simply exits.
func (w *TemplateWatcher) Run(ctx context.Context) error {
	if _, err := os.Stat(w.dir); os.IsNotExist(err) {
		w.logger.Debug("template dir missing, watcher idle", "dir", w.dir)
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}

	var (
		debounce *time.Timer
		pending  = map[string]struct{}{}
		fire     = make(chan struct{}, 1)
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isTemplateFile(event.Name) {
				continue
			}
			pending[event.Name] = struct{}{}
			if debounce == nil {
				debounce = time.AfterFunc(watchDebounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				debounce.Reset(watchDebounce)
			}

		case <-fire:
			debounce = nil
			for path := range pending {
				delete(pending, path)
				w.reload(ctx, path)
			}

		case err := <-watcher.Errors:
			w.logger.Warn("template watcher error", "error", err)
		}
	}
}

func (w *TemplateWatcher) reload(ctx context.Context, path string) {
	specs, err := loadTemplateFile(path)
	if err != nil {
		w.logger.Warn("template reload failed", "file", path, "error", err)
		return
	}
	for _, spec := range specs {
		if err := w.store.CreateTemplate(ctx, spec.toModel()); err != nil {
			w.logger.Warn("template version insert failed", "key", spec.Key, "error", err)
			continue
		}
		w.logger.Info("reloaded prompt template", "key", spec.Key, "file", filepath.Base(path))
	}
}
