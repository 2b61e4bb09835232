// Package folders reads the local folder index: the mapping from project and
// task ids to the folders created for them on disk. The index file is written
// by other tools; this package only reads it.
package folders

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/plandesk/plandesk/internal/cache/merge"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Field is the name of the decoration added to entities.
const Field = "folders"

// Kind selects the section of the index an entity id is looked up in.
type Kind int

const (
	KindProject Kind = iota
	KindTask
)

// Index is the folder index file:
//
//	projects:
//	  "12": [/home/me/work/website]
//	tasks:
//	  "7": [/home/me/work/website/tasks/7]
//
// An Index returned by Load follows the file: lookups reload it when it
// changed on disk, so folders created while the agent runs are picked up. An
// Index built as a literal is static.
type Index struct {
	Projects map[string][]string `yaml:"projects"`
	Tasks    map[string][]string `yaml:"tasks"`

	path   string
	mu     sync.Mutex
	loaded os.FileInfo
}

type document struct {
	Projects map[string][]string `yaml:"projects"`
	Tasks    map[string][]string `yaml:"tasks"`
}

// Load reads the index at path. An empty path or a missing file is an empty
// index.
func Load(path string) (*Index, error) {
	ix := &Index{path: path}
	if path == "" {
		return ix, nil
	}

	if err := ix.reload(); err != nil {
		return nil, err
	}

	return ix, nil
}

// reload rereads the file if it changed since the last read. Callers must
// hold the lock.
func (ix *Index) reload() error {
	info, err := os.Stat(ix.path)
	if errors.Is(err, fs.ErrNotExist) {
		ix.Projects, ix.Tasks, ix.loaded = nil, nil, nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading folder index: %w", err)
	}

	if ix.loaded != nil && os.SameFile(ix.loaded, info) &&
		ix.loaded.Size() == info.Size() && ix.loaded.ModTime().Equal(info.ModTime()) {
		return nil
	}

	data, err := os.ReadFile(ix.path)
	if err != nil {
		return fmt.Errorf("reading folder index: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing folder index %s: %w", ix.path, err)
	}

	ix.Projects, ix.Tasks, ix.loaded = doc.Projects, doc.Tasks, info
	return nil
}

// refresh reloads a file-backed index. A file that cannot be read or parsed
// keeps the last good contents.
func (ix *Index) refresh() {
	if ix.path == "" {
		return
	}
	if err := ix.reload(); err != nil {
		log.Warn().Err(err).Str("path", ix.path).Msg("folder index reload failed, keeping previous contents")
	}
}

// Folders returns the folders recorded for id, never nil.
func (ix *Index) Folders(kind Kind, id string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.refresh()
	return ix.folders(kind, id)
}

func (ix *Index) folders(kind Kind, id string) []string {
	section := ix.Projects
	if kind == KindTask {
		section = ix.Tasks
	}

	folders := section[id]
	if folders == nil {
		return []string{}
	}
	return slices.Clone(folders)
}

// Decorator returns a function adding the Field to an entity or to every
// entity of a list. Input values are not modified; values without an id are
// returned unchanged.
func (ix *Index) Decorator(kind Kind) func(any) any {
	return func(value any) any {
		ix.mu.Lock()
		defer ix.mu.Unlock()

		ix.refresh()

		switch v := value.(type) {
		case map[string]any:
			return ix.decorate(kind, v)
		case []any:
			out := make([]any, len(v))
			for i, item := range v {
				if entity, ok := item.(map[string]any); ok {
					out[i] = ix.decorate(kind, entity)
				} else {
					out[i] = item
				}
			}
			return out
		default:
			return value
		}
	}
}

func (ix *Index) decorate(kind Kind, entity map[string]any) map[string]any {
	id, ok := merge.IDString(entity["id"])
	if !ok {
		return entity
	}

	decorated := maps.Clone(entity)

	folders := ix.folders(kind, id)
	list := make([]any, len(folders))
	for i, f := range folders {
		list[i] = f
	}
	decorated[Field] = list

	return decorated
}
