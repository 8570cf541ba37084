package relation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Source is the boundary to the relation transport. Fetch returns one
// payload per related peer, in the order the transport reports them.
type Source interface {
	Fetch(ctx context.Context) ([]Payload, error)
}

// FileSource reads relation payloads from a YAML file. The file holds either
// a single flat mapping or a list of them (one per peer). A missing file is
// not an error: it means no relation has been established yet.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource reading from path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Fetch implements Source.
func (s *FileSource) Fetch(_ context.Context) ([]Payload, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errors.Wrapf(err, "failed to read relation data file %s", s.path)
	}

	return ParsePayloads(data)
}

// ParsePayloads decodes YAML relation data: either one mapping or a list.
// Scalar values are rendered to strings, so unquoted ports still come
// through as payload values.
func ParsePayloads(data []byte) ([]Payload, error) {
	var many []map[string]any

	if err := yaml.Unmarshal(data, &many); err == nil {
		return stringifyAll(many), nil
	}

	var one map[string]any

	if err := yaml.Unmarshal(data, &one); err != nil {
		return nil, errors.Wrap(err, "failed to parse relation data")
	}

	if len(one) == 0 {
		return nil, nil
	}

	return stringifyAll([]map[string]any{one}), nil
}

func stringifyAll(raw []map[string]any) []Payload {
	payloads := make([]Payload, 0, len(raw))

	for _, entry := range raw {
		payload := make(Payload, len(entry))

		for key, value := range entry {
			if value == nil {
				payload[key] = ""

				continue
			}

			payload[key] = fmt.Sprintf("%v", value)
		}

		payloads = append(payloads, payload)
	}

	return payloads
}

// Watch emits a signal whenever the relation data file is written or
// (re)created. The parent directory is watched so editors that replace the
// file atomically still trigger a notification. The channel closes when ctx
// is done.
func (s *FileSource) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create relation data watcher")
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()

		return nil, errors.Wrapf(err, "failed to watch relation data directory %s", dir)
	}

	changes := make(chan struct{}, 1)

	go func() {
		defer close(changes)
		defer func() { _ = watcher.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if event.Name != s.path {
					continue
				}

				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				select {
				case changes <- struct{}{}:
				default:
					// A change signal is already pending.
				}
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}

				slog.Warn("relation data watcher error", "error", watchErr)
			}
		}
	}()

	return changes, nil
}
