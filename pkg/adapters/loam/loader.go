// Package loam loads agent definitions from a directory of markdown files
// with YAML frontmatter.
package loam

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/pkg/chain"
	"github.com/aretw0/tendril/pkg/domain"
)

// Library reads agents from a Loam repository.
type Library struct {
	Repo   *loam.TypedRepository[AgentMetadata]
	logger *slog.Logger
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the library logger.
func WithLogger(l *slog.Logger) Option {
	return func(lib *Library) {
		if l != nil {
			lib.logger = l
		}
	}
}

// New creates a library over repo.
func New(repo *loam.TypedRepository[AgentMetadata], opts ...Option) *Library {
	lib := &Library{Repo: repo, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(lib)
	}
	return lib
}

// Open initializes a read-only Loam repository at dir.
func Open(dir string, opts ...Option) (*Library, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	// Strict mode keeps numbers in chain conditions as json.Number.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[AgentMetadata](repo), opts...), nil
}

// Agents returns every agent defined in the repository. The uid defaults to
// the file name without extension and the name defaults to the uid.
func (l *Library) Agents(ctx context.Context) ([]domain.AgentForCreate, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	agents := make([]domain.AgentForCreate, 0, len(docs))
	for _, doc := range docs {
		a, err := toAgent(doc.ID, doc.Data, doc.Content)
		if err != nil {
			return nil, err
		}
		if existingPath, ok := seen[a.UID]; ok {
			return nil, fmt.Errorf("collision detected: uid '%s' is defined in both '%s' and '%s'", a.UID, existingPath, doc.ID)
		}
		seen[a.UID] = doc.ID
		agents = append(agents, a)
	}
	return agents, nil
}

func toAgent(docID string, meta AgentMetadata, content string) (domain.AgentForCreate, error) {
	uid := meta.UID
	if uid == "" {
		uid = trimExtension(docID)
	}
	name := meta.Name
	if name == "" {
		name = uid
	}

	chainDef, err := chainJSON(meta.Chain)
	if err != nil {
		return domain.AgentForCreate{}, fmt.Errorf("agent '%s': chain: %w", uid, err)
	}
	if chainDef != "" {
		if _, err := chain.Parse([]byte(chainDef)); err != nil {
			return domain.AgentForCreate{}, fmt.Errorf("agent '%s': %w", uid, err)
		}
	}

	return domain.AgentForCreate{
		UID:          uid,
		Name:         name,
		Kind:         domain.AgentKind(meta.Kind),
		Desc:         meta.Desc,
		SpaceDefault: meta.SpaceDefault,
		Provider:     meta.Provider,
		Model:        meta.Model,
		Inst:         strings.TrimSpace(content),
		PromptTmpl:   meta.PromptTmpl,
		Chain:        chainDef,
		OutFormat:    domain.OutFormat(meta.OutFormat),
	}, nil
}

// chainJSON turns the frontmatter chain into its JSON definition.
func chainJSON(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(val), nil
	default:
		b, err := json.Marshal(normalize(val))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// normalize converts YAML maps with interface keys into JSON-encodable maps.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = normalize(sub)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[fmt.Sprintf("%v", k)] = normalize(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = normalize(sub)
		}
		return out
	default:
		return val
	}
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// AgentWriter is where imported agents are stored.
type AgentWriter interface {
	Upsert(ctx context.Context, a domain.AgentForCreate) (int64, bool, error)
}

// ImportResult counts what Import changed.
type ImportResult struct {
	Created int
	Updated int
}

// Import upserts every agent of the library by uid.
func (l *Library) Import(ctx context.Context, w AgentWriter) (ImportResult, error) {
	var res ImportResult
	agents, err := l.Agents(ctx)
	if err != nil {
		return res, err
	}
	for _, a := range agents {
		_, created, err := w.Upsert(ctx, a)
		if err != nil {
			return res, fmt.Errorf("failed to import agent '%s': %w", a.UID, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	l.logger.Info("Agents imported", "created", res.Created, "updated", res.Updated)
	return res, nil
}

// Watch emits the id of every changed agent file until ctx is done.
func (l *Library) Watch(ctx context.Context) (<-chan string, error) {
	events, err := l.Repo.Watch(ctx, "**/*.md")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- evt.ID:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// WatchAndImport re-imports the library every time an agent file changes.
// It blocks until ctx is done.
func (l *Library) WatchAndImport(ctx context.Context, w AgentWriter) error {
	changes, err := l.Watch(ctx)
	if err != nil {
		return err
	}
	for id := range changes {
		l.logger.Debug("Agent file changed", "id", id)
		if _, err := l.Import(ctx, w); err != nil {
			l.logger.Warn("Agent re-import failed", "err", err)
		}
	}
	return nil
}
