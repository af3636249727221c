package quiz

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

// Library is an in-memory QuizSource, optionally loaded from a directory
// of quiz documents.
type Library struct {
	mu      sync.RWMutex
	quizzes map[string]*Quiz
}

func NewLibrary(quizzes ...*Quiz) *Library {
	l := &Library{quizzes: make(map[string]*Quiz)}
	for _, q := range quizzes {
		l.quizzes[q.Ref] = q
	}
	return l
}

// LoadLibrary reads every .yaml, .yml and .json file in dir. A document
// without a ref takes its file name.
func LoadLibrary(dir string) (*Library, error) {
	l := NewLibrary()
	if dir == "" {
		return l, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read quiz dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		q, err := readQuiz(path)
		if err != nil {
			return nil, err
		}
		if q.Ref == "" {
			q.Ref = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}
		if err := l.Add(q); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return l, nil
}

func readQuiz(path string) (*Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var q Quiz
	if err := yaml.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &q, nil
}

// Add validates q and makes it available under its ref.
func (l *Library) Add(q *Quiz) error {
	if err := q.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.quizzes[q.Ref]; dup {
		return fmt.Errorf("duplicate quiz ref %q", q.Ref)
	}
	l.quizzes[q.Ref] = q
	return nil
}

func (l *Library) GetQuiz(_ context.Context, ref string) (*Quiz, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	q, ok := l.quizzes[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQuizNotFound, ref)
	}
	return q, nil
}

// Refs lists the loaded quiz refs in order.
func (l *Library) Refs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	refs := make([]string, 0, len(l.quizzes))
	for ref := range l.quizzes {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
