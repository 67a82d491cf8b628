package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"quizroom/internal/domain"
)

var quizExtensions = []string{".json", ".yaml", ".yml"}

// FileQuizLoader reads quiz definitions from a directory. A quiz ID is the file
// name without its extension.
type FileQuizLoader struct {
	dir string
}

func NewFileQuizLoader(dir string) *FileQuizLoader {
	return &FileQuizLoader{dir: dir}
}

func (l *FileQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quizID == "" || strings.ContainsAny(quizID, `/\`) || strings.HasPrefix(quizID, ".") {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	for _, ext := range quizExtensions {
		path := filepath.Join(l.dir, quizID+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("read quiz %s: %w", quizID, err)
		}
		quiz, err := domain.ParseQuiz(path, data)
		if err != nil {
			return domain.Quiz{}, err
		}
		if quiz.ID == "" {
			quiz.ID = quizID
		}
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// List returns the IDs of every quiz file in the directory, sorted.
func (l *FileQuizLoader) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		for _, known := range quizExtensions {
			if ext == known {
				id := strings.TrimSuffix(e.Name(), ext)
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}
