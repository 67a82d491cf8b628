package results

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"quizroom/internal/domain"
)

// FileSink saves each finished session into Dir.
type FileSink struct {
	Dir    string
	XLSX   bool
	Logger *slog.Logger
}

func (s *FileSink) SaveResults(_ context.Context, res domain.SessionResults) error {
	_, err := s.Write(res)
	return err
}

// Write stores res and returns the paths written.
func (s *FileSink) Write(res domain.SessionResults) ([]string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	base := filepath.Join(dir, FileName(res))

	paths := []string{base + ".json"}
	if err := writeFile(paths[0], func(f *os.File) error { return WriteJSON(f, res) }); err != nil {
		return nil, err
	}
	if s.XLSX {
		paths = append(paths, base+".xlsx")
		if err := writeFile(paths[1], func(f *os.File) error { return WriteXLSX(f, res) }); err != nil {
			return paths[:1], err
		}
	}
	if s.Logger != nil {
		s.Logger.Info("results saved", "room", res.Session.RoomCode, "files", paths)
	}
	return paths, nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
