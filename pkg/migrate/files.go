package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
)

const versionLayout = "20060102150405"

var (
	fileNameRe = regexp.MustCompile(`^\d{14}_[a-z0-9_]+\.sql$`)
	slugRe     = regexp.MustCompile(`[^a-z0-9]+`)
)

// File is one goose SQL migration on disk or in the embedded set.
type File struct {
	Version int64
	Name    string
}

// ListFiles returns the .sql migrations in fsys sorted by version. Names
// must follow <YYYYMMDDHHMMSS>_<slug>.sql and versions must be unique.
func ListFiles(fsys fs.FS) ([]File, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	files := make([]File, 0, len(names))
	byVersion := map[int64]string{}
	for _, name := range names {
		if !fileNameRe.MatchString(name) {
			return nil, fmt.Errorf("migration %q: name must look like %s_name.sql", name, versionLayout)
		}
		version, err := goose.NumericComponent(name)
		if err != nil {
			return nil, fmt.Errorf("migration %q: %w", name, err)
		}
		if other, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("migrations %q and %q share version %d", other, name, version)
		}
		byVersion[version] = name
		files = append(files, File{Version: version, Name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

// Validate checks names and goose annotations of every migration in fsys.
func Validate(fsys fs.FS) error {
	files, err := ListFiles(fsys)
	if err != nil {
		return err
	}
	var problems []error
	for _, f := range files {
		body, err := fs.ReadFile(fsys, f.Name)
		if err != nil {
			return fmt.Errorf("read %q: %w", f.Name, err)
		}
		if err := checkAnnotations(string(body)); err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", f.Name, err))
		}
	}
	return errors.Join(problems...)
}

// ValidateDir runs Validate over a directory on the local filesystem.
func ValidateDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("dir is required")
	}
	return Validate(os.DirFS(dir))
}

func checkAnnotations(sql string) error {
	up := strings.Index(sql, "-- +goose Up")
	down := strings.Index(sql, "-- +goose Down")
	switch {
	case up < 0:
		return errors.New(`missing "-- +goose Up"`)
	case down < 0:
		return errors.New(`missing "-- +goose Down"`)
	case down < up:
		return errors.New("down section precedes up section")
	}
	begins := strings.Count(sql, "-- +goose StatementBegin")
	ends := strings.Count(sql, "-- +goose StatementEnd")
	if begins != ends {
		return fmt.Errorf("%d StatementBegin markers but %d StatementEnd", begins, ends)
	}
	return nil
}

// Create writes an empty migration named <now>_<slug>.sql into dir and
// returns its path.
func Create(dir, name string, now time.Time) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("dir is required")
	}
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %q: %w", dir, err)
	}

	file := fmt.Sprintf("%s_%s.sql", now.UTC().Format(versionLayout), slug)
	target := filepath.Join(dir, file)
	body := strings.Join([]string{
		"-- +goose Up",
		"-- +goose StatementBegin",
		"SELECT 1; -- " + slug,
		"-- +goose StatementEnd",
		"",
		"-- +goose Down",
		"-- +goose StatementBegin",
		"SELECT 1; -- revert " + slug,
		"-- +goose StatementEnd",
		"",
	}, "\n")

	// O_EXCL refuses to clobber a migration created in the same second.
	fh, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", path.Base(target), err)
	}
	if _, err := fh.WriteString(body); err != nil {
		_ = fh.Close()
		return "", fmt.Errorf("write %q: %w", target, err)
	}
	return target, fh.Close()
}
