// Package field manages on-disk field workspaces: a dataset path plus the
// reports generated for it.
package field

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/cropctx/internal/analysis"
	"github.com/KaramelBytes/cropctx/internal/utils"
)

const (
	// FileName marks a field workspace directory.
	FileName   = "field.json"
	reportsDir = "reports"
)

// Field represents a workspace persisted on disk.
type Field struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Dataset     string       `json:"dataset"`
	Reports     []*ReportRef `json:"reports"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	// Not serialized: on-disk location of field.json
	rootDir string `json:"-"`
}

// ReportRef describes a report saved in the workspace.
type ReportRef struct {
	ID             string    `json:"id"`
	File           string    `json:"file"`
	Dataset        string    `json:"dataset"`
	GeneratedAt    time.Time `json:"generated_at"`
	Headline       string    `json:"headline"`
	StabilityIndex float64   `json:"stability_index"`
	ContextFailure bool      `json:"context_failure"`
}

// New constructs an in-memory field. Call Save to persist.
func New(name, description, rootDir string) *Field {
	now := time.Now()
	return &Field{
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		rootDir:     rootDir,
	}
}

// Load reads field.json from dir.
func Load(dir string) (*Field, error) {
	path := filepath.Join(dir, FileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("field not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read field: %w", err)
	}
	var f Field
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse field: %w", err)
	}
	f.rootDir = dir
	return &f, nil
}

// Find locates the workspace containing start (a file or directory).
func Find(start string) (*Field, error) {
	dir, err := utils.FindRoot(start, FileName)
	if err != nil {
		return nil, err
	}
	return Load(dir)
}

// RootDir returns the on-disk workspace directory.
func (f *Field) RootDir() string { return f.rootDir }

// Save writes field.json using atomic write.
func (f *Field) Save() error {
	if f.rootDir == "" {
		return errors.New("field root directory not set")
	}
	if err := utils.EnsureDir(f.rootDir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	f.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(f)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(f.rootDir, FileName), data)
}

// SetDataset points the field at a dataset file. Relative paths are
// resolved against the working directory.
func (f *Field) SetDataset(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve dataset: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat dataset: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("dataset %s is a directory", abs)
	}
	f.Dataset = abs
	f.UpdatedAt = time.Now()
	return nil
}

// AttachReport writes body under reports/ and records it. The caller
// persists the field with Save.
func (f *Field) AttachReport(rep *analysis.Report, body []byte, ext string) (*ReportRef, error) {
	if f.rootDir == "" {
		return nil, errors.New("field root directory not set")
	}
	id := rep.ID
	if id == "" {
		id = uuid.NewString()
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "md"
	}
	dir := filepath.Join(f.rootDir, reportsDir)
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("ensure reports dir: %w", err)
	}
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	name := fmt.Sprintf("%s-%s.%s", rep.GeneratedAt.UTC().Format("20060102T150405Z"), short, ext)
	if err := utils.SafeWriteFile(filepath.Join(dir, name), body); err != nil {
		return nil, err
	}
	ref := &ReportRef{
		ID:             id,
		File:           filepath.Join(reportsDir, name),
		Dataset:        rep.Dataset,
		GeneratedAt:    rep.GeneratedAt,
		Headline:       rep.Headline(),
		StabilityIndex: rep.Stats.StabilityIndex,
		ContextFailure: rep.Stats.ContextFailure,
	}
	f.Reports = append(f.Reports, ref)
	f.UpdatedAt = time.Now()
	return ref, nil
}

// Latest returns the most recently generated report, or nil.
func (f *Field) Latest() *ReportRef {
	var latest *ReportRef
	for _, r := range f.Reports {
		if latest == nil || r.GeneratedAt.After(latest.GeneratedAt) {
			latest = r
		}
	}
	return latest
}

// List loads every field workspace directly under dir, sorted by name.
// Directories without field.json are skipped.
func List(dir string) ([]*Field, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read fields dir: %w", err)
	}
	var out []*Field
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		f, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
