package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/boxhunt/internal/model"
)

// CleanupResult lists what CleanupOrphans found.
type CleanupResult struct {
	// Orphans are image files no downloaded row refers to, relative to the data dir.
	Orphans []string
	// TempFiles are leftovers of interrupted atomic writes.
	TempFiles []string
	// Bytes is the combined size of every listed file.
	Bytes int64
	// DryRun is true when nothing was removed.
	DryRun bool
}

// Count returns the number of listed files.
func (r *CleanupResult) Count() int {
	return len(r.Orphans) + len(r.TempFiles)
}

// CleanupOrphans removes image files without a downloaded ledger row and stale
// temp files in the image and checkpoint directories. With dryRun nothing is
// removed.
//
// It must not run concurrently with a crawl on the same data directory: an
// image that is between its rename and its ledger append looks orphaned.
func (m *Manager) CleanupOrphans(dryRun bool) (*CleanupResult, error) {
	result := &CleanupResult{DryRun: dryRun}

	names, err := m.Domains()
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		records, err := m.DomainRecords(name)
		if err != nil {
			return nil, err
		}
		referenced := make(map[string]struct{})
		for _, r := range records {
			if r.Status == model.StatusDownloaded && r.Filename != "" {
				referenced[r.Filename] = struct{}{}
			}
		}

		for _, sub := range []string{ImagesDir, StateDir} {
			dir := filepath.Join(m.dataDir, name, sub)
			entries, err := os.ReadDir(dir)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%w: list %s: %w", ErrStorage, dir, err)
			}

			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				isTemp := strings.HasSuffix(e.Name(), tempSuffix)
				if !isTemp {
					if sub == StateDir {
						continue
					}
					if _, ok := referenced[e.Name()]; ok {
						continue
					}
				}

				if err := m.removeListed(result, dir, e, isTemp); err != nil {
					return nil, err
				}
			}
		}
	}
	return result, nil
}

func (m *Manager) removeListed(result *CleanupResult, dir string, e fs.DirEntry, isTemp bool) error {
	path := filepath.Join(dir, e.Name())
	rel, err := filepath.Rel(m.dataDir, path)
	if err != nil {
		rel = path
	}

	if info, err := e.Info(); err == nil {
		result.Bytes += info.Size()
	}
	if isTemp {
		result.TempFiles = append(result.TempFiles, rel)
	} else {
		result.Orphans = append(result.Orphans, rel)
	}

	if result.DryRun {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", ErrStorage, rel, err)
	}
	m.logger.Info("removed file", "path", rel, "temp", isTemp)
	return nil
}
