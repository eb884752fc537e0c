package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nao1215/boxhunt/internal/model"
)

const stateExt = ".json"

var errCorruptCheckpoint = errors.New("corrupt checkpoint")

// StateFilename returns the checkpoint file name of a pair.
func StateFilename(keyword, sourceID string) string {
	return model.KeywordStem(keyword) + "__" + fileSafe(sourceID) + stateExt
}

// LoadState reads the checkpoint of a pair. The boolean is false when the
// pair has never been checkpointed.
func (m *Manager) LoadState(domainName, keyword, sourceID string) (*model.CrawlState, bool, error) {
	d, err := m.domain(domainName)
	if err != nil {
		return nil, false, err
	}

	path := filepath.Join(d.dir, StateDir, StateFilename(keyword, sourceID))
	state, err := readState(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if errors.Is(err, errCorruptCheckpoint) {
		m.logger.Warn("ignoring corrupt checkpoint", "domain", domainName, "keyword", keyword, "source", sourceID, "error", err)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

// SaveState writes a checkpoint through a synced temp file and a rename, so a
// reader sees either the previous or the new checkpoint.
func (m *Manager) SaveState(state *model.CrawlState) error {
	d, err := m.domain(state.Domain)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode checkpoint: %w", ErrStorage, err)
	}
	return writeFileAtomic(filepath.Join(d.dir, StateDir), StateFilename(state.Keyword, state.SourceID), data)
}

// States returns every checkpoint of every domain, ordered by domain, then
// source, then creation time. Unreadable checkpoints are logged and skipped; their pairs are
// simply started again.
func (m *Manager) States() ([]*model.CrawlState, error) {
	names, err := m.Domains()
	if err != nil {
		return nil, err
	}

	var states []*model.CrawlState
	for _, name := range names {
		dir := filepath.Join(m.dataDir, name, StateDir)
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: list checkpoints of %s: %w", ErrStorage, name, err)
		}

		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), stateExt) {
				continue
			}
			state, err := readState(filepath.Join(dir, e.Name()))
			if err != nil {
				m.logger.Warn("skipping unreadable checkpoint", "domain", name, "file", e.Name(), "error", err)
				continue
			}
			if state.Domain == "" {
				state.Domain = name
			}
			states = append(states, state)
		}
	}

	sort.SliceStable(states, func(i, j int) bool {
		a, b := states[i], states[j]
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return states, nil
}

func readState(path string) (*model.CrawlState, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the data dir
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read checkpoint: %w", ErrStorage, err)
	}

	var state model.CrawlState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w %s: %w", errCorruptCheckpoint, filepath.Base(path), err)
	}
	return &state, nil
}
