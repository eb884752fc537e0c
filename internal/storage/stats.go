package storage

import (
	"path/filepath"
	"strings"

	"github.com/nao1215/boxhunt/internal/model"
)

// Stats summarises the data directory. Counts follow the current outcome of
// each candidate, so a reset failure that later downloaded counts once.
func (m *Manager) Stats() (*model.Stats, error) {
	stats := model.NewStats()

	var widthSum, heightSum int64
	err := m.eachDomain(func(name string, records []model.ImageRecord) {
		stats.Records += len(records)
		for _, r := range latestByCandidate(records) {
			stats.Candidates++
			stats.ByStatus[r.Status]++
			if r.Status != model.StatusDownloaded {
				continue
			}
			stats.Images++
			stats.TotalBytes += r.FileSize
			stats.BySource[r.SourceID]++
			stats.ByDomain[name]++
			stats.ByFormat[formatOf(r.Filename)]++
			widthSum += int64(r.Width)
			heightSum += int64(r.Height)
		}
	})
	if err != nil {
		return nil, err
	}

	if stats.Images > 0 {
		stats.AverageWidth = float64(widthSum) / float64(stats.Images)
		stats.AverageHeight = float64(heightSum) / float64(stats.Images)
	}

	states, err := m.States()
	if err != nil {
		return nil, err
	}
	for _, s := range states {
		stats.Pairs[s.Status]++
	}
	return stats, nil
}

func formatOf(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case "":
		return "unknown"
	case "jpeg":
		return "jpg"
	default:
		return ext
	}
}
