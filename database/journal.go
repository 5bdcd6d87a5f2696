package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/secomp2025/cardgolf/models"
)

var (
	ErrNonMonotonicKey = errors.New("contest key does not follow the latest contest")
	ErrResultsExist    = errors.New("results already written for contest")
)

// ContestLog is the JSON contest log: contest key -> entry.
type ContestLog map[string]models.ContestEntry

// LoadContestLog reads the log at path. A missing file is an empty log.
func LoadContestLog(path string) (ContestLog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ContestLog{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read contest log: %w", err)
	}

	contests := ContestLog{}
	if len(data) == 0 {
		return contests, nil
	}
	if err := json.Unmarshal(data, &contests); err != nil {
		return nil, fmt.Errorf("decode contest log %s: %w", path, err)
	}
	return contests, nil
}

func (l ContestLog) Keys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Latest returns the contest with the greatest key.
func (l ContestLog) Latest() (models.Contest, bool) {
	keys := l.Keys()
	if len(keys) == 0 {
		return models.Contest{}, false
	}
	key := keys[len(keys)-1]
	return models.Contest{Key: key, ContestEntry: l[key]}, true
}

func (l ContestLog) Get(key string) (models.Contest, bool) {
	entry, ok := l[key]
	if !ok {
		return models.Contest{}, false
	}
	return models.Contest{Key: key, ContestEntry: entry}, true
}

// AppendContest adds entry under key and rewrites the log at path. The key
// must be greater than every key already in the log.
func AppendContest(path, key string, entry models.ContestEntry) (ContestLog, error) {
	contests, err := LoadContestLog(path)
	if err != nil {
		return nil, err
	}
	if latest, ok := contests.Latest(); ok && key <= latest.Key {
		return nil, fmt.Errorf("%w: %s <= %s", ErrNonMonotonicKey, key, latest.Key)
	}

	contests[key] = entry
	if err := writeJSON(path, contests); err != nil {
		return nil, fmt.Errorf("write contest log: %w", err)
	}
	return contests, nil
}

func ResultsPath(dir, key string) string {
	return filepath.Join(dir, "winners_"+key+".json")
}

// WriteResults creates the results file for the contest key. Results are
// written once: an existing file is left alone and ErrResultsExist returned.
func WriteResults(dir, key string, results []models.ResultEntry) (string, error) {
	path := ResultsPath(dir, key)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%w: %s", ErrResultsExist, key)
	}
	if results == nil {
		results = []models.ResultEntry{}
	}
	if err := writeJSON(path, results); err != nil {
		return path, fmt.Errorf("write results: %w", err)
	}
	return path, nil
}

func LoadResults(dir, key string) ([]models.ResultEntry, error) {
	data, err := os.ReadFile(ResultsPath(dir, key))
	if err != nil {
		return nil, err
	}
	var results []models.ResultEntry
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", key, err)
	}
	return results, nil
}

// writeJSON replaces path with the indented encoding of v via a temp file in
// the same directory.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
