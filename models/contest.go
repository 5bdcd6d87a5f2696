package models

import (
	"strings"
	"time"
)

// KeyLayout formats contest keys. Keys sort in creation order.
const KeyLayout = "2006-01-02_15:04:05"

type Card struct {
	Name         string
	ImageURL     string
	CanonicalURL string
}

// FileName is the card name made safe for use in a path.
func (c Card) FileName() string {
	return strings.ReplaceAll(c.Name, "//", "_")
}

func (c Card) Ref() CardRef {
	return CardRef{Name: c.Name, URL: c.CanonicalURL}
}

type CardRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type ContestEntry struct {
	PostID string    `json:"tweet_id"`
	Cards  []CardRef `json:"cards"`
}

func (e ContestEntry) CardNames() []string {
	names := make([]string, 0, len(e.Cards))
	for _, c := range e.Cards {
		names = append(names, c.Name)
	}
	return names
}

// Contest is a log entry together with its key.
type Contest struct {
	Key string
	ContestEntry
}

func (c Contest) StartedAt() (time.Time, error) {
	return ParseKey(c.Key)
}

type ResultEntry struct {
	Name   string `json:"name"`
	Query  string `json:"query"`
	Length int    `json:"length"`
}

type Standing struct {
	Entrant    string `json:"entrant"`
	Wins       int    `json:"wins"`
	Entries    int    `json:"entries"`
	BestLength int    `json:"best_length"`
}

func NewKey(t time.Time) string {
	return t.In(time.Local).Format(KeyLayout)
}

func ParseKey(key string) (time.Time, error) {
	return time.ParseInLocation(KeyLayout, key, time.Local)
}
