package game

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/secomp2025/cardgolf/scryfall"
	log "github.com/spf13/jwalterweatherman"
)

// Reason explains why an entry was rejected. The empty reason means accepted.
type Reason string

const (
	Accepted        Reason = ""
	RejectBadURL    Reason = "bad_url"
	RejectSearch    Reason = "search_failed"
	RejectCardCount Reason = "card_count"
	RejectWrongCard Reason = "wrong_card"
	RejectUsesOr    Reason = "uses_or"
)

type Verdict struct {
	Query  string
	Length int // characters, not bytes
	Reason Reason
	Detail string
}

func (v Verdict) Accepted() bool {
	return v.Reason == Accepted
}

// Searcher runs a card query.
type Searcher interface {
	Search(ctx context.Context, query string) (scryfall.SearchResult, error)
}

// Judge scores entries against one contest's pair of cards.
type Judge struct {
	searcher Searcher
	cards    map[string]bool
}

func NewJudge(searcher Searcher, cardNames []string) *Judge {
	cards := make(map[string]bool, len(cardNames))
	for _, name := range cardNames {
		cards[name] = true
	}
	return &Judge{searcher: searcher, cards: cards}
}

// Check re-runs the query embedded in searchURL and decides whether it
// returns exactly the contest cards without the "or" connective.
func (j *Judge) Check(ctx context.Context, entrant, searchURL string) Verdict {
	query, err := QueryFromURL(searchURL)
	if err != nil {
		log.INFO.Printf("%s submitted a bad Scryfall URL: %s", entrant, searchURL)
		return Verdict{Reason: RejectBadURL, Detail: err.Error()}
	}

	result, err := j.searcher.Search(ctx, query)
	if err != nil {
		log.INFO.Printf("%s query failed [ %s ]: %v", entrant, query, err)
		return Verdict{Query: query, Reason: RejectSearch, Detail: err.Error()}
	}

	if result.TotalCards != len(j.cards) || len(result.Names) != len(j.cards) {
		log.INFO.Printf("%s result has wrong number of cards: %d", entrant, result.TotalCards)
		return Verdict{Query: query, Reason: RejectCardCount, Detail: fmt.Sprintf("%d cards", result.TotalCards)}
	}

	seen := make(map[string]bool, len(result.Names))
	for _, name := range result.Names {
		if !j.cards[name] || seen[name] {
			log.INFO.Printf("%s result has wrong card: %s", entrant, name)
			return Verdict{Query: query, Reason: RejectWrongCard, Detail: name}
		}
		seen[name] = true
	}

	if UsesOr(query) {
		log.INFO.Printf("%s was correct, but they used 'OR': %s", entrant, query)
		return Verdict{Query: query, Reason: RejectUsesOr}
	}

	length := utf8.RuneCountInString(query)
	log.INFO.Printf("%s was correct! [ %s ] (%d)", entrant, query, length)
	return Verdict{Query: query, Length: length}
}

// QueryFromURL extracts the q parameter of a Scryfall search URL.
func QueryFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	query := strings.TrimSpace(u.Query().Get("q"))
	if query == "" {
		return "", errors.New("no q parameter")
	}
	return query, nil
}

// UsesOr reports whether query contains the "or" connective, in any case,
// as a standalone word outside double-quoted text.
func UsesOr(query string) bool {
	quoted := false
	var word strings.Builder
	flush := func() bool {
		hit := strings.EqualFold(word.String(), "or")
		word.Reset()
		return hit
	}

	for _, r := range query {
		switch {
		case r == '"':
			if flush() && !quoted {
				return true
			}
			quoted = !quoted
		case quoted:
		case unicode.IsSpace(r) || r == '(' || r == ')':
			if flush() {
				return true
			}
		default:
			word.WriteRune(r)
		}
	}
	return !quoted && flush()
}
