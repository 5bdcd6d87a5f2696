package controllers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/secomp2025/cardgolf/config"
	"github.com/secomp2025/cardgolf/database"
	"github.com/secomp2025/cardgolf/game"
	"github.com/secomp2025/cardgolf/imaging"
	"github.com/secomp2025/cardgolf/models"
	"github.com/secomp2025/cardgolf/twitter"
	log "github.com/spf13/jwalterweatherman"
	"golang.org/x/sync/errgroup"
)

const maxDraws = 5

var ErrDuplicateCards = errors.New("no distinct cards drawn")

type CardSource interface {
	game.Searcher
	RandomCards(ctx context.Context, n int) ([]models.Card, error)
	DownloadImage(ctx context.Context, card models.Card, dir string) (string, error)
}

type Social interface {
	Post(ctx context.Context, message, imagePath string) (string, error)
	Search(ctx context.Context, query string, visit func(twitter.Tweet) bool) error
}

type StandingsRecorder interface {
	RecordContest(ctx context.Context, contest models.Contest) error
	RecordResults(ctx context.Context, contest models.Contest, results []models.ResultEntry) error
}

type ContestController struct {
	cfg       *config.Config
	cards     CardSource
	social    Social
	standings StandingsRecorder
	now       func() time.Time
}

// NewContestController wires the contest flow. standings may be nil.
func NewContestController(cfg *config.Config, cards CardSource, social Social, standings StandingsRecorder) *ContestController {
	return &ContestController{cfg: cfg, cards: cards, social: social, standings: standings, now: time.Now}
}

// Run is one scheduled invocation: optionally score the latest contest, then
// start a new contest unless one is still live.
func (c *ContestController) Run(ctx context.Context, scoreLatest, forceNew bool) error {
	if scoreLatest {
		if err := c.ScoreLatest(ctx); err != nil {
			return err
		}
	}

	if !forceNew {
		active, err := c.IsActive(ctx)
		if err != nil {
			return err
		}
		if active {
			return nil
		}
	}

	_, err := c.Start(ctx)
	return err
}

// IsActive reports whether the latest contest is still inside its window.
// A finished contest is scored before returning false.
func (c *ContestController) IsActive(ctx context.Context) (bool, error) {
	contests, err := database.LoadContestLog(c.cfg.Storage.ContestLog)
	if err != nil {
		return false, err
	}
	latest, ok := contests.Latest()
	if !ok {
		log.WARN.Println("Database was empty, continuing")
		return false, nil
	}

	start, err := latest.StartedAt()
	if err != nil {
		return false, fmt.Errorf("contest key %q: %w", latest.Key, err)
	}
	if game.IsOpen(start, c.now(), c.cfg.Contest.Window) {
		log.WARN.Printf("Current contest from %s still active", latest.Key)
		return true, nil
	}

	if err := c.close(ctx, latest); err != nil {
		return false, err
	}
	return false, nil
}

// ScoreLatest scores the most recent contest now. Results of a contest still
// inside its window are only logged; the results file is written once the
// contest is over.
func (c *ContestController) ScoreLatest(ctx context.Context) error {
	contests, err := database.LoadContestLog(c.cfg.Storage.ContestLog)
	if err != nil {
		return err
	}
	latest, ok := contests.Latest()
	if !ok {
		log.WARN.Println("No contest to score")
		return nil
	}

	start, err := latest.StartedAt()
	if err != nil {
		return fmt.Errorf("contest key %q: %w", latest.Key, err)
	}
	if !game.IsOpen(start, c.now(), c.cfg.Contest.Window) {
		return c.close(ctx, latest)
	}

	results, err := c.Scan(ctx, latest)
	if err != nil {
		return err
	}
	log.INFO.Printf("Contest %s still active, %d entries so far", latest.Key, len(results))
	for i, r := range results {
		log.INFO.Printf("%d. %s [ %s ] (%d)", i+1, r.Name, r.Query, r.Length)
	}
	return nil
}

func (c *ContestController) close(ctx context.Context, contest models.Contest) error {
	if _, err := os.Stat(database.ResultsPath(c.cfg.Storage.ResultsDir, contest.Key)); err == nil {
		log.INFO.Printf("Results for contest %s already written", contest.Key)
		return nil
	}

	results, err := c.Scan(ctx, contest)
	if err != nil {
		return err
	}

	path, err := database.WriteResults(c.cfg.Storage.ResultsDir, contest.Key, results)
	if errors.Is(err, database.ErrResultsExist) {
		log.WARN.Printf("Results for contest %s already written", contest.Key)
		return nil
	}
	if err != nil {
		return err
	}
	log.INFO.Printf("Wrote %d results for contest %s to %s", len(results), contest.Key, path)

	if c.standings != nil {
		if err := c.standings.RecordResults(ctx, contest, results); err != nil {
			log.ERROR.Printf("Failed to record standings for %s: %v", contest.Key, err)
		}
	}
	return nil
}

// Scan collects the accepted entries for contest, best (shortest) first. The
// walk stops at the bot's own post, at replies older than the contest, or
// when the platform throttles the search.
func (c *ContestController) Scan(ctx context.Context, contest models.Contest) ([]models.ResultEntry, error) {
	log.INFO.Println("CONTEST OVER -- RESULTS")

	start, err := contest.StartedAt()
	if err != nil {
		return nil, fmt.Errorf("contest key %q: %w", contest.Key, err)
	}
	judge := game.NewJudge(c.cards, contest.CardNames())

	results := []models.ResultEntry{}
	err = c.social.Search(ctx, c.cfg.Contest.Hashtag, func(tw twitter.Tweet) bool {
		entrant := tw.User.ScreenName
		log.DEBUG.Printf("%s: %s", entrant, tw.Body())

		if strings.EqualFold(entrant, c.cfg.Twitter.Username) {
			return false
		}
		if ts := tw.Time(); !ts.IsZero() && ts.Before(start) {
			log.DEBUG.Printf("Reached replies older than contest %s", contest.Key)
			return false
		}

		for _, u := range tw.Entities.URLs {
			if !strings.Contains(u.ExpandedURL, "scryfall.com") {
				continue
			}
			log.DEBUG.Printf("%s submitted solution: %s", entrant, u.ExpandedURL)
			if v := judge.Check(ctx, entrant, u.ExpandedURL); v.Accepted() {
				results = append(results, models.ResultEntry{
					Name:   entrant,
					Query:  v.Query,
					Length: v.Length,
				})
			}
		}
		return true
	})
	if errors.Is(err, twitter.ErrRateLimited) {
		log.WARN.Printf("Results scan for %s stopped early: %v", contest.Key, err)
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("search replies: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Length < results[j].Length
	})
	return results, nil
}

// Start draws the cards, posts the contest and records it in the contest log.
func (c *ContestController) Start(ctx context.Context) (models.Contest, error) {
	runID := uuid.New()
	log.INFO.Printf("Starting contest run %s", runID)

	if err := c.clearCardDir(); err != nil {
		return models.Contest{}, err
	}
	workDir := filepath.Join(c.cfg.Storage.CardDir, runID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return models.Contest{}, fmt.Errorf("create card dir: %w", err)
	}

	cards, err := c.drawCards(ctx)
	if err != nil {
		return models.Contest{}, err
	}
	for _, card := range cards {
		log.DEBUG.Printf("Card to merge: %s", card.Name)
	}

	image, err := c.composeImage(ctx, cards, workDir)
	if err != nil {
		return models.Contest{}, err
	}

	message := game.Message(cards, c.cfg.Contest.Hashtag, c.cfg.Contest.Window)
	postID, err := c.social.Post(ctx, message, image)
	if err != nil {
		return models.Contest{}, fmt.Errorf("post contest: %w", err)
	}

	entry := models.ContestEntry{PostID: postID}
	for _, card := range cards {
		entry.Cards = append(entry.Cards, card.Ref())
	}
	contest := models.Contest{Key: models.NewKey(c.now()), ContestEntry: entry}
	if _, err := database.AppendContest(c.cfg.Storage.ContestLog, contest.Key, entry); err != nil {
		return models.Contest{}, err
	}
	log.INFO.Printf("Started contest %s with post %s", contest.Key, postID)

	if c.standings != nil {
		if err := c.standings.RecordContest(ctx, contest); err != nil {
			log.ERROR.Printf("Failed to record contest %s: %v", contest.Key, err)
		}
	}
	return contest, nil
}

// drawCards draws the contest cards, redrawing while any two share a name.
func (c *ContestController) drawCards(ctx context.Context) ([]models.Card, error) {
	for attempt := 1; attempt <= maxDraws; attempt++ {
		cards, err := c.cards.RandomCards(ctx, c.cfg.Contest.Cards)
		if err != nil {
			return nil, fmt.Errorf("fetch random cards: %w", err)
		}
		if distinctNames(cards) {
			return cards, nil
		}
		log.INFO.Printf("Drew the same card twice, redrawing (%d/%d)", attempt, maxDraws)
	}
	return nil, fmt.Errorf("%w after %d draws", ErrDuplicateCards, maxDraws)
}

func distinctNames(cards []models.Card) bool {
	seen := make(map[string]bool, len(cards))
	for _, card := range cards {
		if seen[card.Name] {
			return false
		}
		seen[card.Name] = true
	}
	return true
}

func (c *ContestController) composeImage(ctx context.Context, cards []models.Card, dir string) (string, error) {
	paths := make([]string, len(cards))
	g, gctx := errgroup.WithContext(ctx)
	for i, card := range cards {
		g.Go(func() error {
			path, err := c.cards.DownloadImage(gctx, card, dir)
			if err != nil {
				return fmt.Errorf("download %s: %w", card.Name, err)
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	names := make([]string, len(cards))
	for i, card := range cards {
		names[i] = card.FileName()
	}
	out := filepath.Join(dir, strings.Join(names, "-")+".png")
	if err := imaging.Merge(paths, out); err != nil {
		return "", fmt.Errorf("merge card images: %w", err)
	}
	imaging.Fit(out, c.cfg.Contest.MaxWidth, c.cfg.Contest.MaxHeight)
	return out, nil
}

// clearCardDir removes card images and work directories left by earlier runs.
func (c *ContestController) clearCardDir() error {
	entries, err := os.ReadDir(c.cfg.Storage.CardDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read card dir: %w", err)
	}

	for _, e := range entries {
		path := filepath.Join(c.cfg.Storage.CardDir, e.Name())
		switch {
		case e.IsDir():
			if _, err := uuid.Parse(e.Name()); err != nil {
				continue
			}
			err = os.RemoveAll(path)
		case filepath.Ext(e.Name()) == ".png":
			err = os.Remove(path)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
		log.DEBUG.Printf("Deleting file %s", path)
	}
	return nil
}
