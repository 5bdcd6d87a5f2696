package controllers

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/secomp2025/cardgolf/config"
	"github.com/secomp2025/cardgolf/database"
	"github.com/secomp2025/cardgolf/models"
	"github.com/secomp2025/cardgolf/scryfall"
	"github.com/secomp2025/cardgolf/twitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCards struct {
	deck     []models.Card
	searches map[string]scryfall.SearchResult
	drawn    int
}

func (f *fakeCards) RandomCards(_ context.Context, n int) ([]models.Card, error) {
	cards := make([]models.Card, 0, n)
	for i := 0; i < n; i++ {
		cards = append(cards, f.deck[f.drawn%len(f.deck)])
		f.drawn++
	}
	return cards, nil
}

func (f *fakeCards) DownloadImage(_ context.Context, card models.Card, dir string) (string, error) {
	path := filepath.Join(dir, card.FileName()+".png")
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()
	return path, png.Encode(out, image.NewRGBA(image.Rect(0, 0, 600, 400)))
}

func (f *fakeCards) Search(_ context.Context, query string) (scryfall.SearchResult, error) {
	result, ok := f.searches[query]
	if !ok {
		return scryfall.SearchResult{}, scryfall.ErrNotFound
	}
	return result, nil
}

type fakeSocial struct {
	posts   []string
	images  []string
	tweets  []twitter.Tweet
	postErr error
	limitAt int
	visited int
}

func (f *fakeSocial) Post(_ context.Context, message, imagePath string) (string, error) {
	if f.postErr != nil {
		return "", f.postErr
	}
	f.posts = append(f.posts, message)
	f.images = append(f.images, imagePath)
	return "post-1", nil
}

func (f *fakeSocial) Search(_ context.Context, _ string, visit func(twitter.Tweet) bool) error {
	for i, tw := range f.tweets {
		if f.limitAt > 0 && i == f.limitAt {
			return twitter.ErrRateLimited
		}
		f.visited++
		if !visit(tw) {
			return nil
		}
	}
	return nil
}

type fakeStandings struct {
	contests []models.Contest
	results  map[string][]models.ResultEntry
}

func (f *fakeStandings) RecordContest(_ context.Context, contest models.Contest) error {
	f.contests = append(f.contests, contest)
	return nil
}

func (f *fakeStandings) RecordResults(_ context.Context, contest models.Contest, results []models.ResultEntry) error {
	if f.results == nil {
		f.results = map[string][]models.ResultEntry{}
	}
	f.results[contest.Key] = results
	return nil
}

var (
	elves  = models.Card{Name: "Llanowar Elves", CanonicalURL: "https://scryfall.com/card/m19/314"}
	mystic = models.Card{Name: "Elvish Mystic", CanonicalURL: "https://scryfall.com/card/m14/169"}
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Twitter: config.TwitterConfig{Username: "CardGolfBot"},
		Contest: config.ContestConfig{
			Hashtag:   "#ScryfallCardGolf",
			Window:    24 * time.Hour,
			Cards:     2,
			MaxWidth:  1024,
			MaxHeight: 512,
		},
		Storage: config.StorageConfig{
			ContestLog: filepath.Join(dir, "contests.json"),
			ResultsDir: dir,
			CardDir:    filepath.Join(dir, "cards"),
		},
	}
}

func reply(user, url string) twitter.Tweet {
	return twitter.Tweet{
		User:     twitter.User{ScreenName: user},
		Text:     "#ScryfallCardGolf " + url,
		Entities: twitter.Entities{URLs: []twitter.URLEntity{{ExpandedURL: url}}},
	}
}

func newController(t *testing.T) (*ContestController, *fakeCards, *fakeSocial, *fakeStandings) {
	cards := &fakeCards{
		deck: []models.Card{elves, mystic},
		searches: map[string]scryfall.SearchResult{
			"t:elf cmc=1 c:g":  {TotalCards: 2, Names: []string{"Llanowar Elves", "Elvish Mystic"}},
			"t:elf c:g cmc<2":  {TotalCards: 2, Names: []string{"Elvish Mystic", "Llanowar Elves"}},
			"t:elf":            {TotalCards: 3, Names: []string{"Llanowar Elves", "Elvish Mystic", "Fyndhorn Elves"}},
			"t:elf or t:druid": {TotalCards: 2, Names: []string{"Llanowar Elves", "Elvish Mystic"}},
		},
	}
	social := &fakeSocial{}
	standings := &fakeStandings{}
	return NewContestController(testConfig(t), cards, social, standings), cards, social, standings
}

func TestIsActive_EmptyLog(t *testing.T) {
	c, _, social, _ := newController(t)

	active, err := c.IsActive(context.Background())
	require.NoError(t, err)
	assert.False(t, active)
	assert.Zero(t, social.visited)
}

func TestRun_ForcedThenNoOp(t *testing.T) {
	ctx := context.Background()
	c, _, social, standings := newController(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Run(ctx, false, true))

	contests, err := database.LoadContestLog(c.cfg.Storage.ContestLog)
	require.NoError(t, err)
	require.Len(t, contests, 1)
	latest, _ := contests.Latest()
	assert.Equal(t, "2024-03-01_09:00:00", latest.Key)
	assert.Equal(t, "post-1", latest.PostID)
	assert.Equal(t, []models.CardRef{elves.Ref(), mystic.Ref()}, latest.Cards)
	require.Len(t, standings.contests, 1)

	require.Len(t, social.images, 1)
	assert.Equal(t, "Llanowar Elves-Elvish Mystic.png", filepath.Base(social.images[0]))
	assert.Contains(t, social.posts[0], "• Llanowar Elves: https://scryfall.com/card/m19/314")

	// 1200x400 merged image is scaled into 1024x512
	f, err := os.Open(social.images[0])
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Width)
	assert.Equal(t, 341, cfg.Height)

	now = now.Add(23 * time.Hour)
	require.NoError(t, c.Run(ctx, false, false))

	contests, err = database.LoadContestLog(c.cfg.Storage.ContestLog)
	require.NoError(t, err)
	assert.Len(t, contests, 1)
	assert.Len(t, social.posts, 1)
}

func TestRun_ClosedContestScoredThenRestarted(t *testing.T) {
	ctx := context.Background()
	c, _, social, standings := newController(t)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
	c.now = func() time.Time { return start }
	require.NoError(t, c.Run(ctx, false, true))

	social.tweets = []twitter.Tweet{
		reply("alice", "https://scryfall.com/search?q=t%3Aelf+cmc%3D1+c%3Ag"),
		reply("bob", "https://scryfall.com/search?q=t%3Aelf"),
		reply("carol", "https://scryfall.com/search?q=t%3Aelf+or+t%3Adruid"),
		reply("dave", "https://example.com/search?q=t%3Aelf+cmc%3D1+c%3Ag"),
		reply("erin", "https://scryfall.com/search?q=t%3Aelf+c%3Ag+cmc%3C2"),
		reply("CardGolfBot", "https://scryfall.com/card/m19/314"),
		reply("frank", "https://scryfall.com/search?q=t%3Aelf+cmc%3D1+c%3Ag"),
	}

	c.now = func() time.Time { return start.Add(25 * time.Hour) }
	require.NoError(t, c.Run(ctx, false, false))

	results, err := database.LoadResults(c.cfg.Storage.ResultsDir, "2024-03-01_09:00:00")
	require.NoError(t, err)
	assert.Equal(t, []models.ResultEntry{
		{Name: "alice", Query: "t:elf cmc=1 c:g", Length: 15},
		{Name: "erin", Query: "t:elf c:g cmc<2", Length: 15},
	}, results)
	assert.Equal(t, 6, social.visited, "scan stops at the bot's own post")
	assert.Equal(t, results, standings.results["2024-03-01_09:00:00"])

	contests, err := database.LoadContestLog(c.cfg.Storage.ContestLog)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01_09:00:00", "2024-03-02_10:00:00"}, contests.Keys())
}

func TestScan_RateLimitedKeepsPartialResults(t *testing.T) {
	c, _, social, _ := newController(t)
	social.tweets = []twitter.Tweet{
		reply("alice", "https://scryfall.com/search?q=t%3Aelf+cmc%3D1+c%3Ag"),
		reply("erin", "https://scryfall.com/search?q=t%3Aelf+c%3Ag+cmc%3C2"),
	}
	social.limitAt = 1
	contest := models.Contest{Key: "2024-03-01_09:00:00", ContestEntry: models.ContestEntry{
		PostID: "1", Cards: []models.CardRef{elves.Ref(), mystic.Ref()},
	}}

	results, err := c.Scan(context.Background(), contest)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].Name)
}

func TestScan_StopsAtRepliesOlderThanContest(t *testing.T) {
	c, _, social, _ := newController(t)
	old := reply("alice", "https://scryfall.com/search?q=t%3Aelf+cmc%3D1+c%3Ag")
	old.CreatedAt = "Thu Feb 29 09:00:00 +0000 2024"
	social.tweets = []twitter.Tweet{old, reply("erin", "https://scryfall.com/search?q=t%3Aelf+c%3Ag+cmc%3C2")}
	contest := models.Contest{Key: "2024-03-01_09:00:00", ContestEntry: models.ContestEntry{
		Cards: []models.CardRef{elves.Ref(), mystic.Ref()},
	}}

	results, err := c.Scan(context.Background(), contest)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, social.visited)
}

func TestScoreLatest_WritesOnce(t *testing.T) {
	ctx := context.Background()
	c, _, social, _ := newController(t)
	_, err := database.AppendContest(c.cfg.Storage.ContestLog, "2024-03-01_09:00:00", models.ContestEntry{
		PostID: "1", Cards: []models.CardRef{elves.Ref(), mystic.Ref()},
	})
	require.NoError(t, err)
	social.tweets = []twitter.Tweet{reply("alice", "https://scryfall.com/search?q=t%3Aelf+cmc%3D1+c%3Ag")}

	require.NoError(t, c.ScoreLatest(ctx))
	require.NoError(t, c.ScoreLatest(ctx))

	assert.Equal(t, 1, social.visited)
	results, err := database.LoadResults(c.cfg.Storage.ResultsDir, "2024-03-01_09:00:00")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestStart_PostFailureWritesNothing(t *testing.T) {
	c, _, social, standings := newController(t)
	social.postErr = twitter.ErrUnencodable

	_, err := c.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, twitter.ErrUnencodable))

	contests, err := database.LoadContestLog(c.cfg.Storage.ContestLog)
	require.NoError(t, err)
	assert.Empty(t, contests)
	assert.Empty(t, standings.contests)
}

func TestStart_ClearsPreviousRuns(t *testing.T) {
	c, _, _, _ := newController(t)
	cardDir := c.cfg.Storage.CardDir
	require.NoError(t, os.MkdirAll(filepath.Join(cardDir, "keep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cardDir, "stale.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cardDir, "notes.txt"), []byte("x"), 0o644))

	first, err := c.Start(context.Background())
	require.NoError(t, err)
	c.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = c.Start(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, first.Key)

	entries, err := os.ReadDir(cardDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Len(t, names, 3, "keep, notes.txt and the latest run directory remain: %v", names)
	assert.Contains(t, names, "keep")
	assert.Contains(t, names, "notes.txt")
	assert.NotContains(t, names, "stale.png")
}

func TestRun_InterimResultsDoNotFreezeContest(t *testing.T) {
	ctx := context.Background()
	c, _, social, standings := newController(t)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
	c.now = func() time.Time { return start }
	require.NoError(t, c.Run(ctx, false, true))

	c.now = func() time.Time { return start.Add(2 * time.Hour) }
	require.NoError(t, c.Run(ctx, true, false))

	_, err := database.LoadResults(c.cfg.Storage.ResultsDir, "2024-03-01_09:00:00")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, standings.results)
	assert.Len(t, social.posts, 1)

	social.tweets = []twitter.Tweet{reply("alice", "https://scryfall.com/search?q=t%3Aelf+cmc%3D1+c%3Ag")}
	c.now = func() time.Time { return start.Add(25 * time.Hour) }
	require.NoError(t, c.Run(ctx, false, false))

	results, err := database.LoadResults(c.cfg.Storage.ResultsDir, "2024-03-01_09:00:00")
	require.NoError(t, err)
	assert.Equal(t, []models.ResultEntry{{Name: "alice", Query: "t:elf cmc=1 c:g", Length: 15}}, results)
	assert.Equal(t, results, standings.results["2024-03-01_09:00:00"])
}

func TestStart_RedrawsDuplicateCards(t *testing.T) {
	c, cards, _, _ := newController(t)
	cards.deck = []models.Card{elves, elves, mystic, elves}

	contest, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.CardRef{mystic.Ref(), elves.Ref()}, contest.Cards)
	assert.Equal(t, 4, cards.drawn)
}

func TestStart_GivesUpOnDuplicateCards(t *testing.T) {
	c, cards, social, _ := newController(t)
	cards.deck = []models.Card{elves}

	_, err := c.Start(context.Background())
	assert.ErrorIs(t, err, ErrDuplicateCards)
	assert.Equal(t, 2*maxDraws, cards.drawn)
	assert.Empty(t, social.posts)
}
