package database

import (
	"context"
	"fmt"

	"github.com/secomp2025/cardgolf/models"
)

// RecordContest mirrors a contest log entry into the store.
func (s *Store) RecordContest(ctx context.Context, contest models.Contest) error {
	var one, two string
	if len(contest.Cards) > 0 {
		one = contest.Cards[0].Name
	}
	if len(contest.Cards) > 1 {
		two = contest.Cards[1].Name
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contest (key, post_id, card_one, card_two)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET post_id = excluded.post_id,
			card_one = excluded.card_one, card_two = excluded.card_two
	`, contest.Key, contest.PostID, one, two)
	if err != nil {
		return fmt.Errorf("record contest %s: %w", contest.Key, err)
	}
	return nil
}

// RecordResults replaces the stored results of a contest. Results must be
// ordered best first; rank 1 is the winner.
func (s *Store) RecordResults(ctx context.Context, contest models.Contest, results []models.ResultEntry) error {
	if err := s.RecordContest(ctx, contest); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM result WHERE contest_key = ?`, contest.Key); err != nil {
		return fmt.Errorf("clear results %s: %w", contest.Key, err)
	}
	for i, r := range results {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO result (contest_key, entrant, query, length, rank)
			VALUES (?, ?, ?, ?, ?)
		`, contest.Key, r.Name, r.Query, r.Length, i+1)
		if err != nil {
			return fmt.Errorf("insert result %s/%s: %w", contest.Key, r.Name, err)
		}
	}
	return tx.Commit()
}

// Standings aggregates every recorded result per entrant.
func (s *Store) Standings(ctx context.Context) ([]models.Standing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entrant,
		       SUM(CASE WHEN rank = 1 THEN 1 ELSE 0 END) AS wins,
		       COUNT(*) AS entries,
		       MIN(length) AS best
		FROM result
		GROUP BY entrant
		ORDER BY wins DESC, best ASC, entrant ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query standings: %w", err)
	}
	defer rows.Close()

	standings := []models.Standing{}
	for rows.Next() {
		var st models.Standing
		if err := rows.Scan(&st.Entrant, &st.Wins, &st.Entries, &st.BestLength); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		standings = append(standings, st)
	}
	return standings, rows.Err()
}
