package store

import (
	"context"

	"questionforum/pkg/models"
)

// answerColumns takes the viewer's user id as its first parameter so each
// answer carries that viewer's own rating.
const answerColumns = `
	SELECT a.id, a.question_id, a.content, u.username, a.author_id, a.created_at,
		COALESCE((SELECT r.rating FROM ratings r WHERE r.answer_id = a.id AND r.user_id = ?1), 0),
		COALESCE((SELECT ROUND(AVG(r.rating), 2) FROM ratings r WHERE r.answer_id = a.id), 0),
		(SELECT COUNT(*) FROM ratings r WHERE r.answer_id = a.id)
	FROM answers a
	JOIN users u ON u.id = a.author_id`

func scanAnswer(s scanner) (models.Answer, error) {
	var a models.Answer
	err := s.Scan(&a.ID, &a.QuestionID, &a.Content, &a.AuthorUsername, &a.AuthorID, &a.CreatedAt,
		&a.UserRating, &a.AverageRating, &a.RatingCount)
	return a, err
}

// ListAnswers returns one page of a question's answers, oldest first.
// viewerID is 0 for nobody in particular.
func (db *DB) ListAnswers(ctx context.Context, questionID, viewerID int, q models.ListQuery) (models.Page[models.Answer], error) {
	q = normalizeQuery(q)

	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM questions WHERE id = ?)`, questionID).Scan(&exists); err != nil {
		return models.Page[models.Answer]{}, err
	}
	if !exists {
		return models.Page[models.Answer]{}, models.ErrNotFound
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM answers WHERE question_id = ?`, questionID).Scan(&count); err != nil {
		return models.Page[models.Answer]{}, err
	}

	rows, err := db.QueryContext(ctx, answerColumns+`
		WHERE a.question_id = ?2
		ORDER BY a.created_at, a.id
		LIMIT ?3 OFFSET ?4
	`, viewerID, questionID, q.PerPage, (q.Page-1)*q.PerPage)
	if err != nil {
		return models.Page[models.Answer]{}, err
	}
	defer rows.Close()

	answers := []models.Answer{}
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return models.Page[models.Answer]{}, err
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.Answer]{}, err
	}
	return models.Page[models.Answer]{
		Items:      answers,
		TotalPages: totalPages(count, q.PerPage),
		TotalCount: count,
	}, nil
}

func (db *DB) Answer(ctx context.Context, id, viewerID int) (models.Answer, error) {
	return db.answer(ctx, db, id, viewerID)
}

func (db *DB) answer(ctx context.Context, qr querier, id, viewerID int) (models.Answer, error) {
	a, err := scanAnswer(qr.QueryRowContext(ctx, answerColumns+` WHERE a.id = ?2`, viewerID, id))
	if err != nil {
		return models.Answer{}, notFound(err)
	}
	return a, nil
}

// CreateAnswer stores an answer to an existing question.
func (db *DB) CreateAnswer(ctx context.Context, authorID int, d models.AnswerDraft) (models.Answer, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return models.Answer{}, err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM questions WHERE id = ?)`, d.QuestionID).Scan(&exists); err != nil {
		return models.Answer{}, err
	}
	if !exists {
		return models.Answer{}, models.ErrNotFound
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO answers (question_id, author_id, content, created_at)
		VALUES (?, ?, ?, ?)
	`, d.QuestionID, authorID, d.Content, db.now().UTC())
	if err != nil {
		return models.Answer{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Answer{}, err
	}
	a, err := db.answer(ctx, tx, int(id), authorID)
	if err != nil {
		return models.Answer{}, err
	}
	return a, tx.Commit()
}

// UpdateAnswer replaces an answer's content. Only its author may edit.
func (db *DB) UpdateAnswer(ctx context.Context, id, userID int, d models.AnswerDraft) (models.Answer, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return models.Answer{}, err
	}
	defer tx.Rollback()

	if err := checkOwner(ctx, tx, `SELECT author_id FROM answers WHERE id = ?`, id, userID); err != nil {
		return models.Answer{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE answers SET content = ? WHERE id = ?`, d.Content, id); err != nil {
		return models.Answer{}, err
	}
	a, err := db.answer(ctx, tx, id, userID)
	if err != nil {
		return models.Answer{}, err
	}
	return a, tx.Commit()
}

func (db *DB) DeleteAnswer(ctx context.Context, id, userID int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkOwner(ctx, tx, `SELECT author_id FROM answers WHERE id = ?`, id, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// RateAnswer records userID's rating of an answer and returns the new
// aggregate. A rating of 0 withdraws the user's rating. Authors cannot rate
// their own answers.
func (db *DB) RateAnswer(ctx context.Context, answerID, userID int, rating float64) (models.RatingSummary, error) {
	if !models.IsRatingLevel(rating, true) {
		return models.RatingSummary{}, ErrInvalidRating
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return models.RatingSummary{}, err
	}
	defer tx.Rollback()

	var authorID int
	if err := tx.QueryRowContext(ctx, `SELECT author_id FROM answers WHERE id = ?`, answerID).Scan(&authorID); err != nil {
		return models.RatingSummary{}, notFound(err)
	}
	if authorID == userID {
		return models.RatingSummary{}, models.ErrForbidden
	}

	if rating == 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM ratings WHERE answer_id = ? AND user_id = ?`, answerID, userID)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ratings (answer_id, user_id, rating) VALUES (?, ?, ?)
			ON CONFLICT (answer_id, user_id) DO UPDATE SET rating = excluded.rating
		`, answerID, userID, rating)
	}
	if err != nil {
		return models.RatingSummary{}, err
	}

	a, err := db.answer(ctx, tx, answerID, userID)
	if err != nil {
		return models.RatingSummary{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.RatingSummary{}, err
	}
	return models.RatingSummary{UserRating: a.UserRating, AverageRating: a.AverageRating, RatingCount: a.RatingCount}, nil
}
