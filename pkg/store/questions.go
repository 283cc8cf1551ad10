package store

import (
	"context"
	"database/sql"
	"errors"

	"questionforum/pkg/models"
)

const questionColumns = `
	SELECT q.id, q.title, q.description, c.name, u.username, q.author_id, q.created_at
	FROM questions q
	JOIN users u ON u.id = q.author_id
	JOIN categories c ON c.id = q.category_id`

const questionFilter = `
	WHERE (?1 = '' OR instr(lower(q.title), lower(?1)) > 0 OR instr(lower(q.description), lower(?1)) > 0)
	  AND (?2 = '' OR c.name = ?2)`

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(s scanner) (models.Question, error) {
	var q models.Question
	err := s.Scan(&q.ID, &q.Title, &q.Description, &q.Category, &q.AuthorUsername, &q.AuthorID, &q.CreatedAt)
	return q, err
}

// ListQuestions returns one page of questions, newest first, matching the
// search text (title or description) and category.
func (db *DB) ListQuestions(ctx context.Context, q models.ListQuery) (models.Page[models.Question], error) {
	q = normalizeQuery(q)

	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions q JOIN categories c ON c.id = q.category_id`+questionFilter,
		q.Search, q.Category).Scan(&count)
	if err != nil {
		return models.Page[models.Question]{}, err
	}

	rows, err := db.QueryContext(ctx, questionColumns+questionFilter+`
		ORDER BY q.created_at DESC, q.id DESC
		LIMIT ?3 OFFSET ?4
	`, q.Search, q.Category, q.PerPage, (q.Page-1)*q.PerPage)
	if err != nil {
		return models.Page[models.Question]{}, err
	}
	questions := []models.Question{}
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			rows.Close()
			return models.Page[models.Question]{}, err
		}
		questions = append(questions, question)
	}
	if err := rows.Close(); err != nil {
		return models.Page[models.Question]{}, err
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.Question]{}, err
	}

	// Tags are loaded once the page's rows are closed; the pool holds a
	// single connection.
	for i := range questions {
		if questions[i].Tags, err = db.questionTags(ctx, db, questions[i].ID); err != nil {
			return models.Page[models.Question]{}, err
		}
	}
	return models.Page[models.Question]{
		Items:      questions,
		TotalPages: totalPages(count, q.PerPage),
		TotalCount: count,
	}, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) questionTags(ctx context.Context, qr querier, questionID int) ([]string, error) {
	rows, err := qr.QueryContext(ctx, `
		SELECT t.name FROM question_tags qt
		JOIN tags t ON t.id = qt.tag_id
		WHERE qt.question_id = ?
		ORDER BY qt.position
	`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tags := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

func (db *DB) Question(ctx context.Context, id int) (models.Question, error) {
	return db.question(ctx, db, id)
}

func (db *DB) question(ctx context.Context, qr querier, id int) (models.Question, error) {
	q, err := scanQuestion(qr.QueryRowContext(ctx, questionColumns+` WHERE q.id = ?`, id))
	if err != nil {
		return models.Question{}, notFound(err)
	}
	if q.Tags, err = db.questionTags(ctx, qr, id); err != nil {
		return models.Question{}, err
	}
	return q, nil
}

// CreateQuestion stores a validated draft and returns the canonical record.
func (db *DB) CreateQuestion(ctx context.Context, authorID int, d models.QuestionDraft) (models.Question, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return models.Question{}, err
	}
	defer tx.Rollback()

	categoryID, err := categoryID(ctx, tx, d.Category)
	if err != nil {
		return models.Question{}, err
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO questions (author_id, category_id, title, description, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, authorID, categoryID, d.Title, d.Description, db.now().UTC())
	if err != nil {
		return models.Question{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Question{}, err
	}
	if err := setTags(ctx, tx, int(id), d.Tags); err != nil {
		return models.Question{}, err
	}
	q, err := db.question(ctx, tx, int(id))
	if err != nil {
		return models.Question{}, err
	}
	return q, tx.Commit()
}

// UpdateQuestion replaces the owner-editable fields. Only the author may
// edit; anyone else gets models.ErrForbidden.
func (db *DB) UpdateQuestion(ctx context.Context, id, userID int, d models.QuestionDraft) (models.Question, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return models.Question{}, err
	}
	defer tx.Rollback()

	if err := checkOwner(ctx, tx, `SELECT author_id FROM questions WHERE id = ?`, id, userID); err != nil {
		return models.Question{}, err
	}
	categoryID, err := categoryID(ctx, tx, d.Category)
	if err != nil {
		return models.Question{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE questions SET title = ?, description = ?, category_id = ? WHERE id = ?
	`, d.Title, d.Description, categoryID, id); err != nil {
		return models.Question{}, err
	}
	if err := setTags(ctx, tx, id, d.Tags); err != nil {
		return models.Question{}, err
	}
	q, err := db.question(ctx, tx, id)
	if err != nil {
		return models.Question{}, err
	}
	return q, tx.Commit()
}

// DeleteQuestion removes a question with its answers and their ratings.
func (db *DB) DeleteQuestion(ctx context.Context, id, userID int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkOwner(ctx, tx, `SELECT author_id FROM questions WHERE id = ?`, id, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func checkOwner(ctx context.Context, qr querier, query string, id, userID int) error {
	var authorID int
	if err := qr.QueryRowContext(ctx, query, id).Scan(&authorID); err != nil {
		return notFound(err)
	}
	if authorID != userID {
		return models.ErrForbidden
	}
	return nil
}

func categoryID(ctx context.Context, qr querier, name string) (int, error) {
	var id int
	err := qr.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnknownCategory
	}
	return id, err
}

func setTags(ctx context.Context, qr querier, questionID int, tags []string) error {
	if _, err := qr.ExecContext(ctx, `DELETE FROM question_tags WHERE question_id = ?`, questionID); err != nil {
		return err
	}
	for i, name := range tags {
		if _, err := qr.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
			return err
		}
		if _, err := qr.ExecContext(ctx, `
			INSERT INTO question_tags (question_id, tag_id, position)
			SELECT ?, id, ? FROM tags WHERE name = ?
		`, questionID, i, name); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) Categories(ctx context.Context) ([]models.Category, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Tags lists every tag that was ever used, alphabetically.
func (db *DB) Tags(ctx context.Context) ([]models.Tag, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tags := []models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.Name); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
