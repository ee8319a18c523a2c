package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/karthikraju391/rentchat/models"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	email    TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS messages (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_email   TEXT NOT NULL,
	receiver_email TEXT NOT NULL,
	text           TEXT NOT NULL,
	client_id      TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_pair ON messages(sender_email, receiver_email, created_at);
CREATE TABLE IF NOT EXISTS cars (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_email   TEXT NOT NULL,
	name          TEXT NOT NULL,
	price_per_day REAL NOT NULL,
	location      TEXT NOT NULL,
	car_type      TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	image_url     TEXT
);
`

// SQLite is a Store backed by a SQLite database.
type SQLite struct {
	db  *sqlx.DB
	now func() time.Time
}

type messageRow struct {
	ID            int64  `db:"id"`
	SenderEmail   string `db:"sender_email"`
	ReceiverEmail string `db:"receiver_email"`
	Text          string `db:"text"`
	ClientID      string `db:"client_id"`
	CreatedAt     int64  `db:"created_at"`
}

func (r messageRow) message() models.Message {
	return models.Message{
		ID:            models.MessageID(strconv.FormatInt(r.ID, 10)),
		SenderEmail:   r.SenderEmail,
		ReceiverEmail: r.ReceiverEmail,
		Text:          r.Text,
		ClientID:      r.ClientID,
		Timestamp:     models.NewTimestamp(time.Unix(0, r.CreatedAt).UTC()),
	}
}

type carRow struct {
	ID          int64          `db:"id"`
	OwnerEmail  string         `db:"owner_email"`
	Name        string         `db:"name"`
	PricePerDay float64        `db:"price_per_day"`
	Location    string         `db:"location"`
	CarType     string         `db:"car_type"`
	Description string         `db:"description"`
	ImageURL    sql.NullString `db:"image_url"`
}

func (r carRow) car() models.Car {
	c := models.Car{
		ID:          r.ID,
		Name:        r.Name,
		PricePerDay: r.PricePerDay,
		Location:    r.Location,
		Category:    r.CarType,
		Description: r.Description,
		OwnerEmail:  r.OwnerEmail,
	}
	if r.ImageURL.Valid {
		img := r.ImageURL.String
		c.ImageURL = &img
	}
	return c
}

// OpenSQLite opens (creating if needed) the database at dsn and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) CreateUser(ctx context.Context, u models.User) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO users(email, username) VALUES(:email, :username)`, u)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Email, err)
	}
	return nil
}

func (s *SQLite) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.user(ctx, `SELECT email, username FROM users WHERE email = ?`, email)
}

func (s *SQLite) UserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.user(ctx, `SELECT email, username FROM users WHERE username = ?`, username)
}

func (s *SQLite) user(ctx context.Context, q, key string) (models.User, error) {
	var u models.User
	if err := s.db.GetContext(ctx, &u, q, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, fmt.Errorf("user %s: %w", key, ErrNotFound)
		}
		return u, fmt.Errorf("get user %s: %w", key, err)
	}
	return u, nil
}

func (s *SQLite) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	pattern := "%" + likeEscape(strings.ToLower(query)) + "%"
	var out []models.User
	err := s.db.SelectContext(ctx, &out, `SELECT email, username FROM users
		WHERE lower(username) LIKE ? ESCAPE '\' OR lower(email) LIKE ? ESCAPE '\'
		ORDER BY rowid LIMIT ?`, pattern, pattern, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return out, nil
}

func (s *SQLite) SaveMessage(ctx context.Context, m models.Message) (models.Message, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = models.NewTimestamp(s.now())
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO messages(sender_email, receiver_email, text, client_id, created_at)
		VALUES(?, ?, ?, ?, ?)`, m.SenderEmail, m.ReceiverEmail, m.Text, m.ClientID, m.Timestamp.UnixNano())
	if err != nil {
		return m, fmt.Errorf("save message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return m, fmt.Errorf("save message: %w", err)
	}
	m.ID = models.MessageID(strconv.FormatInt(id, 10))
	return m, nil
}

func (s *SQLite) Conversation(ctx context.Context, a, b string) ([]models.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, sender_email, receiver_email, text, client_id, created_at
		FROM messages
		WHERE (sender_email = ? AND receiver_email = ?) OR (sender_email = ? AND receiver_email = ?)
		ORDER BY created_at, id`, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}
	out := make([]models.Message, len(rows))
	for i, r := range rows {
		out[i] = r.message()
	}
	return out, nil
}

func (s *SQLite) CreateCar(ctx context.Context, c models.Car) (models.Car, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO cars(owner_email, name, price_per_day, location, car_type, description, image_url)
		VALUES(?, ?, ?, ?, ?, ?, ?)`, c.OwnerEmail, c.Name, c.PricePerDay, c.Location, c.Category, c.Description, c.ImageURL)
	if err != nil {
		return c, fmt.Errorf("create car: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return c, fmt.Errorf("create car: %w", err)
	}
	return c, nil
}

const carColumns = `SELECT id, owner_email, name, price_per_day, location, car_type, description, image_url FROM cars`

func (s *SQLite) Car(ctx context.Context, id int64) (models.Car, error) {
	var r carRow
	if err := s.db.GetContext(ctx, &r, carColumns+` WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Car{}, fmt.Errorf("car %d: %w", id, ErrNotFound)
		}
		return models.Car{}, fmt.Errorf("get car %d: %w", id, err)
	}
	return r.car(), nil
}

func (s *SQLite) Cars(ctx context.Context) ([]models.Car, error) {
	return s.cars(ctx, carColumns+` ORDER BY id`)
}

func (s *SQLite) SearchCars(ctx context.Context, f models.CarFilter) ([]models.Car, error) {
	var (
		where []string
		args  []any
	)
	if f.Location != "" {
		where = append(where, `lower(location) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscape(strings.ToLower(f.Location))+"%")
	}
	if f.CarType != "" {
		where = append(where, `lower(car_type) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscape(strings.ToLower(f.CarType))+"%")
	}
	if f.MaxPrice > 0 {
		where = append(where, `price_per_day <= ?`)
		args = append(args, f.MaxPrice)
	}
	q := carColumns
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	return s.cars(ctx, q+` ORDER BY id`, args...)
}

func (s *SQLite) CarsByOwner(ctx context.Context, email string) ([]models.Car, error) {
	return s.cars(ctx, carColumns+` WHERE owner_email = ? ORDER BY id`, email)
}

func (s *SQLite) cars(ctx context.Context, q string, args ...any) ([]models.Car, error) {
	var rows []carRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list cars: %w", err)
	}
	out := make([]models.Car, len(rows))
	for i, r := range rows {
		out[i] = r.car()
	}
	return out, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeEscape(s string) string { return likeEscaper.Replace(s) }
