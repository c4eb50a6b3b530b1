package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"pecel/api/internal/register"
	"pecel/api/internal/util"
)

// ErrDuplicate marks a unique-constraint violation (duplicate username or
// register number). Handled defensively; the two-phase insert should never
// trip it for register numbers.
var ErrDuplicate = errors.New("duplicate entry")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Users ──

const userColumns = `id, username, password, role`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Password, &user.Role)
	return user, err
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.Password = ""
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

// GetUserByUsername returns the user including the password hash, for login.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username))
}

// CreateUser inserts a user with an already-hashed password and returns it
// with the hash cleared.
func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash, role string) (User, error) {
	user := User{ID: util.NewID("usr"), Username: username, Role: role}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password, role)
		VALUES ($1, $2, $3, $4)
	`, user.ID, username, passwordHash, role)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", wrapConstraint(err))
	}
	return user, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id string, patch UserPatch) (User, error) {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	add := func(column string, value *string) {
		if value != nil {
			args = append(args, *value)
			sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
		}
	}
	add("username", patch.Username)
	add("password", patch.Password)
	add("role", patch.Role)
	if len(sets) == 0 {
		return s.GetUser(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id=$%d RETURNING `+userColumns, strings.Join(sets, ", "), len(args))
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("update user: %w", wrapConstraint(err))
	}
	user.Password = ""
	return user, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// ── Documents ──

const documentColumns = `id, tanggal::text, nama, nomor_hp, email, alamat, nomor_register,
	jenis_dokumen, COALESCE(keterangan_dll, ''), status, keterangan, nama_cs,
	COALESCE(nama_operator, ''), created_by`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var item Document
	err := row.Scan(
		&item.ID, &item.Tanggal, &item.Nama, &item.NomorHP, &item.Email, &item.Alamat,
		&item.NomorRegister, &item.JenisDokumen, &item.KeteranganDLL, &item.Status,
		&item.Keterangan, &item.NamaCS, &item.NamaOperator, &item.CreatedBy,
	)
	return item, err
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		item, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id int) (Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id))
}

// CreateDocument inserts in two phases: first under a unique placeholder
// register number to obtain the database-assigned id, then an update that
// writes the real register number derived from that id. The id is the
// sequence, so concurrent creates cannot collide. Both phases run in one
// transaction; readers never see the placeholder.
func (s *PostgresStore) CreateDocument(ctx context.Context, doc NewDocument) (Document, error) {
	tanggal, err := time.Parse("2006-01-02", doc.Tanggal)
	if err != nil {
		return Document{}, fmt.Errorf("parse tanggal %q: %w", doc.Tanggal, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var id int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO documents (tanggal, nama, nomor_hp, email, alamat, nomor_register,
			jenis_dokumen, keterangan_dll, status, keterangan, nama_cs, nama_operator, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, doc.Tanggal, doc.Nama, doc.NomorHP, doc.Email, doc.Alamat, util.TempRegister(),
		doc.JenisDokumen, doc.KeteranganDLL, doc.Status, doc.Keterangan, doc.NamaCS,
		doc.NamaOperator, doc.CreatedBy).Scan(&id)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", wrapConstraint(err))
	}

	nomorRegister := register.Generate(id, doc.JenisDokumen, tanggal)

	item, err := scanDocument(tx.QueryRowContext(ctx, `
		UPDATE documents SET nomor_register=$1 WHERE id=$2
		RETURNING `+documentColumns, nomorRegister, id))
	if err != nil {
		return Document{}, fmt.Errorf("assign register number: %w", wrapConstraint(err))
	}
	if err := tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("commit: %w", err)
	}
	return item, nil
}

// UpdateDocument applies a partial update and returns the updated row, or
// sql.ErrNoRows if the document does not exist. Concurrent updates to the
// same row are last-write-wins; there is no version check.
func (s *PostgresStore) UpdateDocument(ctx context.Context, id int, patch DocumentPatch) (Document, error) {
	query, args := buildDocumentUpdate(id, patch)
	if query == "" {
		return s.GetDocument(ctx, id)
	}
	item, err := scanDocument(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, err
		}
		return Document{}, fmt.Errorf("update document: %w", wrapConstraint(err))
	}
	return item, nil
}

// buildDocumentUpdate returns the UPDATE statement for the patch, or an empty
// query when the patch has no fields.
func buildDocumentUpdate(id int, patch DocumentPatch) (string, []any) {
	var sets []string
	var args []any
	for _, col := range patch.columns() {
		if col.value == nil {
			continue
		}
		args = append(args, *col.value)
		sets = append(sets, fmt.Sprintf("%s=$%d", col.column, len(args)))
	}
	if len(sets) == 0 {
		return "", nil
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE documents SET %s WHERE id=$%d RETURNING `+documentColumns,
		strings.Join(sets, ", "), len(args))
	return query, args
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// ── Sessions (Postgres fallback when Redis is not configured) ──

func (s *PostgresStore) SaveSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, username, role, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id,
			username=EXCLUDED.username, role=EXCLUDED.role, expires_at=EXCLUDED.expires_at
	`, tokenHash, user.ID, user.Username, user.Role, expiresAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupSession(ctx context.Context, tokenHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, username, role FROM sessions
		WHERE token_hash=$1 AND expires_at > NOW()
	`, tokenHash).Scan(&user.ID, &user.Username, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash=$1`, tokenHash); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// wrapConstraint converts Postgres unique violations into ErrDuplicate so the
// boundary can answer 409 instead of 500.
func wrapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
