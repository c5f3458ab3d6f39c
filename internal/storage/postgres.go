package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/providentiaww/trilix-oauth/internal/oauth"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// Row is the single-row result of a query.
type Row interface {
	Scan(dest ...any) error
}

// DB is the subset of a database handle the Postgres store needs.
type DB interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Ping(ctx context.Context) error
	Close() error
}

type sqlDB struct {
	db *sql.DB
}

func (s sqlDB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s sqlDB) QueryRow(ctx context.Context, query string, args ...any) Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s sqlDB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s sqlDB) Close() error                   { return s.db.Close() }

// PostgresConfig holds connection settings for the Postgres store.
type PostgresConfig struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore persists clients, tokens and authorization codes in
// Postgres. Uniqueness of client_id, access_token and code is enforced by
// primary keys.
type PostgresStore struct {
	db     DB
	logger zerolog.Logger
}

var (
	_ oauth.ClientStore = (*PostgresStore)(nil)
	_ oauth.TokenStore  = (*PostgresStore)(nil)
	_ oauth.CodeStore   = (*PostgresStore)(nil)
)

// OpenPostgres connects to Postgres and verifies the connection.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, logger zerolog.Logger) (*PostgresStore, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("postgres database url is required")
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info().Msg("connected to postgres")
	return NewPostgresStore(sqlDB{db: db}, logger), nil
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db DB, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Ping verifies connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InitSchema creates the tables and indexes if they do not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init oauth schema: %w", err)
	}
	return nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS oauth_clients (
		client_id VARCHAR(48) PRIMARY KEY,
		client_secret VARCHAR(120) NOT NULL DEFAULT '',
		client_id_issued_at BIGINT NOT NULL DEFAULT 0,
		client_secret_expires_at BIGINT NOT NULL DEFAULT 0,
		client_metadata JSONB,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS oauth_authorization_codes (
		code VARCHAR(120) PRIMARY KEY,
		client_id VARCHAR(48) NOT NULL,
		user_id VARCHAR(255),
		redirect_uri TEXT NOT NULL DEFAULT '',
		response_type TEXT NOT NULL DEFAULT '',
		scope TEXT NOT NULL DEFAULT '',
		nonce TEXT,
		auth_time BIGINT NOT NULL,
		code_challenge TEXT,
		code_challenge_method VARCHAR(48)
	);

	CREATE TABLE IF NOT EXISTS oauth_tokens (
		access_token VARCHAR(255) PRIMARY KEY,
		client_id VARCHAR(48) NOT NULL,
		user_id VARCHAR(255),
		token_type VARCHAR(40),
		refresh_token VARCHAR(255),
		scope TEXT NOT NULL DEFAULT '',
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		issued_at BIGINT NOT NULL,
		expires_in BIGINT NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_oauth_tokens_refresh_token ON oauth_tokens(refresh_token);
	CREATE INDEX IF NOT EXISTS idx_oauth_tokens_client_id ON oauth_tokens(client_id);
	CREATE INDEX IF NOT EXISTS idx_oauth_authorization_codes_auth_time ON oauth_authorization_codes(auth_time);
	`

// CreateClient inserts a client. A taken client_id yields oauth.ErrDuplicate.
// Metadata is bound as text; lib/pq sends []byte as bytea.
func (s *PostgresStore) CreateClient(ctx context.Context, client *oauth.Client) error {
	metadata, err := oauth.EncodeClientMetadata(client.Metadata())
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO oauth_clients
			(client_id, client_secret, client_id_issued_at, client_secret_expires_at, client_metadata)
		VALUES ($1, $2, $3, $4, $5)
	`,
		client.ClientID,
		client.ClientSecret,
		client.ClientIDIssuedAt,
		client.ClientSecretExpiresAt,
		string(metadata),
	)
	if err != nil {
		return translate(err, fmt.Sprintf("create client %s", client.ClientID))
	}
	return nil
}

// UpdateClient stores a replaced secret or metadata snapshot.
func (s *PostgresStore) UpdateClient(ctx context.Context, client *oauth.Client) error {
	metadata, err := oauth.EncodeClientMetadata(client.Metadata())
	if err != nil {
		return err
	}
	res, err := s.db.Exec(ctx, `
		UPDATE oauth_clients
		SET client_secret = $2,
			client_secret_expires_at = $3,
			client_metadata = $4,
			updated_at = NOW()
		WHERE client_id = $1
	`,
		client.ClientID,
		client.ClientSecret,
		client.ClientSecretExpiresAt,
		string(metadata),
	)
	if err != nil {
		return translate(err, fmt.Sprintf("update client %s", client.ClientID))
	}
	return requireRow(res, fmt.Sprintf("update client %s", client.ClientID))
}

// FindClient loads a client by id.
func (s *PostgresStore) FindClient(ctx context.Context, clientID string) (*oauth.Client, error) {
	var (
		client   oauth.Client
		metadata []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT client_id, client_secret, client_id_issued_at, client_secret_expires_at, client_metadata
		FROM oauth_clients
		WHERE client_id = $1
	`, clientID).Scan(
		&client.ClientID,
		&client.ClientSecret,
		&client.ClientIDIssuedAt,
		&client.ClientSecretExpiresAt,
		&metadata,
	)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("find client %s", clientID))
	}
	md, err := oauth.DecodeClientMetadata(client.ClientID, metadata)
	if err != nil {
		return nil, err
	}
	client.SetClientMetadata(md)
	return &client, nil
}

// CreateToken inserts a token. A taken access_token yields oauth.ErrDuplicate.
func (s *PostgresStore) CreateToken(ctx context.Context, token *oauth.Token) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO oauth_tokens
			(access_token, client_id, user_id, token_type, refresh_token, scope, revoked, issued_at, expires_in)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		token.AccessToken,
		token.ClientID,
		nullableString(token.UserID),
		nullableString(token.TokenType),
		nullableString(token.RefreshToken),
		token.Scope,
		token.Revoked,
		token.IssuedAt,
		token.ExpiresIn,
	)
	if err != nil {
		return translate(err, "create token")
	}
	return nil
}

const tokenColumns = `access_token, client_id, user_id, token_type, refresh_token, scope, revoked, issued_at, expires_in`

// FindToken returns the newest token matching filter.
func (s *PostgresStore) FindToken(ctx context.Context, filter oauth.TokenFilter) (*oauth.Token, error) {
	where, args := tokenWhere(filter)
	query := `SELECT ` + tokenColumns + ` FROM oauth_tokens`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY issued_at DESC LIMIT 1`

	var (
		token                           oauth.Token
		userID, tokenType, refreshToken sql.NullString
	)
	err := s.db.QueryRow(ctx, query, args...).Scan(
		&token.AccessToken,
		&token.ClientID,
		&userID,
		&tokenType,
		&refreshToken,
		&token.Scope,
		&token.Revoked,
		&token.IssuedAt,
		&token.ExpiresIn,
	)
	if err != nil {
		return nil, translate(err, "find token")
	}
	token.UserID = userID.String
	token.TokenType = tokenType.String
	token.RefreshToken = refreshToken.String
	return &token, nil
}

func tokenWhere(filter oauth.TokenFilter) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.ClientID != "" {
		add("client_id", filter.ClientID)
	}
	if filter.AccessToken != "" {
		add("access_token", filter.AccessToken)
	}
	if filter.RefreshToken != "" {
		add("refresh_token", filter.RefreshToken)
	}
	if filter.ActiveOnly {
		where = append(where, "revoked = FALSE")
	}
	return where, args
}

// RevokeToken sets the revoked flag. The update is idempotent.
func (s *PostgresStore) RevokeToken(ctx context.Context, accessToken string) error {
	res, err := s.db.Exec(ctx, `UPDATE oauth_tokens SET revoked = TRUE WHERE access_token = $1`, accessToken)
	if err != nil {
		return translate(err, "revoke token")
	}
	return requireRow(res, "revoke token")
}

// CreateCode inserts an authorization code.
func (s *PostgresStore) CreateCode(ctx context.Context, code *oauth.AuthorizationCode) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO oauth_authorization_codes
			(code, client_id, user_id, redirect_uri, response_type, scope, nonce, auth_time, code_challenge, code_challenge_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		code.Code,
		code.ClientID,
		nullableString(code.UserID),
		code.RedirectURI,
		code.ResponseType,
		code.Scope,
		nullableString(code.Nonce),
		code.AuthTime,
		nullableString(code.CodeChallenge),
		nullableString(code.CodeChallengeMethod),
	)
	if err != nil {
		return translate(err, "create authorization code")
	}
	return nil
}

const codeColumns = `code, client_id, user_id, redirect_uri, response_type, scope, nonce, auth_time, code_challenge, code_challenge_method`

// FindCode loads an authorization code without consuming it.
func (s *PostgresStore) FindCode(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	row := s.db.QueryRow(ctx, `SELECT `+codeColumns+` FROM oauth_authorization_codes WHERE code = $1`, code)
	return scanCode(row, "find authorization code")
}

// ConsumeCode deletes the code and returns the deleted row in one
// statement, so concurrent consumers cannot both receive it.
func (s *PostgresStore) ConsumeCode(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	row := s.db.QueryRow(ctx, `DELETE FROM oauth_authorization_codes WHERE code = $1 RETURNING `+codeColumns, code)
	return scanCode(row, "consume authorization code")
}

// DeleteCode removes an authorization code.
func (s *PostgresStore) DeleteCode(ctx context.Context, code string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM oauth_authorization_codes WHERE code = $1`, code); err != nil {
		return translate(err, "delete authorization code")
	}
	return nil
}

// DeleteExpiredCodes removes codes whose validity window ended before now.
func (s *PostgresStore) DeleteExpiredCodes(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.Exec(ctx,
		`DELETE FROM oauth_authorization_codes WHERE auth_time + $1 < $2`,
		oauth.CodeLifetime, now.Unix(),
	)
	if err != nil {
		return 0, translate(err, "delete expired authorization codes")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oauth.StorageError(err, "delete expired authorization codes")
	}
	if n > 0 {
		s.logger.Info().Int64("deleted", n).Msg("expired authorization codes removed")
	}
	return n, nil
}

func scanCode(row Row, op string) (*oauth.AuthorizationCode, error) {
	var (
		code                                      oauth.AuthorizationCode
		userID, nonce, challenge, challengeMethod sql.NullString
	)
	err := row.Scan(
		&code.Code,
		&code.ClientID,
		&userID,
		&code.RedirectURI,
		&code.ResponseType,
		&code.Scope,
		&nonce,
		&code.AuthTime,
		&challenge,
		&challengeMethod,
	)
	if err != nil {
		return nil, translate(err, op)
	}
	code.UserID = userID.String
	code.Nonce = nonce.String
	code.CodeChallenge = challenge.String
	code.CodeChallengeMethod = challengeMethod.String
	return &code, nil
}

// translate maps driver errors onto the port signals: no rows is
// oauth.ErrNotFound, a unique violation is oauth.ErrDuplicate and anything
// else is a storage fault.
func translate(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return oauth.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%s: %w", op, oauth.ErrDuplicate)
	}
	return oauth.StorageError(err, op)
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return oauth.StorageError(err, op)
	}
	if n == 0 {
		return oauth.ErrNotFound
	}
	return nil
}

func nullableString(val string) sql.NullString {
	if val == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: val, Valid: true}
}
