package tenant

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/stricklysoft-tokens/pkg/clients/postgres"
	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/jose"
)

// Table is the name of the tenant configuration table.
const Table = "tenant_configs"

const schemaSQL = `CREATE TABLE IF NOT EXISTS tenant_configs (
	id                     TEXT PRIMARY KEY,
	secret                 TEXT NOT NULL DEFAULT '',
	signature_algorithm    TEXT NOT NULL,
	signature_secret       TEXT NOT NULL,
	encryption_algorithm   TEXT,
	encryption_method      TEXT,
	encryption_secret      TEXT,
	token_shape            TEXT NOT NULL,
	access_token_validity  BIGINT NOT NULL CHECK (access_token_validity > 0),
	refresh_token_validity BIGINT NOT NULL CHECK (refresh_token_validity > 0),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const columns = `id, secret, signature_algorithm, signature_secret,
	encryption_algorithm, encryption_method, encryption_secret,
	token_shape, access_token_validity, refresh_token_validity`

const selectSQL = `SELECT ` + columns + ` FROM tenant_configs WHERE id = $1`

const listSQL = `SELECT ` + columns + ` FROM tenant_configs ORDER BY id`

const upsertSQL = `INSERT INTO tenant_configs (id, secret, signature_algorithm, signature_secret,
	encryption_algorithm, encryption_method, encryption_secret,
	token_shape, access_token_validity, refresh_token_validity, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
ON CONFLICT (id) DO UPDATE SET
	secret = EXCLUDED.secret,
	signature_algorithm = EXCLUDED.signature_algorithm,
	signature_secret = EXCLUDED.signature_secret,
	encryption_algorithm = EXCLUDED.encryption_algorithm,
	encryption_method = EXCLUDED.encryption_method,
	encryption_secret = EXCLUDED.encryption_secret,
	token_shape = EXCLUDED.token_shape,
	access_token_validity = EXCLUDED.access_token_validity,
	refresh_token_validity = EXCLUDED.refresh_token_validity,
	updated_at = now()`

const deleteSQL = `DELETE FROM tenant_configs WHERE id = $1`

// PostgresLookup stores tenant configurations in the tenant_configs table.
// Encryption columns are NULL for shapes without an encryption layer.
type PostgresLookup struct {
	client *postgres.Client
}

var _ Lookup = (*PostgresLookup)(nil)

// NewPostgresLookup returns a PostgresLookup using client.
func NewPostgresLookup(client *postgres.Client) *PostgresLookup {
	return &PostgresLookup{client: client}
}

// EnsureSchema creates the tenant_configs table if it does not exist.
func (p *PostgresLookup) EnsureSchema(ctx context.Context) error {
	_, err := p.client.Exec(ctx, schemaSQL)
	return err
}

// Lookup implements [Lookup].
func (p *PostgresLookup) Lookup(ctx context.Context, tenantID string) (Config, bool, error) {
	var cols tenantRow
	err := p.client.QueryRow(ctx, selectSQL, tenantID).Scan(cols.dest()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, false, nil
	}
	if err != nil {
		if e, ok := sserr.AsError(err); ok {
			return Config{}, false, e.WithDetail("tenant_id", tenantID)
		}
		return Config{}, false, sserr.Wrapf(err, sserr.CodeInternalDatabase,
			"tenant: failed to load configuration for %q", tenantID)
	}
	return cols.config(), true, nil
}

// List returns every stored configuration ordered by id. Rows are not
// validated; [Service.Get] validates on load.
func (p *PostgresLookup) List(ctx context.Context) ([]Config, error) {
	rows, err := p.client.Query(ctx, listSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Config
	for rows.Next() {
		var cols tenantRow
		if err := rows.Scan(cols.dest()...); err != nil {
			return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "tenant: failed to scan configuration")
		}
		out = append(out, cols.config())
	}
	if err := rows.Err(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "tenant: failed to list configurations")
	}
	return out, nil
}

// Upsert validates cfg and inserts or replaces its row.
func (p *PostgresLookup) Upsert(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, err := p.client.Exec(ctx, upsertSQL,
		cfg.ID, cfg.Secret.Value(), string(cfg.SignatureAlgorithm), cfg.SignatureSecret.Value(),
		nullable(string(cfg.EncryptionAlgorithm)), nullable(string(cfg.EncryptionMethod)), nullable(cfg.EncryptionSecret.Value()),
		string(cfg.Shape), cfg.AccessTokenValidity, cfg.RefreshTokenValidity,
	)
	return err
}

// Delete removes a tenant's row and reports whether it existed.
func (p *PostgresLookup) Delete(ctx context.Context, tenantID string) (bool, error) {
	tag, err := p.client.Exec(ctx, deleteSQL, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// tenantRow holds one scanned row; encryption columns are nullable.
type tenantRow struct {
	id, secret, sigAlg, sigSecret string
	encAlg, encMethod, encSecret  *string
	shape                         string
	access, refresh               int64
}

func (r *tenantRow) dest() []any {
	return []any{
		&r.id, &r.secret, &r.sigAlg, &r.sigSecret,
		&r.encAlg, &r.encMethod, &r.encSecret,
		&r.shape, &r.access, &r.refresh,
	}
}

func (r *tenantRow) config() Config {
	return Config{
		ID:                   r.id,
		Secret:               jose.Secret(r.secret),
		SignatureAlgorithm:   jose.SignatureAlgorithm(r.sigAlg),
		SignatureSecret:      jose.Secret(r.sigSecret),
		EncryptionAlgorithm:  jose.EncryptionAlgorithm(deref(r.encAlg)),
		EncryptionMethod:     jose.EncryptionMethod(deref(r.encMethod)),
		EncryptionSecret:     jose.Secret(deref(r.encSecret)),
		Shape:                Shape(r.shape),
		AccessTokenValidity:  r.access,
		RefreshTokenValidity: r.refresh,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
