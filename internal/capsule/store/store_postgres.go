package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"kairos/internal/capsule/models"
	"kairos/internal/unlock"
	id "kairos/pkg/domain"
	"kairos/pkg/platform/sentinel"
	txcontext "kairos/pkg/platform/tx"
)

const uniqueViolation = "23505"

const capsuleColumns = `id, owner, title, description, category, blob_id, seal_proof,
	is_activated, state, created_at, last_ping, ping_frequency_days, health_score,
	unlock_rules, beneficiaries, audit_log, expires_at, sealed_at, unlocked_at, version`

// PostgresStore persists capsules in PostgreSQL. Rules, beneficiaries and the
// audit log are JSONB columns on the capsule row. Methods join the transaction
// carried in ctx, and FindByID locks the row when one is present.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, c *models.Capsule) error {
	rules, beneficiaries, auditLog, err := marshalDocuments(c)
	if err != nil {
		return err
	}
	c.Version = 1
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO capsules (`+capsuleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		uuid.UUID(c.ID), string(c.Owner), c.Title, c.Description, string(c.Category), c.BlobID, c.SealProof,
		c.IsActivated, string(c.State), c.CreatedAt, c.LastPing, c.PingFrequencyDays, c.HealthScore,
		rules, beneficiaries, auditLog, c.ExpiresAt, c.SealedAt, c.UnlockedAt, c.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert capsule: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, capsuleID id.CapsuleID) (*models.Capsule, error) {
	query := `SELECT ` + capsuleColumns + ` FROM capsules WHERE id = $1`
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(capsuleID))
	c, err := scanCapsule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find capsule by id: %w", err)
	}
	return c, nil
}

// FindByIDs loads a batch of capsules in one round trip. Missing ids are skipped.
func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.CapsuleID) ([]*models.Capsule, error) {
	raw := make([]string, len(ids))
	for i, cid := range ids {
		raw[i] = cid.String()
	}
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+capsuleColumns+` FROM capsules WHERE id = ANY($1::uuid[])`, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("find capsules by ids: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.ActorID) ([]*models.Capsule, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+capsuleColumns+` FROM capsules WHERE owner = $1 ORDER BY created_at DESC`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("list capsules by owner: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// Update writes c if the stored version still equals c.Version and bumps it.
func (s *PostgresStore) Update(ctx context.Context, c *models.Capsule) error {
	rules, beneficiaries, auditLog, err := marshalDocuments(c)
	if err != nil {
		return err
	}
	exec := txcontext.ExecutorFrom(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE capsules SET
			title = $3, description = $4, category = $5, blob_id = $6, seal_proof = $7,
			is_activated = $8, state = $9, last_ping = $10, ping_frequency_days = $11,
			health_score = $12, unlock_rules = $13, beneficiaries = $14, audit_log = $15,
			expires_at = $16, sealed_at = $17, unlocked_at = $18, version = version + 1
		WHERE id = $1 AND version = $2`,
		uuid.UUID(c.ID), c.Version, c.Title, c.Description, string(c.Category), c.BlobID, c.SealProof,
		c.IsActivated, string(c.State), c.LastPing, c.PingFrequencyDays,
		c.HealthScore, rules, beneficiaries, auditLog,
		c.ExpiresAt, c.SealedAt, c.UnlockedAt,
	)
	if err != nil {
		return fmt.Errorf("update capsule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update capsule rows affected: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM capsules WHERE id = $1)`, uuid.UUID(c.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("check capsule exists: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	c.Version++
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, capsuleID id.CapsuleID) error {
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `DELETE FROM capsules WHERE id = $1`, uuid.UUID(capsuleID))
	if err != nil {
		return fmt.Errorf("delete capsule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete capsule rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCapsule(row scanner) (*models.Capsule, error) {
	var (
		c                            models.Capsule
		rawID                        uuid.UUID
		owner, category, state       string
		rules, beneficiaries, audits []byte
		expiresAt, sealedAt, unlkAt  sql.NullTime
	)
	err := row.Scan(&rawID, &owner, &c.Title, &c.Description, &category, &c.BlobID, &c.SealProof,
		&c.IsActivated, &state, &c.CreatedAt, &c.LastPing, &c.PingFrequencyDays, &c.HealthScore,
		&rules, &beneficiaries, &audits, &expiresAt, &sealedAt, &unlkAt, &c.Version)
	if err != nil {
		return nil, err
	}
	c.ID = id.CapsuleID(rawID)
	c.Owner = id.ActorID(owner)
	c.Category = models.Category(category)
	c.State = models.State(state)
	c.ExpiresAt = nullTime(expiresAt)
	c.SealedAt = nullTime(sealedAt)
	c.UnlockedAt = nullTime(unlkAt)

	var decodedRules unlock.Rules
	if err := json.Unmarshal(rules, &decodedRules); err != nil {
		return nil, fmt.Errorf("unmarshal unlock rules: %w", err)
	}
	c.UnlockRules = decodedRules
	if err := json.Unmarshal(beneficiaries, &c.Beneficiaries); err != nil {
		return nil, fmt.Errorf("unmarshal beneficiaries: %w", err)
	}
	if err := json.Unmarshal(audits, &c.AuditLog); err != nil {
		return nil, fmt.Errorf("unmarshal audit log: %w", err)
	}
	return &c, nil
}

func collect(rows *sql.Rows) ([]*models.Capsule, error) {
	out := make([]*models.Capsule, 0)
	for rows.Next() {
		c, err := scanCapsule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan capsule: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capsules: %w", err)
	}
	return out, nil
}

func marshalDocuments(c *models.Capsule) (rules, beneficiaries, auditLog []byte, err error) {
	if rules, err = json.Marshal(c.UnlockRules); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal unlock rules: %w", err)
	}
	if beneficiaries, err = json.Marshal(nonNil(c.Beneficiaries)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal beneficiaries: %w", err)
	}
	if auditLog, err = json.Marshal(nonNil(c.AuditLog)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal audit log: %w", err)
	}
	return rules, beneficiaries, auditLog, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
