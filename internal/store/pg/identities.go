package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
)

const identityColumns = `id, name, email, password_hash, role, assigned_stores, status, created_at, updated_at`

var errIdentityNotFound = apperr.NotFound("identity not found")

// identityTable serves one identity collection; users and inspectors share a shape.
type identityTable struct {
	db    *sql.DB
	table string
}

func (s *Store) Users() auth.IdentityStore { return identityTable{db: s.db, table: "users"} }

func (s *Store) Inspectors() auth.IdentityStore { return identityTable{db: s.db, table: "inspectors"} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (auth.Identity, error) {
	var (
		identity auth.Identity
		role     string
		stores   []byte
	)
	if err := row.Scan(&identity.ID, &identity.Name, &identity.Email, &identity.PasswordHash, &role,
		&stores, &identity.Status, &identity.CreatedAt, &identity.UpdatedAt); err != nil {
		return auth.Identity{}, err
	}
	identity.Role = auth.Role(role)
	identity.AssignedStores = []string{}
	if len(stores) > 0 {
		if err := json.Unmarshal(stores, &identity.AssignedStores); err != nil {
			return auth.Identity{}, fmt.Errorf("decode assigned_stores: %w", err)
		}
	}
	return identity, nil
}

func (t identityTable) findOne(ctx context.Context, column, value string) (auth.Identity, error) {
	if t.db == nil {
		return auth.Identity{}, errNoDB
	}
	query := fmt.Sprintf(`select %s from %s where %s = $1`, identityColumns, t.table, column)
	identity, err := scanIdentity(t.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, errIdentityNotFound
	}
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%s by %s: %w", t.table, column, err)
	}
	return identity, nil
}

func (t identityTable) FindByEmail(ctx context.Context, email string) (auth.Identity, error) {
	return t.findOne(ctx, "email", email)
}

func (t identityTable) FindByID(ctx context.Context, id string) (auth.Identity, error) {
	return t.findOne(ctx, "id", id)
}

func (t identityTable) Create(ctx context.Context, identity *auth.Identity) error {
	if t.db == nil {
		return errNoDB
	}
	stores, err := marshalJSON(identity.AssignedStores, "[]")
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		insert into %s (%s)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.table, identityColumns)
	_, err = t.db.ExecContext(ctx, query, identity.ID, identity.Name, identity.Email, identity.PasswordHash,
		string(identity.Role), stores, identity.Status, identity.CreatedAt, identity.UpdatedAt)
	if err != nil {
		if isPgCode(err, pgErrUniqueViolation) {
			return apperr.Conflict("Email already exists.")
		}
		return fmt.Errorf("insert %s: %w", t.table, err)
	}
	return nil
}

func (t identityTable) SetAssignedStores(ctx context.Context, id string, storeIDs []string, at time.Time) (auth.Identity, error) {
	if t.db == nil {
		return auth.Identity{}, errNoDB
	}
	stores, err := marshalJSON(storeIDs, "[]")
	if err != nil {
		return auth.Identity{}, err
	}
	query := fmt.Sprintf(`
		update %s set assigned_stores = $2, updated_at = $3
		where id = $1
		returning %s
	`, t.table, identityColumns)
	identity, err := scanIdentity(t.db.QueryRowContext(ctx, query, id, stores, at))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, errIdentityNotFound
	}
	if err != nil {
		return auth.Identity{}, fmt.Errorf("update %s assigned_stores: %w", t.table, err)
	}
	return identity, nil
}
