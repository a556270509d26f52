package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/org"
)

func (s *Store) CreateStore(ctx context.Context, store *org.Store) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into stores (id, name, created_at, updated_at)
		values ($1, $2, $3, $4)
	`, store.ID, store.Name, store.CreatedAt, store.UpdatedAt)
	if err != nil {
		if isPgCode(err, pgErrUniqueViolation) {
			return apperr.Conflict("store already exists")
		}
		return fmt.Errorf("insert store: %w", err)
	}
	return nil
}

func (s *Store) GetStore(ctx context.Context, id string) (org.Store, error) {
	if s.db == nil {
		return org.Store{}, errNoDB
	}
	var st org.Store
	err := s.db.QueryRowContext(ctx, `
		select id, name, created_at, updated_at from stores where id = $1
	`, id).Scan(&st.ID, &st.Name, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return org.Store{}, org.ErrStoreNotFound
	}
	if err != nil {
		return org.Store{}, fmt.Errorf("select store: %w", err)
	}
	if err := s.loadMembers(ctx, &st); err != nil {
		return org.Store{}, err
	}
	return st, nil
}

func (s *Store) ListStores(ctx context.Context) ([]org.Store, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	return s.queryStores(ctx, `
		select id, name, created_at, updated_at from stores
		order by created_at, id
	`)
}

func (s *Store) StoresWithMember(ctx context.Context, userID string, role auth.Role) ([]org.Store, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	return s.queryStores(ctx, `
		select s.id, s.name, s.created_at, s.updated_at
		from stores s
		join store_members m on m.store_id = s.id
		where m.user_id = $1 and m.role = $2
		order by s.created_at, s.id
	`, userID, string(role))
}

func (s *Store) queryStores(ctx context.Context, query string, args ...any) ([]org.Store, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select stores: %w", err)
	}
	var stores []org.Store
	for rows.Next() {
		var st org.Store
		if err := rows.Scan(&st.ID, &st.Name, &st.CreatedAt, &st.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range stores {
		if err := s.loadMembers(ctx, &stores[i]); err != nil {
			return nil, err
		}
	}
	if stores == nil {
		stores = []org.Store{}
	}
	return stores, nil
}

func (s *Store) loadMembers(ctx context.Context, st *org.Store) error {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role from store_members
		where store_id = $1
		order by position
	`, st.ID)
	if err != nil {
		return fmt.Errorf("select store members: %w", err)
	}
	defer rows.Close()

	st.Managers = []string{}
	st.Associates = []string{}
	for rows.Next() {
		var userID, role string
		if err := rows.Scan(&userID, &role); err != nil {
			return err
		}
		switch auth.Role(role) {
		case auth.RoleManager:
			st.Managers = append(st.Managers, userID)
		case auth.RoleAssociate:
			st.Associates = append(st.Associates, userID)
		}
	}
	return rows.Err()
}

func (s *Store) AddStoreMember(ctx context.Context, storeID, userID string, role auth.Role) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into store_members (store_id, user_id, role)
		values ($1, $2, $3)
		on conflict (store_id, user_id, role) do nothing
	`, storeID, userID, string(role))
	if err != nil {
		if isPgCode(err, pgErrForeignKeyViolation) {
			return org.ErrStoreNotFound
		}
		return fmt.Errorf("insert store member: %w", err)
	}
	return nil
}

func (s *Store) RemoveStoreMember(ctx context.Context, storeID, userID string, role auth.Role) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		delete from store_members
		where store_id = $1 and user_id = $2 and role = $3
	`, storeID, userID, string(role))
	if err != nil {
		return false, fmt.Errorf("delete store member: %w", err)
	}
	return rowsAffected(res)
}
