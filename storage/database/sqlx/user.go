package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/user"
	"github.com/trezcool/mycourse/storage/database"
)

const userColumns = `id, full_name, email, email_confirmed, is_active, password_hash, access_failed_count,
	lockout_end, created_at, updated_at, last_login`

// column names by ordering field
var userOrderColumns = map[string]string{
	"full_name":  "full_name",
	"email":      "email",
	"created_at": "created_at",
	"last_login": "last_login",
	"is_active":  "is_active",
}

type userRecord struct {
	ID                string     `db:"id"`
	FullName          string     `db:"full_name"`
	Email             string     `db:"email"`
	EmailConfirmed    bool       `db:"email_confirmed"`
	IsActive          bool       `db:"is_active"`
	PasswordHash      null.Bytes `db:"password_hash"`
	AccessFailedCount int        `db:"access_failed_count"`
	LockoutEnd        null.Time  `db:"lockout_end"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
	LastLogin         null.Time  `db:"last_login"`
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func (repo *userRepository) boil(usr user.User) userRecord {
	return userRecord{
		ID:                usr.ID,
		FullName:          usr.FullName,
		Email:             usr.Email,
		EmailConfirmed:    usr.EmailConfirmed,
		IsActive:          usr.IsActive,
		PasswordHash:      null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		AccessFailedCount: usr.AccessFailedCount,
		LockoutEnd:        nullTime(usr.LockoutEnd),
		CreatedAt:         usr.CreatedAt.UTC(),
		UpdatedAt:         usr.UpdatedAt.UTC(),
		LastLogin:         nullTime(usr.LastLogin),
	}
}

func (repo *userRepository) unboil(rec userRecord, roles []string) user.User {
	usr := user.User{
		ID:                rec.ID,
		FullName:          rec.FullName,
		Email:             rec.Email,
		EmailConfirmed:    rec.EmailConfirmed,
		IsActive:          rec.IsActive,
		Roles:             roles,
		PasswordHash:      rec.PasswordHash.Bytes,
		AccessFailedCount: rec.AccessFailedCount,
		CreatedAt:         rec.CreatedAt.UTC(),
		UpdatedAt:         rec.UpdatedAt.UTC(),
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if rec.LockoutEnd.Valid {
		usr.LockoutEnd = rec.LockoutEnd.Time.UTC()
	}
	if rec.LastLogin.Valid {
		usr.LastLogin = rec.LastLogin.Time.UTC()
	}
	return usr
}

// loadRoles returns the roles of the given users, by user ID.
func (repo *userRepository) loadRoles(ctx context.Context, exec sqlx.QueryerContext, ids ...string) (map[string][]string, error) {
	roles := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return roles, nil
	}
	query, args, err := sqlx.In("SELECT user_id, role FROM user_roles WHERE user_id IN (?) ORDER BY role", ids)
	if err != nil {
		return nil, errors.Wrap(err, "building roles query")
	}
	var rows []struct {
		UserID string `db:"user_id"`
		Role   string `db:"role"`
	}
	if err = sqlx.SelectContext(ctx, exec, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying roles")
	}
	for _, r := range rows {
		roles[r.UserID] = append(roles[r.UserID], r.Role)
	}
	return roles, nil
}

func (repo *userRepository) saveRoles(ctx context.Context, tx core.DBExecutor, usr user.User) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM user_roles WHERE user_id = ?"), usr.ID); err != nil {
		return errors.Wrap(err, "clearing roles")
	}
	for _, role := range usr.Roles {
		if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO user_roles (user_id, role) VALUES (?, ?)"), usr.ID, role); err != nil {
			return errors.Wrap(err, "inserting role")
		}
	}
	return nil
}


func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	query := "SELECT COUNT(*) FROM users WHERE LOWER(email) = LOWER(?)"
	args := []interface{}{email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		var err error
		query, args, err = sqlx.In(query+" AND id NOT IN (?)", email, ids)
		if err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
	}

	var cnt int
	if err := repo.db.GetContext(ctx, &cnt, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if cnt > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	now := time.Now().UTC()
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = now
	}
	if usr.UpdatedAt.IsZero() {
		usr.UpdatedAt = usr.CreatedAt
	}
	rec := repo.boil(usr)

	err := core.WithTx(ctx, repo.db, func(tx core.DBTransactor) error {
		_, err := sqlx.NamedExecContext(ctx, tx, `
			INSERT INTO users (`+userColumns+`)
			VALUES (:id, :full_name, :email, :email_confirmed, :is_active, :password_hash, :access_failed_count,
				:lockout_end, :created_at, :updated_at, :last_login)`, rec)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return user.ErrEmailExists
			}
			return errors.Wrap(err, "inserting user")
		}
		return repo.saveRoles(ctx, tx, usr)
	})
	if err != nil {
		return user.User{}, err
	}
	return repo.unboil(rec, usr.Roles), nil
}

func (repo *userRepository) searchOperator() string {
	if repo.db.DriverName() == database.EnginePostgres {
		return "ILIKE"
	}
	return "LIKE"
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		// users with FullName or Email matching the search keyword
		if filter.Search != "" {
			op := repo.searchOperator()
			val := database.ContainsPattern(filter.Search)
			where = append(where, fmt.Sprintf("(full_name %s ?%s OR email %s ?%s)", op, database.LikeEscape, op, database.LikeEscape))
			args = append(args, val, val)
		}
		if filter.Role != "" {
			where = append(where, "id IN (SELECT user_id FROM user_roles WHERE LOWER(role) = LOWER(?))")
			args = append(args, filter.Role)
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
	}

	query := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if allowed := core.AllowedOrderings(ordering, userOrderColumns); len(allowed) > 0 {
		query += " ORDER BY " + core.JoinOrderings(allowed)
	} else {
		query += " ORDER BY created_at, id"
	}

	var recs []userRecord
	if err := repo.db.SelectContext(ctx, &recs, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	roles, err := repo.loadRoles(ctx, repo.db, ids...)
	if err != nil {
		return nil, err
	}

	users := make([]user.User, 0, len(recs))
	for _, rec := range recs {
		users = append(users, repo.unboil(rec, roles[rec.ID]))
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		query = "SELECT " + userColumns + " FROM users WHERE "
		arg   string
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		query += "id = ?"
		arg = filter.ID
	case filter.Email != "":
		query += "LOWER(email) = LOWER(?)"
		arg = filter.Email
	default:
		return user.User{}, user.ErrNotFound
	}

	var recs []userRecord
	if err := repo.db.SelectContext(ctx, &recs, repo.db.Rebind(query), arg); err != nil {
		return user.User{}, errors.Wrap(err, "finding user")
	}
	if len(recs) == 0 {
		return user.User{}, user.ErrNotFound
	}

	roles, err := repo.loadRoles(ctx, repo.db, recs[0].ID)
	if err != nil {
		return user.User{}, err
	}
	return repo.unboil(recs[0], roles[recs[0].ID]), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.UpdatedAt = time.Now().UTC()
	rec := repo.boil(usr)

	err := core.WithTx(ctx, repo.db, func(tx core.DBTransactor) error {
		res, err := sqlx.NamedExecContext(ctx, tx, `
			UPDATE users SET full_name = :full_name, email = :email, email_confirmed = :email_confirmed,
				is_active = :is_active, password_hash = :password_hash, access_failed_count = :access_failed_count,
				lockout_end = :lockout_end, updated_at = :updated_at, last_login = :last_login
			WHERE id = :id`, rec)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return user.ErrEmailExists
			}
			return errors.Wrap(err, "updating user")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return user.ErrNotFound
		}
		return repo.saveRoles(ctx, tx, usr)
	})
	if err != nil {
		return user.User{}, err
	}
	return repo.unboil(rec, usr.Roles), nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In("DELETE FROM users WHERE id IN (?)", valid)
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(cnt), nil
}
