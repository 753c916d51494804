package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/contacts-keeper/internal/errs"
	"github.com/and161185/contacts-keeper/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var accountRowCols = []string{"id", "name", "email", "password_hash", "confirmed", "refresh_token", "avatar_url", "created_at"}

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func TestAccountRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	a := &model.Account{
		ID:           uuid.Must(uuid.NewV4()),
		Name:         "alice",
		Email:        "alice@example.com",
		PasswordHash: "$argon2id$h",
	}
	created := time.Now().UTC().Truncate(time.Second)

	// OK
	mock.ExpectQuery(`INSERT INTO users \(id, name, email, password_hash, confirmed\) VALUES \(\$1, \$2, \$3, \$4, \$5\) RETURNING created_at`).
		WithArgs(a.ID, a.Name, a.Email, a.PasswordHash, false).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))
	require.NoError(t, r.Create(ctx, a))
	require.True(t, created.Equal(a.CreatedAt))

	// Unique violation
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(a.ID, a.Name, a.Email, a.PasswordHash, false).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, a), errs.ErrAlreadyExists)

	// Other failure
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(a.ID, a.Name, a.Email, a.PasswordHash, false).
		WillReturnError(errors.New("conn reset"))
	err := r.Create(ctx, a)
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrAlreadyExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_GetByEmail(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	email := "bob@example.com"

	mock.ExpectQuery(`SELECT id, name, email, password_hash, confirmed, COALESCE\(refresh_token, ''\), COALESCE\(avatar_url, ''\), created_at FROM users WHERE email=\$1`).
		WithArgs(email).
		WillReturnRows(pgxmock.NewRows(accountRowCols).
			AddRow(id, "bob", email, "$argon2id$h", true, "rt", "", time.Now()))
	a, err := r.GetByEmail(ctx, email)
	require.NoError(t, err)
	require.Equal(t, id, a.ID)
	require.Equal(t, "rt", a.RefreshToken)
	require.True(t, a.Confirmed)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email=\$1`).
		WithArgs(email).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByEmail(ctx, email)
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email=\$1`).
		WithArgs(email).
		WillReturnError(context.DeadlineExceeded)
	_, err = r.GetByEmail(ctx, email)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_SetConfirmed(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE users SET confirmed = true WHERE email = \$1`).
		WithArgs("a@example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetConfirmed(ctx, "a@example.com"))

	mock.ExpectExec(`UPDATE users SET confirmed = true WHERE email = \$1`).
		WithArgs("ghost@example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.SetConfirmed(ctx, "ghost@example.com"), errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_UpdateRefreshToken(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE users SET refresh_token = NULLIF\(\$2, ''\) WHERE id = \$1`).
		WithArgs(id, "new-rt").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.UpdateRefreshToken(ctx, id, "new-rt"))

	mock.ExpectExec(`UPDATE users SET refresh_token = NULLIF\(\$2, ''\) WHERE id = \$1`).
		WithArgs(id, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.UpdateRefreshToken(ctx, id, ""), errs.ErrNotFound)

	mock.ExpectExec(`UPDATE users SET refresh_token`).
		WithArgs(id, "x").
		WillReturnError(errors.New("boom"))
	require.Error(t, r.UpdateRefreshToken(ctx, id, "x"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_UpdateAvatar(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	url := "https://cdn.example.com/a.png"

	mock.ExpectQuery(`UPDATE users SET avatar_url = \$2 WHERE email = \$1 RETURNING id, name, email`).
		WithArgs("a@example.com", url).
		WillReturnRows(pgxmock.NewRows(accountRowCols).
			AddRow(id, "a", "a@example.com", "$argon2id$h", false, "", url, time.Now()))
	a, err := r.UpdateAvatar(ctx, "a@example.com", url)
	require.NoError(t, err)
	require.Equal(t, url, a.AvatarURL)

	mock.ExpectQuery(`UPDATE users SET avatar_url`).
		WithArgs("ghost@example.com", url).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.UpdateAvatar(ctx, "ghost@example.com", url)
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(`UPDATE users SET avatar_url`).
		WithArgs("a@example.com", url).
		WillReturnError(&pgconn.PgError{Code: "22001"})
	_, err = r.UpdateAvatar(ctx, "a@example.com", url)
	require.ErrorIs(t, err, errs.ErrValidation)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Ping(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mock.Close()
	r := NewAccountRepo(&DB{Pool: mock})

	mock.ExpectPing()
	require.NoError(t, r.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.Error(t, r.Ping(context.Background()))
}
