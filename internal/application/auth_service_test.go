package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hall-allocation/internal/persistence"
)

var cheapArgon2Params = Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

var authEpoch = time.Date(2024, time.July, 15, 8, 0, 0, 0, time.UTC)

// hallDirectory is an in-memory account and residency store shared by the
// auth tests.
type hallDirectory struct {
	users    map[string]UserCredentials
	students map[string]Student

	studentErr error
}

func newHallDirectory(t *testing.T) *hallDirectory {
	t.Helper()

	d := &hallDirectory{users: map[string]UserCredentials{}, students: map[string]Student{}}
	d.addUser(t, User{ID: "W1", Email: "warden@hall.example.edu", DisplayName: "Hall Warden", IsAdmin: true}, "warden-pass")
	d.addUser(t, User{ID: "S1", Email: "asha@hall.example.edu", DisplayName: "asha"}, "asha-pass-1")
	d.students["S1"] = Student{ID: "S1", RollNumber: "CS21B001", FullName: "Asha Rao", Department: "Computer Science", Email: "asha@hall.example.edu"}
	// An account whose residency profile was never created.
	d.addUser(t, User{ID: "U9", Email: "orphan@hall.example.edu"}, "orphan-pass")
	return d
}

func (d *hallDirectory) addUser(t *testing.T, user User, password string) {
	t.Helper()
	hash, err := CreatePasswordHash(password, cheapArgon2Params)
	require.NoError(t, err)
	d.users[user.ID] = UserCredentials{User: user, PasswordHash: hash}
}

func (d *hallDirectory) GetUserCredentialsByEmail(_ context.Context, email string) (UserCredentials, error) {
	for _, creds := range d.users {
		if creds.User.Email == email {
			return creds, nil
		}
	}
	return UserCredentials{}, persistence.ErrNotFound
}

func (d *hallDirectory) GetUser(_ context.Context, id string) (User, error) {
	creds, ok := d.users[id]
	if !ok {
		return User{}, persistence.ErrNotFound
	}
	return creds.User, nil
}

func (d *hallDirectory) GetStudent(_ context.Context, id string) (Student, error) {
	if d.studentErr != nil {
		return Student{}, d.studentErr
	}
	student, ok := d.students[id]
	if !ok {
		return Student{}, persistence.ErrNotFound
	}
	return student, nil
}

func (d *hallDirectory) GetStudentByRollNumber(_ context.Context, rollNumber string) (Student, error) {
	if d.studentErr != nil {
		return Student{}, d.studentErr
	}
	for _, student := range d.students {
		if strings.EqualFold(student.RollNumber, rollNumber) {
			return student, nil
		}
	}
	return Student{}, persistence.ErrNotFound
}

// sessionTable keeps sessions by token.
type sessionTable struct {
	byToken map[string]Session

	createErr error
	pruneErr  error
	prunedAt  []time.Time
}

func newSessionTable() *sessionTable {
	return &sessionTable{byToken: map[string]Session{}}
}

func (s *sessionTable) CreateSession(_ context.Context, session Session) (Session, error) {
	if s.createErr != nil {
		return Session{}, s.createErr
	}
	s.byToken[session.Token] = session
	return session, nil
}

func (s *sessionTable) GetSession(_ context.Context, token string) (Session, error) {
	session, ok := s.byToken[token]
	if !ok {
		return Session{}, persistence.ErrNotFound
	}
	return session, nil
}

func (s *sessionTable) UpdateSession(_ context.Context, session Session) (Session, error) {
	for token, stored := range s.byToken {
		if stored.ID == session.ID {
			delete(s.byToken, token)
			s.byToken[session.Token] = session
			return session, nil
		}
	}
	return Session{}, persistence.ErrNotFound
}

func (s *sessionTable) RevokeSession(_ context.Context, token string, revokedAt time.Time) (Session, error) {
	session, ok := s.byToken[token]
	if !ok {
		return Session{}, persistence.ErrNotFound
	}
	session.RevokedAt = &revokedAt
	s.byToken[token] = session
	return session, nil
}

func (s *sessionTable) DeleteExpiredSessions(_ context.Context, reference time.Time) error {
	if s.pruneErr != nil {
		return s.pruneErr
	}
	s.prunedAt = append(s.prunedAt, reference)
	for token, session := range s.byToken {
		if !session.ExpiresAt.After(reference) {
			delete(s.byToken, token)
		}
	}
	return nil
}

type authEnv struct {
	dir      *hallDirectory
	sessions *sessionTable
	now      time.Time
	svc      *AuthService
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()

	env := &authEnv{dir: newHallDirectory(t), sessions: newSessionTable(), now: authEpoch}
	var issued int
	env.svc = NewAuthService(AuthDeps{
		Credentials: env.dir,
		Students:    env.dir,
		Sessions:    env.sessions,
		NewToken: func() string {
			issued++
			return "tok-" + string(rune('a'+issued-1))
		},
		Now:        func() time.Time { return env.now },
		SessionTTL: 2 * time.Hour,
	})
	return env
}

func (e *authEnv) signIn(t *testing.T, login, password string) AuthenticateResult {
	t.Helper()
	result, err := e.svc.Authenticate(context.Background(), AuthenticateParams{Login: login, Password: password})
	require.NoError(t, err)
	return result
}

func TestAuthService_Authenticate(t *testing.T) {
	t.Parallel()

	t.Run("warden signs in by email", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t)

		result, err := env.svc.Authenticate(context.Background(), AuthenticateParams{
			Login:       " Warden@Hall.Example.edu ",
			Password:    "warden-pass",
			Fingerprint: " kiosk ",
		})
		require.NoError(t, err)

		assert.Equal(t, RoleWarden, result.Account.Role)
		assert.Equal(t, Principal{UserID: "W1", IsAdmin: true}, result.Account.Principal())
		assert.Equal(t, "tok-b", result.Session.Token)
		assert.Equal(t, "kiosk", result.Session.Fingerprint)
		assert.True(t, result.Session.ExpiresAt.Equal(authEpoch.Add(2*time.Hour)))
		assert.Equal(t, []time.Time{authEpoch}, env.sessions.prunedAt)
	})

	t.Run("student signs in by roll number", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t)

		result := env.signIn(t, "cs21b001", "asha-pass-1")

		assert.Equal(t, Account{
			UserID:      "S1",
			Email:       "asha@hall.example.edu",
			DisplayName: "Asha Rao",
			Role:        RoleStudent,
			RollNumber:  "CS21B001",
			Department:  "Computer Science",
		}, result.Account)
		assert.Equal(t, Principal{UserID: "S1", RollNumber: "CS21B001"}, result.Account.Principal())
	})

	t.Run("student signs in by email", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t)

		result := env.signIn(t, "asha@hall.example.edu", "asha-pass-1")
		assert.Equal(t, RoleStudent, result.Account.Role)
	})

	refusals := []struct {
		name     string
		login    string
		password string
	}{
		{name: "wrong password", login: "CS21B001", password: "not-my-pass"},
		{name: "unknown roll number", login: "CS99Z999", password: "asha-pass-1"},
		{name: "unknown email", login: "ghost@hall.example.edu", password: "asha-pass-1"},
		{name: "account without residency profile", login: "orphan@hall.example.edu", password: "orphan-pass"},
		{name: "blank login", login: "  ", password: "asha-pass-1"},
		{name: "blank password", login: "CS21B001"},
	}
	for _, tc := range refusals {
		t.Run("refuses "+tc.name, func(t *testing.T) {
			t.Parallel()
			env := newAuthEnv(t)

			_, err := env.svc.Authenticate(context.Background(), AuthenticateParams{Login: tc.login, Password: tc.password})
			require.ErrorIs(t, err, ErrInvalidCredentials)
			assert.Empty(t, env.sessions.byToken)
		})
	}

	t.Run("propagates storage failures", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("disk full")
		env := newAuthEnv(t)
		env.sessions.createErr = boom
		_, err := env.svc.Authenticate(context.Background(), AuthenticateParams{Login: "CS21B001", Password: "asha-pass-1"})
		require.ErrorIs(t, err, boom)

		env = newAuthEnv(t)
		env.sessions.pruneErr = boom
		_, err = env.svc.Authenticate(context.Background(), AuthenticateParams{Login: "CS21B001", Password: "asha-pass-1"})
		require.ErrorIs(t, err, boom)

		env = newAuthEnv(t)
		env.dir.studentErr = boom
		_, err = env.svc.Authenticate(context.Background(), AuthenticateParams{Login: "CS21B001", Password: "asha-pass-1"})
		require.ErrorIs(t, err, boom)
	})
}

func TestAuthService_ValidateSession(t *testing.T) {
	t.Parallel()

	t.Run("resolves student and warden principals", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t)
		student := env.signIn(t, "CS21B001", "asha-pass-1")
		warden := env.signIn(t, "warden@hall.example.edu", "warden-pass")

		principal, err := env.svc.ValidateSession(context.Background(), student.Session.Token)
		require.NoError(t, err)
		assert.Equal(t, Principal{UserID: "S1", RollNumber: "CS21B001"}, principal)

		principal, err = env.svc.ValidateSession(context.Background(), " "+warden.Session.Token+" ")
		require.NoError(t, err)
		assert.Equal(t, Principal{UserID: "W1", IsAdmin: true}, principal)
	})

	t.Run("locks out a student whose profile was removed", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t)
		result := env.signIn(t, "CS21B001", "asha-pass-1")

		delete(env.dir.students, "S1")
		_, err := env.svc.ValidateSession(context.Background(), result.Session.Token)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("rejects expired revoked and unknown tokens", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t)
		expiring := env.signIn(t, "CS21B001", "asha-pass-1")
		revoked := env.signIn(t, "warden@hall.example.edu", "warden-pass")
		require.NoError(t, env.svc.RevokeSession(context.Background(), revoked.Session.Token))

		_, err := env.svc.ValidateSession(context.Background(), revoked.Session.Token)
		require.ErrorIs(t, err, ErrSessionRevoked)

		env.now = authEpoch.Add(2 * time.Hour)
		_, err = env.svc.ValidateSession(context.Background(), expiring.Session.Token)
		require.ErrorIs(t, err, ErrSessionExpired)

		_, err = env.svc.ValidateSession(context.Background(), "forged")
		require.ErrorIs(t, err, ErrUnauthorized)

		_, err = env.svc.ValidateSession(context.Background(), "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestAuthService_RefreshSession(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t)
	signedIn := env.signIn(t, "CS21B001", "asha-pass-1")

	env.now = authEpoch.Add(90 * time.Minute)
	refreshed, err := env.svc.RefreshSession(context.Background(), RefreshSessionParams{Token: signedIn.Session.Token, Fingerprint: "phone"})
	require.NoError(t, err)

	assert.Equal(t, signedIn.Session.ID, refreshed.Session.ID)
	assert.NotEqual(t, signedIn.Session.Token, refreshed.Session.Token)
	assert.Equal(t, "phone", refreshed.Session.Fingerprint)
	assert.True(t, refreshed.Session.ExpiresAt.Equal(env.now.Add(2*time.Hour)))

	_, err = env.svc.ValidateSession(context.Background(), signedIn.Session.Token)
	require.ErrorIs(t, err, ErrUnauthorized, "the rotated-out token no longer works")
	_, err = env.svc.ValidateSession(context.Background(), refreshed.Session.Token)
	require.NoError(t, err)

	env.now = env.now.Add(3 * time.Hour)
	_, err = env.svc.RefreshSession(context.Background(), RefreshSessionParams{Token: refreshed.Session.Token})
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestAuthService_RevokeSession(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t)
	stale := env.signIn(t, "warden@hall.example.edu", "warden-pass")
	env.now = authEpoch.Add(3 * time.Hour)
	current := env.signIn(t, "CS21B001", "asha-pass-1")

	require.NoError(t, env.svc.RevokeSession(context.Background(), current.Session.Token))
	assert.NotNil(t, env.sessions.byToken[current.Session.Token].RevokedAt)
	assert.NotContains(t, env.sessions.byToken, stale.Session.Token, "expired sessions are pruned")

	require.ErrorIs(t, env.svc.RevokeSession(context.Background(), "forged"), ErrInvalidCredentials)
	require.ErrorIs(t, env.svc.RevokeSession(context.Background(), " "), ErrInvalidCredentials)
}

func TestAuthService_WhoAmI(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t)

	account, err := env.svc.WhoAmI(context.Background(), Principal{UserID: "S1", RollNumber: "CS21B001"})
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", account.DisplayName)
	assert.Equal(t, RoleStudent, account.Role)

	account, err = env.svc.WhoAmI(context.Background(), Principal{UserID: "W1", IsAdmin: true})
	require.NoError(t, err)
	assert.Equal(t, RoleWarden, account.Role)

	_, err = env.svc.WhoAmI(context.Background(), Principal{UserID: "U9"})
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = env.svc.WhoAmI(context.Background(), Principal{UserID: "S404"})
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = env.svc.WhoAmI(context.Background(), Principal{})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewAuthServiceRequiresStores(t *testing.T) {
	t.Parallel()

	dir := newHallDirectory(t)
	svc := NewAuthService(AuthDeps{Credentials: dir, Sessions: newSessionTable()})

	_, err := svc.Authenticate(context.Background(), AuthenticateParams{Login: "CS21B001", Password: "asha-pass-1"})
	require.EqualError(t, err, "student directory not configured")

	var nilService *AuthService
	_, err = nilService.ValidateSession(context.Background(), "token")
	require.Error(t, err)
}
