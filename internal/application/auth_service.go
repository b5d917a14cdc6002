package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/hall-allocation/internal/persistence"
)

// CredentialStore looks up login accounts.
type CredentialStore interface {
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
	GetUser(ctx context.Context, id string) (User, error)
}

// StudentDirectory resolves residency profiles. A non-warden account without
// a profile cannot use the portal.
type StudentDirectory interface {
	GetStudent(ctx context.Context, id string) (Student, error)
	GetStudentByRollNumber(ctx context.Context, rollNumber string) (Student, error)
}

// SessionRepository stores issued sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	UpdateSession(ctx context.Context, session Session) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthDeps wires an AuthService. Verify, NewToken, Now and SessionTTL have
// defaults.
type AuthDeps struct {
	Credentials CredentialStore
	Students    StudentDirectory
	Sessions    SessionRepository
	Verify      PasswordVerifier
	NewToken    func() string
	Now         func() time.Time
	SessionTTL  time.Duration
	Logger      *slog.Logger
}

// AuthService signs wardens and students in and turns session tokens back
// into principals.
type AuthService struct {
	credentials CredentialStore
	students    StudentDirectory
	sessions    SessionRepository
	verify      PasswordVerifier
	newToken    func() string
	now         func() time.Time
	ttl         time.Duration
	logger      *slog.Logger
}

// NewAuthService builds an AuthService from deps.
func NewAuthService(deps AuthDeps) *AuthService {
	s := &AuthService{
		credentials: deps.Credentials,
		students:    deps.Students,
		sessions:    deps.Sessions,
		verify:      deps.Verify,
		newToken:    deps.NewToken,
		now:         deps.Now,
		ttl:         deps.SessionTTL,
		logger:      defaultLogger(deps.Logger),
	}
	if s.verify == nil {
		s.verify = VerifyPassword
	}
	if s.newToken == nil {
		s.newToken = func() string { return "" }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	return s
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

func (s *AuthService) ready() error {
	switch {
	case s == nil:
		return fmt.Errorf("AuthService is nil")
	case s.credentials == nil:
		return fmt.Errorf("credential store not configured")
	case s.students == nil:
		return fmt.Errorf("student directory not configured")
	case s.sessions == nil:
		return fmt.Errorf("session repository not configured")
	}
	return nil
}

// Authenticate checks a login and password and opens a session. Wardens sign
// in by email; students by email or roll number.
func (s *AuthService) Authenticate(ctx context.Context, params AuthenticateParams) (result AuthenticateResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	login := strings.TrimSpace(params.Login)
	logger := s.loggerWith(ctx, "Authenticate", "login_kind", loginKind(login))
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "sign-in refused", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "signed in",
			"user_id", result.Account.UserID,
			"role", result.Account.Role,
			"session_id", result.Session.ID,
		)
	}()

	if login == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	creds, err := s.credentialsFor(ctx, login)
	if err != nil {
		return
	}
	if verr := s.verify(creds.PasswordHash, params.Password); verr != nil {
		err = ErrInvalidCredentials
		return
	}

	account, err := s.resolveAccount(ctx, creds.User)
	if errors.Is(err, ErrUnauthorized) {
		err = ErrInvalidCredentials
	}
	if err != nil {
		return
	}

	now := s.now()
	if err = s.sessions.DeleteExpiredSessions(ctx, now); err != nil {
		return
	}
	session, err := s.sessions.CreateSession(ctx, s.openSession(account.UserID, params.Fingerprint, now))
	if err != nil {
		return
	}

	result = AuthenticateResult{Account: account, Session: session}
	return
}

// credentialsFor finds the account behind an email or roll number. Unknown
// logins read as ErrInvalidCredentials.
func (s *AuthService) credentialsFor(ctx context.Context, login string) (UserCredentials, error) {
	email := strings.ToLower(login)
	if loginKind(login) == "roll_number" {
		student, err := s.students.GetStudentByRollNumber(ctx, login)
		if err != nil {
			if isMissing(err) {
				return UserCredentials{}, ErrInvalidCredentials
			}
			return UserCredentials{}, err
		}
		email = strings.ToLower(student.Email)
	}

	creds, err := s.credentials.GetUserCredentialsByEmail(ctx, email)
	if err != nil {
		if isMissing(err) {
			return UserCredentials{}, ErrInvalidCredentials
		}
		return UserCredentials{}, err
	}
	return creds, nil
}

func (s *AuthService) openSession(userID, fingerprint string, now time.Time) Session {
	id := s.newToken()
	token := s.newToken()
	if token == "" {
		token = id
	}
	return Session{
		ID:          id,
		UserID:      userID,
		Token:       token,
		Fingerprint: strings.TrimSpace(fingerprint),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
}

// resolveAccount decides whether user acts as a warden or as a student.
// Warden flags win over a residency profile.
func (s *AuthService) resolveAccount(ctx context.Context, user User) (Account, error) {
	account := Account{UserID: user.ID, Email: user.Email, DisplayName: user.DisplayName}
	if user.IsAdmin {
		account.Role = RoleWarden
		return account, nil
	}

	student, err := s.students.GetStudent(ctx, user.ID)
	if err != nil {
		if isMissing(err) {
			return Account{}, ErrUnauthorized
		}
		return Account{}, err
	}
	account.Role = RoleStudent
	account.RollNumber = student.RollNumber
	account.Department = student.Department
	if student.FullName != "" {
		account.DisplayName = student.FullName
	}
	return account, nil
}

// liveSession returns the stored session for token if it is neither revoked
// nor expired.
func (s *AuthService) liveSession(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrInvalidCredentials
	}
	session, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		if isMissing(err) {
			return Session{}, ErrUnauthorized
		}
		return Session{}, err
	}
	if session.RevokedAt != nil && !session.RevokedAt.IsZero() {
		return Session{}, ErrSessionRevoked
	}
	if !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(s.now()) {
		return Session{}, ErrSessionExpired
	}
	return session, nil
}

// RefreshSession swaps a live session's token for a new one and pushes its
// expiry out by the session TTL.
func (s *AuthService) RefreshSession(ctx context.Context, params RefreshSessionParams) (result RefreshSessionResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "RefreshSession")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "session refresh refused", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session refreshed", "session_id", result.Session.ID, "user_id", result.Session.UserID)
	}()

	session, err := s.liveSession(ctx, strings.TrimSpace(params.Token))
	if err != nil {
		return
	}

	now := s.now()
	if rotated := s.newToken(); rotated != "" {
		session.Token = rotated
	}
	session.UpdatedAt = now
	session.ExpiresAt = now.Add(s.ttl)
	if fp := strings.TrimSpace(params.Fingerprint); fp != "" {
		session.Fingerprint = fp
	}

	session, err = s.sessions.UpdateSession(ctx, session)
	if err != nil {
		return
	}
	result = RefreshSessionResult{Session: session}
	return
}

// RevokeSession ends the session behind token and prunes expired sessions.
func (s *AuthService) RevokeSession(ctx context.Context, token string) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "RevokeSession")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "session revocation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session revoked")
	}()

	token = strings.TrimSpace(token)
	if token == "" {
		err = ErrInvalidCredentials
		return
	}

	now := s.now()
	if _, err = s.sessions.RevokeSession(ctx, token, now); err != nil {
		if isMissing(err) {
			err = ErrInvalidCredentials
		}
		return
	}
	err = s.sessions.DeleteExpiredSessions(ctx, now)
	return
}

// ValidateSession resolves token to the principal acting through it. The
// role is re-read on every call, so a profile removed after sign-in locks
// the session out.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if err = s.ready(); err != nil {
		return
	}

	session, err := s.liveSession(ctx, strings.TrimSpace(token))
	if err != nil {
		return
	}

	user, err := s.credentials.GetUser(ctx, session.UserID)
	if err != nil {
		if isMissing(err) {
			err = ErrUnauthorized
		}
		return
	}
	account, err := s.resolveAccount(ctx, user)
	if err != nil {
		return
	}

	principal = account.Principal()
	s.loggerWith(ctx, "ValidateSession").DebugContext(ctx, "session validated",
		"principal_id", principal.UserID,
		"role", account.Role,
	)
	return
}

// WhoAmI describes the account behind principal.
func (s *AuthService) WhoAmI(ctx context.Context, principal Principal) (Account, error) {
	if err := s.ready(); err != nil {
		return Account{}, err
	}
	if principal.UserID == "" {
		return Account{}, ErrUnauthorized
	}

	user, err := s.credentials.GetUser(ctx, principal.UserID)
	if err != nil {
		if isMissing(err) {
			return Account{}, ErrUnauthorized
		}
		return Account{}, err
	}
	return s.resolveAccount(ctx, user)
}

func loginKind(login string) string {
	if strings.Contains(login, "@") {
		return "email"
	}
	return "roll_number"
}

func isMissing(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
