// Package session reads the identity out of a previously issued bearer token
// and owns the stored copy of it. The token signature is never validated here:
// the backend is the authority, and a 401 from any call tears the session down.
package session

import (
	"encoding/json"
	"strings"
	"sync"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"puntoventa/terminal/internal/apperr"
	"puntoventa/terminal/internal/domain"
	"puntoventa/terminal/internal/localstore"
)

type tokenClaims struct {
	jwtlib.RegisteredClaims
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Rol      string `json:"rol"`
}

// Manager is the single owner of session state. Screens receive it at
// construction instead of reading shared storage directly, and every
// dependent that caches identity registers an OnSignOut listener.
type Manager struct {
	mu        sync.Mutex
	store     *localstore.Store
	log       zerolog.Logger
	listeners []func()
}

func NewManager(store *localstore.Store, log zerolog.Logger) *Manager {
	return &Manager{
		store: store,
		log:   log.With().Str("component", "session").Logger(),
	}
}

// Decode recovers {id, username, rol} from a bearer token payload without
// verifying the signature.
func Decode(token string) (domain.User, error) {
	claims := &tokenClaims{}
	parser := jwtlib.NewParser()
	if _, _, err := parser.ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return domain.User{}, apperr.Wrap(apperr.CodeSession, err, "malformed session token")
	}
	user := domain.User{ID: claims.ID, Username: claims.Username, Rol: claims.Rol}
	if user.Username == "" && claims.Subject != "" {
		user.Username = claims.Subject
	}
	if user.Username == "" {
		return domain.User{}, apperr.New(apperr.CodeSession, "session token carries no identity")
	}
	return user, nil
}

// SignIn decodes and persists a freshly issued token under the fixed keys.
func (m *Manager) SignIn(token string) (domain.User, error) {
	user, err := Decode(token)
	if err != nil {
		return domain.User{}, err
	}

	payload, err := json.Marshal(user)
	if err != nil {
		return domain.User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Set(localstore.KeyToken, token); err != nil {
		return domain.User{}, err
	}
	if err := m.store.Set(localstore.KeyUser, string(payload)); err != nil {
		return domain.User{}, err
	}
	if err := m.store.Set(localstore.KeyRol, user.Rol); err != nil {
		return domain.User{}, err
	}

	m.log.Info().Str("username", user.Username).Str("rol", user.Rol).Msg("signed in")
	return user, nil
}

// Current re-reads the stored identity. The second return is false when no
// session exists.
func (m *Manager) Current() (domain.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, found, err := m.store.Get(localstore.KeyUser)
	if err != nil || !found {
		return domain.User{}, false
	}
	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return domain.User{}, false
	}
	return user, true
}

// Token returns the stored bearer token, empty when signed out. It satisfies
// the backend client's TokenSource.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, _, err := m.store.Get(localstore.KeyToken)
	if err != nil {
		return ""
	}
	return token
}

// OnSignOut registers a listener invoked after session state is cleared,
// whether by explicit sign-out or expiry.
func (m *Manager) OnSignOut(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// SignOut clears the fixed keys and notifies all dependents.
func (m *Manager) SignOut() {
	m.clear("signed out")
}

// Expire is the 401 path: same teardown as SignOut, logged as an expiry so
// the operator can tell a revoked token from a deliberate logout.
func (m *Manager) Expire() {
	m.clear("session expired")
}

func (m *Manager) clear(reason string) {
	m.mu.Lock()
	if err := m.store.Delete(localstore.KeyToken, localstore.KeyUser, localstore.KeyRol); err != nil {
		m.log.Warn().Err(err).Msg("clearing session state")
	}
	listeners := make([]func(), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	m.log.Info().Msg(reason)
	for _, fn := range listeners {
		fn()
	}
}
