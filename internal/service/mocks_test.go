package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dibo68/aanexa-admin/internal/auth"
	"github.com/Dibo68/aanexa-admin/internal/domain/guard"
	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/keycloak"
	"github.com/Dibo68/aanexa-admin/internal/repository"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- memDirectory: Directory в памяти ---

// memDirectory: Directory в памяти с транзакциями копированием состояния.
// Все транзакции сериализуются мьютексом, при коммите проверяется инвариант
// (аналог отложенного триггера в PostgreSQL).
type memDirectory struct {
	mu       sync.Mutex
	accounts map[string]*model.AdminAccount

	// failInsert: ошибка, возвращаемая Insert
	failInsert error
	// beforeGuard вызывается внутри AtomicGuardedWrite до чтения снимка
	beforeGuard func()
}

func newMemDirectory(accounts ...*model.AdminAccount) *memDirectory {
	d := &memDirectory{accounts: make(map[string]*model.AdminAccount)}
	for _, a := range accounts {
		cp := *a
		d.accounts[a.ID] = &cp
	}
	return d
}

func (d *memDirectory) Accounts() repository.AdminAccountRepository {
	return &memTxRepo{dir: d, autocommit: true}
}

func (d *memDirectory) Transact(ctx context.Context, fn repository.TxFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	repo := &memTxRepo{dir: d, state: d.clone()}
	if err := fn(ctx, repo); err != nil {
		return err
	}
	return d.commit(repo.state)
}

func (d *memDirectory) AtomicGuardedWrite(ctx context.Context, targetID string, change guard.Change, mutate repository.GuardedMutation) error {
	if d.beforeGuard != nil {
		d.beforeGuard()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	repo := &memTxRepo{dir: d, state: d.clone()}
	target, err := repo.GetByIDForUpdate(ctx, targetID)
	if err != nil {
		return err
	}
	supers, err := repo.ListActiveSuperAdmins(ctx)
	if err != nil {
		return err
	}
	if decision := guard.AuthorizeMutation(target.ID, guard.NewSnapshot(target, supers), change); decision != guard.Allow {
		return decision.Err()
	}
	if err := mutate(ctx, repo, target); err != nil {
		return err
	}
	return d.commit(repo.state)
}

func (d *memDirectory) clone() map[string]*model.AdminAccount {
	out := make(map[string]*model.AdminAccount, len(d.accounts))
	for id, a := range d.accounts {
		cp := *a
		out[id] = &cp
	}
	return out
}

func (d *memDirectory) commit(state map[string]*model.AdminAccount) error {
	// Как отложенный триггер: нарушать можно только выполнявшийся инвариант
	if countSupers(d.accounts) > 0 && countSupers(state) == 0 {
		return repository.ErrLastSuperAdmin
	}
	d.accounts = state
	return nil
}

func countSupers(state map[string]*model.AdminAccount) int {
	n := 0
	for _, a := range state {
		if a.IsActiveSuperAdmin() {
			n++
		}
	}
	return n
}

// get возвращает копию записи (для проверок в тестах).
func (d *memDirectory) get(id string) *model.AdminAccount {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (d *memDirectory) activeSuperAdmins() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return countSupers(d.accounts)
}

// columnID: ключ записи так, как его понимает столбец uuid в PostgreSQL
// (без дефисов, в фигурных скобках, в верхнем регистре: та же запись).
func columnID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

// memTxRepo: AdminAccountRepository над состоянием транзакции.
// autocommit: каждая операция: отдельная транзакция над d.accounts.
type memTxRepo struct {
	dir        *memDirectory
	state      map[string]*model.AdminAccount
	autocommit bool
}

func (r *memTxRepo) view(fn func(state map[string]*model.AdminAccount) error) error {
	if !r.autocommit {
		return fn(r.state)
	}
	r.dir.mu.Lock()
	defer r.dir.mu.Unlock()
	state := r.dir.clone()
	if err := fn(state); err != nil {
		return err
	}
	return r.dir.commit(state)
}

func (r *memTxRepo) GetByID(_ context.Context, id string) (*model.AdminAccount, error) {
	var out *model.AdminAccount
	err := r.view(func(state map[string]*model.AdminAccount) error {
		a, ok := state[columnID(id)]
		if !ok {
			return repository.ErrNotFound
		}
		cp := *a
		out = &cp
		return nil
	})
	return out, err
}

func (r *memTxRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.AdminAccount, error) {
	return r.GetByID(ctx, id)
}

func (r *memTxRepo) GetByEmail(_ context.Context, email string) (*model.AdminAccount, error) {
	var out *model.AdminAccount
	err := r.view(func(state map[string]*model.AdminAccount) error {
		for _, a := range state {
			if strings.EqualFold(a.Email, email) {
				cp := *a
				out = &cp
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *memTxRepo) filtered(state map[string]*model.AdminAccount, f repository.AccountFilter) []*model.AdminAccount {
	var out []*model.AdminAccount
	for _, a := range state {
		if f.Role != nil && a.Role != *f.Role {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(a.Email+" "+a.FullName), strings.ToLower(f.Search)) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (r *memTxRepo) List(_ context.Context, f repository.AccountFilter, limit, offset int) ([]*model.AdminAccount, error) {
	var out []*model.AdminAccount
	err := r.view(func(state map[string]*model.AdminAccount) error {
		all := r.filtered(state, f)
		if offset >= len(all) {
			return nil
		}
		end := min(offset+limit, len(all))
		out = all[offset:end]
		return nil
	})
	return out, err
}

func (r *memTxRepo) Count(_ context.Context, f repository.AccountFilter) (int, error) {
	n := 0
	err := r.view(func(state map[string]*model.AdminAccount) error {
		n = len(r.filtered(state, f))
		return nil
	})
	return n, err
}

func (r *memTxRepo) ListActiveSuperAdmins(_ context.Context) ([]*model.AdminAccount, error) {
	var out []*model.AdminAccount
	err := r.view(func(state map[string]*model.AdminAccount) error {
		for _, a := range state {
			if a.IsActiveSuperAdmin() {
				cp := *a
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}

func (r *memTxRepo) Insert(_ context.Context, a *model.AdminAccount) error {
	if r.dir.failInsert != nil {
		return r.dir.failInsert
	}
	return r.view(func(state map[string]*model.AdminAccount) error {
		for _, existing := range state {
			if existing.ID == a.ID || strings.EqualFold(existing.Email, a.Email) {
				return repository.ErrConflict
			}
		}
		now := time.Now()
		a.CreatedAt, a.UpdatedAt = now, now
		cp := *a
		state[a.ID] = &cp
		return nil
	})
}

func (r *memTxRepo) Update(_ context.Context, a *model.AdminAccount) error {
	return r.view(func(state map[string]*model.AdminAccount) error {
		if _, ok := state[a.ID]; !ok {
			return repository.ErrNotFound
		}
		for id, existing := range state {
			if id != a.ID && strings.EqualFold(existing.Email, a.Email) {
				return repository.ErrConflict
			}
		}
		a.UpdatedAt = time.Now()
		cp := *a
		state[a.ID] = &cp
		return nil
	})
}

func (r *memTxRepo) Delete(_ context.Context, id string) error {
	return r.view(func(state map[string]*model.AdminAccount) error {
		if _, ok := state[columnID(id)]; !ok {
			return repository.ErrNotFound
		}
		delete(state, columnID(id))
		return nil
	})
}

func (r *memTxRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return r.view(func(state map[string]*model.AdminAccount) error {
		a, ok := state[columnID(id)]
		if !ok {
			return repository.ErrNotFound
		}
		a.LastLogin = &at
		return nil
	})
}

// --- mockIdentities: Admin REST API Keycloak ---

type mockIdentities struct {
	mu        sync.Mutex
	users     map[string]keycloak.IdentitySpec
	nextID    int
	createErr error
	deleteErr error
	updateErr error
	passwords map[string]string
	deleted   []string
	updates   []keycloak.IdentityUpdate
}

func newMockIdentities() *mockIdentities {
	return &mockIdentities{
		users:     make(map[string]keycloak.IdentitySpec),
		passwords: make(map[string]string),
	}
}

func (m *mockIdentities) CreateIdentity(_ context.Context, spec keycloak.IdentitySpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	for _, u := range m.users {
		if u.Email == spec.Email {
			return "", keycloak.ErrConflict
		}
	}
	m.nextID++
	id := fmt.Sprintf("00000000-0000-4000-8000-%012d", m.nextID)
	m.users[id] = spec
	m.passwords[id] = spec.Password
	return id, nil
}

func (m *mockIdentities) DeleteIdentity(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.users[id]; !ok {
		return keycloak.ErrNotFound
	}
	delete(m.users, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockIdentities) UpdateIdentity(_ context.Context, id string, upd keycloak.IdentityUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	u, ok := m.users[id]
	if !ok {
		return keycloak.ErrNotFound
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	m.users[id] = u
	m.updates = append(m.updates, upd)
	return nil
}

func (m *mockIdentities) SetPassword(_ context.Context, id, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return keycloak.ErrNotFound
	}
	m.passwords[id] = password
	return nil
}

func (m *mockIdentities) FindUserByEmail(_ context.Context, email string) (*keycloak.KeycloakUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if u.Email == email {
			return &keycloak.KeycloakUser{ID: id, Email: u.Email, Username: u.Email, Enabled: true}, nil
		}
	}
	return nil, keycloak.ErrNotFound
}

func (m *mockIdentities) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[id]
	return ok
}

// --- mockIssuer: token endpoint ---

// mockIssuer выдаёт access token вида "at:<id>" для пары email/пароль из identities.
type mockIssuer struct {
	identities *mockIdentities
	err        error
	logouts    []string
}

func (m *mockIssuer) PasswordGrant(_ context.Context, email, password string) (*keycloak.TokenSet, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.identities.mu.Lock()
	defer m.identities.mu.Unlock()
	for id, u := range m.identities.users {
		if u.Email == email && m.identities.passwords[id] == password {
			return &keycloak.TokenSet{
				AccessToken:  "at:" + id,
				RefreshToken: "rt:" + id,
				Expiry:       time.Now().Add(5 * time.Minute),
			}, nil
		}
	}
	return nil, keycloak.ErrInvalidCredentials
}

func (m *mockIssuer) Logout(_ context.Context, refreshToken string) error {
	m.logouts = append(m.logouts, refreshToken)
	return nil
}

// mockTokens разбирает токены mockIssuer.
type mockTokens struct{}

func (mockTokens) Verify(_ context.Context, raw string) (*auth.Claims, error) {
	sub, ok := strings.CutPrefix(raw, "at:")
	if !ok {
		return nil, errors.New("неизвестный токен")
	}
	c := &auth.Claims{}
	c.Subject = sub
	return c, nil
}

// --- fixtures ---

const (
	superA = "11111111-1111-4111-8111-111111111111"
	superB = "22222222-2222-4222-8222-222222222222"
	plainC = "33333333-3333-4333-8333-333333333333"
)

func account(id, email string, role model.Role, status model.Status) *model.AdminAccount {
	return &model.AdminAccount{ID: id, Email: email, FullName: email, Role: role, Status: status}
}

func ptr[T any](v T) *T { return &v }
