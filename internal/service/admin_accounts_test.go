package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/Dibo68/aanexa-admin/internal/auth"
	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/keycloak"
	"github.com/Dibo68/aanexa-admin/internal/repository"
)

type accountsFixture struct {
	dir        *memDirectory
	identities *mockIdentities
	svc        *AdminAccountService
}

// newAccountsFixture: A и B: активные супер-администраторы, C: администратор.
func newAccountsFixture(t *testing.T) *accountsFixture {
	t.Helper()
	f := &accountsFixture{
		dir: newMemDirectory(
			account(superA, "a@example.com", model.RoleSuperAdmin, model.StatusActive),
			account(superB, "b@example.com", model.RoleSuperAdmin, model.StatusActive),
			account(plainC, "c@example.com", model.RoleAdmin, model.StatusActive),
		),
		identities: newMockIdentities(),
	}
	for _, id := range []string{superA, superB, plainC} {
		a := f.dir.get(id)
		f.identities.users[id] = keycloak.IdentitySpec{Email: a.Email, FullName: a.FullName}
	}
	f.svc = NewAdminAccountService(f.dir, f.identities, testLogger())
	return f
}

func (f *accountsFixture) caller(id string) model.Principal {
	return f.dir.get(id).Principal()
}

func TestCreate_Success(t *testing.T) {
	f := newAccountsFixture(t)

	created, err := f.svc.Create(context.Background(), f.caller(superA), NewAccount{
		Email:    "  New.Admin@Example.com ",
		FullName: " New Admin ",
		Role:     model.RoleAdmin,
		Password: "s3cret-pass",
	})
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if created.Email != "new.admin@example.com" || created.FullName != "New Admin" {
		t.Errorf("created = %+v", created)
	}
	if created.Status != model.StatusActive {
		t.Errorf("Status = %s, ожидался active", created.Status)
	}
	if !f.identities.has(created.ID) {
		t.Error("identity не создана в Keycloak")
	}
	if row := f.dir.get(created.ID); row == nil || row.Role != model.RoleAdmin {
		t.Errorf("строка Directory = %+v", row)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newAccountsFixture(t)
	valid := NewAccount{Email: "x@example.com", FullName: "X", Role: model.RoleAdmin, Password: "12345678"}

	tests := []struct {
		name   string
		mutate func(*NewAccount)
	}{
		{"пустой email", func(a *NewAccount) { a.Email = "" }},
		{"некорректный email", func(a *NewAccount) { a.Email = "not-an-email" }},
		{"email с именем", func(a *NewAccount) { a.Email = "X <x@example.com>" }},
		{"пустое имя", func(a *NewAccount) { a.FullName = "   " }},
		{"короткий пароль", func(a *NewAccount) { a.Password = "1234567" }},
		{"неизвестная роль", func(a *NewAccount) { a.Role = "owner" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := f.svc.Create(context.Background(), f.caller(superA), in)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ожидался ErrValidation, получен %v", err)
			}
		})
	}
	if len(f.identities.users) != 3 {
		t.Error("identity не должна создаваться при ошибке валидации")
	}
}

func TestCreate_RequiresActiveSuperAdmin(t *testing.T) {
	f := newAccountsFixture(t)
	in := NewAccount{Email: "x@example.com", FullName: "X", Role: model.RoleAdmin, Password: "12345678"}

	if _, err := f.svc.Create(context.Background(), f.caller(plainC), in); !errors.Is(err, auth.ErrInsufficientRole) {
		t.Errorf("admin: ожидался ErrInsufficientRole, получен %v", err)
	}

	inactive := f.caller(superA)
	inactive.Status = model.StatusInactive
	if _, err := f.svc.Create(context.Background(), inactive, in); !errors.Is(err, auth.ErrAccountInactive) {
		t.Errorf("inactive: ожидался ErrAccountInactive, получен %v", err)
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	f := newAccountsFixture(t)

	_, err := f.svc.Create(context.Background(), f.caller(superA), NewAccount{
		Email: "C@example.com", FullName: "Dup", Role: model.RoleAdmin, Password: "12345678",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("ожидался ErrConflict, получен %v", err)
	}
	if len(f.identities.users) != 3 {
		t.Error("identity не должна создаваться для занятого email")
	}
}

func TestCreate_IdentityConflict(t *testing.T) {
	f := newAccountsFixture(t)
	f.identities.users["orphan"] = keycloak.IdentitySpec{Email: "orphan@example.com"}

	_, err := f.svc.Create(context.Background(), f.caller(superA), NewAccount{
		Email: "orphan@example.com", FullName: "O", Role: model.RoleAdmin, Password: "12345678",
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("ожидался ErrConflict, получен %v", err)
	}
}

func TestCreate_IdentityFailureCreatesNoRow(t *testing.T) {
	f := newAccountsFixture(t)
	f.identities.createErr = errors.New("keycloak 503")

	_, err := f.svc.Create(context.Background(), f.caller(superA), NewAccount{
		Email: "x@example.com", FullName: "X", Role: model.RoleAdmin, Password: "12345678",
	})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("ожидался ErrUpstream, получен %v", err)
	}
	if n, _ := f.dir.Accounts().Count(context.Background(), repository.AccountFilter{}); n != 3 {
		t.Errorf("строк в Directory = %d, ожидалось 3", n)
	}
}

// TestCreate_CompensatesOnDirectoryFailure: identity удаляется, если строка не записана.
func TestCreate_CompensatesOnDirectoryFailure(t *testing.T) {
	f := newAccountsFixture(t)
	f.dir.failInsert = errors.New("connection reset")

	_, err := f.svc.Create(context.Background(), f.caller(superA), NewAccount{
		Email: "x@example.com", FullName: "X", Role: model.RoleAdmin, Password: "12345678",
	})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("ожидался ErrUpstream, получен %v", err)
	}
	if len(f.identities.deleted) != 1 {
		t.Fatalf("компенсирующих удалений = %d, ожидалось 1", len(f.identities.deleted))
	}
	if f.identities.has(f.identities.deleted[0]) {
		t.Error("identity осталась в Keycloak без строки Directory")
	}
}

// TestUpdate_DemotionScenario: понижение одного из двух супер-администраторов
// проходит, понижение оставшегося отклоняется без изменений.
func TestUpdate_DemotionScenario(t *testing.T) {
	f := newAccountsFixture(t)
	ctx := context.Background()
	admin := model.RoleAdmin

	updated, err := f.svc.Update(ctx, f.caller(superB), superA, model.AccountUpdate{Role: &admin})
	if err != nil {
		t.Fatalf("понижение A: %v", err)
	}
	if updated.Role != model.RoleAdmin {
		t.Errorf("Role = %s", updated.Role)
	}

	_, err = f.svc.Update(ctx, f.caller(superB), superB, model.AccountUpdate{Role: &admin})
	if !errors.Is(err, ErrLastSuperAdminProtected) {
		t.Fatalf("ожидался ErrLastSuperAdminProtected, получен %v", err)
	}
	if b := f.dir.get(superB); b.Role != model.RoleSuperAdmin || b.Status != model.StatusActive {
		t.Errorf("B изменён: %+v", b)
	}
}

func TestUpdate_DeactivateLastSuperAdmin(t *testing.T) {
	f := newAccountsFixture(t)
	ctx := context.Background()
	inactive := model.StatusInactive

	if _, err := f.svc.Update(ctx, f.caller(superA), superB, model.AccountUpdate{Status: &inactive}); err != nil {
		t.Fatalf("отключение B: %v", err)
	}
	_, err := f.svc.Update(ctx, f.caller(superA), superA, model.AccountUpdate{Status: &inactive})
	if !errors.Is(err, ErrLastSuperAdminProtected) {
		t.Errorf("ожидался ErrLastSuperAdminProtected, получен %v", err)
	}
}

// TestUpdate_RenameNotGuarded: переименование последнего супер-администратора допустимо.
func TestUpdate_RenameNotGuarded(t *testing.T) {
	f := newAccountsFixture(t)
	ctx := context.Background()
	admin := model.RoleAdmin
	if _, err := f.svc.Update(ctx, f.caller(superA), superB, model.AccountUpdate{Role: &admin}); err != nil {
		t.Fatal(err)
	}

	updated, err := f.svc.Update(ctx, f.caller(superA), superA, model.AccountUpdate{FullName: ptr("Alice Root")})
	if err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	if updated.FullName != "Alice Root" {
		t.Errorf("FullName = %q", updated.FullName)
	}
	if got := f.identities.users[superA].FullName; got != "Alice Root" {
		t.Errorf("имя в Keycloak = %q", got)
	}
}

func TestUpdate_Errors(t *testing.T) {
	f := newAccountsFixture(t)
	ctx := context.Background()
	admin := model.RoleAdmin

	if _, err := f.svc.Update(ctx, f.caller(superA), plainC, model.AccountUpdate{}); !errors.Is(err, ErrValidation) {
		t.Errorf("пустое изменение: ожидался ErrValidation, получен %v", err)
	}
	if _, err := f.svc.Update(ctx, f.caller(superA), "44444444-4444-4444-8444-444444444444", model.AccountUpdate{Role: &admin}); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестный id: ожидался ErrNotFound, получен %v", err)
	}
	if _, err := f.svc.Update(ctx, f.caller(superA), plainC, model.AccountUpdate{Email: ptr("B@example.com")}); !errors.Is(err, ErrConflict) {
		t.Errorf("занятый email: ожидался ErrConflict, получен %v", err)
	}
	if _, err := f.svc.Update(ctx, f.caller(plainC), superA, model.AccountUpdate{Role: &admin}); !errors.Is(err, auth.ErrInsufficientRole) {
		t.Errorf("admin: ожидался ErrInsufficientRole, получен %v", err)
	}
}

// TestUpdate_IdentityFailureRollsBack: ошибка Keycloak откатывает изменение email.
func TestUpdate_IdentityFailureRollsBack(t *testing.T) {
	f := newAccountsFixture(t)
	f.identities.updateErr = errors.New("keycloak 500")

	_, err := f.svc.Update(context.Background(), f.caller(superA), plainC, model.AccountUpdate{Email: ptr("new-c@example.com")})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("ожидался ErrUpstream, получен %v", err)
	}
	if c := f.dir.get(plainC); c.Email != "c@example.com" {
		t.Errorf("email изменён несмотря на ошибку Keycloak: %q", c.Email)
	}
}

// TestUpdate_ConcurrentDemotions: из двух параллельных понижений проходит ровно одно.
func TestUpdate_ConcurrentDemotions(t *testing.T) {
	f := newAccountsFixture(t)
	admin := model.RoleAdmin

	// Оба запроса прочитали Principal до начала записи
	callers := map[string]model.Principal{superA: f.caller(superB), superB: f.caller(superA)}

	start := make(chan struct{})
	var ready sync.WaitGroup
	ready.Add(2)
	f.dir.beforeGuard = func() {
		ready.Done()
		<-start
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for target, caller := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Update(context.Background(), caller, target, model.AccountUpdate{Role: &admin})
			errs <- err
		}()
	}
	ready.Wait()
	close(start)
	wg.Wait()
	close(errs)

	var ok, denied int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrLastSuperAdminProtected):
			denied++
		default:
			t.Errorf("неожиданная ошибка: %v", err)
		}
	}
	if ok != 1 || denied != 1 {
		t.Errorf("ok=%d denied=%d, ожидалось 1 и 1", ok, denied)
	}
	if n := f.dir.activeSuperAdmins(); n != 1 {
		t.Errorf("активных супер-администраторов = %d, ожидался 1", n)
	}
}

func TestDelete_Self(t *testing.T) {
	f := newAccountsFixture(t)

	_, err := f.svc.Delete(context.Background(), f.caller(superA), superA)
	if !errors.Is(err, ErrSelfDeletion) {
		t.Fatalf("ожидался ErrSelfDeletion, получен %v", err)
	}
	if f.dir.get(superA) == nil {
		t.Error("запись удалена")
	}
}

// TestDelete_SelfOtherSpelling: собственный id в другом написании UUID
// тоже распознаётся как удаление самого себя.
func TestDelete_SelfOtherSpelling(t *testing.T) {
	spellings := []string{
		strings.ReplaceAll(superA, "-", ""),
		"{" + superA + "}",
		strings.ToUpper(superA),
		"urn:uuid:" + superA,
	}
	for _, id := range spellings {
		t.Run(id, func(t *testing.T) {
			f := newAccountsFixture(t)

			_, err := f.svc.Delete(context.Background(), f.caller(superA), id)
			if !errors.Is(err, ErrSelfDeletion) {
				t.Fatalf("ожидался ErrSelfDeletion, получен %v", err)
			}
			if f.dir.get(superA) == nil || !f.identities.has(superA) {
				t.Error("запись или identity удалены")
			}
		})
	}
}

// TestGuard_OtherSpellingOfLastSuperAdmin: понижение и отключение последнего
// супер-администратора по id без дефисов отклоняются guard.
func TestGuard_OtherSpellingOfLastSuperAdmin(t *testing.T) {
	f := newAccountsFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Delete(ctx, f.caller(superA), superB); err != nil {
		t.Fatal(err)
	}

	id := strings.ReplaceAll(strings.ToUpper(superA), "-", "")
	admin, inactive := model.RoleAdmin, model.StatusInactive
	for _, upd := range []model.AccountUpdate{{Role: &admin}, {Status: &inactive}} {
		if _, err := f.svc.Update(ctx, f.caller(superA), id, upd); !errors.Is(err, ErrLastSuperAdminProtected) {
			t.Errorf("Update(%+v): ожидался ErrLastSuperAdminProtected, получен %v", upd, err)
		}
	}
	if f.dir.activeSuperAdmins() != 1 {
		t.Error("последний супер-администратор изменён")
	}
}

func TestGet_CanonicalID(t *testing.T) {
	f := newAccountsFixture(t)
	ctx := context.Background()

	got, err := f.svc.Get(ctx, f.caller(plainC), strings.ReplaceAll(superB, "-", ""))
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if got.ID != superB {
		t.Errorf("ID = %s, ожидался %s", got.ID, superB)
	}

	for _, id := range []string{"", "not-a-uuid", superB + "0"} {
		if _, err := f.svc.Get(ctx, f.caller(plainC), id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q): ожидался ErrNotFound, получен %v", id, err)
		}
		if _, err := f.svc.Delete(ctx, f.caller(superA), id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete(%q): ожидался ErrNotFound, получен %v", id, err)
		}
	}
}

func TestDelete_Success(t *testing.T) {
	f := newAccountsFixture(t)

	deleted, err := f.svc.Delete(context.Background(), f.caller(superA), superB)
	if err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if deleted.ID != superB {
		t.Errorf("deleted.ID = %s", deleted.ID)
	}
	if f.dir.get(superB) != nil || f.identities.has(superB) {
		t.Error("запись или identity не удалены")
	}
}

func TestDelete_IdentityAlreadyGone(t *testing.T) {
	f := newAccountsFixture(t)
	delete(f.identities.users, plainC)

	if _, err := f.svc.Delete(context.Background(), f.caller(superA), plainC); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if f.dir.get(plainC) != nil {
		t.Error("запись не удалена")
	}
}

func TestDelete_IdentityFailureRollsBack(t *testing.T) {
	f := newAccountsFixture(t)
	f.identities.deleteErr = errors.New("keycloak 500")

	if _, err := f.svc.Delete(context.Background(), f.caller(superA), plainC); !errors.Is(err, ErrUpstream) {
		t.Fatalf("ожидался ErrUpstream, получен %v", err)
	}
	if f.dir.get(plainC) == nil {
		t.Error("запись удалена несмотря на ошибку Keycloak")
	}
}

// TestDelete_StalePrincipalHitsGuard: вызывающий уже понижен, но Principal устарел:
// удаление последнего супер-администратора отклоняется guard.
func TestDelete_StalePrincipalHitsGuard(t *testing.T) {
	f := newAccountsFixture(t)
	stale := f.caller(superB)
	admin := model.RoleAdmin
	if _, err := f.svc.Update(context.Background(), f.caller(superA), superB, model.AccountUpdate{Role: &admin}); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Delete(context.Background(), stale, superA)
	if !errors.Is(err, ErrLastSuperAdminProtected) {
		t.Fatalf("ожидался ErrLastSuperAdminProtected, получен %v", err)
	}
	if f.dir.get(superA) == nil {
		t.Error("последний супер-администратор удалён")
	}
}

func TestDelete_NotFound(t *testing.T) {
	f := newAccountsFixture(t)

	_, err := f.svc.Delete(context.Background(), f.caller(superA), "44444444-4444-4444-8444-444444444444")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получен %v", err)
	}
}

func TestListAndGet(t *testing.T) {
	f := newAccountsFixture(t)
	ctx := context.Background()

	page, err := f.svc.List(ctx, f.caller(plainC), repository.AccountFilter{}, 2, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 2 || page.Items[0].Email != "a@example.com" {
		t.Errorf("page = total %d, items %d", page.Total, len(page.Items))
	}

	role := model.RoleSuperAdmin
	page, err = f.svc.List(ctx, f.caller(plainC), repository.AccountFilter{Role: &role}, 10, 0)
	if err != nil || page.Total != 2 {
		t.Errorf("фильтр по роли: total=%d err=%v", page.Total, err)
	}

	got, err := f.svc.Get(ctx, f.caller(plainC), superB)
	if err != nil || got.Email != "b@example.com" {
		t.Errorf("Get() = %+v, %v", got, err)
	}

	inactive := f.caller(plainC)
	inactive.Status = model.StatusInactive
	if _, err := f.svc.Get(ctx, inactive, superB); !errors.Is(err, auth.ErrAccountInactive) {
		t.Errorf("inactive: ожидался ErrAccountInactive, получен %v", err)
	}
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()

	t.Run("пустой Directory", func(t *testing.T) {
		dir, ids := newMemDirectory(), newMockIdentities()
		svc := NewAdminAccountService(dir, ids, testLogger())

		if err := svc.Bootstrap(ctx, "Root@Example.com", "bootstrap-pw", "Root"); err != nil {
			t.Fatalf("Bootstrap() ошибка: %v", err)
		}
		if dir.activeSuperAdmins() != 1 {
			t.Error("супер-администратор не создан")
		}
	})

	t.Run("Directory не пуст", func(t *testing.T) {
		f := newAccountsFixture(t)
		if err := f.svc.Bootstrap(ctx, "root@example.com", "bootstrap-pw", "Root"); err != nil {
			t.Fatalf("Bootstrap() ошибка: %v", err)
		}
		if len(f.identities.users) != 3 {
			t.Error("bootstrap не должен создавать identity")
		}
	})

	t.Run("identity уже существует", func(t *testing.T) {
		dir, ids := newMemDirectory(), newMockIdentities()
		ids.users["kc-root"] = keycloak.IdentitySpec{Email: "root@example.com"}
		svc := NewAdminAccountService(dir, ids, testLogger())

		if err := svc.Bootstrap(ctx, "root@example.com", "bootstrap-pw", "Root"); err != nil {
			t.Fatalf("Bootstrap() ошибка: %v", err)
		}
		if a := dir.get("kc-root"); a == nil || !a.IsActiveSuperAdmin() {
			t.Errorf("существующая identity не привязана: %+v", a)
		}
		if ids.passwords["kc-root"] != "bootstrap-pw" {
			t.Error("пароль не установлен")
		}
	})
}

// TestInvariantPreservedUnderRandomOperations: после любой принятой операции
// остаётся хотя бы один активный супер-администратор.
func TestInvariantPreservedUnderRandomOperations(t *testing.T) {
	f := newAccountsFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(42, 7))
	ids := []string{superA, superB, plainC}
	roles := []model.Role{model.RoleAdmin, model.RoleSuperAdmin}
	statuses := []model.Status{model.StatusActive, model.StatusInactive}

	// Вызывающий: всегда актуальный активный супер-администратор
	currentSuper := func() model.Principal {
		for _, id := range ids {
			if a := f.dir.get(id); a != nil && a.IsActiveSuperAdmin() {
				return a.Principal()
			}
		}
		t.Fatal("нет активного супер-администратора")
		return model.Principal{}
	}

	for i := range 500 {
		caller := currentSuper()
		target := ids[rng.IntN(len(ids))]

		switch rng.IntN(4) {
		case 0:
			role := roles[rng.IntN(2)]
			_, _ = f.svc.Update(ctx, caller, target, model.AccountUpdate{Role: &role})
		case 1:
			status := statuses[rng.IntN(2)]
			_, _ = f.svc.Update(ctx, caller, target, model.AccountUpdate{Status: &status})
		case 2:
			if _, err := f.svc.Delete(ctx, caller, target); err == nil {
				ids = removeID(ids, target)
			}
		case 3:
			created, err := f.svc.Create(ctx, caller, NewAccount{
				Email:    fmt.Sprintf("gen%d@example.com", i),
				FullName: "Gen",
				Role:     roles[rng.IntN(2)],
				Password: "12345678",
			})
			if err == nil {
				ids = append(ids, created.ID)
			}
		}

		if n := f.dir.activeSuperAdmins(); n < 1 {
			t.Fatalf("шаг %d: активных супер-администраторов = %d", i, n)
		}
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
