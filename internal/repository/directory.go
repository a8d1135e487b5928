package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dibo68/aanexa-admin/internal/domain/guard"
	"github.com/Dibo68/aanexa-admin/internal/domain/model"
)

// superAdminSetLockKey: ключ advisory-блокировки множества супер-администраторов.
// Все изменения роли, статуса и удаления сериализуются на нём.
const superAdminSetLockKey int64 = 0x61645f7375706572 // "ad_super"

// TxFunc: операция внутри транзакции Directory.
type TxFunc func(ctx context.Context, accounts AdminAccountRepository) error

// GuardedMutation: изменение, выполняемое после одобрения guard.
// target: целевая запись, заблокированная FOR UPDATE.
type GuardedMutation func(ctx context.Context, accounts AdminAccountRepository, target *model.AdminAccount) error

// Directory: Admin Directory поверх PostgreSQL.
type Directory struct {
	tx       *TxRunner
	accounts AdminAccountRepository
}

// NewDirectory создаёт Directory на пуле подключений.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{
		tx:       NewTxRunner(pool),
		accounts: NewAdminAccountRepository(pool),
	}
}

// Accounts возвращает репозиторий для чтения и одиночных записей вне транзакции.
func (d *Directory) Accounts() AdminAccountRepository {
	return d.accounts
}

// Transact выполняет fn в транзакции. Для изменений, не затрагивающих роль,
// статус и существование записи (имя, email).
func (d *Directory) Transact(ctx context.Context, fn TxFunc) error {
	return d.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, NewAdminAccountRepository(tx))
	})
}

// AtomicGuardedWrite: единственный путь изменения роли, статуса и удаления.
//
// В одной транзакции: advisory-блокировка множества супер-администраторов,
// блокировка целевой строки, чтение точного множества активных супер-администраторов,
// guard.AuthorizeMutation и только затем mutate. Отказ guard возвращает
// guard.ErrLastSuperAdminProtected, транзакция откатывается.
func (d *Directory) AtomicGuardedWrite(ctx context.Context, targetID string, change guard.Change, mutate GuardedMutation) error {
	return d.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, superAdminSetLockKey); err != nil {
			return fmt.Errorf("ошибка блокировки множества супер-администраторов: %w", err)
		}

		accounts := NewAdminAccountRepository(tx)

		target, err := accounts.GetByIDForUpdate(ctx, targetID)
		if err != nil {
			return err
		}

		supers, err := accounts.ListActiveSuperAdmins(ctx)
		if err != nil {
			return err
		}

		// targetID может быть в любом написании, которое принимает тип uuid;
		// guard сравнивает идентификаторы в каноническом виде из строки БД.
		if decision := guard.AuthorizeMutation(target.ID, guard.NewSnapshot(target, supers), change); decision != guard.Allow {
			return decision.Err()
		}

		return mutate(ctx, accounts, target)
	})
}
