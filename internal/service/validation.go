package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
)

const (
	// MinPasswordLength: минимальная длина пароля.
	MinPasswordLength = 8
	// maxFullNameLength: максимальная длина отображаемого имени.
	maxFullNameLength = 200
)

// canonicalID приводит идентификатор учётной записи к каноническому виду UUID.
// Столбец uuid принимает и другие написания (без дефисов, в верхнем регистре),
// поэтому идентификаторы сравниваются только после приведения.
// Строка, не являющаяся UUID, не может ссылаться на запись: ErrNotFound.
func canonicalID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", ErrNotFound
	}
	return id.String(), nil
}

// normalizeEmail проверяет синтаксис email и возвращает его в нижнем регистре.
// Допускается только голый адрес без отображаемого имени.
func normalizeEmail(raw string) (string, error) {
	email := model.NormalizeEmail(raw)
	if email == "" {
		return "", validationError(ReasonEmailRequired, "email обязателен")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", validationError(ReasonEmailInvalid, "некорректный email %q", raw)
	}
	return email, nil
}

// normalizeFullName обрезает пробелы и проверяет, что имя задано.
func normalizeFullName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", validationError(ReasonFullNameRequired, "имя обязательно")
	}
	if utf8.RuneCountInString(name) > maxFullNameLength {
		return "", validationError(ReasonFullNameTooLong, "имя длиннее %d символов", maxFullNameLength)
	}
	return name, nil
}

// checkPassword проверяет минимальную длину пароля.
func checkPassword(pw string) error {
	if utf8.RuneCountInString(pw) < MinPasswordLength {
		return validationError(ReasonPasswordTooShort, "пароль короче %d символов", MinPasswordLength)
	}
	return nil
}

// normalizeUpdate проверяет и нормализует поля частичного обновления.
func normalizeUpdate(upd model.AccountUpdate) (model.AccountUpdate, error) {
	if upd.IsEmpty() {
		return upd, validationError(ReasonEmptyUpdate, "нет изменяемых полей")
	}
	if upd.FullName != nil {
		name, err := normalizeFullName(*upd.FullName)
		if err != nil {
			return upd, err
		}
		upd.FullName = &name
	}
	if upd.Email != nil {
		email, err := normalizeEmail(*upd.Email)
		if err != nil {
			return upd, err
		}
		upd.Email = &email
	}
	return upd, nil
}

// applyUpdate применяет изменения к записи. Возвращает true, если изменились
// поля, синхронизируемые с Credential Store (email, имя).
func applyUpdate(a *model.AdminAccount, upd model.AccountUpdate) (identityChanged bool) {
	if upd.FullName != nil && *upd.FullName != a.FullName {
		a.FullName = *upd.FullName
		identityChanged = true
	}
	if upd.Email != nil && *upd.Email != a.Email {
		a.Email = *upd.Email
		identityChanged = true
	}
	if upd.Role != nil {
		a.Role = *upd.Role
	}
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	return identityChanged
}
