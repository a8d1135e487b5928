// dto.go: JSON-представления Admin API (схемы из openapi.yaml).
package handlers

import (
	"time"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
)

// PrincipalDTO: схема Principal.
type PrincipalDTO struct {
	ID       openapi_types.UUID  `json:"id"`
	Email    openapi_types.Email `json:"email"`
	FullName string              `json:"full_name"`
	Role     model.Role          `json:"role"`
	Status   model.Status        `json:"status"`
}

// AdminAccountDTO: схема AdminAccount.
type AdminAccountDTO struct {
	ID        openapi_types.UUID  `json:"id"`
	Email     openapi_types.Email `json:"email"`
	FullName  string              `json:"full_name"`
	Role      model.Role          `json:"role"`
	Status    model.Status        `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	LastLogin *time.Time          `json:"last_login,omitempty"`
}

// AdminAccountListDTO: схема AdminAccountList.
type AdminAccountListDTO struct {
	Items   []AdminAccountDTO `json:"items"`
	Total   int               `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
	HasMore bool              `json:"has_more"`
}

// LoginResponseDTO: схема LoginResponse.
type LoginResponseDTO struct {
	Principal PrincipalDTO `json:"principal"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createAdminRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

type updateAdminRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
}

type updateProfileRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// parseID переводит строковый id в UUID схемы. Id в Directory всегда UUID.
func parseID(id string) openapi_types.UUID {
	u, _ := uuid.Parse(id)
	return u
}

func mapPrincipal(p model.Principal) PrincipalDTO {
	return PrincipalDTO{
		ID:       parseID(p.AccountID),
		Email:    openapi_types.Email(p.Email),
		FullName: p.FullName,
		Role:     p.Role,
		Status:   p.Status,
	}
}

func mapAccount(a *model.AdminAccount) AdminAccountDTO {
	return AdminAccountDTO{
		ID:        parseID(a.ID),
		Email:     openapi_types.Email(a.Email),
		FullName:  a.FullName,
		Role:      a.Role,
		Status:    a.Status,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
		LastLogin: a.LastLogin,
	}
}
