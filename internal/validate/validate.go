// Пакет validate — декларативная валидация записей восходящих датасетов.
// Контракт: validate(вид записи, сырой JSON) → (доменная модель | ошибка).
// Валидация чистая и синхронная: ни сети, ни кэша она не касается.
//
// Семантика required соответствует Joi: поле должно присутствовать,
// нулевые значения (0, false) допустимы, пустые строки — нет.
// Для этого сырые записи декодируются в структуры с pointer-полями.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/insurance-api/internal/domain/model"
)

// rawClient — сырая запись клиента. Pointer-поля различают
// "поле отсутствует" (nil) и "нулевое значение".
type rawClient struct {
	ID    *string `json:"id"    validate:"required,min=1"`
	Name  *string `json:"name"  validate:"required,min=1"`
	Email *string `json:"email" validate:"required,email"`
	Role  *string `json:"role"  validate:"required,oneof=admin user"`
}

// rawPolicy — сырая запись полиса.
// Строгость типов (число — число, bool — bool) обеспечивает
// json.Unmarshal в типизированные pointer-поля.
type rawPolicy struct {
	ID                 *string  `json:"id"                 validate:"required,uuid"`
	ClientID           *string  `json:"clientId"           validate:"required,uuid"`
	AmountInsured      *float64 `json:"amountInsured"      validate:"required"`
	Email              *string  `json:"email"              validate:"required,email"`
	InceptionDate      *string  `json:"inceptionDate"      validate:"required,isodate"`
	InstallmentPayment *bool    `json:"installmentPayment" validate:"required"`
}

// FieldError — ошибка валидации одного поля: имя поля + нарушенное ограничение.
type FieldError struct {
	// Field — имя поля (как в JSON)
	Field string
	// Constraint — тег нарушенного ограничения (required, email, uuid, ...)
	Constraint string
}

// Error реализует error.
func (e *FieldError) Error() string {
	return fmt.Sprintf("поле %q: нарушено ограничение %q", e.Field, e.Constraint)
}

// Validator — обёртка над go-playground/validator с кастомными правилами.
type Validator struct {
	v *validator.Validate
}

// New создаёт Validator с зарегистрированным правилом isodate.
// Имена полей в ошибках берутся из json-тегов.
func New() *Validator {
	v := validator.New()

	// Имя поля в ошибках — из json-тега, не из имени Go-поля
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// isodate — парсится как RFC3339 или как дата без времени
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		return isISODate(fl.Field().String())
	})

	return &Validator{v: v}
}

// Client валидирует сырую запись клиента и возвращает доменную модель.
func (vd *Validator) Client(raw json.RawMessage) (model.Client, error) {
	var rc rawClient
	if err := json.Unmarshal(raw, &rc); err != nil {
		return model.Client{}, decodeError(err)
	}
	if err := vd.v.Struct(&rc); err != nil {
		return model.Client{}, fieldError(err)
	}
	return model.Client{
		ID:    *rc.ID,
		Name:  *rc.Name,
		Email: *rc.Email,
		Role:  *rc.Role,
	}, nil
}

// Policy валидирует сырую запись полиса и возвращает доменную модель.
func (vd *Validator) Policy(raw json.RawMessage) (model.Policy, error) {
	var rp rawPolicy
	if err := json.Unmarshal(raw, &rp); err != nil {
		return model.Policy{}, decodeError(err)
	}
	if err := vd.v.Struct(&rp); err != nil {
		return model.Policy{}, fieldError(err)
	}
	return model.Policy{
		ID:                 *rp.ID,
		ClientID:           *rp.ClientID,
		AmountInsured:      *rp.AmountInsured,
		Email:              *rp.Email,
		InceptionDate:      *rp.InceptionDate,
		InstallmentPayment: *rp.InstallmentPayment,
	}, nil
}

// decodeError преобразует ошибку json.Unmarshal в FieldError,
// если известно, какое поле имеет неверный тип.
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &FieldError{Field: typeErr.Field, Constraint: "type:" + typeErr.Type.String()}
	}
	return fmt.Errorf("некорректный JSON записи: %w", err)
}

// fieldError извлекает первую ошибку валидации (fail-fast, как Joi).
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &FieldError{Field: verrs[0].Field(), Constraint: verrs[0].Tag()}
	}
	return err
}

// isoLayouts — допустимые форматы inceptionDate.
var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02",
}

// isISODate проверяет, что строка — парсируемая ISO-8601 дата.
func isISODate(s string) bool {
	for _, layout := range isoLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
