// Пакет model — доменные модели Admin Console.
// user.go — каноническая запись пользователя: единственное внутреннее
// представление, которое производят и потребляют все операции ядра,
// независимо от формы ответа бэкенда.
package model

import "strings"

// Gender — пол пользователя.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
	GenderOther  Gender = "O"
)

// ParseGender приводит строку к Gender. Неизвестные значения и пустая
// строка дают пустой Gender (поле отсутствует).
func ParseGender(s string) Gender {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "M":
		return GenderMale
	case "F":
		return GenderFemale
	case "O":
		return GenderOther
	default:
		return ""
	}
}

// Виды контактов в списке contactos.
const (
	ContactEmail = "EMAIL"
	ContactPhone = "TELEFONO"
)

// ContactNotRegistered — маркер отсутствующего контакта.
// UI различает "известно, что пусто" и "контакт не заводили",
// поэтому вместо пустой строки возвращается явный маркер.
const ContactNotRegistered = "No registrado"

// Contact — контакт пользователя (email, телефон).
type Contact struct {
	// Вид контакта (EMAIL, TELEFONO)
	Kind string `json:"tipo"`
	// Значение контакта
	Value string `json:"valor"`
}

// IdentityDocument — документ, удостоверяющий личность.
type IdentityDocument struct {
	// Вид документа
	Kind string `json:"tipo"`
	// Номер документа
	Number string `json:"numero"`
}

// User — каноническая запись пользователя в справочнике.
// id всегда заполнен после трансформации (см. backend.TransformUser);
// ключевание строк таблицы и адресация edit/delete зависят от него.
type User struct {
	// Уникальный стабильный идентификатор
	ID int64 `json:"id"`
	// Уникальное имя пользователя; используется для сравнения "это я"
	Username string `json:"username"`
	// Имя
	FirstName string `json:"nombre"`
	// Отчество по отцу (фамилия)
	PaternalSurname string `json:"apellido_paterno,omitempty"`
	// Отчество по матери (фамилия)
	MaternalSurname string `json:"apellido_materno,omitempty"`
	// Пол (M, F, O); пустая строка — не указан
	Gender Gender `json:"genero,omitempty"`
	// Канонические uppercase-теги ролей; может быть пуст
	Roles []string `json:"roles"`
	// URL фотографии
	PhotoURL string `json:"foto_url,omitempty"`
	// Номер удостоверения личности (плоская форма бэкенда)
	NationalID string `json:"cedula_identidad,omitempty"`
	// Контакты в порядке бэкенда (только вложенная форма)
	Contacts []Contact `json:"contactos,omitempty"`
	// Документы в порядке бэкенда
	Documents []IdentityDocument `json:"documentos,omitempty"`
}

// FullName возвращает полное имя для отображения.
func (u *User) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{u.FirstName, u.PaternalSurname, u.MaternalSurname} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ContactValue возвращает значение первого контакта указанного вида.
// Поиск first-match-wins по списку contactos; если контакт не найден —
// возвращается маркер ContactNotRegistered.
func (u *User) ContactValue(kind string) string {
	for _, c := range u.Contacts {
		if strings.EqualFold(c.Kind, kind) {
			return c.Value
		}
	}
	return ContactNotRegistered
}

// Email возвращает email пользователя или ContactNotRegistered.
func (u *User) Email() string {
	return u.ContactValue(ContactEmail)
}

// Phone возвращает телефон пользователя или ContactNotRegistered.
func (u *User) Phone() string {
	return u.ContactValue(ContactPhone)
}
