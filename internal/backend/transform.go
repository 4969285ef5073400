// transform.go — трансформация сырых записей бэкенда в канонический
// model.User. Единственная точка, где различаются формы V1 и V2;
// дальше по системе ходит только каноническая запись.
package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arturkryukov/rastreo/admin-console/internal/domain/model"
	"github.com/arturkryukov/rastreo/admin-console/internal/domain/roles"
)

// ErrMissingID — в сырой записи нет ни id, ни usuario_id.
// Запись без идентификатора бесполезна: ключевание строк и адресация
// edit/delete зависят от id, поэтому трансформация падает громко,
// а не отдаёт запись с нулевым id.
var ErrMissingID = errors.New("в записи пользователя нет ни id, ни usuario_id")

// TransformUser преобразует сырую запись (V1 или V2) в каноническую.
// Порядок разрешения идентификатора: id, затем usuario_id, иначе
// ErrMissingID. Поля имён/пола/фото берутся из persona, если она есть
// (вложенная форма — более новый контракт), иначе из плоских полей.
// Роли всегда проходят нормализатор. Функция чистая: ни сети,
// ни хранилища.
func TransformUser(raw *RawUser) (*model.User, error) {
	if raw == nil {
		return nil, fmt.Errorf("пустая сырая запись: %w", ErrMissingID)
	}

	var id int64
	switch {
	case raw.ID != nil:
		id = *raw.ID
	case raw.LegacyID != nil:
		id = *raw.LegacyID
	default:
		return nil, ErrMissingID
	}

	nombre := raw.Nombre
	paterno := raw.ApellidoPaterno
	materno := raw.ApellidoMaterno
	genero := raw.Genero
	foto := raw.FotoURL
	cedula := raw.CedulaIdentidad

	if p := raw.Persona; p != nil {
		if p.Nombre != "" {
			nombre = p.Nombre
		}
		if p.ApellidoPaterno != "" {
			paterno = p.ApellidoPaterno
		}
		if p.ApellidoMaterno != "" {
			materno = p.ApellidoMaterno
		}
		if p.Genero != "" {
			genero = p.Genero
		}
		if p.FotoURL != "" {
			foto = p.FotoURL
		}
		if p.CedulaIdentidad != "" {
			cedula = p.CedulaIdentidad
		}
	}

	user := &model.User{
		ID:              id,
		Username:        raw.Username,
		FirstName:       nombre,
		PaternalSurname: paterno,
		MaternalSurname: materno,
		Gender:          model.ParseGender(genero),
		Roles:           roles.Normalize(raw.Roles),
		PhotoURL:        foto,
		NationalID:      cedula,
	}

	for _, c := range raw.Contactos {
		user.Contacts = append(user.Contacts, model.Contact{
			Kind:  strings.ToUpper(strings.TrimSpace(c.Tipo)),
			Value: c.Valor,
		})
	}
	for _, d := range raw.Documentos {
		user.Documents = append(user.Documents, model.IdentityDocument{
			Kind:   d.Tipo,
			Number: d.Numero,
		})
	}

	return user, nil
}

// TransformAll преобразует пачку сырых записей. Запись, у которой не
// разрешился идентификатор, пропускается с диагностикой в лог —
// справочник остаётся пригодным, одна битая запись не валит всю
// загрузку. Возвращает канонические записи и число пропущенных.
func TransformAll(raws []RawUser, logger *slog.Logger) ([]*model.User, int) {
	users := make([]*model.User, 0, len(raws))
	skipped := 0

	for i := range raws {
		user, err := TransformUser(&raws[i])
		if err != nil {
			skipped++
			logger.Warn("сырая запись пользователя пропущена",
				slog.String("username", raws[i].Username),
				slog.String("error", err.Error()),
			)
			continue
		}
		users = append(users, user)
	}

	return users, skipped
}
