// Пакет backend — HTTP-клиент к REST API трекинг-бэкенда.
// models.go — сырые формы данных бэкенда.
//
// Бэкенд отдаёт записи пользователей в двух несовместимых формах:
// плоской (V1, поля прямо на записи, роли как обёрнутые объекты
// назначения роли) и вложенной (V2, имена/пол/фото в под-объекте
// persona, роли как массив строк, опциональные contactos/documentos).
// Обе формы декодируются в один RawUser; дискриминатор — указатели
// (Persona != nil → вложенная форма). За границу пакета сырые формы
// не выходят: наружу идёт только канонический model.User
// (см. transform.go).
package backend

// Persona — вложенный под-объект с именами, полом и фото (форма V2).
type Persona struct {
	Nombre          string `json:"nombre"`
	ApellidoPaterno string `json:"apellido_paterno"`
	ApellidoMaterno string `json:"apellido_materno"`
	Genero          string `json:"genero"`
	FotoURL         string `json:"foto_url"`
	CedulaIdentidad string `json:"cedula_identidad"`
}

// Contacto — контакт в списке contactos (форма V2).
type Contacto struct {
	Tipo  string `json:"tipo"`
	Valor string `json:"valor"`
}

// Documento — документ в списке documentos (форма V2).
type Documento struct {
	Tipo   string `json:"tipo"`
	Numero string `json:"numero"`
}

// RawUser — сырая запись пользователя, объединение форм V1 и V2.
// Roles декодируется в []any: строки для V2, объекты {"rol":{"nombre"}}
// для V1 — разбор делает нормализатор ролей.
type RawUser struct {
	// id — основной идентификатор (V2)
	ID *int64 `json:"id"`
	// usuario_id — легаси-идентификатор (V1)
	LegacyID *int64 `json:"usuario_id"`

	Username string `json:"username"`

	// Плоские поля формы V1
	Nombre          string `json:"nombre"`
	ApellidoPaterno string `json:"apellido_paterno"`
	ApellidoMaterno string `json:"apellido_materno"`
	Genero          string `json:"genero"`
	FotoURL         string `json:"foto_url"`
	CedulaIdentidad string `json:"cedula_identidad"`

	// Вложенная форма V2; nil в плоской форме
	Persona *Persona `json:"persona"`

	Roles      []any       `json:"roles"`
	Contactos  []Contacto  `json:"contactos"`
	Documentos []Documento `json:"documentos"`
}

// LoginResponse — ответ POST /api/auth/login.
type LoginResponse struct {
	Success      bool     `json:"success"`
	Token        string   `json:"token"`
	RefreshToken string   `json:"refreshToken"`
	Usuario      *RawUser `json:"usuario"`
}

// UserPayload — тело POST/PUT /api/usuarios.
// Для PUT заполняются только изменяемые поля (частичный патч).
type UserPayload struct {
	Username        string   `json:"username,omitempty"`
	Password        string   `json:"password,omitempty"`
	Nombre          string   `json:"nombre,omitempty"`
	ApellidoPaterno string   `json:"apellido_paterno,omitempty"`
	ApellidoMaterno string   `json:"apellido_materno,omitempty"`
	Genero          string   `json:"genero,omitempty"`
	Roles           []string `json:"roles,omitempty"`
	Email           string   `json:"email,omitempty"`
	Telefono        string   `json:"telefono,omitempty"`
}

// listEnvelope — конверт списка: бэкенд отдаёт либо голый массив,
// либо {"data":[...]}.
type listEnvelope struct {
	Data []RawUser `json:"data"`
}

// createData — содержимое конверта {"data":{...}} в ответе на создание:
// usuario, persona и списки приходят раздельно и сшиваются в RawUser.
type createData struct {
	Usuario    *RawUser    `json:"usuario"`
	Persona    *Persona    `json:"persona"`
	Contactos  []Contacto  `json:"contactos"`
	Documentos []Documento `json:"documentos"`
}

// createEnvelope — конверт ответа на создание пользователя.
type createEnvelope struct {
	Data *createData `json:"data"`
}

// merged сшивает раздельные части конверта в одну сырую запись.
func (d *createData) merged() *RawUser {
	if d == nil || d.Usuario == nil {
		return nil
	}
	raw := *d.Usuario
	if raw.Persona == nil {
		raw.Persona = d.Persona
	}
	if len(raw.Contactos) == 0 {
		raw.Contactos = d.Contactos
	}
	if len(raw.Documentos) == 0 {
		raw.Documentos = d.Documentos
	}
	return &raw
}

// errorEnvelope — конверт ошибки бэкенда. Человекочитаемое сообщение
// может лежать под любым из трёх ключей.
type errorEnvelope struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Detail  string `json:"detail"`
}

// userMessage возвращает сообщение из конверта в фиксированном
// приоритете ключей: message, затем error, затем detail.
func (e *errorEnvelope) userMessage() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Error != "":
		return e.Error
	case e.Detail != "":
		return e.Detail
	default:
		return ""
	}
}
