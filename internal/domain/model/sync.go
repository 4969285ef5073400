// sync.go — результаты синхронизации справочника пользователей.
package model

import "time"

// FetchResult — итог одной попытки полной загрузки справочника.
type FetchResult struct {
	// Сколько записей принято в справочник
	Total int
	// Сколько сырых записей отброшено из-за некорректной формы
	Skipped int
	// Когда завершилась загрузка
	SyncedAt time.Time
}

// GuardState — состояние ограничителя загрузок синхронизатора.
// Сбрасывается только пересозданием синхронизатора (новая сессия),
// не каждым обращением.
type GuardState struct {
	// Сделано попыток загрузки (учитываются и неудачные)
	AttemptsMade int
	// Потолок попыток
	Ceiling int
	// Есть ли загрузка в полёте
	InFlight bool
}
