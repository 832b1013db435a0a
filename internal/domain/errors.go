package domain

import "errors"

// Ошибки уровня домена. Транспортный слой отображает их в HTTP-статусы.
var (
	// ErrInvalidURL — строка не является корректным URL.
	ErrInvalidURL = errors.New("некорректный URL")
	// ErrUnsupportedLink — URL корректен, но не ведёт на публикацию Instagram.
	ErrUnsupportedLink = errors.New("ссылка не является публикацией Instagram")
	// ErrMissingPostID — из пути не извлекается идентификатор публикации.
	ErrMissingPostID = errors.New("не удалось извлечь идентификатор публикации")
	// ErrAlreadySaved — публикация уже сохранена этим пользователем.
	ErrAlreadySaved = errors.New("публикация уже сохранена")
	// ErrContentNotFound — запись не найдена или принадлежит другому пользователю.
	ErrContentNotFound = errors.New("контент не найден")
	// ErrTokenNotFound — токен вебхука неизвестен или неактивен.
	ErrTokenNotFound = errors.New("токен вебхука не найден")
	// ErrScrapeQuota — у скрейпера закончилась квота.
	ErrScrapeQuota = errors.New("квота скрейпера исчерпана")
	// ErrScrapeAuth — ключ скрейпера недействителен.
	ErrScrapeAuth = errors.New("недействительный ключ скрейпера")
	// ErrScrapeFailed — скрейпер не вернул данные публикации.
	ErrScrapeFailed = errors.New("не удалось получить данные публикации")
)
