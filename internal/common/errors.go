// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import "errors"

// Ошибки биллинга (звёзды, списания, возвраты)
var (
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrInsufficientFunds — недостаточно звёзд на балансе
	ErrInsufficientFunds = errors.New("недостаточно звёзд на балансе")
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrAlreadyRefunded — по этому списанию уже был возврат
	ErrAlreadyRefunded = errors.New("возврат по этой транзакции уже выполнен")
	// ErrTransactionNotFound — транзакция не найдена в леджере
	ErrTransactionNotFound = errors.New("транзакция не найдена")
)

// Ошибки генерации
var (
	// ErrInvalidModel — неизвестный тип задачи или модель не сконфигурирована
	ErrInvalidModel = errors.New("неизвестная модель генерации")
	// ErrInvalidInput — в запросе не хватает обязательных полей
	ErrInvalidInput = errors.New("некорректные входные данные")
	// ErrDuplicateJob — задача с таким ключом идемпотентности уже принята
	ErrDuplicateJob = errors.New("задача уже принята в обработку")
	// ErrDispatchFailed — не удалось отправить задачу в очередь после всех повторов
	ErrDispatchFailed = errors.New("не удалось отправить задачу в очередь")
	// ErrProviderFailed — провайдер генерации вернул ошибку или пустой результат
	ErrProviderFailed = errors.New("сервис генерации вернул ошибку")
	// ErrJobNotFound — задача не найдена (неизвестный correlation id)
	ErrJobNotFound = errors.New("задача не найдена")
)

// Ошибки пополнения
var (
	// ErrInvalidTopupOption — сумма пополнения не входит в список доступных
	ErrInvalidTopupOption = errors.New("такого варианта пополнения нет")
	// ErrDuplicatePayment — платёж с таким внешним ID уже зачислен
	ErrDuplicatePayment = errors.New("платёж уже был зачислен")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)
