package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — переход невозможен в текущем состоянии записи.
	// Например, Start для run, который уже выполняется.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict — запись изменилась после чтения (условная запись не прошла).
	ErrConflict = errors.New("conflict")

	// ErrNothingDue — нет due job, доступного для захвата.
	ErrNothingDue = errors.New("nothing due")
)
