package domain

import "errors"

var (
	// ErrAlreadyRecorded — штатная ситуация: запись за этот день уже есть.
	ErrAlreadyRecorded = errors.New("attendance already recorded for this day")
	// ErrInvalidWindow — ошибка вызывающего: окно должно быть положительным.
	ErrInvalidWindow = errors.New("invalid analytics window: days must be positive")
	// ErrUnknownPerson — событие ссылается на человека, которого нельзя разрешить.
	ErrUnknownPerson = errors.New("unknown person")
	// ErrStorageUnavailable — запись или чтение хранилища не завершились, можно повторить.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Реестр лиц
	ErrInvalidPerson  = errors.New("invalid person")
	ErrPersonNotFound = errors.New("person not found")
)
