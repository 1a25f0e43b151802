package models

import "errors"

var (
	ErrRedisGet    = errors.New("redis get error")
	ErrRedisSet    = errors.New("redis set error")
	ErrRedisDelete = errors.New("redis delete error")
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionTerminated  = errors.New("session terminated")
	ErrAlreadyConnected   = errors.New("user already connected from another location")
	ErrServerLimitReached = errors.New("server connection limit exceeded")
	ErrTooManyAnonymous   = errors.New("too many anonymous connections")
	ErrAuthTimeout        = errors.New("authentication timeout")
	ErrUserNotConnected   = errors.New("user not connected")
)

var (
	ErrDatabaseQuery       = errors.New("database query error")
	ErrDatabaseInsert      = errors.New("database insert error")
	ErrDatabaseUpdate      = errors.New("database update error")
	ErrNotificationMissing = errors.New("notification not found")
	ErrDuplicateRecord     = errors.New("duplicate record")
)
