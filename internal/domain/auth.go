package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// Роли, которые приходят в claims. Выдача токенов живет вне движка.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleCamera  = "camera" // Сервисная роль для процесса распознавания
)

type CustomClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// KnownRole — роль из набора, который понимает движок
func KnownRole(role string) bool {
	switch role {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleCamera:
		return true
	}
	return false
}
