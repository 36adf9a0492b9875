package domain

import "time"

// Person — зарегистрированный человек (лицо из датасета распознавателя).
type Person struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`       // Человекочитаемое имя, по нему строится attendance_by_person
	ImageCount int       `json:"image_count"` // Сколько снимков лица в датасете
	CreatedAt  time.Time `json:"created_at"`
}
