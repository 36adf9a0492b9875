package postgres

import (
	"context"
	"fmt"

	"github.com/xela07ax/attendance-engine/internal/domain"
)

func (r *Repo) ListPersons(ctx context.Context) ([]domain.Person, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, image_count, created_at FROM persons ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query persons: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Person, 0)
	for rows.Next() {
		var p domain.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.ImageCount, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePerson — upsert: повторная регистрация обновляет имя и число снимков
func (r *Repo) SavePerson(ctx context.Context, p domain.Person) (domain.Person, error) {
	query := `
		INSERT INTO persons (id, name, image_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, image_count = EXCLUDED.image_count
		RETURNING id, name, image_count, created_at`

	var out domain.Person
	err := r.pool.QueryRow(ctx, query, p.ID, p.Name, p.ImageCount).Scan(&out.ID, &out.Name, &out.ImageCount, &out.CreatedAt)
	if err != nil {
		return domain.Person{}, fmt.Errorf("postgres: failed to save person: %w", err)
	}
	return out, nil
}

func (r *Repo) DeletePerson(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM persons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: %w: %s", domain.ErrPersonNotFound, id)
	}
	return nil
}
