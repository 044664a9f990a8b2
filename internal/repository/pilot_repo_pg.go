package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PilotRepository interface {
	ListPilots(ctx context.Context, filter domain.PilotFilter) ([]domain.Pilot, error)
}

type PGPilotRepository struct {
	db *pgxpool.Pool
}

func NewPilotRepository(db *pgxpool.Pool) PilotRepository {
	return &PGPilotRepository{db: db}
}

func (r *PGPilotRepository) ListPilots(ctx context.Context, filter domain.PilotFilter) ([]domain.Pilot, error) {
	query, args := pilotListQuery(filter)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pilots := make([]domain.Pilot, 0)
	for rows.Next() {
		var p domain.Pilot
		var status string
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &status, &p.Online, &p.Rating, &p.DeliveryCount, &p.Lat, &p.Lng); err != nil {
			return nil, err
		}
		p.Status = domain.PilotStatus(status)
		pilots = append(pilots, p)
	}
	return pilots, rows.Err()
}

func pilotListQuery(filter domain.PilotFilter) (string, []any) {
	var where []string
	var args []any
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Online != nil {
		args = append(args, *filter.Online)
		where = append(where, fmt.Sprintf("is_online=$%d", len(args)))
	}

	q := `SELECT id, name, phone, email, status, is_online, rating, delivery_count, lat, lng FROM pilots`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q + " ORDER BY rating DESC, delivery_count DESC, id", args
}

var _ PilotRepository = (*PGPilotRepository)(nil)
