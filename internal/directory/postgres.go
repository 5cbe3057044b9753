package directory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"jobmate/fulfillment-service/internal/apperr"
	"jobmate/fulfillment-service/internal/matching"
	"jobmate/fulfillment-service/internal/model"
	"jobmate/fulfillment-service/internal/textnorm"
)

// Postgres reads the providers and provider_services tables.
//
// SQL narrows rows by activity, service type and a radius bounding box; the
// accent-insensitive comparison of service types and areas then runs in Go.
type Postgres struct {
	pool     *pgxpool.Pool
	radiusKm float64
}

// NewPostgres returns a directory backed by pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, radiusKm: DefaultRadiusKm}
}

const providerQuery = `
	SELECT p.id, p.business_name, COALESCE(p.email, ''), COALESCE(p.phone, ''),
	       p.area, p.lat, p.lng, p.rating_average, p.verified, p.available,
	       s.id, s.service_type, s.hourly_rate::text, s.active
	FROM providers p
	JOIN provider_services s ON s.provider_id = p.id
	WHERE p.is_active = true`

func (d *Postgres) QueryProviders(ctx context.Context, serviceType string, area model.Location, activeOnly bool) ([]model.Provider, error) {
	q := providerQuery
	if activeOnly {
		q += ` AND s.active = true`
	}
	where, args := narrow(serviceType, area, d.radiusKm)
	providers, err := d.load(ctx, q+where+` ORDER BY p.id, s.id`, args...)
	if err != nil {
		return nil, err
	}
	return filter(providers, serviceType, area, activeOnly, d.radiusKm), nil
}

func (d *Postgres) GetProvider(ctx context.Context, id string) (*model.Provider, error) {
	providers, err := d.load(ctx, providerQuery+` AND p.id = $1 ORDER BY s.id`, id)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, apperr.NotFound("provider %s not found", id)
	}
	return &providers[0], nil
}

// narrow returns predicates that keep every row the Go filter could accept.
// ASCII service types compare folded in SQL; rows with non-ASCII characters
// are left to the Go pass. Providers without coordinates fall back to the
// area text, so they are never cut by the bounding box.
func narrow(serviceType string, area model.Location, radiusKm float64) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if st := textnorm.Fold(serviceType); st != "" {
		fmt.Fprintf(&b, ` AND (btrim(regexp_replace(lower(s.service_type), '\s+', ' ', 'g')) = %s`+
			` OR s.service_type ~ '[^\x01-\x7f]')`, arg(st))
	}

	if area.Geo != nil {
		box := matching.BoundingBox(*area.Geo, radiusKm)
		fmt.Fprintf(&b, ` AND (p.lat IS NULL OR p.lng IS NULL OR (p.lat BETWEEN %s AND %s`,
			arg(box.MinLat), arg(box.MaxLat))
		if !box.AnyLng {
			fmt.Fprintf(&b, ` AND p.lng BETWEEN %s AND %s`, arg(box.MinLng), arg(box.MaxLng))
		}
		b.WriteString(`))`)
	}
	return b.String(), args
}

// load folds one row per (provider, service) into providers, preserving order.
func (d *Postgres) load(ctx context.Context, query string, args ...any) ([]model.Provider, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("provider query: %w", err)
	}
	defer rows.Close()

	var out []model.Provider
	for rows.Next() {
		var (
			p        model.Provider
			lat, lng *float64
			s        model.ProviderService
			rate     string
		)
		if err := rows.Scan(
			&p.ID, &p.BusinessName, &p.Contact.Email, &p.Contact.Phone,
			&p.Location.Text, &lat, &lng, &p.RatingAverage, &p.Verified, &p.Available,
			&s.ID, &s.ServiceType, &rate, &s.Active,
		); err != nil {
			return nil, fmt.Errorf("provider scan: %w", err)
		}
		if s.HourlyRate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("provider %s hourly rate: %w", p.ID, err)
		}
		if lat != nil && lng != nil {
			p.Location.Geo = &model.Coordinates{Lat: *lat, Lng: *lng}
		}
		p.Contact.Name = p.BusinessName

		if n := len(out); n > 0 && out[n-1].ID == p.ID {
			out[n-1].Services = append(out[n-1].Services, s)
			continue
		}
		p.Services = []model.ProviderService{s}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("provider rows: %w", err)
	}
	return out, nil
}
