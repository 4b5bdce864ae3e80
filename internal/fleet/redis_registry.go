package fleet

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/trip-coordinator/internal/geo"
	"github.com/example/trip-coordinator/internal/models"
)

// RedisRegistry implements Registry on Redis GEO commands plus a metadata
// hash per vehicle. Suitable when the fleet is shared across processes.
type RedisRegistry struct {
	client *redis.Client
	key    string
}

func NewRedisRegistry(addr, password, key string) *RedisRegistry {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisRegistry{client: c, key: key}
}

func metaKey(id string) string { return "vehicle:meta:" + id }

func (r *RedisRegistry) ByID(ctx context.Context, id string) (*models.Vehicle, error) {
	m, err := r.client.HGetAll(ctx, metaKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	v := &models.Vehicle{ID: id}
	applyMeta(v, m)
	if pos, err := r.client.GeoPos(ctx, r.key, id).Result(); err == nil && len(pos) > 0 && pos[0] != nil {
		v.Loc = &models.Coord{Lat: pos[0].Latitude, Lng: pos[0].Longitude}
	}
	return v, nil
}

func (r *RedisRegistry) Put(ctx context.Context, v models.Vehicle) error {
	if v.Class == "" {
		v.Class = models.ClassNormal
	}
	fields := map[string]interface{}{
		"available": strconv.FormatBool(v.Available),
		"class":     v.Class,
		"updated":   time.Now().Format(time.RFC3339),
	}
	if v.Rate != nil {
		fields["rate_base"] = v.Rate.BaseFare
		fields["rate_per_km"] = v.Rate.PerKm
		fields["rate_min"] = v.Rate.MinCharge
		fields["rate_pickup_per_km"] = v.Rate.PickupPerKm
	}
	if err := r.client.HSet(ctx, metaKey(v.ID), fields).Err(); err != nil {
		return err
	}
	if v.Loc != nil {
		return r.client.GeoAdd(ctx, r.key,
			&redis.GeoLocation{Longitude: v.Loc.Lng, Latitude: v.Loc.Lat, Name: v.ID}).Err()
	}
	return nil
}

func (r *RedisRegistry) UpdateLocation(ctx context.Context, id string, loc models.Coord, at time.Time) error {
	if err := r.client.GeoAdd(ctx, r.key,
		&redis.GeoLocation{Longitude: loc.Lng, Latitude: loc.Lat, Name: id}).Err(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(id), map[string]interface{}{
		"updated": at.Format(time.RFC3339),
	}).Err()
}

func (r *RedisRegistry) SetAvailability(ctx context.Context, id string, available bool) error {
	return r.client.HSet(ctx, metaKey(id), map[string]interface{}{
		"available": strconv.FormatBool(available),
	}).Err()
}

func (r *RedisRegistry) Eligible(ctx context.Context, q Query) ([]models.Vehicle, error) {
	radius := q.RadiusKm
	if radius <= 0 {
		// GEORADIUS needs a bound; half the earth's circumference covers all
		radius = 21000
	}
	res, err := r.client.GeoRadius(ctx, r.key, q.Near.Lng, q.Near.Lat, &redis.GeoRadiusQuery{
		Radius: radius, Unit: "km", WithCoord: true, WithDist: true, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(q.Exclude))
	for _, id := range q.Exclude {
		excluded[id] = struct{}{}
	}

	out := make([]models.Vehicle, 0, len(res))
	for _, g := range res {
		if _, skip := excluded[g.Name]; skip {
			continue
		}
		v := models.Vehicle{ID: g.Name, Loc: &models.Coord{Lat: g.Latitude, Lng: g.Longitude}}
		m, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result()
		if err != nil {
			continue
		}
		applyMeta(&v, m)
		if !v.Available {
			continue
		}
		if q.Class != "" && v.Class != q.Class {
			continue
		}
		out = append(out, v)
	}
	// GeoRadius already sorts ascending; keep ties stable by id
	sort.SliceStable(out, func(i, j int) bool {
		di := geo.HaversineKm(*out[i].Loc, q.Near)
		dj := geo.HaversineKm(*out[j].Loc, q.Near)
		if di != dj {
			return di < dj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func applyMeta(v *models.Vehicle, m map[string]string) {
	if s, ok := m["available"]; ok {
		v.Available = s == "true"
	}
	if s, ok := m["class"]; ok && s != "" {
		v.Class = s
	} else if v.Class == "" {
		v.Class = models.ClassNormal
	}
	if s, ok := m["updated"]; ok {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			v.Updated = ts
		}
	}
	if s, ok := m["rate_per_km"]; ok {
		rate := &models.RateCard{}
		rate.PerKm, _ = strconv.ParseFloat(s, 64)
		if b, ok := m["rate_base"]; ok {
			rate.BaseFare, _ = strconv.ParseFloat(b, 64)
		}
		if mc, ok := m["rate_min"]; ok {
			rate.MinCharge, _ = strconv.ParseFloat(mc, 64)
		}
		if pk, ok := m["rate_pickup_per_km"]; ok {
			rate.PickupPerKm, _ = strconv.ParseFloat(pk, 64)
		}
		v.Rate = rate
	}
}
