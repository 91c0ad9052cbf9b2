package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

const eventColumns = `
	id, source, ride_id, name, description, date_start, date_end,
	location, city, state, country, organization, distances, ride_manager,
	manager_email, manager_phone, website_url, flyer_url, map_link,
	control_judges, is_multi_day_event, is_pioneer_ride, ride_days,
	has_intro_ride, is_canceled, latitude, longitude, geocoding_attempted,
	last_website_check_at, event_details, notes, created_at, updated_at`

// distanceRow/judgeRow mirror model.Distance/model.Judge for jsonb
// round-tripping; the domain types stay free of struct tags.
type distanceRow struct {
	Label     string `json:"label"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
}

type judgeRow struct {
	Role string `json:"role"`
	Name string `json:"name"`
}

func scanEvent(row pgx.Row) (model.Event, error) {
	var e model.Event
	var distancesRaw, judgesRaw, detailsRaw []byte

	err := row.Scan(
		&e.ID, &e.Source, &e.RideID, &e.Name, &e.Description, &e.DateStart, &e.DateEnd,
		&e.Location, &e.City, &e.State, &e.Country, &e.Organization, &distancesRaw, &e.RideManager,
		&e.ManagerEmail, &e.ManagerPhone, &e.WebsiteURL, &e.FlyerURL, &e.MapLink,
		&judgesRaw, &e.IsMultiDayEvent, &e.IsPioneerRide, &e.RideDays,
		&e.HasIntroRide, &e.IsCanceled, &e.Latitude, &e.Longitude, &e.GeocodingAttempted,
		&e.LastWebsiteCheckAt, &detailsRaw, &e.Notes, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return model.Event{}, err
	}

	e.Distances, err = decodeDistances(distancesRaw)
	if err != nil {
		return model.Event{}, err
	}
	e.ControlJudges, err = decodeJudges(judgesRaw)
	if err != nil {
		return model.Event{}, err
	}
	if len(detailsRaw) > 0 {
		if err := json.Unmarshal(detailsRaw, &e.EventDetails); err != nil {
			return model.Event{}, err
		}
	}
	return e, nil
}

func (r *Repository) queryEvents(ctx context.Context, sql string, args ...any) ([]model.Event, failure.ClassifiedError) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, queryError("", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, queryError("", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("", err)
	}
	return events, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func selectForUpdate(ctx context.Context, tx pgx.Tx, source, rideID string) (model.Event, bool, error) {
	row := tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE source = $1 AND ride_id = $2 FOR UPDATE`, source, rideID)
	event, err := scanEvent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Event{}, false, nil
		}
		return model.Event{}, false, err
	}
	return event, true, nil
}

func insertRow(ctx context.Context, tx pgx.Tx, e model.Event) (int64, error) {
	distancesRaw, err := json.Marshal(toDistanceRows(e.Distances))
	if err != nil {
		return 0, err
	}
	judgesRaw, err := json.Marshal(toJudgeRows(e.ControlJudges))
	if err != nil {
		return 0, err
	}
	detailsRaw, err := json.Marshal(e.EventDetails)
	if err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO events (
			source, ride_id, name, description, date_start, date_end,
			location, city, state, country, organization, distances, ride_manager,
			manager_email, manager_phone, website_url, flyer_url, map_link,
			control_judges, is_multi_day_event, is_pioneer_ride, ride_days,
			has_intro_ride, is_canceled, latitude, longitude, geocoding_attempted,
			last_website_check_at, event_details, notes, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32
		) RETURNING id`,
		e.Source, e.RideID, e.Name, e.Description, e.DateStart, e.DateEnd,
		e.Location, e.City, e.State, e.Country, e.Organization, distancesRaw, e.RideManager,
		e.ManagerEmail, e.ManagerPhone, e.WebsiteURL, e.FlyerURL, e.MapLink,
		judgesRaw, e.IsMultiDayEvent, e.IsPioneerRide, e.RideDays,
		e.HasIntroRide, e.IsCanceled, e.Latitude, e.Longitude, e.GeocodingAttempted,
		e.LastWebsiteCheckAt, detailsRaw, e.Notes, e.CreatedAt, e.UpdatedAt,
	).Scan(&id)
	return id, err
}

func updateRow(ctx context.Context, tx pgx.Tx, e model.Event) error {
	distancesRaw, err := json.Marshal(toDistanceRows(e.Distances))
	if err != nil {
		return err
	}
	judgesRaw, err := json.Marshal(toJudgeRows(e.ControlJudges))
	if err != nil {
		return err
	}
	detailsRaw, err := json.Marshal(e.EventDetails)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE events SET
			name = $2, description = $3, date_start = $4, date_end = $5,
			location = $6, city = $7, state = $8, country = $9, organization = $10,
			distances = $11, ride_manager = $12, manager_email = $13, manager_phone = $14,
			website_url = $15, flyer_url = $16, map_link = $17, control_judges = $18,
			is_multi_day_event = $19, is_pioneer_ride = $20, ride_days = $21,
			has_intro_ride = $22, is_canceled = $23, latitude = $24, longitude = $25,
			geocoding_attempted = $26, last_website_check_at = $27, event_details = $28,
			notes = $29, updated_at = $30
		WHERE id = $1`,
		e.ID, e.Name, e.Description, e.DateStart, e.DateEnd,
		e.Location, e.City, e.State, e.Country, e.Organization,
		distancesRaw, e.RideManager, e.ManagerEmail, e.ManagerPhone,
		e.WebsiteURL, e.FlyerURL, e.MapLink, judgesRaw,
		e.IsMultiDayEvent, e.IsPioneerRide, e.RideDays,
		e.HasIntroRide, e.IsCanceled, e.Latitude, e.Longitude,
		e.GeocodingAttempted, e.LastWebsiteCheckAt, detailsRaw,
		e.Notes, e.UpdatedAt,
	)
	return err
}

func toDistanceRows(distances []model.Distance) []distanceRow {
	rows := make([]distanceRow, len(distances))
	for i, d := range distances {
		rows[i] = distanceRow{Label: d.Label, Date: d.Date.Format("2006-01-02"), StartTime: d.StartTime}
	}
	return rows
}

func decodeDistances(raw []byte) ([]model.Distance, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []distanceRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	distances := make([]model.Distance, len(rows))
	for i, r := range rows {
		date, err := parseDate(r.Date)
		if err != nil {
			return nil, err
		}
		distances[i] = model.Distance{Label: r.Label, Date: date, StartTime: r.StartTime}
	}
	return distances, nil
}

func toJudgeRows(judges []model.Judge) []judgeRow {
	rows := make([]judgeRow, len(judges))
	for i, j := range judges {
		rows[i] = judgeRow{Role: j.Role, Name: j.Name}
	}
	return rows
}

func decodeJudges(raw []byte) ([]model.Judge, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []judgeRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	judges := make([]model.Judge, len(rows))
	for i, r := range rows {
		judges[i] = model.Judge{Role: r.Role, Name: r.Name}
	}
	return judges, nil
}
