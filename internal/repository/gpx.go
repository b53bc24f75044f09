package repository

import (
	"fmt"
	"io"
	"time"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/flybeeper/track-recorder/internal/models"
)

const gpxCreator = "track-recorder"

// ImportGPX строит маршрут из GPX трека. Берется первая непустая последовательность:
// точки треков, затем точки маршрутов, затем путевые точки.
// Скорость и курс точек нулевые. Точки без времени получают fallback.
func ImportGPX(r io.Reader, name string, fallback time.Time) (*models.Route, error) {
	doc, err := gpx.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GPX: %w", err)
	}

	source := gpxPoints(doc)
	if len(source) == 0 {
		return nil, ErrEmptyTrack
	}

	points := make([]models.RoutePoint, 0, len(source))
	for _, p := range source {
		ts := p.Timestamp
		if ts.IsZero() {
			ts = fallback
		}
		var elevation float64
		if p.Elevation.NotNull() {
			elevation = p.Elevation.Value()
		}
		points = append(points, models.NewRoutePoint(0, 0, elevation, p.Longitude, p.Latitude, ts))
	}

	if name == "" {
		name = gpxName(doc)
	}
	if name == "" {
		name = "Imported " + points[0].Timestamp.Format("02.01.2006 15.04")
	}

	route := models.NewRoute(name, doc.Description, points[0].Timestamp)
	route.Points = points
	route.Distance = models.TotalDistance(points)

	end := points[len(points)-1].Timestamp
	if end.Before(route.StartDate) {
		end = route.StartDate
	}
	route.EndDate = &end

	if err := route.Validate(); err != nil {
		return nil, fmt.Errorf("imported track is invalid: %w", err)
	}
	return route, nil
}

func gpxPoints(doc *gpx.GPX) []gpx.GPXPoint {
	var points []gpx.GPXPoint
	for _, track := range doc.Tracks {
		for _, segment := range track.Segments {
			points = append(points, segment.Points...)
		}
	}
	if len(points) > 0 {
		return points
	}

	for _, rte := range doc.Routes {
		points = append(points, rte.Points...)
	}
	if len(points) > 0 {
		return points
	}

	return doc.Waypoints
}

func gpxName(doc *gpx.GPX) string {
	if doc.Name != "" {
		return doc.Name
	}
	for _, track := range doc.Tracks {
		if track.Name != "" {
			return track.Name
		}
	}
	return ""
}

// ExportGPX пишет маршрут как GPX 1.1 с одним треком
func ExportGPX(w io.Writer, route *models.Route) error {
	segment := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, 0, len(route.Points))}
	for _, p := range route.Points {
		point := gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  p.Latitude,
				Longitude: p.Longitude,
			},
			Timestamp: p.Timestamp,
		}
		point.Elevation.SetValue(p.Altitude)
		segment.Points = append(segment.Points, point)
	}

	doc := &gpx.GPX{
		Version:     "1.1",
		Creator:     gpxCreator,
		Name:        route.Name,
		Description: route.Description,
		Tracks: []gpx.GPXTrack{{
			Name:     route.Name,
			Type:     route.ActivityType.String(),
			Segments: []gpx.GPXTrackSegment{segment},
		}},
	}

	data, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return fmt.Errorf("failed to encode GPX: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write GPX: %w", err)
	}
	return nil
}
