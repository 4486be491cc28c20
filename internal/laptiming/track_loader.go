package laptiming

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/SamSkjord/opentpt/internal/models"
)

// LoadTrackFile loads a Track definition from a .kmz or .gpx file,
// projecting every point into a local ENU frame centered on the first
// waypoint, then runs corner detection over the centreline with the
// given Detector.
func LoadTrackFile(path string, detector Detector) (*models.Track, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".kmz":
		return loadKMZ(path, detector)
	case ".gpx":
		return loadGPX(path, detector)
	default:
		return nil, fmt.Errorf("unsupported track file extension %q", ext)
	}
}

// kmlDoc mirrors just enough of the KML schema to pull placemarks out of
// a track export: a handful of named line/point placemarks for the S/F
// line, sector lines, and centreline.
type kmlDoc struct {
	XMLName  xml.Name `xml:"kml"`
	Document struct {
		Placemarks []kmlPlacemark `xml:"Placemark"`
	} `xml:"Document"`
}

type kmlPlacemark struct {
	Name       string `xml:"name"`
	LineString *struct {
		Coordinates string `xml:"coordinates"`
	} `xml:"LineString"`
	Point *struct {
		Coordinates string `xml:"coordinates"`
	} `xml:"Point"`
}

func loadKMZ(path string, detector Detector) (*models.Track, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening kmz %s: %w", path, err)
	}
	defer zr.Close()

	var kmlBytes []byte
	for _, f := range zr.File {
		if strings.EqualFold(filepath.Ext(f.Name), ".kml") {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("opening kml entry %s: %w", f.Name, err)
			}
			kmlBytes, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("reading kml entry %s: %w", f.Name, err)
			}
			break
		}
	}
	if kmlBytes == nil {
		return nil, fmt.Errorf("kmz %s contains no .kml entry", path)
	}

	var doc kmlDoc
	if err := xml.Unmarshal(kmlBytes, &doc); err != nil {
		return nil, fmt.Errorf("parsing kml: %w", err)
	}

	return trackFromPlacemarks(filepath.Base(path), doc.Document.Placemarks, detector)
}

func trackFromPlacemarks(name string, placemarks []kmlPlacemark, detector Detector) (*models.Track, error) {
	var (
		centreline []models.LatLon
		startLine  []models.LatLon
		finishLine []models.LatLon
		sectors    [][]models.LatLon
	)

	for _, pm := range placemarks {
		lower := strings.ToLower(pm.Name)
		switch {
		case pm.LineString == nil:
			continue
		case strings.Contains(lower, "start") && strings.Contains(lower, "finish"):
			pts, err := parseCoordinates(pm.LineString.Coordinates)
			if err != nil {
				return nil, err
			}
			startLine, finishLine = pts, pts
		case strings.Contains(lower, "start"):
			pts, err := parseCoordinates(pm.LineString.Coordinates)
			if err != nil {
				return nil, err
			}
			startLine = pts
		case strings.Contains(lower, "finish"):
			pts, err := parseCoordinates(pm.LineString.Coordinates)
			if err != nil {
				return nil, err
			}
			finishLine = pts
		case strings.Contains(lower, "sector"):
			pts, err := parseCoordinates(pm.LineString.Coordinates)
			if err != nil {
				return nil, err
			}
			sectors = append(sectors, pts)
		case strings.Contains(lower, "centre") || strings.Contains(lower, "center") || strings.Contains(lower, "track"):
			pts, err := parseCoordinates(pm.LineString.Coordinates)
			if err != nil {
				return nil, err
			}
			centreline = pts
		}
	}

	if len(centreline) < 2 {
		return nil, fmt.Errorf("track file %s has no usable centreline placemark", name)
	}
	if len(startLine) < 2 {
		return nil, fmt.Errorf("track file %s has no start/finish line placemark", name)
	}

	return buildTrack(name, centreline, startLine, finishLine, sectors, detector)
}

func parseCoordinates(raw string) ([]models.LatLon, error) {
	fields := strings.Fields(raw)
	pts := make([]models.LatLon, 0, len(fields))
	for _, f := range fields {
		parts := strings.Split(f, ",")
		if len(parts) < 2 {
			continue
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing longitude %q: %w", parts[0], err)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing latitude %q: %w", parts[1], err)
		}
		pts = append(pts, models.LatLon{Lat: lat, Lon: lon})
	}
	return pts, nil
}

// gpxDoc covers track points and named waypoints, enough to treat a GPX
// export's single <trk> as the centreline and its <wpt> entries as the
// S/F and sector lines (paired endpoints named "sf_a"/"sf_b",
// "sector1_a"/"sector1_b", etc).
type gpxDoc struct {
	XMLName xml.Name `xml:"gpx"`
	Trk     struct {
		TrkSeg struct {
			TrkPt []gpxPoint `xml:"trkpt"`
		} `xml:"trkseg"`
	} `xml:"trk"`
	Wpt []gpxPoint `xml:"wpt"`
}

type gpxPoint struct {
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Name string  `xml:"name"`
}

func loadGPX(path string, detector Detector) (*models.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening gpx %s: %w", path, err)
	}
	defer f.Close()

	var doc gpxDoc
	if err := xml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing gpx: %w", err)
	}

	if len(doc.Trk.TrkSeg.TrkPt) < 2 {
		return nil, fmt.Errorf("gpx file %s has fewer than 2 track points", path)
	}
	centreline := make([]models.LatLon, len(doc.Trk.TrkSeg.TrkPt))
	for i, p := range doc.Trk.TrkSeg.TrkPt {
		centreline[i] = models.LatLon{Lat: p.Lat, Lon: p.Lon}
	}

	named := make(map[string]models.LatLon, len(doc.Wpt))
	for _, w := range doc.Wpt {
		named[w.Name] = models.LatLon{Lat: w.Lat, Lon: w.Lon}
	}

	startLine, err := pairedWaypoint(named, "sf_a", "sf_b")
	if err != nil {
		return nil, fmt.Errorf("gpx file %s: %w", path, err)
	}

	var sectors [][]models.LatLon
	for i := 1; ; i++ {
		a, aok := named[fmt.Sprintf("sector%d_a", i)]
		b, bok := named[fmt.Sprintf("sector%d_b", i)]
		if !aok || !bok {
			break
		}
		sectors = append(sectors, []models.LatLon{a, b})
	}

	return buildTrack(filepath.Base(path), centreline, startLine, startLine, sectors, detector)
}

func pairedWaypoint(named map[string]models.LatLon, aName, bName string) ([]models.LatLon, error) {
	a, aok := named[aName]
	b, bok := named[bName]
	if !aok || !bok {
		return nil, fmt.Errorf("missing paired waypoints %q/%q", aName, bName)
	}
	return []models.LatLon{a, b}, nil
}

func buildTrack(name string, centrelineLL, startLL, finishLL []models.LatLon, sectorLLs [][]models.LatLon, detector Detector) (*models.Track, error) {
	origin := centrelineLL[0]
	proj := models.NewProjector(origin)

	centreline := make([]models.ENU, len(centrelineLL))
	for i, p := range centrelineLL {
		centreline[i] = proj.ToENU(p)
	}

	startLine := models.Segment{A: proj.ToENU(startLL[0]), B: proj.ToENU(startLL[len(startLL)-1])}
	finishLine := models.Segment{A: proj.ToENU(finishLL[0]), B: proj.ToENU(finishLL[len(finishLL)-1])}

	sectors := make([]models.Segment, len(sectorLLs))
	for i, s := range sectorLLs {
		sectors[i] = models.Segment{A: proj.ToENU(s[0]), B: proj.ToENU(s[len(s)-1])}
	}

	kind := models.PointToPoint
	if startLine.A == finishLine.A && startLine.B == finishLine.B {
		kind = models.Circuit
	}

	var corners []models.Corner
	if detector != nil {
		corners = detector.Detect(centreline)
	}

	return &models.Track{
		Name:       name,
		Kind:       kind,
		Origin:     origin,
		StartLine:  startLine,
		FinishLine: finishLine,
		Sectors:    sectors,
		Waypoints:  centreline,
		Corners:    corners,
		Centreline: centreline,
	}, nil
}
