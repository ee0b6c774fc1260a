// Package gpx reads and writes GPS Exchange Format track logs.
package gpx

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mholt/archives"
	"go.uber.org/zap"

	"github.com/dpup/strava-gpx/internal/lib/geo"
	"github.com/dpup/strava-gpx/internal/lib/track"
)

// Garmin TrackPointExtension element names
var sensorElements = map[string]track.SensorKind{
	"atemp": track.AirTemperature,
	"wtemp": track.WaterTemperature,
	"depth": track.Depth,
	"hr":    track.HeartRate,
	"cad":   track.Cadence,
}

// Option configures a parse
type Option func(*decoder)

// WithLogger logs ignored extension elements at debug level
func WithLogger(logger *zap.Logger) Option {
	return func(d *decoder) { d.logger = logger }
}

// WithSource records where the document came from in the trajectory metadata
func WithSource(source string) Option {
	return func(d *decoder) { d.meta.Source = source }
}

// IsGPXFile reports whether name has a .gpx or .gpx.gz extension
func IsGPXFile(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".gpx") || strings.HasSuffix(name, ".gpx.gz")
}

// ParseFile opens and parses a .gpx or gzip-compressed .gpx.gz file
func ParseFile(path string, opts ...Option) (*track.Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPX file: %w", err)
	}
	defer f.Close()

	opts = append([]Option{WithSource(filepath.Base(path))}, opts...)
	return Parse(f, opts...)
}

// Parse reads a GPX document and returns every track point of every track segment, in
// document order, as one trajectory. Gzip-compressed input is decompressed. A point
// missing its lat, lon, ele or time fails the whole parse with track.ErrMalformedInput.
func Parse(r io.Reader, opts ...Option) (*track.Trajectory, error) {
	r, closeFn, err := decompress(r)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	d := &decoder{Decoder: xml.NewDecoder(r), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.decode(); err != nil {
		return nil, err
	}
	if len(d.points) == 0 {
		return nil, track.ErrDegenerateTrajectory
	}
	if d.meta.Name == "" {
		d.meta.Name = d.metadataName
	}

	return track.NewTrajectory(d.points, d.meta)
}

var gzipMagic = []byte{0x1f, 0x8b}

// decompress sniffs r and unwraps a gzip stream
func decompress(r io.Reader) (io.Reader, func(), error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(len(gzipMagic))
	if !bytes.Equal(magic, gzipMagic) {
		return br, func() {}, nil
	}

	rc, err := archives.Gz{}.OpenReader(br)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	return rc, func() { rc.Close() }, nil
}

// decoder wraps the XML decoder and tracks nesting state so only the parts of the
// tree that matter are decoded
type decoder struct {
	*xml.Decoder
	logger *zap.Logger

	stack        nesting
	meta         track.Metadata
	metadataName string
	points       []track.TrackPoint
}

func (d *decoder) decode() error {
	for {
		tkn, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: decoding next XML token: %w", track.ErrMalformedInput, err)
		}

		switch elem := tkn.(type) {
		case xml.StartElement:
			handled, err := d.handle(elem)
			if err != nil {
				return err
			}
			if !handled {
				d.stack = append(d.stack, elem.Name.Local)
			}

		case xml.EndElement:
			if len(d.stack) == 0 {
				return fmt.Errorf("%w: encountered end tag without opening: %s", track.ErrMalformedInput, elem.Name.Local)
			}
			d.stack = d.stack[:len(d.stack)-1]
		}
	}
}

// handle decodes elem if it is one we need, consuming it through its end tag
func (d *decoder) handle(elem xml.StartElement) (bool, error) {
	switch p := d.stack.path(); {
	case p == "gpx" && elem.Name.Local == "metadata":
		var meta metadata
		if err := d.DecodeElement(&meta, &elem); err != nil {
			return true, fmt.Errorf("%w: decoding XML element as metadata: %w", track.ErrMalformedInput, err)
		}
		d.metadataName = strings.TrimSpace(meta.Name)
		if ts := strings.TrimSpace(meta.Time); ts != "" {
			t, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return true, fmt.Errorf("%w: parsing timestamp in metadata->time element: %w", track.ErrMalformedInput, err)
			}
			d.meta.Time = t
		}
		return true, nil

	case p == "gpx/trk" && (elem.Name.Local == "name" || elem.Name.Local == "type"):
		var text string
		if err := d.DecodeElement(&text, &elem); err != nil {
			return true, fmt.Errorf("%w: decoding trk %s: %w", track.ErrMalformedInput, elem.Name.Local, err)
		}
		// The first track describes the activity
		if elem.Name.Local == "name" && d.meta.Name == "" {
			d.meta.Name = strings.TrimSpace(text)
		}
		if elem.Name.Local == "type" && d.meta.Type == "" {
			d.meta.Type = strings.TrimSpace(text)
		}
		return true, nil

	case p == "gpx/trk/trkseg" && elem.Name.Local == "trkpt":
		var raw trkpt
		if err := d.DecodeElement(&raw, &elem); err != nil {
			return true, fmt.Errorf("%w: decoding XML element as track point: %w", track.ErrMalformedInput, err)
		}
		point, err := d.trackPoint(raw)
		if err != nil {
			return true, fmt.Errorf("%w: trkpt %d: %w", track.ErrMalformedInput, len(d.points), err)
		}
		d.points = append(d.points, point)
		return true, nil
	}

	return false, nil
}

func (d *decoder) trackPoint(raw trkpt) (track.TrackPoint, error) {
	lat, err := requiredFloat("lat", raw.Lat)
	if err != nil {
		return track.TrackPoint{}, err
	}
	lon, err := requiredFloat("lon", raw.Lon)
	if err != nil {
		return track.TrackPoint{}, err
	}
	position, err := geo.NewPoint(lat, lon)
	if err != nil {
		return track.TrackPoint{}, err
	}

	ele, err := requiredFloat("ele", raw.Ele)
	if err != nil {
		return track.TrackPoint{}, err
	}

	if strings.TrimSpace(raw.Time) == "" {
		return track.TrackPoint{}, errors.New("missing time")
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(raw.Time))
	if err != nil {
		return track.TrackPoint{}, fmt.Errorf("parsing time: %w", err)
	}

	readings, err := d.sensorReadings(raw.Extensions.Elements)
	if err != nil {
		return track.TrackPoint{}, err
	}

	return track.TrackPoint{
		Position:   position,
		Elevation:  ele,
		Time:       ts.UTC(),
		Extensions: readings,
	}, nil
}

// sensorReadings collects recognised extension leaves at any depth. Unrecognised
// elements are ignored.
func (d *decoder) sensorReadings(elems []element) ([]track.SensorReading, error) {
	var readings []track.SensorReading
	for _, e := range elems {
		if len(e.Children) > 0 {
			nested, err := d.sensorReadings(e.Children)
			if err != nil {
				return nil, err
			}
			readings = append(readings, nested...)
			continue
		}

		kind, ok := sensorElements[e.XMLName.Local]
		if !ok {
			d.logger.Debug("Ignoring unknown GPX extension", zap.String("element", e.XMLName.Local))
			continue
		}
		value, err := requiredFloat(e.XMLName.Local+" extension", e.Value)
		if err != nil {
			return nil, err
		}
		readings = append(readings, track.SensorReading{Kind: kind, Value: value})
	}
	return readings, nil
}

func requiredFloat(field, s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("missing %s", field)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s is not a finite number: %q", field, s)
	}
	return v, nil
}

type nesting []string

func (n nesting) path() string {
	return strings.Join(n, "/")
}

type metadata struct {
	Name string `xml:"name"`
	Time string `xml:"time"`
}

// trkpt keeps every field as text so absent fields can be told apart from zero values
type trkpt struct {
	Lat        string     `xml:"lat,attr"`
	Lon        string     `xml:"lon,attr"`
	Ele        string     `xml:"ele"`
	Time       string     `xml:"time"`
	Extensions extensions `xml:"extensions"`
}

type extensions struct {
	Elements []element `xml:",any"`
}

type element struct {
	XMLName  xml.Name
	Value    string    `xml:",chardata"`
	Children []element `xml:",any"`
}
