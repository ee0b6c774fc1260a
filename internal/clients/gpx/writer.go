package gpx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"

	gogpx "github.com/twpayne/go-gpx"

	"github.com/dpup/strava-gpx/internal/lib/track"
)

const (
	creator = "stravagpx"

	trackPointExtensionNS = "http://www.garmin.com/xmlschemas/TrackPointExtension/v1"
)

// Build converts trajectories into a GPX 1.1 document with one track each
func Build(trajectories ...*track.Trajectory) *gogpx.GPX {
	doc := &gogpx.GPX{
		Version: "1.1",
		Creator: creator,
	}
	if len(trajectories) == 1 {
		meta := trajectories[0].Metadata()
		doc.Metadata = &gogpx.MetadataType{
			Name: meta.Name,
			Time: meta.Time,
		}
	}

	for _, t := range trajectories {
		meta := t.Metadata()
		seg := &gogpx.TrkSegType{TrkPt: make([]*gogpx.WptType, 0, t.Len())}
		for i := range t.Len() {
			seg.TrkPt = append(seg.TrkPt, waypoint(t.At(i)))
		}
		doc.Trk = append(doc.Trk, &gogpx.TrkType{
			Name:   meta.Name,
			Type:   meta.Type,
			TrkSeg: []*gogpx.TrkSegType{seg},
		})
	}
	return doc
}

// Write encodes trajectories as an indented GPX 1.1 document with one track each.
// Every track point carries an <ele>, including points at exactly 0 m.
//
// Parse reads every track of a document into a single trajectory, so a document
// holding several trajectories only parses back when each one ends before the next
// begins. Read it with a general GPX reader to recover the individual tracks.
func Write(w io.Writer, trajectories ...*track.Trajectory) error {
	var buf bytes.Buffer
	if err := Build(trajectories...).WriteIndent(&buf, "", "  "); err != nil {
		return fmt.Errorf("failed to write GPX: %w", err)
	}

	doc, err := fillZeroElevations(buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed to write GPX: %w", err)
	}
	if _, err := w.Write(doc); err != nil {
		return fmt.Errorf("failed to write GPX: %w", err)
	}
	return nil
}

// fillZeroElevations adds <ele>0</ele> to each trkpt written without an elevation.
// go-gpx leaves out float elements equal to zero.
func fillZeroElevations(doc []byte) ([]byte, error) {
	d := xml.NewDecoder(bytes.NewReader(doc))

	var (
		out    bytes.Buffer
		copied int64      // doc[:copied] is already in out
		open   int64 = -1 // offset just past a trkpt start tag whose first child is unknown
		indent []byte
	)
	insert := func() {
		out.Write(doc[copied:open])
		out.Write(indent)
		out.WriteString("<ele>0</ele>")
		copied = open
		open = -1
	}

	for {
		tkn, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch elem := tkn.(type) {
		case xml.StartElement:
			if open >= 0 {
				if elem.Name.Local == "ele" {
					open = -1
				} else {
					insert()
				}
			}
			if elem.Name.Local == "trkpt" {
				open = d.InputOffset()
				indent = nil
			}
		case xml.CharData:
			if open >= 0 {
				indent = bytes.Clone(elem)
			}
		case xml.EndElement:
			if open >= 0 {
				insert()
			}
		}
	}

	out.Write(doc[copied:])
	return out.Bytes(), nil
}

func waypoint(p track.TrackPoint) *gogpx.WptType {
	wpt := &gogpx.WptType{
		Lat:  p.Position.Latitude,
		Lon:  p.Position.Longitude,
		Ele:  p.Elevation,
		Time: p.Time,
	}
	if len(p.Extensions) > 0 {
		wpt.Extensions = &gogpx.ExtensionsType{XML: trackPointExtension(p.Extensions)}
	}
	return wpt
}

// trackPointExtension renders readings as a Garmin TrackPointExtension element
func trackPointExtension(readings []track.SensorReading) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<TrackPointExtension xmlns="` + trackPointExtensionNS + `">`)
	for _, r := range readings {
		name := elementName(r.Kind)
		if name == "" {
			continue
		}
		buf.WriteString("<" + name + ">")
		buf.WriteString(strconv.FormatFloat(r.Value, 'f', -1, 64))
		buf.WriteString("</" + name + ">")
	}
	buf.WriteString("</TrackPointExtension>")
	return buf.Bytes()
}

func elementName(kind track.SensorKind) string {
	for name, k := range sensorElements {
		if k == kind {
			return name
		}
	}
	return ""
}
