package main

import (
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/dudu/facemesh"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// frameRecord is one line of -json output
type frameRecord struct {
	Frame      int          `json:"frame"`
	Source     string       `json:"source,omitempty"`
	Mode       string       `json:"mode"`
	Face       bool         `json:"face"`
	Confidence float32      `json:"confidence,omitempty"`
	Box        *[4]float32  `json:"box,omitempty"` // x1, y1, x2, y2
	Mesh       [][3]float32 `json:"mesh,omitempty"`
	Timing     timingRecord `json:"timing_ms"`
}

type timingRecord struct {
	Detection  float64 `json:"detection"`
	Crop       float64 `json:"crop"`
	Regression float64 `json:"regression"`
	Total      float64 `json:"total"`
}

func newFrameRecord(frame int, source string, pred *facemesh.Prediction, mode string, timing facemesh.Timing, withMesh bool) frameRecord {
	rec := frameRecord{
		Frame:  frame,
		Source: source,
		Mode:   mode,
		Timing: timingRecord{
			Detection:  ms(timing.Detection),
			Crop:       ms(timing.Crop),
			Regression: ms(timing.Regression),
			Total:      ms(timing.Total),
		},
	}
	if pred == nil {
		return rec
	}

	b := pred.BoundingBox
	rec.Face = true
	rec.Confidence = pred.FaceInViewConfidence
	rec.Box = &[4]float32{b.TopLeft.X, b.TopLeft.Y, b.BottomRight.X, b.BottomRight.Y}
	if withMesh {
		rec.Mesh = make([][3]float32, len(pred.Mesh))
		for i, p := range pred.Mesh {
			rec.Mesh[i] = [3]float32{p.X, p.Y, p.Z}
		}
	}
	return rec
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// recordWriter writes frame records as JSON lines
type recordWriter struct {
	enc *jsoniter.Encoder
}

func newRecordWriter(w io.Writer) *recordWriter {
	return &recordWriter{enc: json.NewEncoder(w)}
}

func (w *recordWriter) Write(rec frameRecord) error {
	return w.enc.Encode(rec)
}
