package server

import (
	"encoding/base64"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/bmharper/cimg/v2"
	"github.com/julienschmidt/httprouter"
	"github.com/ppecam/ppecam/pkg/alarm"
	"github.com/ppecam/ppecam/pkg/nn"
	"github.com/ppecam/ppecam/pkg/www"
	"github.com/ppecam/ppecam/server/monitor"
)

// Largest multipart frame-sequence upload we accept (256 MB)
const maxVideoUploadBytes = 256 * 1024 * 1024

type personJSON struct {
	Box        nn.Rect                       `json:"box"`
	Confidence float32                       `json:"confidence"`
	Verdict    string                        `json:"verdict"`
	Missing    []string                      `json:"missing"`
	Gear       map[string]nn.ObjectDetection `json:"gear"`
}

type frameJSON struct {
	Frame       int64         `json:"frame"`
	Persons     []personJSON  `json:"persons"`
	Violation   bool          `json:"violation"`
	AlarmActive bool          `json:"alarmActive"`
	Signal      *alarm.Signal `json:"signal,omitempty"`
}

func toFrameJSON(result *monitor.FrameResult) frameJSON {
	persons := make([]personJSON, 0, len(result.Records))
	for _, rec := range result.Records {
		gear := map[string]nn.ObjectDetection{}
		for class, obj := range rec.Gear {
			gear[nn.PPEClasses[class]] = obj
		}
		persons = append(persons, personJSON{
			Box:        rec.Person.Box,
			Confidence: rec.Person.Confidence,
			Verdict:    rec.Verdict.String(),
			Missing:    rec.MissingNames(),
			Gear:       gear,
		})
	}
	return frameJSON{
		Frame:       result.Frame,
		Persons:     persons,
		Violation:   result.Violation,
		AlarmActive: result.AlarmActive,
		Signal:      result.Signal,
	}
}

func decodeFrameOrPanic(b []byte) *cimg.Image {
	img, err := cimg.Decompress(b)
	if err != nil {
		www.PanicBadRequestf("Failed to decode image: %v", err)
	}
	return img
}

type detectResponseJSON struct {
	frameJSON
	Annotated string `json:"annotated"` // base64 JPEG of the annotated frame
}

// httpDetect runs a single image through the pipeline.
// With ?render=image, the response is the annotated JPEG instead of JSON.
// A single image has no stream to debounce over, so violations raise
// immediately, and nothing lingers after the request.
func (s *Server) httpDetect(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	body := www.ReadLimited(w, r, maxUploadBytes)
	img := decodeFrameOrPanic(body)

	render := www.QueryValue(r, "render") == "image"
	session := s.monitor.StartOneShotSession()
	defer session.Close()

	result, err := session.ProcessFrame(r.Context(), img, monitor.ProcessOptions{Annotate: true})
	www.Check(err)

	jpg, err := cimg.Compress(result.Annotated, cimg.MakeCompressParams(cimg.Sampling420, 90, 0))
	www.Check(err)
	if render {
		www.SendBinary(w, "image/jpeg", jpg)
		return
	}
	www.SendJSON(w, detectResponseJSON{
		frameJSON: toFrameJSON(result),
		Annotated: base64.StdEncoding.EncodeToString(jpg),
	})
}

type videoResponseJSON struct {
	Frames          int            `json:"frames"`
	FailedFrames    int            `json:"failedFrames"`
	ViolationFrames int            `json:"violationFrames"`
	MissingCounts   map[string]int `json:"missingCounts"` // person-level misses per gear type, across the whole upload
	Results         []frameJSON    `json:"results"`
	Alarms          []alarm.Signal `json:"alarms"`
}

// httpDetectVideo runs an ordered sequence of frames (one multipart part per
// frame, oldest first) through a single session, so the alarm debounces
// across the sequence exactly as it would on a live stream.
func (s *Server) httpDetectVideo(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	r.Body = http.MaxBytesReader(w, r.Body, maxVideoUploadBytes)
	reader, err := r.MultipartReader()
	www.CheckClient(err)

	session := s.monitor.StartSession()
	defer session.Close()

	resp := videoResponseJSON{
		MissingCounts: map[string]int{},
		Results:       []frameJSON{},
		Alarms:        []alarm.Signal{},
	}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		www.CheckClient(err)
		resp.Frames++
		result, err := s.processPart(r, session, part)
		if errors.Is(err, nn.ErrDetectionFailed) {
			// Detection failures skip the frame. The alarm state is untouched.
			resp.FailedFrames++
			continue
		}
		www.Check(err)
		fj := toFrameJSON(result)
		if result.Violation {
			resp.ViolationFrames++
		}
		for _, rec := range result.Records {
			for _, class := range rec.Missing {
				resp.MissingCounts[nn.PPEClasses[class]]++
			}
		}
		if result.Signal != nil {
			resp.Alarms = append(resp.Alarms, *result.Signal)
		}
		resp.Results = append(resp.Results, fj)
	}
	if resp.Frames == 0 {
		www.PanicBadRequestf("No frames in upload")
	}
	www.SendJSON(w, resp)
}

func (s *Server) processPart(r *http.Request, session *monitor.Session, part *multipart.Part) (*monitor.FrameResult, error) {
	defer part.Close()
	b, err := io.ReadAll(io.LimitReader(part, maxUploadBytes))
	www.CheckClient(err)
	img := decodeFrameOrPanic(b)
	return session.ProcessFrame(r.Context(), img, monitor.ProcessOptions{})
}
