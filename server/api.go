package server

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
	"github.com/ppecam/ppecam/pkg/www"
)

func (s *Server) SetupRouter() *httprouter.Router {
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	// The detection endpoints run a neural network per request, so they get
	// a per-IP rate limit. Each endpoint has its own limiter.
	ratelimited := func(method, route string, h httprouter.Handle, requestLimit int, windowLength time.Duration) {
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		handle(method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			inner := func(w http.ResponseWriter, r *http.Request) { h(w, r, params) }
			limited(http.HandlerFunc(inner)).ServeHTTP(w, r)
		})
	}

	handle("GET", "/", s.httpIndex)
	handle("GET", "/health", s.httpHealth)
	handle("GET", "/api/model", s.httpModelInfo)
	handle("GET", "/api/config", s.httpGetConfig)
	handle("POST", "/api/config", s.httpSetConfig)
	handle("GET", "/api/events", s.httpEvents)
	handle("GET", "/api/stats", s.httpStats)
	handle("GET", "/ws/camera", s.httpCameraWebSocket)
	router.Handler("GET", "/metrics", s.monitor.Metrics.Handler())

	ratelimited("POST", "/api/detect", s.httpDetect, 60, time.Minute)
	ratelimited("POST", "/api/detect/video", s.httpDetectVideo, 6, time.Minute)

	return router
}

func (s *Server) httpIndex(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendText(w, "ppecam: PPE compliance monitor\n"+
		"POST /api/detect        detect PPE in a single image\n"+
		"POST /api/detect/video  detect PPE in a multipart sequence of frames\n"+
		"GET  /ws/camera         live camera websocket\n"+
		"GET  /api/model         model information\n"+
		"GET  /api/config        compliance policy\n"+
		"GET  /api/events        alarm transition history\n"+
		"GET  /api/stats         pipeline statistics\n"+
		"GET  /metrics           prometheus metrics\n")
}

func (s *Server) httpHealth(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, map[string]any{
		"status": "ok",
		"model":  s.monitor.ModelConfig().Name,
	})
}
