// Package server is the HTTP boundary of the PPE monitor.
package server

import (
	"net/http"

	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/ppecam/ppecam/server/configdb"
	"github.com/ppecam/ppecam/server/monitor"
)

// Largest request body we accept on the image upload endpoints (32 MB)
const maxUploadBytes = 32 * 1024 * 1024

type Server struct {
	Log      logs.Log
	monitor  *monitor.Monitor
	configDB *configdb.ConfigDB

	wsUpgrader websocket.Upgrader
}

func NewServer(log logs.Log, configDB *configdb.ConfigDB, mon *monitor.Monitor) *Server {
	return &Server{
		Log:        log,
		monitor:    mon,
		configDB:   configDB,
		wsUpgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
}

// ListenAndServe runs the HTTP server until the process exits.
// port example: ":8080"
func (s *Server) ListenAndServe(port string) error {
	router := s.SetupRouter()
	s.Log.Infof("Listening on %v", port)
	return http.ListenAndServe(port, router)
}
