// Package binutil holds the process-level helpers of the server binary.
package binutil

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
	"github.com/xiaonanln/sectorworld/engine/opmon"
	"golang.org/x/net/websocket"
)

// SetupHTTPServer starts the HTTP server for go tool pprof, metrics and websockets
//
// A zero port disables it and returns a nil server.
func SetupHTTPServer(ip string, port int, wsHandler func(ws *websocket.Conn)) (*http.Server, error) {
	if port == 0 {
		// pprof not enabled
		gwlog.Infof("http server not enabled")
		return nil, nil
	}

	httpHost := fmt.Sprintf("%s:%d", ip, port)
	ln, err := net.Listen("tcp", httpHost)
	if err != nil {
		return nil, errors.Wrapf(err, "listen http %s", httpHost)
	}
	gwlog.Infof("http server listening on %s", httpHost)
	gwlog.Infof("pprof http://%s/debug/pprof/ ... available commands: ", httpHost)
	gwlog.Infof("    go tool pprof http://%s/debug/pprof/heap", httpHost)
	gwlog.Infof("    go tool pprof http://%s/debug/pprof/profile", httpHost)
	gwlog.Infof("metrics http://%s/metrics", httpHost)
	return ServeHTTP(ln, wsHandler), nil
}

// ServeHTTP serves pprof, /metrics and, if wsHandler is set, /ws on ln
func ServeHTTP(ln net.Listener, wsHandler func(ws *websocket.Conn)) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", opmon.Handler())
	if wsHandler != nil {
		mux.Handle("/ws", websocket.Server{Handler: wsHandler})
	}

	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			gwlog.Errorf("http server stopped: %s", err)
		}
	}()
	return srv
}

// SetupGWLog setup the log system
func SetupGWLog(component string, logLevel string, logFile string, logStderr bool) {
	gwlog.SetSource(component)
	gwlog.Infof("Set log level to %s", logLevel)
	gwlog.SetLevel(gwlog.ParseLevel(logLevel))

	outputWriters := make([]io.Writer, 0, 2)
	if logFile != "" {
		logFileWriter := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 100,
			MaxAge:     30, //days
			Compress:   true,
		}
		logFileWriter.Rotate() // rotate immediately
		outputWriters = append(outputWriters, logFileWriter)
	}

	if logStderr {
		outputWriters = append(outputWriters, os.Stderr)
	}

	if len(outputWriters) == 0 {
		gwlog.SetOutput(io.Discard)
	} else if len(outputWriters) == 1 {
		gwlog.SetOutput(outputWriters[0])
	} else {
		gwlog.SetOutput(io.MultiWriter(outputWriters...))
	}
}
