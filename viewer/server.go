// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Serves sweep captures as JSON.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/senthil4321/sidechannel"
	"github.com/senthil4321/sidechannel/util"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"github.com/labstack/echo"
)

var (
	portFlag     = flag.Int("port", 8080, "Server HTTP port number")
	dirFlag      = flag.String("dir", "captures", "Input captures directory to display")
	polarityFlag = flag.String("polarity", "min", "Discriminator polarity: min or max")
	waitFlag     = flag.Duration("wait", 5*time.Minute, "Maximum long-poll duration of /captures")
)

const (
	capExt = ".json.gz"
)

// Published when a capture file changes.
type captureEvent struct {
	Name string
	Op   fsnotify.Op
}

type CaptureSummary struct {
	Name        string          `json:"Name"`
	Key         string          `json:"Key"`
	TargetIndex int             `json:"TargetIndex"`
	Known       int             `json:"Known"`
	NumSamples  int             `json:"NumSamples"`
	Reports     []CounterReport `json:"Reports"`
}

type CounterReport struct {
	Counter        string  `json:"Counter"`
	Predicted      int     `json:"Predicted"`
	Spread         float64 `json:"Spread"`
	RelativeSpread float64 `json:"RelativeSpread"`
	Valid          int     `json:"Valid"`
	Success        bool    `json:"Success"`
	KnownRank      int     `json:"KnownRank"`
	Error          string  `json:"Error,omitempty"`
}

// A go-routine that waits for directory changes.
// Notifies changes by publishing a message via broker.
func watchDirectoryChanges(dir string, broker *util.Broker[captureEvent]) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		glog.Errorf("NewWatcher failed: %v", err)
		return
	}
	defer watcher.Close()

	if err = watcher.Add(dir); err != nil {
		glog.Errorf("watcher.Add failed: %v", err)
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				glog.Warning("watcher.Events is not ok. Aborting")
				return
			}
			glog.V(1).Infof("Watcher event: %v", event)
			if isCaptureChange(event) {
				broker.Publish(captureEvent{Name: captureName(event.Name), Op: event.Op})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				glog.Warning("watcher.Errors is not ok. Aborting")
				return
			}
			glog.Warning("Watcher error: ", err)
		}
	}
}

func isCaptureChange(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, capExt) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

func captureName(filename string) string {
	return strings.TrimSuffix(filepath.Base(filename), capExt)
}

// Blocks until a capture changes, the client goes away or wait elapses.
func waitForCaptures(c echo.Context, broker *util.Broker[captureEvent], wait time.Duration) {
	dirChanged := broker.Subscribe()
	defer broker.Unsubscribe(dirChanged)
	timedOut := time.NewTimer(wait)
	defer timedOut.Stop()

	select {
	case <-timedOut.C:
		glog.V(1).Infof("Timed out")
	case <-c.Request().Context().Done():
		glog.V(1).Infof("Client disconnected")
	case ev := <-dirChanged:
		glog.V(1).Infof("Capture %v changed (%v)", ev.Name, ev.Op)
	}
}

type server struct {
	dir      string
	broker   *util.Broker[captureEvent]
	polarity sidechannel.Polarity
	wait     time.Duration
}

func (s *server) loadCapture(name string) (*sidechannel.Capture, error) {
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid capture name %q", name)
	}
	return sidechannel.LoadCapture(filepath.Join(s.dir, name+capExt))
}

func (s *server) summarize(name string, capture *sidechannel.Capture) CaptureSummary {
	sum := CaptureSummary{
		Name:        name,
		Key:         hex.EncodeToString(capture.Key),
		TargetIndex: capture.TargetIndex,
		Known:       capture.Known(),
		NumSamples:  len(capture.Samples),
	}
	cfg := sidechannel.DiscriminatorConfig{Polarity: s.polarity, Known: capture.Known()}
	for _, counter := range capture.Counters {
		cr := CounterReport{Counter: counter, Predicted: -1, KnownRank: -1}
		report, err := sidechannel.Discriminate(capture.Result(counter), cfg)
		if err != nil {
			cr.Error = err.Error()
		} else {
			cr.Predicted = report.Predicted
			cr.Spread = report.Spread
			cr.RelativeSpread = report.RelativeSpread
			cr.Valid = report.Valid
			cr.Success = report.Success()
			if cfg.Known >= 0 {
				cr.KnownRank = report.RankOf(byte(cfg.Known))
			}
		}
		sum.Reports = append(sum.Reports, cr)
	}
	return sum
}

// JSON cannot carry NaN, invalid candidates are sent as null.
func nullable(v []float64) []*float64 {
	out := make([]*float64, len(v))
	for i := range v {
		if !math.IsNaN(v[i]) {
			out[i] = &v[i]
		}
	}
	return out
}

func newServer(s *server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Returns list of capture files in directory.
	e.GET("/captures", func(c echo.Context) error {
		if c.QueryParam("wait") != "false" {
			waitForCaptures(c, s.broker, s.wait)
		}
		files, err := filepath.Glob(filepath.Join(s.dir, "*"+capExt))
		if err != nil {
			glog.Errorf("Glob failed: %v", err)
			return err
		}
		names := []string{}
		for _, f := range files {
			names = append(names, captureName(f))
		}
		return c.JSON(http.StatusOK, names)
	})

	// Discrimination report of every counter in a capture.
	e.GET("/data/:capture", func(c echo.Context) error {
		capture, err := s.loadCapture(c.Param("capture"))
		if err != nil {
			glog.Errorf("Error loading capture file: %v", err)
			return c.String(http.StatusNotFound, "Invalid capture")
		}
		return c.JSON(http.StatusOK, s.summarize(c.Param("capture"), capture))
	})

	// Candidate means of one counter.
	e.GET("/data/:capture/:counter", func(c echo.Context) error {
		capture, err := s.loadCapture(c.Param("capture"))
		if err != nil {
			glog.Errorf("Error loading capture file: %v", err)
			return c.String(http.StatusNotFound, "Invalid capture")
		}
		return c.JSON(http.StatusOK, nullable(capture.Result(c.Param("counter")).Means()))
	})

	// Raw values of one candidate.
	e.GET("/data/:capture/:counter/:candidate", func(c echo.Context) error {
		capture, err := s.loadCapture(c.Param("capture"))
		if err != nil {
			glog.Errorf("Error loading capture file: %v", err)
			return c.String(http.StatusNotFound, "Invalid capture")
		}
		candidate, err := strconv.Atoi(c.Param("candidate"))
		if err != nil || candidate < 0 || candidate >= sidechannel.NumCandidates {
			return c.String(http.StatusBadRequest, "Invalid candidate")
		}
		values := []float64{}
		for _, sample := range capture.Samples {
			if sample.Counter == c.Param("counter") && sample.Candidate == candidate {
				values = append(values, sample.Measurement)
			}
		}
		return c.JSON(http.StatusOK, values)
	})

	return e
}

func main() {
	flag.Parse()
	defer glog.Flush()

	polarity, err := sidechannel.ParsePolarity(*polarityFlag)
	if err != nil {
		glog.Fatal(err)
	}

	watchBroker := util.NewBroker[captureEvent](5)
	go watchBroker.Start()
	go watchDirectoryChanges(*dirFlag, watchBroker)

	e := newServer(&server{dir: *dirFlag, broker: watchBroker, polarity: polarity, wait: *waitFlag})
	glog.Fatal(e.Start(fmt.Sprintf(":%d", *portFlag)))
}
