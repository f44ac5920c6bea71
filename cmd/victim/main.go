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

// Encrypts continuously with a secret key so another process can observe it.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/senthil4321/sidechannel"

	"github.com/golang/glog"
)

var (
	keyHexFlag = flag.String("key", "2b7e151628aed2a6abf7158809cf4f3c",
		"16byte secret key in hex")
	pauseFlag      = flag.Duration("pause", 10*time.Microsecond, "Sleep after every encryption")
	reportFlag     = flag.Int("report", 100000, "Log progress every N encryptions, 0 disables")
	iterationsFlag = flag.Int("iterations", 0, "Stop after N encryptions, 0 runs until interrupted")
)

func init() {
	flag.Parse()
}

func main() {
	var err error
	defer glog.Flush()

	var key []byte
	if key, err = hex.DecodeString(*keyHexFlag); err != nil {
		glog.Fatal(err)
	}

	cfg := sidechannel.DefaultVictimConfig(key)
	cfg.Pause = *pauseFlag
	cfg.ReportEvery = *reportFlag
	cfg.Iterations = *iterationsFlag

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	glog.Infof("Victim pid %d, key %v", os.Getpid(), hex.EncodeToString(key))
	n, err := sidechannel.RunVictim(ctx, cfg)
	if err != nil {
		glog.Fatal(err)
	}
	glog.Infof("Performed %d encryptions", n)
}
