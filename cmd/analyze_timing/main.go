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

// Ranks key byte candidates from an exported timing table.
package main

import (
	"flag"
	"os"

	"github.com/senthil4321/sidechannel"
	"github.com/senthil4321/sidechannel/analysis"
	"github.com/senthil4321/sidechannel/util"

	"github.com/golang/glog"
)

var (
	inputFlag    = flag.String("input", "timing_data.csv", "CSV table written by collect_timing")
	indexFlag    = flag.Int("index", 0, "Key byte the table was collected for")
	polarityFlag = flag.String("polarity", "min", "Which extreme wins: min or max")
	topFlag      = flag.Int("top", 10, "Candidates shown")
	featuresFlag = flag.Bool("features", false, "Print the features of every candidate")
)

func init() {
	flag.Parse()
}

func main() {
	defer glog.Flush()

	polarity, err := sidechannel.ParsePolarity(*polarityFlag)
	if err != nil {
		glog.Fatal(err)
	}
	table, err := analysis.LoadTable(*inputFlag)
	if err != nil {
		glog.Fatal(err)
	}
	glog.Infof("Loaded %d rows from %v", table.Rows, *inputFlag)

	features := analysis.ExtractFeatures(table)
	if *featuresFlag {
		util.PrintFeatures(os.Stdout, features)
	}

	res := analysis.ToSweepResult(features, *indexFlag)
	report, err := sidechannel.Discriminate(res, sidechannel.DiscriminatorConfig{Polarity: polarity, Known: table.Known})
	if err != nil {
		glog.Fatal(err)
	}
	util.PrintReport(os.Stdout, res, report, *topFlag)

	util.PrintTTests(os.Stdout, analysis.WelchRanking(table, polarity), *topFlag)
}
