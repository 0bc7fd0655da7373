// Copyright 2025 dsgd Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/factorlab/dsgd/base/log"
	"github.com/factorlab/dsgd/cmd/version"
	"github.com/factorlab/dsgd/config"
	"github.com/factorlab/dsgd/dataset"
	"github.com/factorlab/dsgd/mf"
)

var trainCommand = &cobra.Command{
	Use:   "dsgd",
	Short: "Distributed stochastic gradient descent for matrix factorization.",
	Run: func(cmd *cobra.Command, args []string) {
		// Show version
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}
		// setup logger
		debug, _ := cmd.PersistentFlags().GetBool("debug")
		log.SetLogger(cmd.PersistentFlags(), debug)

		configPath, _ := cmd.PersistentFlags().GetString("config")
		log.Logger().Info("load config", zap.String("config", configPath))
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}

		// load ratings
		trainSet, err := dataset.LoadCSV(conf.Data.TrainPath, conf.Data.Separator)
		if err != nil {
			log.Logger().Fatal("failed to load training ratings", zap.Error(err))
		}
		var testSet *dataset.Dataset
		if conf.Data.TestPath != "" {
			testSet, err = dataset.LoadCSV(conf.Data.TestPath, conf.Data.Separator)
			if err != nil {
				log.Logger().Fatal("failed to load held-out ratings", zap.Error(err))
			}
		} else {
			trainSet, testSet = trainSet.SplitRatio(float64(conf.Data.TestRatio), conf.Data.SplitSeed)
		}
		log.Logger().Info("load ratings",
			zap.Int("train_set_size", trainSet.Count()),
			zap.Int("test_set_size", testSet.Count()),
			zap.Int("num_users", trainSet.CountUsers()),
			zap.Int("num_items", trainSet.CountItems()))

		// train
		m := mf.NewDSGD(conf.ModelParams())
		fitConfig := mf.NewFitConfig().
			SetJobs(conf.Fit.Jobs).
			SetVerbose(conf.Fit.Verbose).
			SetStratumTimeout(conf.Fit.StratumTimeout).
			SetColdStart(mf.ColdStartPolicy(conf.Fit.ColdStart))
		fitConfig.MaxLossGrowth = conf.Fit.MaxLossGrowth
		bar := progressbar.Default(int64(conf.Model.NEpochs), "sweep")
		fitConfig.OnEpoch = func(stats mf.EpochStats) {
			_ = bar.Add(1)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		history, err := m.Fit(ctx, trainSet, testSet, fitConfig)
		_ = bar.Finish()
		if err != nil {
			log.Logger().Fatal("failed to fit dsgd", zap.Error(err))
		}

		// report
		var elapsed time.Duration
		for _, stats := range history {
			elapsed += stats.Elapsed
		}
		final := history[len(history)-1]
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"metric", "value"})
		table.Append([]string{"state", m.State().String()})
		table.Append([]string{"epochs", fmt.Sprint(m.Epoch())})
		table.Append([]string{"processed", fmt.Sprint(m.Processed())})
		table.Append([]string{"train loss", fmt.Sprint(final.TrainLoss)})
		table.Append([]string{"test mse", fmt.Sprint(final.TestLoss)})
		table.Append([]string{"test rmse", fmt.Sprint(mf.RMSE(m, testSet, fitConfig.ColdStart, conf.Fit.Jobs))})
		table.Append([]string{"elapsed", elapsed.String()})
		table.Render()

		// save model
		if conf.Output.ModelPath != "" {
			f, err := os.Create(conf.Output.ModelPath)
			if err != nil {
				log.Logger().Fatal("failed to create model file", zap.Error(err))
			}
			defer f.Close()
			if err = m.Marshal(f); err != nil {
				log.Logger().Fatal("failed to save model", zap.Error(err))
			}
			log.Logger().Info("save model", zap.String("path", conf.Output.ModelPath))
		}
	},
}

func init() {
	log.AddFlags(trainCommand.PersistentFlags())
	trainCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	trainCommand.PersistentFlags().StringP("config", "c", "config.toml", "configuration file path")
	trainCommand.PersistentFlags().BoolP("version", "v", false, "dsgd version")
}

func main() {
	if err := trainCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
