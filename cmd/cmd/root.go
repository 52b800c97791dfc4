/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"newsbrief/cmd/handlers"
	"newsbrief/internal/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "newsbrief",
	Short: "Newsbrief collects news feeds and produces validated daily briefings.",
	Long: `Newsbrief is the daily digest pipeline: it collects RSS/Atom feeds into a
deduplicated buffer, drains the buffer through a staged summarization
pipeline, validates the result against the source articles, and writes
dated markdown artifacts.

Typical schedule:
  newsbrief collect    # several times a day
  newsbrief digest     # once a day
  newsbrief paper      # once a day`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.newsbrief.yaml)")

	rootCmd.AddCommand(handlers.NewCollectCmd())
	rootCmd.AddCommand(handlers.NewDigestCmd())
	rootCmd.AddCommand(handlers.NewPaperCmd())
	rootCmd.AddCommand(handlers.NewFeedsCmd())
}

// initConfig reads in the config file and environment variables.
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
}
