package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"algomind/src/log"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "algomind",
	Short: "Algorithm learning assistant",
	Long: `algomind answers algorithm questions by combining a knowledge graph, an
embedding table of problems and concepts, and a language model, and shows the
reasoning steps and the knowledge graph behind every answer.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return log.Setup(viper.GetString("log.format"), viper.GetInt("log.verbosity"))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	settingDefaultConfig()
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Error(err, "Failed to read config file", "path", cfgFile)
		os.Exit(1)
	}
	log.Info("Using config file", "path", viper.ConfigFileUsed())
}
