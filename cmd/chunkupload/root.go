package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "CHUNKUPLOAD"
	configFileName = ".chunkupload"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var cfgFile string
	cmd := &cobra.Command{
		Use:   "chunkupload",
		Short: "Upload large files in content addressed partitions",
		Long: `chunkupload splits files into fixed size partitions, computes the SHA-256 of the
whole file and sends the partitions one after another to a receiver.

Settings are read from flags, from CHUNKUPLOAD_* environment variables
(e.g. CHUNKUPLOAD_ENDPOINT, CHUNKUPLOAD_S3_BUCKET) and from $HOME/.chunkupload.yaml.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.chunkupload.yaml)")
	cmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	_ = v.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))

	cmd.AddCommand(newUploadCmd(v))
	cmd.AddCommand(newChecksumCmd(v))

	return cmd
}

// initConfig reads the config file. A missing default config file is not an error.
func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	return nil
}
