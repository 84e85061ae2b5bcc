package client

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	urlFlag     = "popgenUrl"
	timeoutFlag = "timeout"
)

func AddPopgenApiConnectionCommandlineArgs(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String(urlFlag, "http://localhost:8080", "specify popgen server url")
	_ = viper.BindPFlag(urlFlag, rootCmd.PersistentFlags().Lookup(urlFlag))
	rootCmd.PersistentFlags().Duration(timeoutFlag, defaultTimeout, "timeout of each call to the server")
	_ = viper.BindPFlag(timeoutFlag, rootCmd.PersistentFlags().Lookup(timeoutFlag))
}

// ExtractCommandlineArgs returns the connection details bound by AddPopgenApiConnectionCommandlineArgs.
func ExtractCommandlineArgs() *ApiConnectionDetails {
	return &ApiConnectionDetails{
		PopgenUrl: viper.GetString(urlFlag),
		Timeout:   viper.GetDuration(timeoutFlag),
	}
}
