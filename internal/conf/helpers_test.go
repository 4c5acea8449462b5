package conf

import "github.com/spf13/viper"

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaultConfig(v)
	return v
}
