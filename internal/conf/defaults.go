// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "nameatlas")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/nameatlas.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)
	viper.SetDefault("main.log.rotationday", time.Sunday)

	viper.SetDefault("aggregator.maxcombinations", DefaultMaxCombinations)
	viper.SetDefault("aggregator.maxconcurrentlookups", DefaultMaxConcurrentLookups)
	viper.SetDefault("aggregator.providertimeout", DefaultProviderTimeoutMs)

	viper.SetDefault("gateway.debug", false)
	viper.SetDefault("gateway.cachettl", 1440)
	viper.SetDefault("gateway.cachesweep", 10)

	viper.SetDefault("providers.debug", false)

	viper.SetDefault("providers.behindthename.enabled", false)
	viper.SetDefault("providers.behindthename.apikey", "")
	viper.SetDefault("providers.behindthename.baseurl", "https://www.behindthename.com/api")
	viper.SetDefault("providers.behindthename.ratelimit", 500)

	viper.SetDefault("providers.demograph.enabled", true)
	viper.SetDefault("providers.demograph.genderurl", "https://api.genderize.io")
	viper.SetDefault("providers.demograph.cultureurl", "https://api.nationalize.io")

	viper.SetDefault("providers.wikiname.enabled", true)
	viper.SetDefault("providers.wikiname.apiurl", "https://en.wiktionary.org/w/api.php")
	viper.SetDefault("providers.wikiname.ratelimit", 2.0)

	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.autotls", false)
	viper.SetDefault("webserver.host", "")

	viper.SetDefault("webserver.log.enabled", true)
	viper.SetDefault("webserver.log.path", "logs/web.log")
	viper.SetDefault("webserver.log.rotation", RotationDaily)
	viper.SetDefault("webserver.log.maxsize", 1048576)
	viper.SetDefault("webserver.log.rotationday", time.Sunday)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.debug", false)

	viper.SetDefault("observability.enabled", false)
	viper.SetDefault("observability.listen", "0.0.0.0:8090")
}
