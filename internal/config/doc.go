// Package config loads fluent-gateway configuration from a YAML or TOML file.
//
// ${VAR} references are expanded from the environment before parsing, so
// secrets can stay out of the file:
//
//	auth:
//	  jwt_secret: ${FLUENT_JWT_SECRET}
//	translation:
//	  engine: libretranslate
//	  url: https://libretranslate.com
//	  api_key: ${LIBRETRANSLATE_API_KEY}
//	  timeout: 5s
//	  breaker_threshold: 5
//	  breaker_cooldown: 1m
//
// Durations are written as Go duration strings. Missing values fall back to
// the Default* constants, and FLUENT_DB_PATH overrides database.path.
package config
