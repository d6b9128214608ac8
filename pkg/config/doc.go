// Package config loads the configuration of an appforge instance.
//
// Configuration is read from a YAML file over built-in defaults, then
// overridden from the environment:
//
//	APPFORGE_DB_PATH  database.path
//	LOG_LEVEL         logging.level
//	LOG_FORMAT        logging.format
//
// A typical file:
//
//	database:
//	  path: /var/lib/appforge/appforge.db
//	logging:
//	  level: debug
//	  format: json
//	permissions:
//	  mode: rego
//	  user: ada@example.com
//	  groups: [developers]
//	  policy_paths: [/etc/appforge/policies]
//	  watch: true
//	import:
//	  failure_policy: abort
//
// Every field is validated with struct tags; Validate reports all
// violations at once, named by their YAML path.
package config
