/*
Package config loads service configuration.

Configuration layers, later wins:

 1. Built-in defaults (Default)
 2. An optional YAML file
 3. DAYBREAK_* environment variables

Load validates the merged result; the service refuses to start on a
configuration the engine cannot run with (zero sweep intervals, a
backoff cap below the base, and so on).
*/
package config
