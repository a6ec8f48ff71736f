// Package config handles configuration loading for chatd.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${TTC_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agents:
//	  timeout: "90s"
//	  stream_debounce: "100ms"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/ttc-chat/chat.db"
//
// Authentication (optional; leaving the secret empty disables auth on
// the bot management endpoints):
//
//	auth:
//	  jwt_secret: "${TTC_JWT_SECRET}"
//
// Responder backends, one per role type, exactly one marked default:
//
//	agents:
//	  timeout: "90s"
//	  stream_debounce: "100ms"
//	  roles:
//	    - role_type: "ttc_assistant"
//	      model: "gpt-4o-mini"
//	      base_url: "https://api.openai.com/v1"
//	      api_key: "${OPENAI_API_KEY}"
//	      system_prompt: "You are a helpful assistant."
//	      default: true
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	  file: ""        # optional rotating log file
package config
