// Package config handles configuration loading for chat-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${CHATGW_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to empty strings.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	typing:
//	  debounce_window: "4s"
//	dedupe:
//	  ttl: "5m"
//	connection:
//	  write_timeout: "10s"
//	  pong_timeout: "60s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # websocket and REST surface
//
// Database:
//
//	database:
//	  path: "/var/lib/chat-gateway/gateway.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${CHATGW_JWT_SECRET}"   # empty disables auth (dev only)
//
// Connection tuning:
//
//	connection:
//	  egress_buffer: 64
//	  max_message_bytes: 65536
//	  write_timeout: "10s"
//	  pong_timeout: "60s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/chat-gateway/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
