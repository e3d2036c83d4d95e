package config

var defaults = map[string]any{
	"secret":   "",
	"pass_ttl": 60,

	"idempotency_key_ttl": 3600,
	"idempotency_store":   "memory",

	"log_level": "info",

	"allowed_networks": "",
	"gate_key_hash":    "",

	"society_id": "default",

	// Empty means auto-detect from the request
	"base_url":    "",
	"support_url": "",

	"risk.blacklist_file": "",

	"email.host":     "host.docker.internal",
	"email.port":     25,
	"email.username": "",
	"email.password": "",
	"email.from":     "noreply@example.com",
	"email.to":       []string{},

	"storage.sqlite.path": "./data/storage.db",
}

func Defaults() map[string]any {
	values := make(map[string]any)
	for k, v := range defaults {
		values[k] = v
	}
	return values
}
