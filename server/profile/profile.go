// Package profile resolves runtime configuration from flags and the
// environment.
package profile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Profile is the runtime configuration of the server.
type Profile struct {
	// Mode is "prod" or "dev".
	Mode string
	// Addr is the bind address, empty for all interfaces.
	Addr string
	// Port is the HTTP port.
	Port int
	// Data is the data directory for the database, vector index, and local
	// file storage.
	Data string
	// Driver is the store driver: sqlite, mysql, or postgres.
	Driver string
	// DSN is the database connection string; for sqlite it defaults to a
	// file under Data.
	DSN string
	// Version is the server version, injected at build time.
	Version string

	// AccessSecret gates the API; clients exchange it for a bearer token.
	// Empty disables authentication.
	AccessSecret string

	// LLMAPIKey authorizes calls to the OpenAI-compatible LLM endpoint.
	LLMAPIKey string
	// LLMBaseURL is the chat-completions endpoint base.
	LLMBaseURL string
	// LLMModel is the model identifier for agent runs.
	LLMModel string
	// EmbeddingModel is the model identifier for skill embeddings.
	EmbeddingModel string

	// SandboxBackend selects command isolation: "local" or "docker".
	SandboxBackend string
	// SandboxImage is the container image for the docker backend.
	SandboxImage string

	// StorageBackend selects skill-file storage: "local" or "s3".
	StorageBackend string
	S3AccessKeyID  string
	S3SecretKey    string
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// Validate normalizes and checks the profile, filling derived defaults.
func (p *Profile) Validate() error {
	if p.Mode != "prod" && p.Mode != "dev" {
		p.Mode = "dev"
	}
	if p.Data == "" {
		p.Data = "./data"
	}
	absData, err := filepath.Abs(p.Data)
	if err != nil {
		return errors.Wrap(err, "resolve data dir")
	}
	p.Data = absData
	if err := os.MkdirAll(p.Data, 0750); err != nil {
		return errors.Wrap(err, "create data dir")
	}

	switch p.Driver {
	case "", "sqlite":
		p.Driver = "sqlite"
		if p.DSN == "" {
			p.DSN = fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)", filepath.Join(p.Data, "agentpad.db"))
		}
	case "mysql", "postgres":
		if p.DSN == "" {
			return errors.Errorf("driver %s requires a dsn", p.Driver)
		}
	default:
		return errors.Errorf("unknown driver %q", p.Driver)
	}

	switch p.SandboxBackend {
	case "":
		p.SandboxBackend = "local"
	case "local", "docker":
	default:
		return errors.Errorf("unknown sandbox backend %q", p.SandboxBackend)
	}

	switch p.StorageBackend {
	case "":
		p.StorageBackend = "local"
	case "local":
	case "s3":
		if p.S3Bucket == "" {
			return errors.New("s3 storage requires a bucket")
		}
	default:
		return errors.Errorf("unknown storage backend %q", p.StorageBackend)
	}
	return nil
}

// FromViper reads the profile from the given viper instance. Every key is
// also settable through the environment with the AGENTPAD_ prefix, e.g.
// AGENTPAD_LLM_API_KEY.
func FromViper(v *viper.Viper) *Profile {
	return &Profile{
		Mode:           v.GetString("mode"),
		Addr:           v.GetString("addr"),
		Port:           v.GetInt("port"),
		Data:           v.GetString("data"),
		Driver:         v.GetString("driver"),
		DSN:            v.GetString("dsn"),
		AccessSecret:   v.GetString("access-secret"),
		LLMAPIKey:      v.GetString("llm-api-key"),
		LLMBaseURL:     v.GetString("llm-base-url"),
		LLMModel:       v.GetString("llm-model"),
		EmbeddingModel: v.GetString("embedding-model"),
		SandboxBackend: v.GetString("sandbox-backend"),
		SandboxImage:   v.GetString("sandbox-image"),
		StorageBackend: v.GetString("storage-backend"),
		S3AccessKeyID:  v.GetString("s3-access-key-id"),
		S3SecretKey:    v.GetString("s3-secret-key"),
		S3Endpoint:     v.GetString("s3-endpoint"),
		S3Region:       v.GetString("s3-region"),
		S3Bucket:       v.GetString("s3-bucket"),
	}
}
