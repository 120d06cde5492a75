package transcript

import "fmt"

// New opens the backend selected by cfg.Backend. An empty backend means file.
func New(cfg Config, opts ...Option) (Store, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStore(cfg, opts...)
	case BackendRedis:
		return NewRedisStore(cfg.Redis, opts...)
	case BackendSQL:
		return OpenSQLStore(cfg.SQL, opts...)
	case BackendMongo:
		return NewMongoStore(cfg.Mongo, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
