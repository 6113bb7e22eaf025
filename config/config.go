package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/evalphobia/logrus_sentry"
	"github.com/gomodule/redigo/redis"
	"github.com/imdario/mergo"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DEVELOPMENT = "development"
	STAGING     = "staging"
	PRODUCTION  = "production"
)

const (
	DatastoreTypePostgres = "postgres"
	DatastoreTypeSQLite   = "sqlite3"
)

const (
	ProviderChargebee = "chargebee"
	ProviderStripe    = "stripe"
)

// EnvPrefix Prefix of environment variables read by InitFromEnv.
const EnvPrefix = "BILLSYNC"

type DBConf struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

var PostgresDefaultDBParams = DBConf{
	Host:     "localhost",
	Port:     5432,
	User:     "billsync",
	Name:     "billsync",
	Password: "@ut0#b1ll",
}

type Configuration struct {
	Env              string `json:"env"`
	AppName          string `json:"app_name" envconfig:"APP_NAME"`
	PrimaryDatastore string `json:"primary_datastore" envconfig:"PRIMARY_DATASTORE"`
	DBInfo           DBConf `json:"db" envconfig:"DB"`
	SQLitePath       string `json:"sqlite_path" envconfig:"SQLITE_PATH"`
	DBLogMode        bool   `json:"db_log_mode" envconfig:"DB_LOG_MODE"`

	RedisHost string `json:"redis_host" envconfig:"REDIS_HOST"`
	RedisPort int    `json:"redis_port" envconfig:"REDIS_PORT"`

	BillingProvider string `json:"billing_provider" envconfig:"PROVIDER"`
	ChargebeeSite   string `json:"chargebee_site" envconfig:"CHARGEBEE_SITE"`
	ChargebeeAPIKey string `json:"chargebee_api_key" envconfig:"CHARGEBEE_API_KEY"`
	StripeAPIKey    string `json:"stripe_api_key" envconfig:"STRIPE_API_KEY"`

	SentryDSN          string `json:"sentry_dsn" envconfig:"SENTRY_DSN"`
	GCPProjectID       string `json:"gcp_project_id" envconfig:"GCP_PROJECT_ID"`
	GCPProjectLocation string `json:"gcp_project_location" envconfig:"GCP_PROJECT_LOCATION"`
}

type Services struct {
	Db    *gorm.DB
	Redis *redis.Pool
}

var configuration *Configuration = nil
var services *Services = nil

func initLogging(config *Configuration) {
	// Log as JSON instead of the default ASCII formatter.
	log.SetFormatter(&log.JSONFormatter{})

	if config.Env == DEVELOPMENT {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	if config.SentryDSN == "" {
		return
	}

	hook, err := logrus_sentry.NewSentryHook(config.SentryDSN, []log.Level{
		log.PanicLevel,
		log.FatalLevel,
		log.ErrorLevel,
	})
	if err != nil {
		log.WithError(err).Error("Failed to initialize sentry hook. Continuing without it.")
		return
	}
	hook.Timeout = 5 * time.Second
	log.AddHook(hook)
}

// InitConf Sets the configuration for the process and initializes logging.
// Expects every service to be initialized separately.
func InitConf(c *Configuration) {
	if c == nil {
		c = &Configuration{}
	}
	if c.Env == "" {
		c.Env = DEVELOPMENT
	}

	configuration = c
	if services == nil {
		services = &Services{}
	}
	initLogging(c)
}

// InitFromEnv Fills the values left empty on the given configuration with
// environment variables prefixed with BILLSYNC_, then with the postgres
// defaults, and calls InitConf.
func InitFromEnv(c *Configuration) error {
	if c == nil {
		c = &Configuration{}
	}

	var envConfig Configuration
	if err := envconfig.Process(EnvPrefix, &envConfig); err != nil {
		return errors.Wrap(err, "failed to process environment config")
	}

	// Values given explicitly take precedence over environment.
	if err := mergo.Merge(c, envConfig); err != nil {
		return errors.Wrap(err, "failed to merge environment config")
	}

	if c.PrimaryDatastore == "" || c.PrimaryDatastore == DatastoreTypePostgres {
		if err := mergo.Merge(&c.DBInfo, PostgresDefaultDBParams); err != nil {
			return errors.Wrap(err, "failed to merge default db config")
		}
	}

	InitConf(c)
	return nil
}

func getPostgresConnectionString(dbConf DBConf) string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s password=%s sslmode=disable",
		dbConf.Host,
		dbConf.Port,
		dbConf.User,
		dbConf.Name,
		dbConf.Password)
}

// InitDB Opens the primary datastore given on the configuration.
func InitDB(config Configuration) error {
	if configuration == nil {
		InitConf(&config)
	}

	switch config.PrimaryDatastore {
	case DatastoreTypeSQLite:
		return InitSQLiteDB(config.SQLitePath)
	case "", DatastoreTypePostgres:
		return InitPostgresDB(config.DBInfo)
	}

	return fmt.Errorf("invalid primary datastore %s", config.PrimaryDatastore)
}

func InitPostgresDB(dbConf DBConf) error {
	db, err := gorm.Open(DatastoreTypePostgres, getPostgresConnectionString(dbConf))
	if err != nil {
		log.WithFields(log.Fields{"host": dbConf.Host, "name": dbConf.Name}).
			WithError(err).Error("Failed Db Initialization")
		return err
	}

	// Connection Pooling and Logging.
	db.DB().SetMaxIdleConns(10)
	db.DB().SetMaxOpenConns(50)
	if configuration != nil {
		db.LogMode(configuration.DBLogMode)
	}

	setDB(db)
	log.Info("Db Service initialized")
	return nil
}

// InitSQLiteDB Opens a sqlite3 datastore on the given path. Uses in-memory
// database when path is empty.
func InitSQLiteDB(path string) error {
	if path == "" {
		path = ":memory:"
	}

	db, err := gorm.Open(DatastoreTypeSQLite, path)
	if err != nil {
		log.WithField("path", path).WithError(err).Error("Failed Db Initialization")
		return err
	}

	// Every connection to :memory: gets its own database.
	db.DB().SetMaxOpenConns(1)
	if configuration != nil {
		db.LogMode(configuration.DBLogMode)
	}

	setDB(db)
	log.WithField("path", path).Info("SQLite Db Service initialized")
	return nil
}

func setDB(db *gorm.DB) {
	if services == nil {
		services = &Services{}
	}

	if services.Db != nil {
		services.Db.Close()
	}
	services.Db = db
}

// InitRedis Initializes the pool used for caching.
func InitRedis(host string, port int) {
	if services == nil {
		services = &Services{}
	}

	redisConnectionString := fmt.Sprintf("%s:%d", host, port)
	services.Redis = &redis.Pool{
		MaxActive:   50,
		MaxIdle:     10,
		IdleTimeout: 240 * time.Second,
		Wait:        false,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", redisConnectionString)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
	log.WithField("address", redisConnectionString).Info("Cache Redis Service initialized")
}

func GetCacheRedisConnection() redis.Conn {
	return services.Redis.Get()
}

// IsCacheEnabled Returns true when a redis pool has been initialized.
func IsCacheEnabled() bool {
	return services != nil && services.Redis != nil
}

func GetConfig() *Configuration {
	return configuration
}

func GetServices() *Services {
	return services
}

func IsDevelopment() bool {
	return configuration != nil &&
		(strings.Compare(configuration.Env, DEVELOPMENT) == 0)
}

func IsProduction() bool {
	return configuration != nil &&
		(strings.Compare(configuration.Env, PRODUCTION) == 0)
}

// SafeFlushAllServices Closes the open connections of all services.
func SafeFlushAllServices() {
	if services == nil {
		return
	}

	if services.Db != nil {
		services.Db.Close()
	}
	if services.Redis != nil {
		services.Redis.Close()
	}
}
