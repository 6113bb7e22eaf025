package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitFromEnvKeepsExplicitValues(t *testing.T) {
	os.Setenv("BILLSYNC_PROVIDER", "stripe")
	os.Setenv("BILLSYNC_STRIPE_API_KEY", "sk_test_env")
	os.Setenv("BILLSYNC_DB_HOST", "db.internal")
	os.Setenv("BILLSYNC_ENV", "staging")
	defer func() {
		os.Unsetenv("BILLSYNC_PROVIDER")
		os.Unsetenv("BILLSYNC_STRIPE_API_KEY")
		os.Unsetenv("BILLSYNC_DB_HOST")
		os.Unsetenv("BILLSYNC_ENV")
	}()

	config := &Configuration{
		Env:             DEVELOPMENT,
		BillingProvider: ProviderChargebee,
	}
	err := InitFromEnv(config)
	assert.Nil(t, err)

	assert.Equal(t, DEVELOPMENT, GetConfig().Env)
	assert.Equal(t, ProviderChargebee, GetConfig().BillingProvider)
	assert.Equal(t, "sk_test_env", GetConfig().StripeAPIKey)
	assert.Equal(t, "db.internal", GetConfig().DBInfo.Host)
	assert.Equal(t, PostgresDefaultDBParams.Port, GetConfig().DBInfo.Port)
	assert.Equal(t, PostgresDefaultDBParams.Name, GetConfig().DBInfo.Name)
	assert.True(t, IsDevelopment())
	assert.False(t, IsProduction())
}

func TestInitConfDefaultsToDevelopment(t *testing.T) {
	InitConf(&Configuration{})
	assert.Equal(t, DEVELOPMENT, GetConfig().Env)
	assert.NotNil(t, GetServices())
}

func TestInitDB(t *testing.T) {
	InitConf(&Configuration{Env: DEVELOPMENT})

	t.Run("SQLite", func(t *testing.T) {
		err := InitDB(Configuration{PrimaryDatastore: DatastoreTypeSQLite})
		assert.Nil(t, err)
		assert.NotNil(t, GetServices().Db)
		assert.Nil(t, GetServices().Db.DB().Ping())
	})

	t.Run("InvalidDatastore", func(t *testing.T) {
		err := InitDB(Configuration{PrimaryDatastore: "memsql"})
		assert.NotNil(t, err)
	})
}

func TestGetPostgresConnectionString(t *testing.T) {
	assert.Equal(t, "host=localhost port=5432 user=billsync dbname=billsync password=@ut0#b1ll sslmode=disable",
		getPostgresConnectionString(PostgresDefaultDBParams))
}

func TestIsCacheEnabled(t *testing.T) {
	InitConf(&Configuration{Env: DEVELOPMENT})
	services.Redis = nil
	assert.False(t, IsCacheEnabled())

	InitRedis("localhost", 6379)
	assert.True(t, IsCacheEnabled())
	services.Redis.Close()
	services.Redis = nil
}
