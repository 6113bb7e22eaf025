package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	C "billsync/config"
	"billsync/integration/billing"
	"billsync/integration/chargebee"
	"billsync/integration/stripe"
	"billsync/metrics"
	"billsync/model/model"
	U "billsync/util"
)

func getProvider(config *C.Configuration) (billing.Provider, error) {
	switch config.BillingProvider {
	case C.ProviderChargebee:
		if config.ChargebeeSite == "" || config.ChargebeeAPIKey == "" {
			return nil, fmt.Errorf("chargebee site and api key are required")
		}
		return chargebee.NewProvider(config.ChargebeeSite, config.ChargebeeAPIKey), nil

	case C.ProviderStripe:
		if config.StripeAPIKey == "" {
			return nil, fmt.Errorf("stripe api key is required")
		}
		return stripe.NewProvider(config.StripeAPIKey), nil
	}

	return nil, fmt.Errorf("invalid billing provider %q", config.BillingProvider)
}

func main() {
	env := flag.String("env", "", "")
	appName := flag.String("app_name", "run_billing_sync", "")
	provider := flag.String("provider", "", "Billing provider: chargebee or stripe.")
	chargebeeSite := flag.String("chargebee_site", "", "")
	chargebeeAPIKey := flag.String("chargebee_api_key", "", "")
	stripeAPIKey := flag.String("stripe_api_key", "", "")

	primaryDatastore := flag.String("primary_datastore", "", "Primary datastore: postgres or sqlite3.")
	sqlitePath := flag.String("sqlite_path", "", "")
	dbHost := flag.String("db_host", "", "")
	dbPort := flag.Int("db_port", 0, "")
	dbUser := flag.String("db_user", "", "")
	dbName := flag.String("db_name", "", "")
	dbPass := flag.String("db_pass", "", "")
	dbLogMode := flag.Bool("db_log_mode", false, "")
	autoMigrate := flag.Bool("auto_migrate", false, "Creates the billing tables when missing. Meant for sqlite3.")

	redisHost := flag.String("redis_host", "", "Sync markers are kept only when set.")
	redisPort := flag.Int("redis_port", 0, "")

	accountCodes := flag.String("account_codes", "", "Comma separated account codes. Syncs all local accounts when empty.")
	skipSyncedWithin := flag.Duration("skip_synced_within", 0, "Skips accounts synced within the duration, i.e 6h.")

	sentryDSN := flag.String("sentry_dsn", "", "")
	gcpProjectID := flag.String("gcp_project_id", "", "")
	gcpProjectLocation := flag.String("gcp_project_location", "", "")

	flag.Parse()

	config := &C.Configuration{
		Env:              *env,
		AppName:          *appName,
		PrimaryDatastore: *primaryDatastore,
		SQLitePath:       *sqlitePath,
		DBLogMode:        *dbLogMode,
		DBInfo: C.DBConf{
			Host:     *dbHost,
			Port:     *dbPort,
			User:     *dbUser,
			Name:     *dbName,
			Password: *dbPass,
		},
		RedisHost:          *redisHost,
		RedisPort:          *redisPort,
		BillingProvider:    *provider,
		ChargebeeSite:      *chargebeeSite,
		ChargebeeAPIKey:    *chargebeeAPIKey,
		StripeAPIKey:       *stripeAPIKey,
		SentryDSN:          *sentryDSN,
		GCPProjectID:       *gcpProjectID,
		GCPProjectLocation: *gcpProjectLocation,
	}

	if err := C.InitFromEnv(config); err != nil {
		log.WithError(err).Fatal("Failed to initialize config.")
	}

	if err := C.InitDB(*config); err != nil {
		log.WithError(err).Fatal("Failed to initialize db.")
	}
	defer C.SafeFlushAllServices()

	if *autoMigrate {
		if err := C.GetServices().Db.AutoMigrate(model.BillingModels()...).Error; err != nil {
			log.WithError(err).Fatal("Failed to migrate billing tables.")
		}
	}

	if config.RedisHost != "" {
		C.InitRedis(config.RedisHost, config.RedisPort)
	}

	exporter := metrics.InitMetrics(config.Env, config.AppName, config.GCPProjectID, config.GCPProjectLocation)
	defer metrics.Flush(exporter)

	billingProvider, err := getProvider(config)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize billing provider.")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	options := billing.SyncOptions{SkipSyncedWithin: *skipSyncedWithin}
	startTime := time.Now()

	var jobStatus *billing.SyncJobStatus
	if codes := U.GetStringListFromCSV(*accountCodes); len(codes) > 0 {
		jobStatus, err = billing.SyncAccounts(ctx, billingProvider, codes, options)
	} else {
		jobStatus, err = billing.SyncAllAccounts(ctx, billingProvider, options)
	}

	logCtx := log.WithFields(log.Fields{
		"provider":   billingProvider.Name(),
		"time_taken": time.Since(startTime).String(),
	})
	if jobStatus != nil {
		if status, marshalErr := json.Marshal(jobStatus); marshalErr == nil {
			logCtx = logCtx.WithField("job_status", string(status))
		}
	}

	if err != nil {
		// Fatal skips deferred calls.
		metrics.Flush(exporter)
		C.SafeFlushAllServices()
		logCtx.WithError(err).Fatal("Billing sync completed with failures.")
	}
	logCtx.Info("Billing sync completed.")
}
