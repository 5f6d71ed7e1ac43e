package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	kerrors "github.com/zostay/keyrotate/pkg/errors"
)

// Environment variable names. These match the names used by the scheduler
// jobs that invoke the rotation.
const (
	EnvPrincipal               = "iam_user"
	EnvAccessKeyID             = "access_key_id"
	EnvSecretKey               = "secret_key"
	EnvRegion                  = "region"
	EnvMaxActiveAgeDays        = "max_age_in_days"
	EnvDeleteAfterInactiveDays = "delete_after_in_days"
	EnvParameterPrefix         = "parameter_prefix"
	EnvKMSKeyID                = "kms_key_id"
	EnvLockRedisAddr           = "lock_redis_addr"
	EnvPushgatewayURL          = "pushgateway_url"
)

// LookupFunc works like os.LookupEnv.
type LookupFunc func(string) (string, bool)

// Chain returns a LookupFunc that tries each function in turn and returns the
// first value found.
func Chain(fns ...LookupFunc) LookupFunc {
	return func(k string) (string, bool) {
		for _, fn := range fns {
			if v, ok := fn(k); ok {
				return v, true
			}
		}
		return "", false
	}
}

// EnvFile reads a dotenv file and returns a LookupFunc over its contents. The
// process environment is not changed.
func EnvFile(path string) (LookupFunc, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment file %q: %w", path, err)
	}

	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}, nil
}

// lookupEither tries the name as given and then in upper case.
func lookupEither(lookup LookupFunc, name string) (string, bool) {
	if v, ok := lookup(name); ok {
		return v, true
	}
	return lookup(strings.ToUpper(name))
}

// ApplyEnv overlays the values found through lookup onto the configuration.
// Every variable that is set but cannot be parsed is reported in the returned
// *errors.Aggregate.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	errs := kerrors.NewAggregate(nil)

	strs := []struct {
		name string
		dst  *string
	}{
		{EnvPrincipal, &c.Principal},
		{EnvAccessKeyID, &c.CurrentAccessKeyID},
		{EnvSecretKey, &c.CurrentSecretKey},
		{EnvRegion, &c.Region},
		{EnvParameterPrefix, &c.ParameterPrefix},
		{EnvKMSKeyID, &c.KMSKeyID},
		{EnvLockRedisAddr, &c.Lock.RedisAddr},
		{EnvPushgatewayURL, &c.Metrics.PushgatewayURL},
	}
	for _, s := range strs {
		if v, ok := lookupEither(lookup, s.name); ok {
			*s.dst = v
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{EnvMaxActiveAgeDays, &c.MaxActiveAgeDays},
		{EnvDeleteAfterInactiveDays, &c.DeleteAfterInactiveDays},
	}
	for _, i := range ints {
		v, ok := lookupEither(lookup, i.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs.Add(fmt.Errorf("environment variable %s must be a whole number of days: %w", i.name, err))
			continue
		}
		*i.dst = n
	}

	return errs.ErrorOrNil()
}
